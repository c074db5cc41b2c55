package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AccessTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "access_tokens_issued_total",
			Help: "Total number of access tokens issued",
		},
	)

	RefreshTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refresh_tokens_issued_total",
			Help: "Total number of refresh tokens issued",
		},
	)

	RefreshTokensRotated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refresh_tokens_rotated_total",
			Help: "Total number of refresh tokens consumed by a successful rotation",
		},
	)

	RefreshTokensRevoked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refresh_tokens_revoked_total",
			Help: "Total number of refresh tokens revoked at logout",
		},
	)

	RefreshTokensRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_tokens_rejected_total",
			Help: "Total number of rejected refresh token presentations",
		},
		[]string{"reason"},
	)

	RefreshTokensCleanupDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refresh_tokens_cleanup_deleted_total",
			Help: "Total number of expired refresh tokens deleted during cleanup",
		},
	)
)
