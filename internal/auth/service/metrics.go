package service

import (
	"github.com/skurakin/account-service/internal/observability/metrics"
)

func incrementAccessTokensIssued() {
	metrics.AccessTokensIssued.Inc()
}

func incrementRefreshTokensIssued() {
	metrics.RefreshTokensIssued.Inc()
}

func incrementRefreshTokensRotated() {
	metrics.RefreshTokensRotated.Inc()
}

func incrementRefreshTokensRevoked() {
	metrics.RefreshTokensRevoked.Inc()
}

func incrementRefreshTokensRejected(reason string) {
	metrics.RefreshTokensRejected.WithLabelValues(reason).Inc()
}
