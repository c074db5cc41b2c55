// Package cleanup sweeps expired refresh tokens out of the ledger on a
// fixed interval so the table does not grow without bound.
package cleanup

import (
	"context"
	"time"

	"github.com/skurakin/account-service/internal/auth/repository"
	"github.com/skurakin/account-service/internal/common/logger"
	"github.com/skurakin/account-service/internal/observability/metrics"
)

type Sweeper struct {
	tokens   repository.RefreshTokenRepository
	interval time.Duration
	log      *logger.Logger
}

func NewSweeper(tokens repository.RefreshTokenRepository, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{tokens: tokens, interval: interval, log: log}
}

// Run blocks until ctx is cancelled. One sweep happens immediately,
// then once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.tokens.DeleteExpired(ctx)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{"error": err.Error()}).Error("refresh token cleanup failed")
		return
	}

	if deleted > 0 {
		metrics.RefreshTokensCleanupDeleted.Add(float64(deleted))
		s.log.WithFields(ctx, logger.Fields{"deleted": deleted}).Info("expired refresh tokens removed")
	}
}
