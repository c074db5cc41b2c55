package service

import (
	"context"
	"errors"

	"github.com/skurakin/account-service/internal/auth/domain"
	"github.com/skurakin/account-service/internal/auth/repository"
	"github.com/skurakin/account-service/internal/common/clock"
	commonerrors "github.com/skurakin/account-service/internal/common/errors"
	"github.com/skurakin/account-service/internal/common/logger"
	"github.com/skurakin/account-service/internal/common/resilience"
)

type RefreshTokenRotatorInterface interface {
	Issue(ctx context.Context, userID domain.UserID) (domain.RefreshToken, error)
	Rotate(ctx context.Context, userID domain.UserID, oldHash string) (domain.RefreshToken, error)
	Revoke(ctx context.Context, hash string) (bool, error)
}

// RefreshTokenRotator owns the ledger: append-on-issue, remove-on-consume.
// Rotate runs both steps in one transaction so concurrent rotations of the
// same token cannot both succeed.
type RefreshTokenRotator struct {
	tokens     repository.RefreshTokenRepository
	txMgr      repository.TxManager
	breaker    resilience.CircuitBreakerInterface
	issuer     *TokenIssuer
	clock      clock.Clock
	maxPerUser int
	log        *logger.Logger
}

func NewRefreshTokenRotator(
	tokens repository.RefreshTokenRepository,
	breaker resilience.CircuitBreakerInterface,
	issuer *TokenIssuer,
	maxPerUser int,
	clk clock.Clock,
	log *logger.Logger,
) *RefreshTokenRotator {
	return &RefreshTokenRotator{
		tokens:     tokens,
		txMgr:      tokens.TxManager(),
		breaker:    breaker,
		issuer:     issuer,
		clock:      clk,
		maxPerUser: maxPerUser,
		log:        log,
	}
}

// Issue mints a refresh token and appends its hash, pruning the oldest
// entries so the per-user ledger stays bounded.
func (r *RefreshTokenRotator) Issue(ctx context.Context, userID domain.UserID) (domain.RefreshToken, error) {
	token, err := r.mint(userID)
	if err != nil {
		return domain.RefreshToken{}, err
	}

	err = r.breaker.Call(ctx, func(ctx context.Context) error {
		if err := r.tokens.DeleteExcessByUserID(ctx, string(userID), r.maxPerUser-1); err != nil {
			return err
		}
		return r.tokens.Create(ctx, stored(token))
	})
	if err != nil {
		return domain.RefreshToken{}, r.mapLedgerError(ctx, userID, "issue_refresh_token_failed", err)
	}

	incrementRefreshTokensIssued()
	return token, nil
}

// Rotate consumes the presented hash and appends a fresh one atomically.
// A hash that is no longer in the ledger, because it was already
// consumed or never issued, fails the whole rotation.
func (r *RefreshTokenRotator) Rotate(ctx context.Context, userID domain.UserID, oldHash string) (domain.RefreshToken, error) {
	token, err := r.mint(userID)
	if err != nil {
		return domain.RefreshToken{}, err
	}

	err = r.breaker.Call(ctx, func(ctx context.Context) error {
		return r.txMgr.WithTx(ctx, func(ctx context.Context, tx repository.RotationTx) error {
			consumed, err := tx.ConsumeByTokenHash(ctx, oldHash)
			if err != nil {
				return err
			}
			if !consumed {
				return ErrInvalidRefreshToken
			}
			if err := tx.DeleteExcessByUserID(ctx, string(userID), r.maxPerUser-1); err != nil {
				return err
			}
			return tx.Create(ctx, stored(token))
		})
	})
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			incrementRefreshTokensRejected("consumed_or_unknown")
			return domain.RefreshToken{}, ErrInvalidRefreshToken
		}
		return domain.RefreshToken{}, r.mapLedgerError(ctx, userID, "rotate_refresh_token_failed", err)
	}

	incrementRefreshTokensRotated()
	return token, nil
}

// Revoke removes the hash if present. Reports whether an entry matched;
// a miss is not an error, so logout stays idempotent.
func (r *RefreshTokenRotator) Revoke(ctx context.Context, hash string) (bool, error) {
	var matched bool
	err := r.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		matched, err = r.tokens.ConsumeByTokenHash(ctx, hash)
		return err
	})
	if err != nil {
		return false, r.mapLedgerError(ctx, "", "revoke_refresh_token_failed", err)
	}

	if matched {
		incrementRefreshTokensRevoked()
	}
	return matched, nil
}

func (r *RefreshTokenRotator) mint(userID domain.UserID) (domain.RefreshToken, error) {
	raw, jti, expiresAt, err := r.issuer.IssueRefreshToken(userID)
	if err != nil {
		return domain.RefreshToken{}, err
	}

	return domain.RefreshToken{
		ID:        jti,
		TokenHash: r.issuer.HashToken(raw),
		UserID:    string(userID),
		ExpiresAt: expiresAt,
		CreatedAt: r.clock.Now(),
		RawToken:  raw,
	}, nil
}

func (r *RefreshTokenRotator) mapLedgerError(ctx context.Context, userID domain.UserID, action string, err error) error {
	fields := logger.Fields{"action": action}
	if userID != "" {
		fields["user_id"] = string(userID)
	}

	if errors.Is(err, commonerrors.ErrCircuitOpen) {
		r.log.WithFields(ctx, fields).Error("ledger unavailable: database circuit breaker is open")
		return ErrServiceUnavailable.WithCause(err)
	}

	r.log.WithFields(ctx, fields).Errorf("ledger operation failed: %v", err)
	return err
}

func stored(token domain.RefreshToken) domain.RefreshToken {
	token.RawToken = ""
	return token
}
