package repository

import (
	"context"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/skurakin/account-service/internal/auth/domain"
	"github.com/skurakin/account-service/internal/common/db"
)

type RefreshTokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	ConsumeByTokenHash(ctx context.Context, hash string) (bool, error)
	DeleteExcessByUserID(ctx context.Context, userID string, maxTokens int) error
	DeleteExpired(ctx context.Context) (int64, error)
	TxManager() TxManager
}

// RotationTx scopes the consume-and-append steps of a rotation to one
// database transaction.
type RotationTx interface {
	ConsumeByTokenHash(ctx context.Context, hash string) (bool, error)
	Create(ctx context.Context, token domain.RefreshToken) error
	DeleteExcessByUserID(ctx context.Context, userID string, maxTokens int) error
}

type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx RotationTx) error) error
}

type PgRefreshTokenRepository struct {
	pool  *pgxpool.Pool
	txMgr *PgTxManager
}

func NewPgRefreshTokenRepository(pool *pgxpool.Pool) *PgRefreshTokenRepository {
	return &PgRefreshTokenRepository{
		pool:  pool,
		txMgr: NewPgTxManager(pool),
	}
}

func (r *PgRefreshTokenRepository) TxManager() TxManager {
	return r.txMgr
}

func (r *PgRefreshTokenRepository) Create(ctx context.Context, token domain.RefreshToken) error {
	return createRefreshToken(ctx, r.pool, token)
}

func (r *PgRefreshTokenRepository) ConsumeByTokenHash(ctx context.Context, hash string) (bool, error) {
	return consumeByTokenHash(ctx, r.pool, hash)
}

func (r *PgRefreshTokenRepository) DeleteExcessByUserID(ctx context.Context, userID string, maxTokens int) error {
	return deleteExcessByUserID(ctx, r.pool, userID, maxTokens)
}

func (r *PgRefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	res, err := r.pool.Exec(
		ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < NOW()`,
	)
	if err != nil {
		return 0, db.HandleExecError(err, "delete expired refresh tokens", start)
	}
	return res.RowsAffected(), db.HandleExecError(nil, "delete expired refresh tokens", start)
}

// pgxExecer is satisfied by both the pool and a pgx transaction so the
// statement helpers below serve both paths.
type pgxExecer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

func createRefreshToken(ctx context.Context, e pgxExecer, token domain.RefreshToken) error {
	start := time.Now()
	_, err := e.Exec(
		ctx,
		`INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.ID,
		token.TokenHash,
		token.UserID,
		token.ExpiresAt,
		token.CreatedAt,
	)
	return db.HandleExecError(err, "create refresh token", start)
}

// consumeByTokenHash is the single atomic invalidation step: delete by
// hash and report whether a live entry was actually removed.
func consumeByTokenHash(ctx context.Context, e pgxExecer, hash string) (bool, error) {
	start := time.Now()
	res, err := e.Exec(
		ctx,
		`DELETE FROM refresh_tokens WHERE token_hash = $1`,
		hash,
	)
	if err != nil {
		return false, db.HandleExecError(err, "consume refresh token", start)
	}
	return res.RowsAffected() > 0, db.HandleExecError(nil, "consume refresh token", start)
}

func deleteExcessByUserID(ctx context.Context, e pgxExecer, userID string, maxTokens int) error {
	start := time.Now()
	_, err := e.Exec(
		ctx,
		`DELETE FROM refresh_tokens
		 WHERE user_id = $1
		   AND id NOT IN (
			SELECT id
			FROM refresh_tokens
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		 )`,
		userID,
		maxTokens,
	)
	return db.HandleExecError(err, "delete excess refresh tokens", start)
}
