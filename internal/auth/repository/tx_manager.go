package repository

import (
	"context"

	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/skurakin/account-service/internal/auth/domain"
	"github.com/skurakin/account-service/internal/common/constants"
)

type PgTxManager struct {
	pool *pgxpool.Pool
}

func NewPgTxManager(pool *pgxpool.Pool) *PgTxManager {
	return &PgTxManager{pool: pool}
}

func (m *PgTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx RotationTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DBQueryTimeout)
	defer cancel()

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, &pgRotationTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

type pgRotationTx struct {
	tx pgx.Tx
}

func (t *pgRotationTx) ConsumeByTokenHash(ctx context.Context, hash string) (bool, error) {
	return consumeByTokenHash(ctx, t.tx, hash)
}

func (t *pgRotationTx) Create(ctx context.Context, token domain.RefreshToken) error {
	return createRefreshToken(ctx, t.tx, token)
}

func (t *pgRotationTx) DeleteExcessByUserID(ctx context.Context, userID string, maxTokens int) error {
	return deleteExcessByUserID(ctx, t.tx, userID, maxTokens)
}
