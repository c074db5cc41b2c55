package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/skurakin/account-service/internal/auth/domain"
	"github.com/skurakin/account-service/internal/common/db"
)

var (
	ErrUserNotFound       = pgx.ErrNoRows
	ErrEmailAlreadyExists = errors.New("email already exists")
)

type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	FindByID(ctx context.Context, id domain.UserID) (domain.User, error)
	Update(ctx context.Context, user domain.User) error
}

type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	start := time.Now()
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO users (id, email, display_name, password_hash, roles, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		string(user.ID),
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.Roles,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailAlreadyExists
		}
		return db.HandleExecError(err, "create user", start)
	}
	return db.HandleExecError(nil, "create user", start)
}

func (r *PgUserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	start := time.Now()
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, email, display_name, password_hash, roles, created_at
		 FROM users
		 WHERE email = $1`,
		email,
	)
	return scanUser(row, "find user by email", start)
}

func (r *PgUserRepository) FindByID(ctx context.Context, id domain.UserID) (domain.User, error) {
	start := time.Now()
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, email, display_name, password_hash, roles, created_at
		 FROM users
		 WHERE id = $1`,
		string(id),
	)
	return scanUser(row, "find user by id", start)
}

func (r *PgUserRepository) Update(ctx context.Context, user domain.User) error {
	start := time.Now()
	res, err := r.pool.Exec(
		ctx,
		`UPDATE users SET email = $2, display_name = $3 WHERE id = $1`,
		string(user.ID),
		user.Email,
		user.DisplayName,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailAlreadyExists
		}
		return db.HandleExecError(err, "update user", start)
	}
	if res.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return db.HandleExecError(nil, "update user", start)
}

func scanUser(row pgx.Row, operation string, start time.Time) (domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Roles,
		&user.CreatedAt,
	)
	if err := db.HandleQueryError(err, ErrUserNotFound, operation, start); err != nil {
		return domain.User{}, err
	}
	return user, nil
}
