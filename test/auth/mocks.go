package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/skurakin/account-service/internal/auth/domain"
	authrepo "github.com/skurakin/account-service/internal/auth/repository"
	"github.com/skurakin/account-service/internal/auth/service"
)

var errMismatch = errors.New("password mismatch")

type mockUserRepo struct {
	createFunc      func(ctx context.Context, user domain.User) error
	findByEmailFunc func(ctx context.Context, email string) (domain.User, error)
	findByIDFunc    func(ctx context.Context, id domain.UserID) (domain.User, error)
	updateFunc      func(ctx context.Context, user domain.User) error
}

func (m *mockUserRepo) Create(ctx context.Context, user domain.User) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if m.findByEmailFunc != nil {
		return m.findByEmailFunc(ctx, email)
	}
	return domain.User{}, authrepo.ErrUserNotFound
}

func (m *mockUserRepo) FindByID(ctx context.Context, id domain.UserID) (domain.User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return domain.User{}, authrepo.ErrUserNotFound
}

func (m *mockUserRepo) Update(ctx context.Context, user domain.User) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, user)
	}
	return nil
}

// mockRefreshTokenRepo doubles as its own transaction: WithTx hands the
// callback a view over the same function fields, so rotator tests observe
// the operations that run inside the transaction.
type mockRefreshTokenRepo struct {
	createFunc               func(ctx context.Context, token domain.RefreshToken) error
	consumeByTokenHashFunc   func(ctx context.Context, hash string) (bool, error)
	deleteExcessByUserIDFunc func(ctx context.Context, userID string, maxTokens int) error
	deleteExpiredFunc        func(ctx context.Context) (int64, error)
	withTxFunc               func(ctx context.Context, fn func(ctx context.Context, tx authrepo.RotationTx) error) error
}

func (m *mockRefreshTokenRepo) Create(ctx context.Context, token domain.RefreshToken) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, token)
	}
	return nil
}

func (m *mockRefreshTokenRepo) ConsumeByTokenHash(ctx context.Context, hash string) (bool, error) {
	if m.consumeByTokenHashFunc != nil {
		return m.consumeByTokenHashFunc(ctx, hash)
	}
	return false, nil
}

func (m *mockRefreshTokenRepo) DeleteExcessByUserID(ctx context.Context, userID string, maxTokens int) error {
	if m.deleteExcessByUserIDFunc != nil {
		return m.deleteExcessByUserIDFunc(ctx, userID, maxTokens)
	}
	return nil
}

func (m *mockRefreshTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	if m.deleteExpiredFunc != nil {
		return m.deleteExpiredFunc(ctx)
	}
	return 0, nil
}

func (m *mockRefreshTokenRepo) TxManager() authrepo.TxManager {
	return &mockTxManager{repo: m}
}

type mockTxManager struct {
	repo *mockRefreshTokenRepo
}

func (m *mockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx authrepo.RotationTx) error) error {
	if m.repo.withTxFunc != nil {
		return m.repo.withTxFunc(ctx, fn)
	}
	return fn(ctx, m.repo)
}

type mockRotator struct {
	issueFunc  func(ctx context.Context, userID domain.UserID) (domain.RefreshToken, error)
	rotateFunc func(ctx context.Context, userID domain.UserID, oldHash string) (domain.RefreshToken, error)
	revokeFunc func(ctx context.Context, hash string) (bool, error)
}

func (m *mockRotator) Issue(ctx context.Context, userID domain.UserID) (domain.RefreshToken, error) {
	if m.issueFunc != nil {
		return m.issueFunc(ctx, userID)
	}
	return domain.RefreshToken{UserID: string(userID), RawToken: "raw-token"}, nil
}

func (m *mockRotator) Rotate(ctx context.Context, userID domain.UserID, oldHash string) (domain.RefreshToken, error) {
	if m.rotateFunc != nil {
		return m.rotateFunc(ctx, userID, oldHash)
	}
	return domain.RefreshToken{UserID: string(userID), RawToken: "rotated-token"}, nil
}

func (m *mockRotator) Revoke(ctx context.Context, hash string) (bool, error) {
	if m.revokeFunc != nil {
		return m.revokeFunc(ctx, hash)
	}
	return true, nil
}

var _ service.RefreshTokenRotatorInterface = (*mockRotator)(nil)

type mockHasher struct {
	hashFunc    func(password string) (string, error)
	compareFunc func(hash string, password string) error
}

func (m *mockHasher) Hash(password string) (string, error) {
	if m.hashFunc != nil {
		return m.hashFunc(password)
	}
	return "hashed:" + password, nil
}

func (m *mockHasher) Compare(hash string, password string) error {
	if m.compareFunc != nil {
		return m.compareFunc(hash, password)
	}
	if hash != "hashed:"+password {
		return errMismatch
	}
	return nil
}

type mockIDGenerator struct {
	newIDFunc func() (string, error)
	counter   int
}

func (m *mockIDGenerator) NewID() (string, error) {
	if m.newIDFunc != nil {
		return m.newIDFunc()
	}
	m.counter++
	return fmt.Sprintf("id-%d", m.counter), nil
}
