package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skurakin/account-service/internal/auth/domain"
	authrepo "github.com/skurakin/account-service/internal/auth/repository"
	"github.com/skurakin/account-service/internal/auth/service"
	"github.com/skurakin/account-service/internal/common/clock"
	"github.com/skurakin/account-service/internal/common/logger"
)

type authServiceFixture struct {
	svc     *service.AuthService
	users   *mockUserRepo
	rotator *mockRotator
	issuer  *service.TokenIssuer
	hasher  *mockHasher
	idGen   *mockIDGenerator
	clock   *clock.MockClock
}

func setupAuthService(t *testing.T) *authServiceFixture {
	t.Helper()

	users := &mockUserRepo{}
	rotator := &mockRotator{}
	hasher := &mockHasher{}
	idGen := &mockIDGenerator{}
	mockClock := clock.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	log, _ := logger.New("", "test", "info")

	issuer := newTestIssuer(idGen, mockClock)
	svc := service.NewAuthService(users, rotator, issuer, hasher, idGen, mockClock, log)

	return &authServiceFixture{
		svc:     svc,
		users:   users,
		rotator: rotator,
		issuer:  issuer,
		hasher:  hasher,
		idGen:   idGen,
		clock:   mockClock,
	}
}

func TestAuthService_Register_Success(t *testing.T) {
	f := setupAuthService(t)

	var created domain.User
	f.users.createFunc = func(ctx context.Context, user domain.User) error {
		created = user
		return nil
	}

	user, err := f.svc.Register(context.Background(), service.RegisterInput{
		Email:    "user@example.com",
		Password: "correct-horse",
		Name:     "User",
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if user.Email != "user@example.com" {
		t.Errorf("expected email user@example.com, got %s", user.Email)
	}
	if user.DisplayName != "User" {
		t.Errorf("expected name User, got %s", user.DisplayName)
	}
	if created.PasswordHash == "correct-horse" {
		t.Error("expected password to be hashed before storage")
	}
	if !user.HasRole("user") {
		t.Error("expected default role to be assigned")
	}
	if !user.CreatedAt.Equal(f.clock.Now()) {
		t.Errorf("expected createdAt %v, got %v", f.clock.Now(), user.CreatedAt)
	}
}

func TestAuthService_Register_NameDefaultsToEmail(t *testing.T) {
	f := setupAuthService(t)

	user, err := f.svc.Register(context.Background(), service.RegisterInput{
		Email:    "user@example.com",
		Password: "correct-horse",
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.DisplayName != "user@example.com" {
		t.Errorf("expected name to default to email, got %s", user.DisplayName)
	}
}

func TestAuthService_Register_EmailTaken(t *testing.T) {
	f := setupAuthService(t)

	f.users.createFunc = func(ctx context.Context, user domain.User) error {
		return authrepo.ErrEmailAlreadyExists
	}

	_, err := f.svc.Register(context.Background(), service.RegisterInput{
		Email:    "taken@example.com",
		Password: "correct-horse",
	})

	if !errors.Is(err, service.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	f := setupAuthService(t)

	stored := domain.User{
		ID:           "user-123",
		Email:        "user@example.com",
		PasswordHash: "hashed:correct-horse",
		Roles:        domain.DefaultRoles,
	}
	f.users.findByEmailFunc = func(ctx context.Context, email string) (domain.User, error) {
		return stored, nil
	}

	issued := false
	f.rotator.issueFunc = func(ctx context.Context, userID domain.UserID) (domain.RefreshToken, error) {
		issued = true
		if userID != stored.ID {
			t.Errorf("expected userID %s, got %s", stored.ID, userID)
		}
		return domain.RefreshToken{
			UserID:    string(userID),
			RawToken:  "raw-refresh",
			ExpiresAt: f.clock.Now().Add(7 * 24 * time.Hour),
		}, nil
	}

	result, err := f.svc.Login(context.Background(), service.LoginInput{
		Email:    "user@example.com",
		Password: "correct-horse",
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !issued {
		t.Error("expected a refresh token to be issued")
	}
	if result.AccessToken == "" {
		t.Error("expected access token to be set")
	}
	if result.RefreshToken != "raw-refresh" {
		t.Errorf("expected refresh token raw-refresh, got %s", result.RefreshToken)
	}
}

func TestAuthService_Login_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	f := setupAuthService(t)

	f.users.findByEmailFunc = func(ctx context.Context, email string) (domain.User, error) {
		if email == "known@example.com" {
			return domain.User{
				ID:           "user-123",
				Email:        email,
				PasswordHash: "hashed:right-password",
			}, nil
		}
		return domain.User{}, authrepo.ErrUserNotFound
	}

	_, unknownErr := f.svc.Login(context.Background(), service.LoginInput{
		Email:    "unknown@example.com",
		Password: "whatever",
	})
	_, wrongErr := f.svc.Login(context.Background(), service.LoginInput{
		Email:    "known@example.com",
		Password: "wrong-password",
	})

	if !errors.Is(unknownErr, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", unknownErr)
	}
	if !errors.Is(wrongErr, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Errorf("expected identical errors, got %q and %q", unknownErr, wrongErr)
	}
}

func TestAuthService_Refresh_Success(t *testing.T) {
	f := setupAuthService(t)

	user := domain.User{ID: "user-123", Email: "user@example.com"}
	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		if id != user.ID {
			t.Errorf("expected userID %s, got %s", user.ID, id)
		}
		return user, nil
	}

	raw, _, _, err := f.issuer.IssueRefreshToken(user.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	rotated := false
	f.rotator.rotateFunc = func(ctx context.Context, userID domain.UserID, oldHash string) (domain.RefreshToken, error) {
		rotated = true
		if oldHash != f.issuer.HashToken(raw) {
			t.Error("expected rotation to consume the presented token's hash")
		}
		return domain.RefreshToken{
			UserID:    string(userID),
			RawToken:  "next-refresh",
			ExpiresAt: f.clock.Now().Add(7 * 24 * time.Hour),
		}, nil
	}

	result, err := f.svc.Refresh(context.Background(), raw)

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !rotated {
		t.Error("expected rotation to run")
	}
	if result.AccessToken == "" {
		t.Error("expected a new access token")
	}
	if result.RefreshToken != "next-refresh" {
		t.Errorf("expected refresh token next-refresh, got %s", result.RefreshToken)
	}
}

func TestAuthService_Refresh_ExpiredTokenLeavesLedgerUntouched(t *testing.T) {
	f := setupAuthService(t)

	raw, _, _, err := f.issuer.IssueRefreshToken("user-123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	f.clock.Advance(7*24*time.Hour + time.Minute)

	f.rotator.rotateFunc = func(ctx context.Context, userID domain.UserID, oldHash string) (domain.RefreshToken, error) {
		t.Error("expected no ledger access for an expired token")
		return domain.RefreshToken{}, nil
	}

	_, err = f.svc.Refresh(context.Background(), raw)

	if !errors.Is(err, service.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestAuthService_Refresh_ConsumedTokenRejected(t *testing.T) {
	f := setupAuthService(t)

	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		return domain.User{ID: id}, nil
	}
	f.rotator.rotateFunc = func(ctx context.Context, userID domain.UserID, oldHash string) (domain.RefreshToken, error) {
		return domain.RefreshToken{}, service.ErrInvalidRefreshToken
	}

	raw, _, _, err := f.issuer.IssueRefreshToken("user-123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	_, err = f.svc.Refresh(context.Background(), raw)

	if !errors.Is(err, service.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestAuthService_Refresh_DeletedUserRejected(t *testing.T) {
	f := setupAuthService(t)

	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		return domain.User{}, authrepo.ErrUserNotFound
	}
	f.rotator.rotateFunc = func(ctx context.Context, userID domain.UserID, oldHash string) (domain.RefreshToken, error) {
		t.Error("expected no rotation for a deleted user")
		return domain.RefreshToken{}, nil
	}

	raw, _, _, err := f.issuer.IssueRefreshToken("gone-user")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	_, err = f.svc.Refresh(context.Background(), raw)

	if !errors.Is(err, service.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestAuthService_Logout_UnknownTokenIsIdempotent(t *testing.T) {
	f := setupAuthService(t)

	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		return domain.User{ID: id, Email: "user@example.com"}, nil
	}
	f.rotator.revokeFunc = func(ctx context.Context, hash string) (bool, error) {
		return false, nil
	}

	raw, _, _, err := f.issuer.IssueRefreshToken("user-123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := f.svc.Logout(context.Background(), raw); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestAuthService_Logout_DeletedUserRejected(t *testing.T) {
	f := setupAuthService(t)

	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		return domain.User{}, authrepo.ErrUserNotFound
	}
	f.rotator.revokeFunc = func(ctx context.Context, hash string) (bool, error) {
		t.Error("expected no revoke for a deleted user")
		return false, nil
	}

	raw, _, _, err := f.issuer.IssueRefreshToken("gone-user")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	err = f.svc.Logout(context.Background(), raw)

	if !errors.Is(err, service.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestAuthService_Logout_MalformedTokenRejected(t *testing.T) {
	f := setupAuthService(t)

	f.rotator.revokeFunc = func(ctx context.Context, hash string) (bool, error) {
		t.Error("expected no revoke for a token that fails verification")
		return false, nil
	}

	err := f.svc.Logout(context.Background(), "not-a-token")

	if !errors.Is(err, service.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestAuthService_CurrentUser_Gone(t *testing.T) {
	f := setupAuthService(t)

	_, err := f.svc.CurrentUser(context.Background(), "missing-user")

	if !errors.Is(err, service.ErrUserGone) {
		t.Fatalf("expected ErrUserGone, got %v", err)
	}
}

func TestAuthService_UpdateProfile_MergePatch(t *testing.T) {
	f := setupAuthService(t)

	stored := domain.User{
		ID:          "user-123",
		Email:       "old@example.com",
		DisplayName: "Old Name",
	}
	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		return stored, nil
	}

	var updated domain.User
	f.users.updateFunc = func(ctx context.Context, user domain.User) error {
		updated = user
		return nil
	}

	newEmail := "new@example.com"
	user, err := f.svc.UpdateProfile(context.Background(), "user-123", service.UpdateProfileInput{
		Email: &newEmail,
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.Email != newEmail {
		t.Errorf("expected email %s, got %s", newEmail, user.Email)
	}
	if user.DisplayName != "Old Name" {
		t.Errorf("expected untouched name, got %s", user.DisplayName)
	}
	if updated.Email != newEmail {
		t.Errorf("expected persisted email %s, got %s", newEmail, updated.Email)
	}
}

func TestAuthService_UpdateProfile_EmailTaken(t *testing.T) {
	f := setupAuthService(t)

	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		return domain.User{ID: id, Email: "old@example.com"}, nil
	}
	f.users.updateFunc = func(ctx context.Context, user domain.User) error {
		return authrepo.ErrEmailAlreadyExists
	}

	taken := "taken@example.com"
	_, err := f.svc.UpdateProfile(context.Background(), "user-123", service.UpdateProfileInput{
		Email: &taken,
	})

	if !errors.Is(err, service.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}
