package service

import (
	"context"
	"errors"
	"time"

	"github.com/skurakin/account-service/internal/auth/domain"
	"github.com/skurakin/account-service/internal/auth/repository"
	"github.com/skurakin/account-service/internal/common/clock"
	commoncrypto "github.com/skurakin/account-service/internal/common/crypto"
	commonerrors "github.com/skurakin/account-service/internal/common/errors"
	"github.com/skurakin/account-service/internal/common/logger"
)

type AuthService struct {
	users   repository.UserRepository
	rotator RefreshTokenRotatorInterface
	issuer  *TokenIssuer
	hasher  commoncrypto.PasswordHasher
	idGen   commoncrypto.IDGenerator
	clock   clock.Clock
	log     *logger.Logger
}

func NewAuthService(
	users repository.UserRepository,
	rotator RefreshTokenRotatorInterface,
	issuer *TokenIssuer,
	hasher commoncrypto.PasswordHasher,
	idGen commoncrypto.IDGenerator,
	clk clock.Clock,
	log *logger.Logger,
) *AuthService {
	return &AuthService{
		users:   users,
		rotator: rotator,
		issuer:  issuer,
		hasher:  hasher,
		idGen:   idGen,
		clock:   clk,
		log:     log,
	}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type LoginInput struct {
	Email    string
	Password string
}

type UpdateProfileInput struct {
	Email *string
	Name  *string
}

type SessionResult struct {
	User             domain.User
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	s.log.WithFields(ctx, logger.Fields{
		"email":  input.Email,
		"action": "register_attempt",
	}).Info("register attempt")

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"email":  input.Email,
			"action": "register_hash_failed",
		}).Errorf("register failed: password hash error: %v", err)
		return domain.User{}, err
	}

	id, err := s.idGen.NewID()
	if err != nil {
		return domain.User{}, err
	}

	name := input.Name
	if name == "" {
		name = input.Email
	}

	user := domain.User{
		ID:           domain.UserID(id),
		Email:        input.Email,
		DisplayName:  name,
		PasswordHash: hash,
		Roles:        domain.DefaultRoles,
		CreatedAt:    s.clock.Now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailAlreadyExists) {
			s.log.WithFields(ctx, logger.Fields{
				"email":  input.Email,
				"action": "register_email_exists",
			}).Warn("register failed: email already registered")
			return domain.User{}, ErrEmailTaken
		}
		s.log.WithFields(ctx, logger.Fields{
			"email":  input.Email,
			"action": "register_create_failed",
		}).Errorf("register failed: %v", err)
		return domain.User{}, commonerrors.ErrDatabaseError.WithCause(err)
	}

	s.log.WithFields(ctx, logger.Fields{
		"email":   user.Email,
		"user_id": string(user.ID),
		"action":  "register_success",
	}).Info("register success")

	return user, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (SessionResult, error) {
	s.log.WithFields(ctx, logger.Fields{
		"email":  input.Email,
		"action": "login_attempt",
	}).Info("login attempt")

	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.log.WithFields(ctx, logger.Fields{
				"email":  input.Email,
				"action": "login_user_not_found",
			}).Warn("login failed: not found")
			return SessionResult{}, ErrInvalidCredentials
		}
		return SessionResult{}, commonerrors.ErrDatabaseError.WithCause(err)
	}

	if err := s.hasher.Compare(user.PasswordHash, input.Password); err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"email":  input.Email,
			"action": "login_invalid_password",
		}).Warn("login failed: invalid password")
		return SessionResult{}, ErrInvalidCredentials
	}

	result, err := s.startSession(ctx, user)
	if err != nil {
		return SessionResult{}, err
	}

	s.log.WithFields(ctx, logger.Fields{
		"user_id": string(user.ID),
		"action":  "login_success",
	}).Info("login success")

	return result, nil
}

// Logout consumes the presented refresh token. A ledger miss is a no-op
// since revoking twice is harmless, but a token that fails verification
// or belongs to a deleted user is rejected. The handler clears the
// cookie on every outcome.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.issuer.VerifyRefreshToken(rawToken)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"action": "logout_invalid_token",
		}).Warnf("logout failed: token verification failed: %v", err)
		return ErrInvalidRefreshToken
	}

	if _, err := s.users.FindByID(ctx, domain.UserID(claims.UserID)); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.log.WithFields(ctx, logger.Fields{
				"user_id": claims.UserID,
				"action":  "logout_user_not_found",
			}).Warn("logout failed: user no longer exists")
			return ErrInvalidRefreshToken
		}
		return commonerrors.ErrDatabaseError.WithCause(err)
	}

	matched, err := s.rotator.Revoke(ctx, s.issuer.HashToken(rawToken))
	if err != nil {
		return err
	}

	s.log.WithFields(ctx, logger.Fields{
		"user_id": claims.UserID,
		"matched": matched,
		"action":  "logout_success",
	}).Info("logout success")

	return nil
}

// Refresh redeems a refresh token for a new access/refresh pair. Every
// failure before the ledger step collapses into ErrInvalidRefreshToken so
// the response does not reveal whether the token was malformed, expired,
// orphaned or already consumed.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (SessionResult, error) {
	claims, err := s.issuer.VerifyRefreshToken(rawToken)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"action": "refresh_token_invalid",
		}).Warnf("refresh failed: token verification failed: %v", err)
		incrementRefreshTokensRejected("verification")
		return SessionResult{}, ErrInvalidRefreshToken
	}

	user, err := s.users.FindByID(ctx, domain.UserID(claims.UserID))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.log.WithFields(ctx, logger.Fields{
				"user_id": claims.UserID,
				"action":  "refresh_user_not_found",
			}).Warn("refresh failed: user no longer exists")
			incrementRefreshTokensRejected("unknown_user")
			return SessionResult{}, ErrInvalidRefreshToken
		}
		return SessionResult{}, commonerrors.ErrDatabaseError.WithCause(err)
	}

	refresh, err := s.rotator.Rotate(ctx, user.ID, s.issuer.HashToken(rawToken))
	if err != nil {
		return SessionResult{}, err
	}

	accessToken, _, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return SessionResult{}, err
	}

	s.log.WithFields(ctx, logger.Fields{
		"user_id": string(user.ID),
		"action":  "refresh_success",
	}).Info("refresh success")

	return SessionResult{
		User:             user,
		AccessToken:      accessToken,
		RefreshToken:     refresh.RawToken,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID domain.UserID) (domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.User{}, ErrUserGone
		}
		return domain.User{}, commonerrors.ErrDatabaseError.WithCause(err)
	}
	return user, nil
}

// UpdateProfile applies merge-patch semantics: nil fields are untouched.
func (s *AuthService) UpdateProfile(ctx context.Context, userID domain.UserID, input UpdateProfileInput) (domain.User, error) {
	user, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	if input.Email != nil {
		user.Email = *input.Email
	}
	if input.Name != nil {
		user.DisplayName = *input.Name
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.User{}, ErrUserGone
		}
		return domain.User{}, commonerrors.ErrDatabaseError.WithCause(err)
	}

	s.log.WithFields(ctx, logger.Fields{
		"user_id": string(user.ID),
		"action":  "profile_updated",
	}).Info("profile updated")

	return user, nil
}

func (s *AuthService) startSession(ctx context.Context, user domain.User) (SessionResult, error) {
	accessToken, _, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return SessionResult{}, err
	}

	refresh, err := s.rotator.Issue(ctx, user.ID)
	if err != nil {
		return SessionResult{}, err
	}

	return SessionResult{
		User:             user,
		AccessToken:      accessToken,
		RefreshToken:     refresh.RawToken,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}
