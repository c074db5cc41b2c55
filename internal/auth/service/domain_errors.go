package service

import (
	"net/http"

	commonerrors "github.com/skurakin/account-service/internal/common/errors"
)

var (
	// Same code and message for unknown email and wrong password, so the
	// response never reveals which one failed.
	ErrInvalidCredentials = commonerrors.NewDomainError(
		"INVALID_CREDENTIALS",
		commonerrors.CategoryValidation,
		http.StatusBadRequest,
		"invalid email or password",
	)

	ErrEmailTaken = commonerrors.NewDomainError(
		"EMAIL_TAKEN",
		commonerrors.CategoryValidation,
		http.StatusBadRequest,
		"email already registered",
	)

	ErrMissingRefreshToken = commonerrors.NewDomainError(
		"MISSING_REFRESH_TOKEN",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"missing refresh token",
	)

	// Covers bad signature, expiry, unknown user and already-consumed
	// tokens alike; the reasons are logged, never returned.
	ErrInvalidRefreshToken = commonerrors.NewDomainError(
		"INVALID_REFRESH_TOKEN",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"invalid refresh token",
	)

	ErrUserGone = commonerrors.NewDomainError(
		"USER_NOT_FOUND",
		commonerrors.CategoryNotFound,
		http.StatusNotFound,
		"user not found",
	)

	ErrServiceUnavailable = commonerrors.NewDomainError(
		"SERVICE_UNAVAILABLE",
		commonerrors.CategoryExternal,
		http.StatusServiceUnavailable,
		"service temporarily unavailable",
	)
)
