package jwtverify

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	commonhttp "github.com/skurakin/account-service/internal/common/http"
	"github.com/skurakin/account-service/internal/common/logger"
)

// Claims is the authenticated identity handed to downstream handlers as
// an explicit value; handlers never reach into ambient request state.
type Claims struct {
	UserID  string
	TokenID string
}

type contextKey string

const claimsKey contextKey = "jwt_claims"

func Middleware(secret string, log *logger.Logger) func(next http.Handler) http.Handler {
	secretBytes := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")
			if raw == "" || !strings.HasPrefix(raw, "Bearer ") {
				log.Warnf("jwt auth failed path=%s: missing or invalid authorization header", r.URL.Path)
				commonhttp.WriteError(w, http.StatusUnauthorized, commonhttp.CodeMissingAuthorization, "missing or invalid authorization")
				return
			}

			claims, err := ParseToken(strings.TrimPrefix(raw, "Bearer "), secretBytes)
			if err != nil {
				log.Warnf("jwt auth failed path=%s: %v", r.URL.Path, err)
				commonhttp.WriteError(w, http.StatusUnauthorized, commonhttp.CodeInvalidToken, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func FromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(Claims)
	return claims, ok
}

func ParseToken(tokenString string, secret []byte) (Claims, error) {
	parsed, err := jwt.Parse(
		tokenString,
		func(token *jwt.Token) (any, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("token is not valid")
		}
		return Claims{}, err
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid claims type")
	}

	sub, _ := mapClaims["sub"].(string)
	jti, _ := mapClaims["jti"].(string)
	if sub == "" {
		return Claims{}, errors.New("missing sub claim")
	}

	return Claims{UserID: sub, TokenID: jti}, nil
}
