package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/skurakin/account-service/internal/auth/domain"
	"github.com/skurakin/account-service/internal/common/clock"
	commoncrypto "github.com/skurakin/account-service/internal/common/crypto"
)

// Claims is the verified identity carried by either token kind.
type Claims struct {
	UserID  string
	TokenID string
}

// TokenIssuer mints and verifies both token kinds. Access and refresh
// tokens are signed with separate process-wide secrets.
type TokenIssuer struct {
	accessSecret    []byte
	refreshSecret   []byte
	idGenerator     commoncrypto.IDGenerator
	clock           clock.Clock
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

func NewTokenIssuer(
	accessSecret string,
	refreshSecret string,
	idGenerator commoncrypto.IDGenerator,
	accessTokenTTL time.Duration,
	refreshTokenTTL time.Duration,
	clk clock.Clock,
) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:    []byte(accessSecret),
		refreshSecret:   []byte(refreshSecret),
		idGenerator:     idGenerator,
		clock:           clk,
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

func (ti *TokenIssuer) AccessTokenTTL() time.Duration {
	return ti.accessTokenTTL
}

// IssueAccessToken returns the signed token and its jti. No side effects.
func (ti *TokenIssuer) IssueAccessToken(user domain.User) (string, string, error) {
	token, jti, _, err := ti.sign(string(user.ID), ti.accessSecret, ti.accessTokenTTL)
	if err != nil {
		return "", "", err
	}
	incrementAccessTokensIssued()
	return token, jti, nil
}

// IssueRefreshToken returns the signed raw token, its jti and expiry.
// Persisting the hash is the rotator's job, not ours.
func (ti *TokenIssuer) IssueRefreshToken(userID domain.UserID) (string, string, time.Time, error) {
	return ti.sign(string(userID), ti.refreshSecret, ti.refreshTokenTTL)
}

// HashToken is the deterministic keyed hash stored in the ledger. Raw
// token strings are never persisted or compared directly.
func (ti *TokenIssuer) HashToken(raw string) string {
	mac := hmac.New(sha256.New, ti.refreshSecret)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

func (ti *TokenIssuer) VerifyAccessToken(raw string) (Claims, error) {
	return ti.verify(raw, ti.accessSecret)
}

func (ti *TokenIssuer) VerifyRefreshToken(raw string) (Claims, error) {
	return ti.verify(raw, ti.refreshSecret)
}

func (ti *TokenIssuer) sign(subject string, secret []byte, ttl time.Duration) (string, string, time.Time, error) {
	jti, err := ti.idGenerator.NewID()
	if err != nil {
		return "", "", time.Time{}, err
	}

	now := ti.clock.Now()
	expiresAt := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub": subject,
		"jti": jti,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := t.SignedString(secret)
	if err != nil {
		return "", "", time.Time{}, err
	}

	return tokenString, jti, expiresAt, nil
}

func (ti *TokenIssuer) verify(raw string, secret []byte) (Claims, error) {
	parsed, err := jwt.Parse(
		raw,
		func(token *jwt.Token) (any, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ti.clock.Now),
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
