package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/skurakin/account-service/internal/common/constants"
	commonerrors "github.com/skurakin/account-service/internal/common/errors"
)

type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	SameSite http.SameSite
	Secure   bool
}

type Config struct {
	HTTPPort           string
	DatabaseURL        string
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	MaxRefreshTokens   int
	RequestTimeout     time.Duration
	UploadDir          string
	MaxUploadBytes     int64
	RefreshCookie      CookieConfig
}

func Load() (Config, error) {
	accessSecret, err := mustEnv("ACCESS_TOKEN_SECRET")
	if err != nil {
		return Config{}, err
	}

	refreshSecret, err := mustEnv("REFRESH_TOKEN_SECRET")
	if err != nil {
		return Config{}, err
	}

	for _, secret := range []string{accessSecret, refreshSecret} {
		if len(secret) < constants.SecretMinLength {
			return Config{}, fmt.Errorf("%w: got %d bytes", commonerrors.ErrInvalidSecret, len(secret))
		}
	}

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}

	uploadDir, err := mustEnv("UPLOAD_DIR")
	if err != nil {
		return Config{}, err
	}

	return Config{
		HTTPPort:           getEnv("HTTP_PORT", constants.DefaultHTTPPort),
		DatabaseURL:        databaseURL,
		AccessTokenSecret:  accessSecret,
		RefreshTokenSecret: refreshSecret,
		AccessTokenTTL:     getDurationEnv("ACCESS_TOKEN_TTL", constants.DefaultAccessTokenTTL),
		RefreshTokenTTL:    getDurationEnv("REFRESH_TOKEN_TTL", constants.DefaultRefreshTokenTTL),
		MaxRefreshTokens:   getIntEnv("MAX_REFRESH_TOKENS_PER_USER", constants.DefaultMaxRefreshTokensPerUser),
		RequestTimeout:     getDurationEnv("REQUEST_TIMEOUT", constants.DefaultRequestTimeout),
		UploadDir:          uploadDir,
		MaxUploadBytes:     getInt64Env("MAX_UPLOAD_BYTES", constants.DefaultMaxUploadBytes),
		RefreshCookie: CookieConfig{
			Name:     getEnv("REFRESH_COOKIE_NAME", constants.DefaultRefreshCookieName),
			Path:     getEnv("REFRESH_COOKIE_PATH", constants.DefaultRefreshCookiePath),
			Domain:   getEnv("REFRESH_COOKIE_DOMAIN", ""),
			SameSite: parseSameSite(getEnv("REFRESH_COOKIE_SAMESITE", "strict")),
			Secure:   getBoolEnv("REFRESH_COOKIE_SECURE", true),
		},
	}, nil
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(value) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func mustEnv(key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", commonerrors.ErrMissingRequiredEnv, key)
	}
	return v, nil
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getIntEnv(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64Env(key string, fallback int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBoolEnv(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
