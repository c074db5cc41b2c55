package constants

import "time"

const (
	SecretMinLength     = 32
	BcryptCost          = 12
	DefaultMaxBodyBytes = 1 << 20

	MinUploadSizeBytes      = 2048
	DefaultMaxUploadBytes   = 10 * 1024 * 1024
	UploadMultipartOverhead = 64 * 1024
	UploadFormField         = "file"
	DefaultUploadDirPerms   = 0o755

	DBPoolMaxConns        = 25
	DBPoolMinConns        = 5
	DBPoolConnMaxLifetime = time.Hour
	DBPoolConnMaxIdleTime = 30 * time.Minute
	DBPoolHealthCheck     = time.Minute
	DBPoolConnectTimeout  = 5 * time.Second
	DBPoolMaxAttempts     = 10
	DBPoolRetryDelay      = time.Second
	DBQueryTimeout        = 30 * time.Second
	DBPoolMetricsInterval = 15 * time.Second

	ServerReadHeaderTimeout = 10 * time.Second
	ServerReadTimeout       = 30 * time.Second
	ServerWriteTimeout      = 30 * time.Second
	ServerIdleTimeout       = 120 * time.Second
	ShutdownTimeout         = 30 * time.Second
	DrainTimeout            = 10 * time.Second

	DefaultHTTPPort                = "8080"
	DefaultRequestTimeout          = 5 * time.Second
	DefaultAccessTokenTTL          = time.Hour
	DefaultRefreshTokenTTL         = 7 * 24 * time.Hour
	DefaultMaxRefreshTokensPerUser = 5

	RefreshTokenCleanupInterval = time.Hour

	DefaultRefreshCookieName = "refresh_token"
	DefaultRefreshCookiePath = "/api/auth"

	DBCircuitBreakerThreshold = 500
	DBCircuitBreakerTimeout   = 15 * time.Second
	DBCircuitBreakerReset     = 10 * time.Second

	LoggerMaxSize    = 100
	LoggerMaxBackups = 3
	LoggerMaxAge     = 28
)

type TraceIDKeyType string

const TraceIDKey TraceIDKeyType = "trace_id"
