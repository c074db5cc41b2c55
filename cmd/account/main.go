package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skurakin/account-service/internal/auth/cleanup"
	authhttp "github.com/skurakin/account-service/internal/auth/http"
	authrepo "github.com/skurakin/account-service/internal/auth/repository"
	authservice "github.com/skurakin/account-service/internal/auth/service"
	"github.com/skurakin/account-service/internal/common/clock"
	"github.com/skurakin/account-service/internal/common/config"
	"github.com/skurakin/account-service/internal/common/constants"
	commoncrypto "github.com/skurakin/account-service/internal/common/crypto"
	"github.com/skurakin/account-service/internal/common/db"
	commonhttp "github.com/skurakin/account-service/internal/common/http"
	"github.com/skurakin/account-service/internal/common/logger"
	"github.com/skurakin/account-service/internal/common/resilience"
	srv "github.com/skurakin/account-service/internal/common/server"
	uploadhttp "github.com/skurakin/account-service/internal/upload/http"
	uploadservice "github.com/skurakin/account-service/internal/upload/service"
)

const uploadRoute = "/api/uploads"

func main() {
	log, err := logger.New(os.Getenv("LOG_DIR"), "account", os.Getenv("LOG_LEVEL"))
	if err != nil {
		os.Stderr.WriteString(fmt.Sprintf("failed to initialize logger: %v\n", err))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.UploadDir, constants.DefaultUploadDirPerms); err != nil {
		log.Fatalf("failed to create upload directory: %v", err)
	}

	pool := db.NewPool(log, cfg.DatabaseURL)
	defer pool.Close()

	clk := clock.NewRealClock()
	hasher := &commoncrypto.BcryptHasher{}
	idGenerator := &commoncrypto.UUIDGenerator{}

	userRepo := authrepo.NewPgUserRepository(pool)
	refreshTokenRepo := authrepo.NewPgRefreshTokenRepository(pool)

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Threshold:  constants.DBCircuitBreakerThreshold,
		Timeout:    constants.DBCircuitBreakerTimeout,
		ResetAfter: constants.DBCircuitBreakerReset,
		Name:       "refresh_token_ledger",
		Logger:     log,
	})

	issuer := authservice.NewTokenIssuer(
		cfg.AccessTokenSecret,
		cfg.RefreshTokenSecret,
		idGenerator,
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
		clk,
	)
	rotator := authservice.NewRefreshTokenRotator(
		refreshTokenRepo,
		breaker,
		issuer,
		cfg.MaxRefreshTokens,
		clk,
		log,
	)
	authSvc := authservice.NewAuthService(userRepo, rotator, issuer, hasher, idGenerator, clk, log)
	uploadSvc := uploadservice.NewUploadService(
		cfg.UploadDir,
		constants.MinUploadSizeBytes,
		cfg.MaxUploadBytes,
		idGenerator,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := cleanup.NewSweeper(refreshTokenRepo, constants.RefreshTokenCleanupInterval, log)
	go sweeper.Run(ctx)
	db.StartPoolMetrics(ctx, pool, constants.DBPoolMetricsInterval)

	mux := http.NewServeMux()
	mux.Handle("/", authhttp.NewHandler(authSvc, cfg, cfg.AccessTokenSecret, log))
	mux.Handle(uploadRoute, uploadhttp.NewHandler(uploadSvc, cfg.AccessTokenSecret, cfg.MaxUploadBytes, cfg.RequestTimeout, log))
	mux.Handle("/metrics", promhttp.Handler())

	baseHandler := commonhttp.BuildBaseHandler(log, mux, uploadRoute)

	server := srv.NewServer(srv.DefaultServerConfig(cfg.HTTPPort), baseHandler)

	hooks := []srv.ShutdownHook{
		func(ctx context.Context) error {
			log.Info("stopping background goroutines")
			cancel()
			return nil
		},
	}

	srv.StartWithGracefulShutdown(server, log, hooks)
}
