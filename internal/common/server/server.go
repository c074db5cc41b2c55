package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/skurakin/account-service/internal/common/constants"
	"github.com/skurakin/account-service/internal/common/logger"
)

type ShutdownHook func(ctx context.Context) error

func StartWithGracefulShutdown(
	server *http.Server,
	log *logger.Logger,
	hooks []ShutdownHook,
) {
	go func() {
		log.Infof("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer shutdownCancel()

	drainCtx, drainCancel := context.WithTimeout(shutdownCtx, constants.DrainTimeout)
	defer drainCancel()

	server.SetKeepAlivesEnabled(false)

	for i, hook := range hooks {
		if err := hook(drainCtx); err != nil {
			log.Errorf("shutdown hook %d failed: %v", i, err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("forced to shutdown: %v", err)
	} else {
		log.Info("stopped gracefully")
	}
}
