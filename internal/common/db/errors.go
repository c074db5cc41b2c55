package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	pgx "github.com/jackc/pgx/v4"

	"github.com/skurakin/account-service/internal/observability/metrics"
)

func extractTableFromOperation(operation string) string {
	operation = strings.ToLower(operation)
	if strings.Contains(operation, "refresh") || strings.Contains(operation, "token") {
		return "refresh_tokens"
	}
	if strings.Contains(operation, "user") {
		return "users"
	}
	return "unknown"
}

func setPoolGauges(acquired, idle int32) {
	metrics.DBPoolAcquiredConns.Set(float64(acquired))
	metrics.DBPoolIdleConns.Set(float64(idle))
}

// HandleQueryError records duration/error metrics and maps pgx.ErrNoRows
// to the caller's not-found sentinel.
func HandleQueryError(err error, notFoundErr error, operation string, startTime time.Time) error {
	table := extractTableFromOperation(operation)
	metrics.DBQueryDurationSeconds.WithLabelValues(operation, table).Observe(time.Since(startTime).Seconds())

	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFoundErr
	}
	metrics.DBQueryErrors.WithLabelValues(operation, table, fmt.Sprintf("%T", err)).Inc()
	return fmt.Errorf("failed to %s: %w", operation, err)
}

func HandleExecError(err error, operation string, startTime time.Time) error {
	table := extractTableFromOperation(operation)
	metrics.DBQueryDurationSeconds.WithLabelValues(operation, table).Observe(time.Since(startTime).Seconds())

	if err == nil {
		return nil
	}
	metrics.DBQueryErrors.WithLabelValues(operation, table, fmt.Sprintf("%T", err)).Inc()
	return fmt.Errorf("failed to %s: %w", operation, err)
}
