package http

import (
	"net/http"

	"github.com/skurakin/account-service/internal/common/constants"
	"github.com/skurakin/account-service/internal/common/httpmetrics"
	"github.com/skurakin/account-service/internal/common/logger"
)

// BuildBaseHandler wraps a handler with the shared middleware chain:
// security headers, panic recovery, trace ids, body limits, metrics.
func BuildBaseHandler(log *logger.Logger, handler http.Handler, uploadPath string) http.Handler {
	metrics := httpmetrics.New()
	recovery := RecoveryMiddleware(log)
	maxRequestSize := MaxRequestSizeMiddleware(constants.DefaultMaxBodyBytes, uploadPath)

	return SecurityHeadersMiddleware(recovery(TraceIDMiddleware(maxRequestSize(metrics.Wrap(handler)))))
}
