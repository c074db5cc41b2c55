package http

import (
	"net/http"

	"github.com/skurakin/account-service/internal/common/constants"
)

// MaxRequestSizeMiddleware caps request bodies. The multipart upload route
// carries its own, larger limit set by the upload handler.
func MaxRequestSizeMiddleware(maxBytes int64, exemptPaths ...string) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = constants.DefaultMaxBodyBytes
	}

	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > maxBytes {
				WriteError(w, http.StatusRequestEntityTooLarge, CodeUnknown, "request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
