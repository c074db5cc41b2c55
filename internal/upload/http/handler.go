package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/skurakin/account-service/internal/common/constants"
	commonerrors "github.com/skurakin/account-service/internal/common/errors"
	commonhttp "github.com/skurakin/account-service/internal/common/http"
	"github.com/skurakin/account-service/internal/common/jwtverify"
	"github.com/skurakin/account-service/internal/common/logger"
	"github.com/skurakin/account-service/internal/observability/metrics"
	"github.com/skurakin/account-service/internal/upload/service"
)

type uploadResponse struct {
	FileName     string `json:"fileName"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

type Handler struct {
	uploads  *service.UploadService
	maxBytes int64
	errors   *commonhttp.ErrorHandler
	log      *logger.Logger
}

func NewHandler(uploads *service.UploadService, accessSecret string, maxBytes int64, timeout time.Duration, log *logger.Logger) http.Handler {
	if maxBytes <= 0 {
		maxBytes = constants.DefaultMaxUploadBytes
	}

	h := &Handler{
		uploads:  uploads,
		maxBytes: maxBytes,
		errors:   commonhttp.NewErrorHandler(log),
		log:      log,
	}

	requireAuth := jwtverify.Middleware(accessSecret, log)
	post := commonhttp.RequireMethod(http.MethodPost)
	withTimeout := commonhttp.WithTimeout(timeout)

	mux := http.NewServeMux()
	mux.Handle("/api/uploads", requireAuth(http.HandlerFunc(post(withTimeout(h.upload)))))
	return mux
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	// The multipart encoding adds boundaries and part headers on top of
	// the file payload, so the wire cap is slightly above the file cap.
	wireLimit := h.maxBytes + constants.UploadMultipartOverhead

	if r.ContentLength > wireLimit {
		metrics.UploadsRejected.WithLabelValues("too_large").Inc()
		h.errors.HandleError(w, r, commonerrors.ErrFileTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, wireLimit)

	file, header, err := r.FormFile(constants.UploadFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			metrics.UploadsRejected.WithLabelValues("too_large").Inc()
			h.errors.HandleError(w, r, commonerrors.ErrFileTooLarge)
			return
		}
		commonhttp.WriteError(w, http.StatusBadRequest, commonhttp.CodeMissingFile, "missing file field")
		return
	}
	defer file.Close()

	stored, err := h.uploads.Store(r.Context(), file, header.Filename)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	commonhttp.WriteSuccess(w, http.StatusCreated, commonhttp.Envelope{Data: uploadResponse{
		FileName:     stored.FileName,
		OriginalName: stored.OriginalName,
		MimeType:     stored.MimeType,
		Size:         stored.Size,
	}})
}
