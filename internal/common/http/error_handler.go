package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	commonerrors "github.com/skurakin/account-service/internal/common/errors"
	"github.com/skurakin/account-service/internal/common/httpmetrics"
	"github.com/skurakin/account-service/internal/common/logger"
	"github.com/skurakin/account-service/internal/observability/metrics"
)

type ErrorHandler struct {
	log *logger.Logger
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	return &ErrorHandler{log: log}
}

// HandleError is the single boundary that turns an error into an HTTP
// response. Handlers never pick status codes themselves.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		h.handleValidationErrors(w, r, vErrs)
		return
	}

	if domainErr, ok := commonerrors.AsDomainError(err); ok {
		h.handleDomainError(w, r, domainErr)
		return
	}

	ctx := r.Context()
	h.log.WithFields(ctx, logger.Fields{
		"error":  err.Error(),
		"action": "unhandled_error",
	}).Errorf("unhandled error: %v", err)

	metrics.HTTPErrorsTotal.WithLabelValues(
		strconv.Itoa(http.StatusInternalServerError),
		httpmetrics.NormalizePath(r.URL.Path),
		r.Method,
	).Inc()

	WriteError(w, http.StatusInternalServerError, CodeUnknown, "internal server error")
}

func (h *ErrorHandler) handleValidationErrors(w http.ResponseWriter, r *http.Request, vErrs validator.ValidationErrors) {
	items := make([]ErrorItem, 0, len(vErrs))
	for _, fe := range vErrs {
		items = append(items, ErrorItem{
			Code:    CodeValidationFailed,
			Message: validationMessage(fe),
			Field:   fe.Field(),
		})
	}

	metrics.HTTPErrorsTotal.WithLabelValues(
		strconv.Itoa(http.StatusBadRequest),
		httpmetrics.NormalizePath(r.URL.Path),
		r.Method,
	).Inc()

	WriteErrors(w, http.StatusBadRequest, items)
}

func (h *ErrorHandler) handleDomainError(w http.ResponseWriter, r *http.Request, domainErr commonerrors.DomainError) {
	status := domainErr.HTTPStatus()

	if h.log.ShouldLog(logger.DEBUG) {
		h.log.WithFields(r.Context(), logger.Fields{
			"error_code": domainErr.Code(),
			"category":   string(domainErr.Category()),
			"status":     status,
			"action":     "domain_error",
		}).Debugf("domain error: %s", domainErr.Error())
	}

	metrics.DomainErrorsTotal.WithLabelValues(
		string(domainErr.Category()),
		domainErr.Code(),
		strconv.Itoa(status),
	).Inc()

	metrics.HTTPErrorsTotal.WithLabelValues(
		strconv.Itoa(status),
		httpmetrics.NormalizePath(r.URL.Path),
		r.Method,
	).Inc()

	WriteError(w, status, domainErr.Code(), domainErr.Message())
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "value is too short"
	case "max":
		return "value is too long"
	default:
		return "invalid value"
	}
}
