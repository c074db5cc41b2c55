package http

import (
	"html"
	"net/http"
	"time"

	"github.com/skurakin/account-service/internal/auth/domain"
	"github.com/skurakin/account-service/internal/auth/service"
	"github.com/skurakin/account-service/internal/common/config"
	commonhttp "github.com/skurakin/account-service/internal/common/http"
	"github.com/skurakin/account-service/internal/common/jwtverify"
	"github.com/skurakin/account-service/internal/common/logger"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"omitempty,max=64"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type updateProfileRequest struct {
	Email *string `json:"email" validate:"omitempty,email,max=254"`
	Name  *string `json:"name" validate:"omitempty,max=64"`
}

type userResponse struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

type rolesResponse struct {
	Roles []string `json:"roles"`
}

type Handler struct {
	auth   *service.AuthService
	cookie config.CookieConfig
	errors *commonhttp.ErrorHandler
	log    *logger.Logger
}

func NewHandler(auth *service.AuthService, cfg config.Config, accessSecret string, log *logger.Logger) http.Handler {
	h := &Handler{
		auth:   auth,
		cookie: cfg.RefreshCookie,
		errors: commonhttp.NewErrorHandler(log),
		log:    log,
	}

	requireAuth := jwtverify.Middleware(accessSecret, log)
	post := commonhttp.RequireMethod(http.MethodPost)
	withTimeout := commonhttp.WithTimeout(cfg.RequestTimeout)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", commonhttp.HealthHandler(log))
	mux.HandleFunc("/api/auth/register", post(withTimeout(h.register)))
	mux.HandleFunc("/api/auth/login", post(withTimeout(h.login)))
	mux.HandleFunc("/api/auth/logout", post(withTimeout(h.logout)))
	mux.HandleFunc("/api/auth/refresh", post(withTimeout(h.refresh)))
	mux.Handle("/api/auth/me", requireAuth(http.HandlerFunc(h.me)))
	mux.Handle("/api/auth/me/roles", requireAuth(http.HandlerFunc(h.roles)))
	return mux
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := commonhttp.DecodeJSON(r, &req); err != nil {
		commonhttp.WriteError(w, http.StatusBadRequest, commonhttp.CodeInvalidJSON, "invalid json")
		return
	}
	if err := commonhttp.ValidateBody(req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	user, err := h.auth.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	commonhttp.WriteSuccess(w, http.StatusCreated, commonhttp.Envelope{User: toUserResponse(user)})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := commonhttp.DecodeJSON(r, &req); err != nil {
		commonhttp.WriteError(w, http.StatusBadRequest, commonhttp.CodeInvalidJSON, "invalid json")
		return
	}
	if err := commonhttp.ValidateBody(req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiresAt)
	commonhttp.WriteSuccess(w, http.StatusOK, commonhttp.Envelope{
		User:        toUserResponse(result.User),
		AccessToken: result.AccessToken,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	// the cookie dies whatever happens below; set the header before any
	// response write, a deferred call would run after headers are sent
	h.clearRefreshCookie(w)

	cookie, err := r.Cookie(h.cookie.Name)
	if err != nil || cookie.Value == "" {
		commonhttp.WriteError(w, http.StatusUnauthorized, commonhttp.CodeMissingRefreshToken, "missing refresh token")
		return
	}

	if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	commonhttp.WriteSuccess(w, http.StatusOK, commonhttp.Envelope{})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.cookie.Name)
	if err != nil || cookie.Value == "" {
		commonhttp.WriteError(w, http.StatusUnauthorized, commonhttp.CodeMissingRefreshToken, "missing refresh token")
		return
	}

	result, err := h.auth.Refresh(r.Context(), cookie.Value)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiresAt)
	commonhttp.WriteSuccess(w, http.StatusOK, commonhttp.Envelope{
		User:        toUserResponse(result.User),
		AccessToken: result.AccessToken,
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwtverify.FromContext(r.Context())
	if !ok {
		commonhttp.WriteError(w, http.StatusUnauthorized, commonhttp.CodeInvalidToken, "invalid token")
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := h.auth.CurrentUser(r.Context(), domain.UserID(claims.UserID))
		if err != nil {
			h.errors.HandleError(w, r, err)
			return
		}
		commonhttp.WriteSuccess(w, http.StatusOK, commonhttp.Envelope{User: toUserResponse(user)})

	case http.MethodPatch:
		var req updateProfileRequest
		if err := commonhttp.DecodeJSON(r, &req); err != nil {
			commonhttp.WriteError(w, http.StatusBadRequest, commonhttp.CodeInvalidJSON, "invalid json")
			return
		}
		if err := commonhttp.ValidateBody(req); err != nil {
			h.errors.HandleError(w, r, err)
			return
		}

		user, err := h.auth.UpdateProfile(r.Context(), domain.UserID(claims.UserID), service.UpdateProfileInput{
			Email: req.Email,
			Name:  req.Name,
		})
		if err != nil {
			h.errors.HandleError(w, r, err)
			return
		}
		commonhttp.WriteSuccess(w, http.StatusOK, commonhttp.Envelope{User: toUserResponse(user)})

	default:
		commonhttp.WriteError(w, http.StatusMethodNotAllowed, commonhttp.CodeMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) roles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		commonhttp.WriteError(w, http.StatusMethodNotAllowed, commonhttp.CodeMethodNotAllowed, "method not allowed")
		return
	}

	claims, ok := jwtverify.FromContext(r.Context())
	if !ok {
		commonhttp.WriteError(w, http.StatusUnauthorized, commonhttp.CodeInvalidToken, "invalid token")
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), domain.UserID(claims.UserID))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	commonhttp.WriteSuccess(w, http.StatusOK, commonhttp.Envelope{Data: rolesResponse{Roles: user.Roles}})
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	if token == "" {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: h.cookie.SameSite,
		Secure:   h.cookie.Secure,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: h.cookie.SameSite,
		Secure:   h.cookie.Secure,
	})
}

func toUserResponse(user domain.User) userResponse {
	return userResponse{
		ID:    string(user.ID),
		Email: user.Email,
		Name:  html.EscapeString(user.DisplayName),
		Roles: user.Roles,
	}
}
