package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Envelope is the shared response shape for all JSON endpoints.
type Envelope struct {
	Success     bool        `json:"success"`
	User        any         `json:"user,omitempty"`
	AccessToken string      `json:"accessToken,omitempty"`
	Data        any         `json:"data,omitempty"`
	Errors      []ErrorItem `json:"errors,omitempty"`
}

type ErrorItem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteSuccess(w http.ResponseWriter, status int, env Envelope) {
	env.Success = true
	WriteJSON(w, status, env)
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrors(w, status, []ErrorItem{{Code: code, Message: message}})
}

func WriteErrors(w http.ResponseWriter, status int, items []ErrorItem) {
	WriteJSON(w, status, Envelope{Success: false, Errors: items})
}

func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func RequireMethod(method string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method != method {
				WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
				return
			}
			next(w, r)
		}
	}
}

func WithTimeout(timeout time.Duration) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next(w, r.WithContext(ctx))
		}
	}
}
