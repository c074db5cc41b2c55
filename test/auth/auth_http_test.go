package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/skurakin/account-service/internal/auth/domain"
	authhttp "github.com/skurakin/account-service/internal/auth/http"
	authrepo "github.com/skurakin/account-service/internal/auth/repository"
	"github.com/skurakin/account-service/internal/auth/service"
	"github.com/skurakin/account-service/internal/common/clock"
	"github.com/skurakin/account-service/internal/common/config"
	"github.com/skurakin/account-service/internal/common/logger"
)

type envelope struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
	User        *struct {
		ID    string   `json:"id"`
		Email string   `json:"email"`
		Name  string   `json:"name"`
		Roles []string `json:"roles"`
	} `json:"user"`
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

type httpFixture struct {
	handler http.Handler
	users   *mockUserRepo
	rotator *mockRotator
	issuer  *service.TokenIssuer
}

// Handlers verify tokens against the wall clock, so the fixture issuer
// runs on real time rather than a mock clock.
func setupAuthHandler(t *testing.T) *httpFixture {
	t.Helper()

	users := &mockUserRepo{}
	rotator := &mockRotator{}
	hasher := &mockHasher{}
	idGen := &mockIDGenerator{}
	clk := clock.NewRealClock()
	log, _ := logger.New("", "test", "info")

	issuer := service.NewTokenIssuer(
		testAccessSecret,
		testRefreshSecret,
		idGen,
		15*time.Minute,
		7*24*time.Hour,
		clk,
	)
	svc := service.NewAuthService(users, rotator, issuer, hasher, idGen, clk, log)

	cfg := config.Config{
		RequestTimeout: 30 * time.Second,
		RefreshCookie: config.CookieConfig{
			Name:     "refresh_token",
			Path:     "/api/auth",
			SameSite: http.SameSiteStrictMode,
			Secure:   true,
		},
	}

	return &httpFixture{
		handler: authhttp.NewHandler(svc, cfg, testAccessSecret, log),
		users:   users,
		rotator: rotator,
		issuer:  issuer,
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, env
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	return nil
}

func TestAuthHTTP_Register_Success(t *testing.T) {
	f := setupAuthHandler(t)

	rec, env := postJSON(t, f.handler, "/api/auth/register", map[string]string{
		"email":    "user@example.com",
		"password": "correct-horse",
		"name":     "User",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if !env.Success {
		t.Error("expected success")
	}
	if env.User == nil || env.User.Email != "user@example.com" {
		t.Errorf("expected user in response, got %+v", env.User)
	}
	if env.AccessToken != "" {
		t.Error("expected no access token on register")
	}
}

func TestAuthHTTP_Register_InvalidJSON(t *testing.T) {
	f := setupAuthHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(env.Errors) == 0 || env.Errors[0].Code != "INVALID_JSON" {
		t.Errorf("expected INVALID_JSON, got %+v", env.Errors)
	}
}

func TestAuthHTTP_Register_ShortPassword(t *testing.T) {
	f := setupAuthHandler(t)

	rec, env := postJSON(t, f.handler, "/api/auth/register", map[string]string{
		"email":    "user@example.com",
		"password": "short",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if len(env.Errors) == 0 {
		t.Fatal("expected validation errors")
	}
	if env.Errors[0].Field != "password" {
		t.Errorf("expected field password, got %s", env.Errors[0].Field)
	}
}

func TestAuthHTTP_Register_EmailTaken(t *testing.T) {
	f := setupAuthHandler(t)

	f.users.createFunc = func(ctx context.Context, user domain.User) error {
		return authrepo.ErrEmailAlreadyExists
	}

	rec, env := postJSON(t, f.handler, "/api/auth/register", map[string]string{
		"email":    "taken@example.com",
		"password": "correct-horse",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if len(env.Errors) == 0 || env.Errors[0].Code != "EMAIL_TAKEN" {
		t.Errorf("expected EMAIL_TAKEN, got %+v", env.Errors)
	}
}

func TestAuthHTTP_Login_SetsRefreshCookie(t *testing.T) {
	f := setupAuthHandler(t)

	f.users.findByEmailFunc = func(ctx context.Context, email string) (domain.User, error) {
		return domain.User{
			ID:           "user-123",
			Email:        email,
			PasswordHash: "hashed:correct-horse",
			Roles:        domain.DefaultRoles,
		}, nil
	}
	f.rotator.issueFunc = func(ctx context.Context, userID domain.UserID) (domain.RefreshToken, error) {
		return domain.RefreshToken{
			UserID:    string(userID),
			RawToken:  "raw-refresh",
			ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
		}, nil
	}

	rec, env := postJSON(t, f.handler, "/api/auth/login", map[string]string{
		"email":    "user@example.com",
		"password": "correct-horse",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if env.AccessToken == "" {
		t.Error("expected access token in response")
	}

	cookie := refreshCookie(rec)
	if cookie == nil {
		t.Fatal("expected refresh cookie to be set")
	}
	if cookie.Value != "raw-refresh" {
		t.Errorf("expected cookie value raw-refresh, got %s", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("expected HttpOnly cookie")
	}
	if cookie.Path != "/api/auth" {
		t.Errorf("expected cookie path /api/auth, got %s", cookie.Path)
	}
	if !cookie.Secure {
		t.Error("expected Secure cookie")
	}
}

func TestAuthHTTP_Login_InvalidCredentials(t *testing.T) {
	f := setupAuthHandler(t)

	rec, env := postJSON(t, f.handler, "/api/auth/login", map[string]string{
		"email":    "unknown@example.com",
		"password": "whatever",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if len(env.Errors) == 0 || env.Errors[0].Code != "INVALID_CREDENTIALS" {
		t.Errorf("expected INVALID_CREDENTIALS, got %+v", env.Errors)
	}
	if refreshCookie(rec) != nil {
		t.Error("expected no refresh cookie on failed login")
	}
}

func TestAuthHTTP_Login_MethodNotAllowed(t *testing.T) {
	f := setupAuthHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}

func TestAuthHTTP_Refresh_MissingCookie(t *testing.T) {
	f := setupAuthHandler(t)

	rec, env := postJSON(t, f.handler, "/api/auth/refresh", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if len(env.Errors) == 0 || env.Errors[0].Code != "MISSING_REFRESH_TOKEN" {
		t.Errorf("expected MISSING_REFRESH_TOKEN, got %+v", env.Errors)
	}
}

func TestAuthHTTP_Refresh_RotatesCookie(t *testing.T) {
	f := setupAuthHandler(t)

	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		return domain.User{ID: id, Email: "user@example.com"}, nil
	}
	f.rotator.rotateFunc = func(ctx context.Context, userID domain.UserID, oldHash string) (domain.RefreshToken, error) {
		return domain.RefreshToken{
			UserID:    string(userID),
			RawToken:  "next-refresh",
			ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
		}, nil
	}

	raw, _, _, err := f.issuer.IssueRefreshToken("user-123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	rec, env := postJSON(t, f.handler, "/api/auth/refresh", nil, &http.Cookie{
		Name:  "refresh_token",
		Value: raw,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if env.AccessToken == "" {
		t.Error("expected access token in response")
	}

	cookie := refreshCookie(rec)
	if cookie == nil {
		t.Fatal("expected rotated refresh cookie")
	}
	if cookie.Value != "next-refresh" {
		t.Errorf("expected cookie value next-refresh, got %s", cookie.Value)
	}
}

func TestAuthHTTP_Refresh_ConsumedToken(t *testing.T) {
	f := setupAuthHandler(t)

	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		return domain.User{ID: id}, nil
	}
	f.rotator.rotateFunc = func(ctx context.Context, userID domain.UserID, oldHash string) (domain.RefreshToken, error) {
		return domain.RefreshToken{}, service.ErrInvalidRefreshToken
	}

	raw, _, _, err := f.issuer.IssueRefreshToken("user-123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	rec, env := postJSON(t, f.handler, "/api/auth/refresh", nil, &http.Cookie{
		Name:  "refresh_token",
		Value: raw,
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if len(env.Errors) == 0 || env.Errors[0].Code != "INVALID_REFRESH_TOKEN" {
		t.Errorf("expected INVALID_REFRESH_TOKEN, got %+v", env.Errors)
	}
}

func TestAuthHTTP_Logout_ClearsCookieOnSuccess(t *testing.T) {
	f := setupAuthHandler(t)

	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		return domain.User{ID: id, Email: "user@example.com"}, nil
	}

	raw, _, _, err := f.issuer.IssueRefreshToken("user-123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	rec, env := postJSON(t, f.handler, "/api/auth/logout", nil, &http.Cookie{
		Name:  "refresh_token",
		Value: raw,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !env.Success {
		t.Error("expected success")
	}

	cookie := refreshCookie(rec)
	if cookie == nil {
		t.Fatal("expected cookie to be cleared")
	}
	if cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Errorf("expected an expired empty cookie, got value %q maxAge %d", cookie.Value, cookie.MaxAge)
	}
}

func TestAuthHTTP_Logout_ClearsCookieOnBadToken(t *testing.T) {
	f := setupAuthHandler(t)

	rec, _ := postJSON(t, f.handler, "/api/auth/logout", nil, &http.Cookie{
		Name:  "refresh_token",
		Value: "garbage",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}

	cookie := refreshCookie(rec)
	if cookie == nil {
		t.Fatal("expected cookie to be cleared even on rejection")
	}
	if cookie.Value != "" {
		t.Errorf("expected empty cookie value, got %q", cookie.Value)
	}
}

func TestAuthHTTP_Me_RequiresToken(t *testing.T) {
	f := setupAuthHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestAuthHTTP_Me_ReturnsProfile(t *testing.T) {
	f := setupAuthHandler(t)

	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		return domain.User{
			ID:          id,
			Email:       "user@example.com",
			DisplayName: "User",
			Roles:       []string{"user", "admin"},
		}, nil
	}

	token, _, err := f.issuer.IssueAccessToken(domain.User{ID: "user-123"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.User == nil || env.User.ID != "user-123" {
		t.Errorf("expected user user-123, got %+v", env.User)
	}
	if env.User != nil && len(env.User.Roles) != 2 {
		t.Errorf("expected 2 roles, got %+v", env.User)
	}
}

func TestAuthHTTP_Me_GoneUser(t *testing.T) {
	f := setupAuthHandler(t)

	token, _, err := f.issuer.IssueAccessToken(domain.User{ID: "deleted-user"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestAuthHTTP_PatchMe_UpdatesProfile(t *testing.T) {
	f := setupAuthHandler(t)

	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		return domain.User{ID: id, Email: "old@example.com", DisplayName: "Old"}, nil
	}

	token, _, err := f.issuer.IssueAccessToken(domain.User{ID: "user-123"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	body, _ := json.Marshal(map[string]string{"name": "New Name"})
	req := httptest.NewRequest(http.MethodPatch, "/api/auth/me", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.User == nil || env.User.Name != "New Name" {
		t.Errorf("expected updated name, got %+v", env.User)
	}
	if env.User != nil && env.User.Email != "old@example.com" {
		t.Errorf("expected untouched email, got %s", env.User.Email)
	}
}

func TestAuthHTTP_Roles(t *testing.T) {
	f := setupAuthHandler(t)

	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		return domain.User{ID: id, Roles: []string{"user"}}, nil
	}

	token, _, err := f.issuer.IssueAccessToken(domain.User{ID: "user-123"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me/roles", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	var data struct {
		Roles []string `json:"roles"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data.Roles) != 1 || data.Roles[0] != "user" {
		t.Errorf("expected roles [user], got %v", data.Roles)
	}
}

func TestAuthHTTP_DisplayNameEscaped(t *testing.T) {
	f := setupAuthHandler(t)

	f.users.findByIDFunc = func(ctx context.Context, id domain.UserID) (domain.User, error) {
		return domain.User{ID: id, DisplayName: "<script>alert(1)</script>"}, nil
	}

	token, _, err := f.issuer.IssueAccessToken(domain.User{ID: "user-123"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.User == nil || strings.Contains(env.User.Name, "<script>") {
		t.Errorf("expected escaped display name, got %+v", env.User)
	}
}
