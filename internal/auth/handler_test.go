package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/regwatch/regwatch/internal/auth"
	"github.com/regwatch/regwatch/internal/shared"
	"github.com/regwatch/regwatch/internal/view"
	_ "github.com/regwatch/regwatch/testing"
)

const cookieName = "test_session"

type stubRepo struct {
	user     *auth.User
	sessions []auth.LoginSession
	deleted  []string
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, sess auth.LoginSession) error {
	s.sessions = append(s.sessions, sess)
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func activeUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{ID: 7, Email: "analyst@test.local", PasswordHash: string(hashed), Role: "web_analyst", IsActive: true}
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager, *auth.TokenIssuer) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessionManager := shared.NewSessionManager(redisClient, cookieName, time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	issuer := auth.NewTokenIssuer("jwtsecret-jwtsecret-jwtsecret-32", "web_anon", time.Hour)
	handler := auth.NewHandler(nil, auth.NewService(repo, issuer), templates, sessionManager, csrfManager)
	return handler, sessionManager, issuer
}

// serve runs h against req inside a loaded session and commits it afterwards.
func serve(t *testing.T, sm *shared.SessionManager, h http.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	h(res, req)
	if err := sm.Commit(ctx, res, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res, sess
}

// primeLogin loads the login form and returns the session and its CSRF token.
func primeLogin(t *testing.T, handler *auth.Handler, sm *shared.SessionManager) (*shared.Session, string) {
	t.Helper()
	res, sess := serve(t, sm, handler.ShowLoginForTest, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	token := sess.Get(shared.CSRFSessionKey)
	if token == "" {
		t.Fatalf("csrf token not set")
	}
	return sess, token
}

func loginRequest(sessID, email, password, token string) *http.Request {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)
	form.Set(shared.CSRFFormField, token)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: cookieName, Value: sessID})
	return req
}

func TestLoginPage(t *testing.T) {
	handler, sessionManager, _ := newAuthHandler(t, &stubRepo{})

	res, _ := serve(t, sessionManager, handler.ShowLoginForTest, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, "<form") || !strings.Contains(body, `name="csrf_token"`) {
		t.Fatalf("expected login form with csrf field in body")
	}
	if len(res.Result().Cookies()) == 0 {
		t.Fatalf("expected session cookie")
	}
}

func TestLoginPageRedirectsSignedInUser(t *testing.T) {
	handler, _, _ := newAuthHandler(t, &stubRepo{})
	sess := &shared.Session{ID: "s1"}
	sess.SetUser("7")
	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	handler.ShowLoginForTest(res, req)
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect to dashboard, got %d %q", res.Code, res.Header().Get("Location"))
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := &stubRepo{user: activeUser(t, "correctpass")}
	handler, sessionManager, _ := newAuthHandler(t, repo)
	sess, token := primeLogin(t, handler, sessionManager)

	res, loaded := serve(t, sessionManager, handler.HandleLoginForTest, loginRequest(sess.ID, "analyst@test.local", "wrongpass", token))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Invalid email or password") {
		t.Fatalf("expected error message in response")
	}
	if loaded.IsAuthenticated() {
		t.Fatalf("session must stay anonymous")
	}
	if len(repo.sessions) != 0 {
		t.Fatalf("no login session should be recorded")
	}
}

func TestLoginValidation(t *testing.T) {
	handler, sessionManager, _ := newAuthHandler(t, &stubRepo{})
	sess, token := primeLogin(t, handler, sessionManager)

	res, _ := serve(t, sessionManager, handler.HandleLoginForTest, loginRequest(sess.ID, "not-an-email", "short", token))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, "Enter a valid email address") || !strings.Contains(body, "Must be at least 8 characters") {
		t.Fatalf("expected field errors in body")
	}
}

func TestLoginInactiveUser(t *testing.T) {
	user := activeUser(t, "correctpass")
	user.IsActive = false
	handler, sessionManager, _ := newAuthHandler(t, &stubRepo{user: user})
	sess, token := primeLogin(t, handler, sessionManager)

	res, _ := serve(t, sessionManager, handler.HandleLoginForTest, loginRequest(sess.ID, user.Email, "correctpass", token))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestLoginSuccess(t *testing.T) {
	repo := &stubRepo{user: activeUser(t, "correctpass")}
	handler, sessionManager, issuer := newAuthHandler(t, repo)
	sess, token := primeLogin(t, handler, sessionManager)

	res, loaded := serve(t, sessionManager, handler.HandleLoginForTest, loginRequest(sess.ID, "analyst@test.local", "correctpass", token))
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect to dashboard, got %d %q", res.Code, res.Header().Get("Location"))
	}
	if loaded.User() != "7" {
		t.Fatalf("expected user 7, got %q", loaded.User())
	}
	backendToken, ok := loaded.CurrentToken()
	if !ok {
		t.Fatalf("expected backend token in session")
	}
	claims, err := issuer.Parse(backendToken)
	if err != nil {
		t.Fatalf("parse backend token: %v", err)
	}
	if claims.Subject != "7" || claims.Role != "web_analyst" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if len(repo.sessions) != 1 || repo.sessions[0].ID != sess.ID || repo.sessions[0].UserID != 7 {
		t.Fatalf("expected login session recorded, got %+v", repo.sessions)
	}

	// The session survives the round trip through Redis.
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: sess.ID})
	reloaded, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if !reloaded.IsAuthenticated() {
		t.Fatalf("expected authenticated session after reload")
	}
	if flash := reloaded.PopFlash(); flash == nil || flash.Message != "Welcome back" {
		t.Fatalf("expected welcome flash, got %+v", flash)
	}
}

func TestLogout(t *testing.T) {
	repo := &stubRepo{}
	handler, sessionManager, _ := newAuthHandler(t, repo)

	sessReq := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sessionManager.Load(context.Background(), sessReq)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.SetUser("7")
	commitRes := httptest.NewRecorder()
	if err := sessionManager.Commit(context.Background(), commitRes, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: sess.ID})
	res, _ := serve(t, sessionManager, handler.HandleLogoutForTest, req)

	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/welcome" {
		t.Fatalf("expected redirect to welcome, got %d %q", res.Code, res.Header().Get("Location"))
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != sess.ID {
		t.Fatalf("expected login session removed, got %v", repo.deleted)
	}
	var cleared bool
	for _, c := range res.Result().Cookies() {
		if c.Name == cookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected session cookie cleared")
	}
}
