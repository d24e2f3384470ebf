package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authgate "github.com/hexlattice/authgate"
	"github.com/hexlattice/authgate/userstore"
)

// capturingSender keeps issued tokens so tests can complete
// verification flows without a mailbox.
type capturingSender struct {
	tokens map[authgate.Purpose]string
}

func (s *capturingSender) SendToken(_ context.Context, _ string, purpose authgate.Purpose, token string) error {
	s.tokens[purpose] = token
	return nil
}

func newTestServer(t *testing.T, serverCfg Config) (*Server, *capturingSender, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	users, err := userstore.Open(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)

	cfg := authgate.DefaultConfig()
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	sender := &capturingSender{tokens: make(map[authgate.Purpose]string)}

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithTokenSender(sender).
		Build()
	require.NoError(t, err)

	server := NewServer(engine, serverCfg, zerolog.Nop())

	return server, sender, func() {
		engine.Close()
		users.Close()
		rdb.Close()
		mr.Close()
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(req)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "ag_session" {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestSignUpSignInSession(t *testing.T) {
	server, _, done := newTestServer(t, Config{})
	defer done()

	rec := postJSON(t, server, "/v1/sign-up", map[string]string{
		"email":    "a@b.com",
		"password": "correcthorse",
		"name":     "Alice",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var signUp struct {
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signUp))
	assert.NotEmpty(t, signUp.UserID)

	rec = postJSON(t, server, "/v1/sign-in", map[string]string{
		"email":    "a@b.com",
		"password": "correcthorse",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)

	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	req.AddCookie(cookie)
	sessionRec := httptest.NewRecorder()
	server.ServeHTTP(sessionRec, req)

	require.Equal(t, http.StatusOK, sessionRec.Code, sessionRec.Body.String())
	var session struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(sessionRec.Body.Bytes(), &session))
	assert.Equal(t, signUp.UserID, session.User.ID)
	assert.Equal(t, "a@b.com", session.User.Email)
}

func TestSessionWithoutCookie(t *testing.T) {
	server, _, done := newTestServer(t, Config{})
	defer done()

	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignUpValidation(t *testing.T) {
	server, _, done := newTestServer(t, Config{})
	defer done()

	rec := postJSON(t, server, "/v1/sign-up", map[string]string{
		"email":    "not-an-email",
		"password": "correcthorse",
		"name":     "Alice",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errorCode(t, rec))

	rec = postJSON(t, server, "/v1/sign-up", map[string]string{
		"email":    "a@b.com",
		"password": "short",
		"name":     "Alice",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignUpDuplicate(t *testing.T) {
	server, _, done := newTestServer(t, Config{})
	defer done()

	body := map[string]string{"email": "a@b.com", "password": "correcthorse", "name": "Alice"}
	require.Equal(t, http.StatusCreated, postJSON(t, server, "/v1/sign-up", body, nil).Code)

	rec := postJSON(t, server, "/v1/sign-up", body, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email_in_use", errorCode(t, rec))
}

func TestSignInFailureIsUniform(t *testing.T) {
	server, _, done := newTestServer(t, Config{})
	defer done()

	body := map[string]string{"email": "a@b.com", "password": "correcthorse", "name": "Alice"}
	require.Equal(t, http.StatusCreated, postJSON(t, server, "/v1/sign-up", body, nil).Code)

	wrongPassword := postJSON(t, server, "/v1/sign-in", map[string]string{
		"email": "a@b.com", "password": "wrong-password",
	}, nil)
	unknownEmail := postJSON(t, server, "/v1/sign-in", map[string]string{
		"email": "nobody@b.com", "password": "correcthorse",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	// Same envelope either way.
	assert.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestSignOut(t *testing.T) {
	server, _, done := newTestServer(t, Config{})
	defer done()

	body := map[string]string{"email": "a@b.com", "password": "correcthorse", "name": "Alice"}
	require.Equal(t, http.StatusCreated, postJSON(t, server, "/v1/sign-up", body, nil).Code)
	signIn := postJSON(t, server, "/v1/sign-in", map[string]string{
		"email": "a@b.com", "password": "correcthorse",
	}, nil)
	cookie := sessionCookie(t, signIn)

	rec := postJSON(t, server, "/v1/sign-out", struct{}{}, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Session is dead afterwards.
	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	req.AddCookie(cookie)
	sessionRec := httptest.NewRecorder()
	server.ServeHTTP(sessionRec, req)
	assert.Equal(t, http.StatusUnauthorized, sessionRec.Code)

	// Signing out again is a no-op, not an error.
	rec = postJSON(t, server, "/v1/sign-out", struct{}{}, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	server, _, done := newTestServer(t, Config{})
	defer done()

	body := map[string]string{"email": "a@b.com", "password": "correcthorse", "name": "Alice"}
	require.Equal(t, http.StatusCreated, postJSON(t, server, "/v1/sign-up", body, nil).Code)
	signIn := postJSON(t, server, "/v1/sign-in", map[string]string{
		"email": "a@b.com", "password": "correcthorse",
	}, nil)
	cookie := sessionCookie(t, signIn)

	// The route is guarded.
	anon := postJSON(t, server, "/v1/password", map[string]string{
		"current_password": "correcthorse", "new_password": "battery-staple",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, anon.Code)

	wrong := postJSON(t, server, "/v1/password", map[string]string{
		"current_password": "nope-nope-nope", "new_password": "battery-staple",
	}, func(r *http.Request) { r.AddCookie(cookie) })
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, "invalid_credentials", errorCode(t, wrong))

	rec := postJSON(t, server, "/v1/password", map[string]string{
		"current_password": "correcthorse", "new_password": "battery-staple",
	}, func(r *http.Request) { r.AddCookie(cookie) })
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Every session was revoked, including the one that made the change.
	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	req.AddCookie(cookie)
	sessionRec := httptest.NewRecorder()
	server.ServeHTTP(sessionRec, req)
	assert.Equal(t, http.StatusUnauthorized, sessionRec.Code)

	signIn = postJSON(t, server, "/v1/sign-in", map[string]string{
		"email": "a@b.com", "password": "battery-staple",
	}, nil)
	assert.Equal(t, http.StatusOK, signIn.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	server, sender, done := newTestServer(t, Config{})
	defer done()

	body := map[string]string{"email": "a@b.com", "password": "correcthorse", "name": "Alice"}
	require.Equal(t, http.StatusCreated, postJSON(t, server, "/v1/sign-up", body, nil).Code)

	// Known and unknown addresses answer identically.
	known := postJSON(t, server, "/v1/password-reset/request", map[string]string{"email": "a@b.com"}, nil)
	unknown := postJSON(t, server, "/v1/password-reset/request", map[string]string{"email": "nobody@b.com"}, nil)
	assert.Equal(t, http.StatusAccepted, known.Code)
	assert.Equal(t, http.StatusAccepted, unknown.Code)

	token := sender.tokens[authgate.PurposePasswordReset]
	require.NotEmpty(t, token)

	rec := postJSON(t, server, "/v1/password-reset/confirm", map[string]string{
		"token":        token,
		"new_password": "battery-staple",
	}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	// Old password rejected, new accepted.
	assert.Equal(t, http.StatusUnauthorized, postJSON(t, server, "/v1/sign-in", map[string]string{
		"email": "a@b.com", "password": "correcthorse",
	}, nil).Code)
	assert.Equal(t, http.StatusOK, postJSON(t, server, "/v1/sign-in", map[string]string{
		"email": "a@b.com", "password": "battery-staple",
	}, nil).Code)

	// The token was single-use.
	rec = postJSON(t, server, "/v1/password-reset/confirm", map[string]string{
		"token":        token,
		"new_password": "battery-staple-2",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", errorCode(t, rec))
}

func TestVerifyEmailEndpoint(t *testing.T) {
	server, sender, done := newTestServer(t, Config{})
	defer done()

	rec := postJSON(t, server, "/v1/sign-up", map[string]string{
		"email": "a@b.com", "password": "correcthorse", "name": "Alice",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var signUp struct {
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signUp))

	// Issue the verification token through the engine as the service
	// would on sign-up.
	token, err := server.engine.RequestVerification(context.Background(), signUp.UserID, authgate.PurposeEmailVerify)
	require.NoError(t, err)
	require.Equal(t, token, sender.tokens[authgate.PurposeEmailVerify])

	rec = postJSON(t, server, "/v1/verify-email", map[string]string{"token": token}, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Reuse fails.
	rec = postJSON(t, server, "/v1/verify-email", map[string]string{"token": token}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthz(t *testing.T) {
	server, _, done := newTestServer(t, Config{})
	defer done()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMalformedJSONRejected(t *testing.T) {
	server, _, done := newTestServer(t, Config{})
	defer done()

	req := httptest.NewRequest(http.MethodPost, "/v1/sign-up", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorCode(t, rec))
}

func TestCORSHeaders(t *testing.T) {
	server, _, done := newTestServer(t, Config{AllowedOrigins: []string{"https://app.example.com"}})
	defer done()

	req := httptest.NewRequest(http.MethodOptions, "/v1/sign-in", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Unlisted origins get no allow headers.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
