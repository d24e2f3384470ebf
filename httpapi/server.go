package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	authgate "github.com/hexlattice/authgate"
	"github.com/hexlattice/authgate/middleware"
)

// Config controls the HTTP surface. Zero values are usable for tests.
type Config struct {
	// CookieName is the session cookie name. Defaults to
	// middleware.DefaultCookieName.
	CookieName string

	// CookieSecure marks the session cookie Secure. Leave false only
	// for plain-HTTP development setups.
	CookieSecure bool

	// AllowedOrigins lists origins granted CORS access. Empty means
	// no CORS headers are emitted.
	AllowedOrigins []string
}

// Server wires the engine's flows to HTTP routes.
type Server struct {
	engine  *authgate.Engine
	config  Config
	logger  zerolog.Logger
	handler http.Handler
}

// NewServer builds the route table. The returned server is ready to
// serve; it owns no listeners.
func NewServer(engine *authgate.Engine, cfg Config, logger zerolog.Logger) *Server {
	if cfg.CookieName == "" {
		cfg.CookieName = middleware.DefaultCookieName
	}

	s := &Server{
		engine: engine,
		config: cfg,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sign-up", s.handleSignUp)
	mux.HandleFunc("POST /v1/sign-in", s.handleSignIn)
	mux.HandleFunc("GET /v1/session", s.handleSession)
	mux.HandleFunc("POST /v1/sign-out", s.handleSignOut)
	mux.HandleFunc("POST /v1/verify-email", s.handleVerifyEmail)
	mux.HandleFunc("POST /v1/password", s.handleChangePassword)
	mux.HandleFunc("POST /v1/password-reset/request", s.handlePasswordResetRequest)
	mux.HandleFunc("POST /v1/password-reset/confirm", s.handlePasswordResetConfirm)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	guard := middleware.Guard(engine, middleware.GuardConfig{
		CookieName: cfg.CookieName,
		// Sign-out is listed public so revoking an already dead session
		// still answers 204 instead of 401; the revoke itself is
		// idempotent.
		PublicPaths: []string{
			"/v1/sign-up",
			"/v1/sign-in",
			"/v1/sign-out",
			"/v1/verify-email",
			"/v1/password-reset/",
			"/healthz",
		},
	})

	s.handler = s.withRequestLog(s.withCORS(guard(mux)))
	return s
}

// Handler returns the fully assembled middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

/* ==== SIGN UP / SIGN IN ==== */

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signUpResponse struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.engine.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, signUpResponse{UserID: user.ID})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPayload struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

type signInResponse struct {
	User      userPayload `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	http.SetCookie(w, s.sessionCookie(result.Token, result.ExpiresAt))
	writeJSON(w, http.StatusOK, signInResponse{
		User:      toUserPayload(result.User),
		ExpiresAt: result.ExpiresAt,
	})
}

/* ==== SESSION ==== */

type sessionResponse struct {
	User      userPayload `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		// The guard rejects unauthenticated requests before this
		// handler; a missing identity here is a wiring bug.
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		User:      toUserPayload(identity.User),
		ExpiresAt: identity.ExpiresAt,
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if token := s.requestToken(r); token != "" {
		if err := s.engine.Revoke(r.Context(), token); err != nil {
			s.writeEngineError(w, r, err)
			return
		}
	}

	http.SetCookie(w, s.expiredCookie())
	w.WriteHeader(http.StatusNoContent)
}

/* ==== VERIFICATION FLOWS ==== */

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.VerifyEmail(r.Context(), req.Token); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleChangePassword is guard-protected; it operates on the
// authenticated user only. The change revokes every session, including
// the one that performed it, so the response also clears the cookie.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.ChangePassword(r.Context(), identity.User.ID, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	http.SetCookie(w, s.expiredCookie())
	w.WriteHeader(http.StatusNoContent)
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	_, err := s.engine.RequestPasswordReset(r.Context(), req.Email)
	if err != nil && !errors.Is(err, authgate.ErrUserNotFound) {
		s.writeEngineError(w, r, err)
		return
	}
	// Unknown addresses get the same answer as known ones so the
	// endpoint cannot be used to probe the user table.

	w.WriteHeader(http.StatusAccepted)
}

type passwordResetConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirm
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("health check failed")
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "session store unreachable")
		return
	}
	w.WriteHeader(http.StatusOK)
}

/* ==== COOKIES ==== */

func (s *Server) sessionCookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     s.config.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) expiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) requestToken(r *http.Request) string {
	if c, err := r.Cookie(s.config.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func toUserPayload(u authgate.User) userPayload {
	return userPayload{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
	}
}
