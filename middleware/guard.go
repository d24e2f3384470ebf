package middleware

import (
	"context"
	"net/http"
	"strings"

	authgate "github.com/hexlattice/authgate"
)

// DefaultCookieName is the session token cookie the guard reads when no
// name is configured.
const DefaultCookieName = "ag_session"

type identityContextKey struct{}

// IdentityFromContext returns the identity the guard attached to an
// allowed request.
func IdentityFromContext(ctx context.Context) (*authgate.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authgate.Identity)
	return id, ok
}

// GuardConfig tunes the [Guard] middleware.
type GuardConfig struct {
	// CookieName is the session cookie to read. Defaults to
	// [DefaultCookieName].
	CookieName string

	// PublicPaths are the explicit opt-outs from default-deny. An entry
	// ending in "/" matches as a prefix, otherwise exactly. Everything
	// not listed requires a valid session.
	PublicPaths []string
}

// Guard is the request-time enforcement point for the default-deny
// policy: every route is protected unless listed in PublicPaths. The
// token is taken from the session cookie or, failing that, a Bearer
// Authorization header; on success the resolved [authgate.Identity] is
// attached to the request context.
//
// Public requests that do carry a valid token also get their identity
// attached, so public handlers can render differently for signed-in
// users, but an invalid token never blocks a public route.
func Guard(engine *authgate.Engine, cfg GuardConfig) func(http.Handler) http.Handler {
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	public := newPathMatcher(cfg.PublicPaths)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, hasToken := requestToken(r, cookieName)

			if public.matches(r.URL.Path) {
				if hasToken && engine != nil {
					if id, err := engine.Validate(requestContext(r), token); err == nil {
						r = r.WithContext(context.WithValue(r.Context(), identityContextKey{}, id))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			if engine == nil || !hasToken {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id, err := engine.Validate(requestContext(r), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestContext decorates the request context with client metadata the
// engine records on sessions and audit events.
func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	ctx = authgate.WithClientIP(ctx, clientIP(r))
	ctx = authgate.WithUserAgent(ctx, r.UserAgent())
	return ctx
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 && strings.Count(host, ":") == 1 {
		host = host[:i]
	} else if strings.HasPrefix(host, "[") {
		if j := strings.IndexByte(host, ']'); j > 0 {
			host = host[1:j]
		}
	}
	return host
}

func requestToken(r *http.Request, cookieName string) (string, bool) {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

type pathMatcher struct {
	exact    map[string]struct{}
	prefixes []string
}

func newPathMatcher(paths []string) *pathMatcher {
	m := &pathMatcher{exact: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "/") && p != "/" {
			m.prefixes = append(m.prefixes, p)
			continue
		}
		m.exact[p] = struct{}{}
	}
	return m
}

func (m *pathMatcher) matches(path string) bool {
	if _, ok := m.exact[path]; ok {
		return true
	}
	for _, prefix := range m.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
