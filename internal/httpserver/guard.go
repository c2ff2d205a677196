package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/al-bashkir/supabase-auth-web/internal/supabase"
)

// unguardedPaths matches requests the guard lets through untouched: static
// assets, API routes (including the auth callback), the health check, and
// images.
var unguardedPaths = regexp.MustCompile(`^/(static/|api(/|$)|health$|favicon\.ico$)|\.(svg|png|jpg|jpeg|gif|webp)$`)

// userFrom returns the user the guard resolved for this request, if any.
func userFrom(ctx context.Context) *supabase.User {
	u, _ := ctx.Value(userKey).(*supabase.User)
	return u
}

func isLoginPath(path string) bool {
	return path == "/login" || strings.HasPrefix(path, "/login/")
}

// guard refreshes the visitor's session and keeps signed-out visitors on
// the login page and signed-in visitors off it.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unguardedPaths.MatchString(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		user, err := s.auth(w, r).RefreshSession(r.Context())
		if err != nil {
			slog.Warn("session refresh failed, treating visitor as signed out",
				"request_id", requestIDFrom(r.Context()),
				"path", sanitizeLog(r.URL.Path),
				"error", err,
			)
			user = nil
		}

		hasUser := user != nil
		onLogin := isLoginPath(r.URL.Path)

		switch {
		case hasUser && onLogin:
			s.redirectTo(w, r, "/")
		case !hasUser && !onLogin:
			s.redirectTo(w, r, "/login")
		default:
			if hasUser {
				r = r.WithContext(context.WithValue(r.Context(), userKey, user))
			}
			next.ServeHTTP(w, r)
		}
	})
}

// redirectTo redirects to path on the same origin, keeping the query.
// Reads follow with the same method; form posts become a GET.
func (s *Server) redirectTo(w http.ResponseWriter, r *http.Request, path string) {
	status := http.StatusTemporaryRedirect
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		status = http.StatusSeeOther
	}
	http.Redirect(w, r, s.absoluteURL(r, path), status)
}

// absoluteURL clones the request URL and swaps in path.
func (s *Server) absoluteURL(r *http.Request, path string) string {
	u := *r.URL
	u.Scheme, u.Host = requestOrigin(r, s.cfg.Site.TrustProxy)
	u.Path = path
	u.RawPath = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}

// requestOrigin returns the scheme and host the browser used.
func requestOrigin(r *http.Request, trustProxy bool) (scheme, host string) {
	scheme = "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host = r.Host

	if trustProxy {
		if p := firstHeaderValue(r.Header.Get("X-Forwarded-Proto")); p == "http" || p == "https" {
			scheme = p
		}
		if h := firstHeaderValue(r.Header.Get("X-Forwarded-Host")); h != "" {
			host = h
		}
	}
	return scheme, host
}

func firstHeaderValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.ToLower(strings.TrimSpace(first))
}
