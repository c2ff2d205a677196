package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/al-bashkir/supabase-auth-web/internal/flash"
)

var errMissingCallbackParams = errors.New("callback has neither code nor token_hash")

// handleCallback completes a sign-in that left the site: an OAuth provider
// redirect carrying a PKCE code, or an emailed link carrying a token hash.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	tokenHash := q.Get("token_hash")
	otpType := q.Get("type")
	errorParam := q.Get("error")
	errorDesc := q.Get("error_description")

	slog.Info("callback received", // #nosec G706 -- only boolean values logged, no injection risk
		"request_id", requestIDFrom(r.Context()),
		"code_present", code != "",
		"token_hash_present", tokenHash != "",
		"error_present", errorParam != "",
	)

	if errorParam != "" {
		slog.Error("provider error in callback", // #nosec G706 -- values sanitized via sanitizeLog
			"request_id", requestIDFrom(r.Context()),
			"error", sanitizeLog(errorParam),
			"description", sanitizeLog(errorDesc),
		)
		msg := errorDesc
		if msg == "" {
			msg = errorParam
		}
		s.notify(w, flash.Destructive("Uh oh! Something went wrong.", msg))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	auth := s.auth(w, r)
	var err error
	switch {
	case code != "":
		_, err = auth.ExchangeCodeForSession(r.Context(), code)
	case tokenHash != "" && otpType != "":
		_, err = auth.VerifyTokenHash(r.Context(), tokenHash, otpType)
	default:
		err = errMissingCallbackParams
	}

	if err != nil {
		slog.Error("callback sign-in failed",
			"request_id", requestIDFrom(r.Context()),
			"error", err,
		)
		s.notify(w, flash.Destructive("Uh oh! Something went wrong.", userMessage(err)))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	slog.Info("callback sign-in completed", "request_id", requestIDFrom(r.Context()))
	s.dropFlow(w, r)
	http.Redirect(w, r, safeNext(q.Get("next")), http.StatusSeeOther)
}

// safeNext returns next when it is a path on this site, otherwise "/".
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") ||
		strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return u.String()
}
