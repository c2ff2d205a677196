package httpserver

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/al-bashkir/supabase-auth-web/internal/flash"
	"github.com/al-bashkir/supabase-auth-web/internal/loginflow"
	"github.com/al-bashkir/supabase-auth-web/internal/supabase"
)

// loginPage is the data rendered by login.html.
type loginPage struct {
	State           loginflow.State
	Notice          *flash.Notice
	CodeLength      int
	CooldownSeconds int
}

// homePage is the data rendered by home.html.
type homePage struct {
	Email string
}

// render executes a template into a buffer first so a template failure
// never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderError renders the error page
func (s *Server) renderError(w http.ResponseWriter, status int, errMsg string) {
	s.render(w, status, "error.html", map[string]string{
		"Error": errMsg,
	})
}

// notify queues a toast for the next page render.
func (s *Server) notify(w http.ResponseWriter, notice flash.Notice) {
	flash.Write(w, notice, s.cfg.SecureCookies())
}

// userMessage turns an error into text safe to show the visitor.
func userMessage(err error) string {
	var apiErr *supabase.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, supabase.ErrUnsupportedProvider):
		return "That sign-in provider is not available."
	case errors.Is(err, supabase.ErrMissingCodeVerifier):
		return "Your sign-in attempt expired. Please try again."
	case errors.Is(err, loginflow.ErrCooldown),
		errors.Is(err, loginflow.ErrSendInFlight),
		errors.Is(err, loginflow.ErrNotSent),
		errors.Is(err, loginflow.ErrVerifyInFlight),
		errors.Is(err, loginflow.ErrInvalidCode):
		return sentence(err.Error())
	default:
		return "Something went wrong. Please try again."
	}
}

// sentence capitalizes an error string and ends it with a period.
func sentence(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		s = string(s[0]-'a'+'A') + s[1:]
	}
	return s + "."
}
