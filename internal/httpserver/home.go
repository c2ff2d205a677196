package httpserver

import (
	"log/slog"
	"net/http"
)

// handleHome greets the signed-in user. The guard has already resolved the
// user for this request; the provider is asked only when it has not.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if user == nil {
		var err error
		user, err = s.auth(w, r).GetUser(r.Context())
		if err != nil {
			slog.Error("failed to load user",
				"request_id", requestIDFrom(r.Context()),
				"error", err,
			)
		}
	}
	if user == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	s.render(w, http.StatusOK, "home.html", homePage{Email: user.Email})
}

// handleSignOut ends the session and always returns the visitor to the
// login page, whatever the provider answered.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth(w, r).SignOut(r.Context()); err != nil {
		slog.Warn("sign out failed at provider, local session cleared",
			"request_id", requestIDFrom(r.Context()),
			"error", err,
		)
	}
	s.nav.Push(w, r, "/login")
}
