package httpserver

import (
	"context"
	"net/http"

	"github.com/al-bashkir/supabase-auth-web/internal/supabase"
)

// AuthHandle is the request-scoped auth client used by the pages.
// *supabase.Handle satisfies it.
type AuthHandle interface {
	SignInWithOAuth(ctx context.Context, provider supabase.Provider, opts supabase.OAuthOptions) (*supabase.OAuthFlow, error)
	SignInWithOtp(ctx context.Context, email string, opts supabase.OtpOptions) error
	VerifyOtp(ctx context.Context, params supabase.VerifyOtpParams) (*supabase.Session, error)
	VerifyTokenHash(ctx context.Context, tokenHash, otpType string) (*supabase.Session, error)
	ExchangeCodeForSession(ctx context.Context, code string) (*supabase.Session, error)
	SignOut(ctx context.Context) error
	GetUser(ctx context.Context) (*supabase.User, error)
	RefreshSession(ctx context.Context) (*supabase.User, error)
}

// AuthFactory binds an auth client to one request and its response.
type AuthFactory func(w http.ResponseWriter, r *http.Request) AuthHandle

// SupabaseAuth returns a factory backed by c.
func SupabaseAuth(c *supabase.Client) AuthFactory {
	return func(w http.ResponseWriter, r *http.Request) AuthHandle {
		return c.ForRequest(w, r)
	}
}

// Navigator performs the page navigation that follows a completed action.
type Navigator interface {
	// Refresh invalidates any cached route data for the current visitor.
	Refresh(w http.ResponseWriter, r *http.Request)
	// Push sends the browser to path.
	Push(w http.ResponseWriter, r *http.Request, path string)
}

// redirectNavigator navigates with 303 redirects.
type redirectNavigator struct {
	s *Server
}

func (n redirectNavigator) Refresh(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	n.s.dropFlow(w, r)
}

func (n redirectNavigator) Push(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusSeeOther)
}
