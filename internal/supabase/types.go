package supabase

import (
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// Provider names an OAuth identity provider enabled on the project.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// Valid reports whether the provider is one this site offers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderGitHub:
		return true
	default:
		return false
	}
}

var (
	// ErrUnsupportedProvider is returned for providers other than Google and GitHub.
	ErrUnsupportedProvider = errors.New("unsupported oauth provider")

	// ErrMissingCodeVerifier is returned when an OAuth callback arrives
	// without the PKCE verifier cookie set by SignInWithOAuth.
	ErrMissingCodeVerifier = errors.New("pkce code verifier not found")
)

// User is the part of the provider's user record this site reads.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// Session is an authenticated session: the token pair plus the user it belongs to.
type Session struct {
	Token *oauth2.Token
	User  *User
}

// OAuthFlow is the result of starting an OAuth sign-in.
type OAuthFlow struct {
	Provider Provider
	URL      string // where to send the browser
}

// OAuthOptions customizes SignInWithOAuth.
type OAuthOptions struct {
	RedirectTo  string
	QueryParams map[string]string
}

// OtpOptions customizes SignInWithOtp.
type OtpOptions struct {
	EmailRedirectTo string

	// ShouldCreateUser defaults to true when nil.
	ShouldCreateUser *bool
}

// VerifyOtpParams identifies the code being exchanged for a session.
type VerifyOtpParams struct {
	Email      string
	Token      string
	Type       string // defaults to "email"
	RedirectTo string
}

// sessionResponse is the JSON shape returned by /verify and /token.
type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

func (r *sessionResponse) toSession(now time.Time) *Session {
	expiry := time.Time{}
	switch {
	case r.ExpiresAt > 0:
		expiry = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		expiry = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}

	return &Session{
		Token: &oauth2.Token{
			AccessToken:  r.AccessToken,
			TokenType:    r.TokenType,
			RefreshToken: r.RefreshToken,
			Expiry:       expiry,
		},
		User: r.User,
	}
}
