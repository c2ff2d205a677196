package supabase

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const (
	// sessionCookieMaxAge matches the lifetime @supabase/ssr gives its cookies.
	sessionCookieMaxAge = 400 * 24 * 60 * 60

	verifierCookieSuffix = "-code-verifier"
	verifierCookieMaxAge = 10 * 60
)

// storedSession is the cookie payload. The user is not stored; it is
// always re-read from the provider or the verified token.
type storedSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

func encodeSession(tok *oauth2.Token) (string, error) {
	stored := storedSession{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		stored.ExpiresAt = tok.Expiry.Unix()
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return "base64-" + base64.RawURLEncoding.EncodeToString(payload), nil
}

func decodeSession(raw string) (*oauth2.Token, bool) {
	value, ok := strings.CutPrefix(strings.TrimSpace(raw), "base64-")
	if !ok || value == "" {
		return nil, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, false
	}

	var stored storedSession
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, false
	}
	if stored.AccessToken == "" || stored.RefreshToken == "" {
		return nil, false
	}

	tok := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
	}
	// The token's own exp claim wins over the stored hint.
	if exp, ok := accessTokenExpiry(stored.AccessToken); ok {
		tok.Expiry = exp
	} else if stored.ExpiresAt > 0 {
		tok.Expiry = time.Unix(stored.ExpiresAt, 0)
	}
	return tok, true
}

// accessTokenExpiry reads the exp claim without verifying the signature.
// Only used to schedule refreshes; trust decisions go through the provider
// or the JWKS verifier.
func accessTokenExpiry(accessToken string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (c *Client) newCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// setRequestCookie replaces (or removes, when value is empty) a cookie on the
// inbound request so handlers further down the chain see what was just
// written to the response.
func setRequestCookie(r *http.Request, name, value string) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, ck := range cookies {
		if ck.Name == name {
			continue
		}
		r.AddCookie(ck)
	}
	if value != "" {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}
