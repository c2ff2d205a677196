package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
)

// Handle is an auth client bound to a single HTTP request.
// It is not safe for concurrent use and must not outlive the request.
type Handle struct {
	c *Client
	w http.ResponseWriter
	r *http.Request

	token  *oauth2.Token
	loaded bool
}

// ForRequest returns a handle that reads the session from r and persists
// changes to w.
func (c *Client) ForRequest(w http.ResponseWriter, r *http.Request) *Handle {
	return &Handle{c: c, w: w, r: r}
}

func (h *Handle) loadToken() *oauth2.Token {
	if h.loaded {
		return h.token
	}
	h.loaded = true

	ck, err := h.r.Cookie(h.c.cookieName)
	if err != nil {
		return nil
	}
	tok, ok := decodeSession(ck.Value)
	if !ok {
		return nil
	}
	h.token = tok
	return tok
}

func (h *Handle) saveToken(tok *oauth2.Token) error {
	value, err := encodeSession(tok)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	http.SetCookie(h.w, h.c.newCookie(h.c.cookieName, value, sessionCookieMaxAge))
	setRequestCookie(h.r, h.c.cookieName, value)
	h.token = tok
	h.loaded = true
	return nil
}

func (h *Handle) clearToken() {
	http.SetCookie(h.w, h.c.newCookie(h.c.cookieName, "", -1))
	setRequestCookie(h.r, h.c.cookieName, "")
	h.token = nil
	h.loaded = true
}

func (h *Handle) storeSession(resp *sessionResponse) (*Session, error) {
	sess := resp.toSession(h.c.now())
	if sess.Token.AccessToken == "" || sess.Token.RefreshToken == "" {
		return nil, fmt.Errorf("provider returned an incomplete session")
	}
	if err := h.saveToken(sess.Token); err != nil {
		return nil, err
	}
	return sess, nil
}

// SignInWithOAuth starts a PKCE OAuth flow and returns the provider URL the
// browser should be sent to. The verifier is kept in a short-lived cookie
// until ExchangeCodeForSession consumes it.
func (h *Handle) SignInWithOAuth(ctx context.Context, provider Provider, opts OAuthOptions) (*OAuthFlow, error) {
	if !provider.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	verifier := oauth2.GenerateVerifier()

	q := url.Values{}
	q.Set("provider", string(provider))
	if opts.RedirectTo != "" {
		q.Set("redirect_to", opts.RedirectTo)
	}
	q.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	q.Set("code_challenge_method", "s256")
	for k, v := range opts.QueryParams {
		q.Set(k, v)
	}

	http.SetCookie(h.w, h.c.newCookie(h.c.cookieName+verifierCookieSuffix, verifier, verifierCookieMaxAge))

	return &OAuthFlow{
		Provider: provider,
		URL:      h.c.authURL + "/authorize?" + q.Encode(),
	}, nil
}

// SignInWithOtp asks the provider to email a one-time code to email.
// The address is passed through unvalidated.
func (h *Handle) SignInWithOtp(ctx context.Context, email string, opts OtpOptions) error {
	createUser := true
	if opts.ShouldCreateUser != nil {
		createUser = *opts.ShouldCreateUser
	}

	body := map[string]any{
		"email":       email,
		"create_user": createUser,
		"data":        map[string]any{},
	}

	var q url.Values
	if opts.EmailRedirectTo != "" {
		q = url.Values{"redirect_to": {opts.EmailRedirectTo}}
	}

	return h.c.do(ctx, http.MethodPost, "/otp", q, "", body, nil)
}

// VerifyOtp exchanges an emailed code for a session and persists it.
func (h *Handle) VerifyOtp(ctx context.Context, params VerifyOtpParams) (*Session, error) {
	otpType := params.Type
	if otpType == "" {
		otpType = "email"
	}

	body := map[string]string{
		"email": params.Email,
		"token": params.Token,
		"type":  otpType,
	}

	var q url.Values
	if params.RedirectTo != "" {
		q = url.Values{"redirect_to": {params.RedirectTo}}
	}

	var resp sessionResponse
	if err := h.c.do(ctx, http.MethodPost, "/verify", q, "", body, &resp); err != nil {
		return nil, err
	}
	return h.storeSession(&resp)
}

// VerifyTokenHash completes an email-link sign-in.
func (h *Handle) VerifyTokenHash(ctx context.Context, tokenHash, otpType string) (*Session, error) {
	body := map[string]string{
		"token_hash": tokenHash,
		"type":       otpType,
	}

	var resp sessionResponse
	if err := h.c.do(ctx, http.MethodPost, "/verify", nil, "", body, &resp); err != nil {
		return nil, err
	}
	return h.storeSession(&resp)
}

// ExchangeCodeForSession completes an OAuth flow started by SignInWithOAuth.
func (h *Handle) ExchangeCodeForSession(ctx context.Context, code string) (*Session, error) {
	name := h.c.cookieName + verifierCookieSuffix
	ck, err := h.r.Cookie(name)
	if err != nil || ck.Value == "" {
		return nil, ErrMissingCodeVerifier
	}
	// The verifier is single use whatever the outcome.
	http.SetCookie(h.w, h.c.newCookie(name, "", -1))

	body := map[string]string{
		"auth_code":     code,
		"code_verifier": ck.Value,
	}

	var resp sessionResponse
	q := url.Values{"grant_type": {"pkce"}}
	if err := h.c.do(ctx, http.MethodPost, "/token", q, "", body, &resp); err != nil {
		return nil, err
	}
	return h.storeSession(&resp)
}

// SignOut revokes the session at the provider. The session cookie is
// cleared whether or not the provider call succeeds.
func (h *Handle) SignOut(ctx context.Context) error {
	tok := h.loadToken()
	defer h.clearToken()

	if tok == nil {
		return nil
	}

	err := h.c.do(ctx, http.MethodPost, "/logout", url.Values{"scope": {"global"}}, tok.AccessToken, nil, nil)
	if IsClientError(err) {
		// Session already gone provider-side.
		return nil
	}
	return err
}

// GetUser returns the signed-in user, or nil when there is no session.
func (h *Handle) GetUser(ctx context.Context) (*User, error) {
	tok := h.loadToken()
	if tok == nil {
		return nil, nil
	}

	if h.c.verifier != nil {
		return h.verifyLocally(ctx, tok.AccessToken)
	}

	var user User
	if err := h.c.do(ctx, http.MethodGet, "/user", nil, tok.AccessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (h *Handle) verifyLocally(ctx context.Context, accessToken string) (*User, error) {
	idToken, err := h.c.verifier.Verify(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify access token: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token claims: %w", err)
	}

	return &User{
		ID:    idToken.Subject,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}

// RefreshSession renews the access token when it is expired or about to
// expire, persists the result, and returns the current user (nil when
// signed out). A refresh token the provider rejects ends the session.
func (h *Handle) RefreshSession(ctx context.Context) (*User, error) {
	tok := h.loadToken()
	if tok == nil {
		return nil, nil
	}

	if h.needsRefresh(tok) {
		var resp sessionResponse
		q := url.Values{"grant_type": {"refresh_token"}}
		body := map[string]string{"refresh_token": tok.RefreshToken}
		if err := h.c.do(ctx, http.MethodPost, "/token", q, "", body, &resp); err != nil {
			if IsClientError(err) {
				h.clearToken()
			}
			return nil, fmt.Errorf("failed to refresh session: %w", err)
		}
		if _, err := h.storeSession(&resp); err != nil {
			return nil, err
		}
	}

	user, err := h.GetUser(ctx)
	if err != nil {
		if IsClientError(err) {
			h.clearToken()
		}
		return nil, err
	}
	return user, nil
}

func (h *Handle) needsRefresh(tok *oauth2.Token) bool {
	if tok.Expiry.IsZero() {
		return false
	}
	return !h.c.now().Add(h.c.refreshMargin).Before(tok.Expiry)
}
