// Package supabase is a thin client for the Supabase Auth (GoTrue) REST API.
//
// A Client holds process-wide configuration. Every request that needs auth
// obtains its own Handle via ForRequest; the handle reads the session from the
// request cookies and writes refreshed cookies to the response.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/al-bashkir/supabase-auth-web/internal/config"
)

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 1 << 20

// Client talks to one Supabase project.
type Client struct {
	authURL       string // <project>/auth/v1
	apiKey        string
	httpClient    *http.Client
	verifier      *oidc.IDTokenVerifier // nil unless access tokens are verified locally
	cookieName    string
	secure        bool
	refreshMargin time.Duration
	now           func() time.Time
}

// Options tunes a Client beyond what the project configuration carries.
type Options struct {
	// HTTPClient overrides the default client (timeout from config).
	HTTPClient *http.Client

	// SecureCookies sets the Secure attribute on session cookies.
	SecureCookies bool

	// RefreshMargin refreshes access tokens this long before they expire.
	RefreshMargin time.Duration
}

// NewClient creates a client for the configured project.
// When cfg.VerifyJWTLocally is set, access tokens are verified against the
// project JWKS instead of asking the /user endpoint.
func NewClient(cfg *config.SupabaseConfig, opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse supabase url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("supabase url has no host")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("supabase anon key is empty")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}
	}

	c := &Client{
		authURL:       base.String() + "/auth/v1",
		apiKey:        cfg.AnonKey,
		httpClient:    httpClient,
		cookieName:    "sb-" + projectRef(base) + "-auth-token",
		secure:        opts.SecureCookies,
		refreshMargin: opts.RefreshMargin,
		now:           time.Now,
	}

	if cfg.VerifyJWTLocally {
		// The key set outlives any single request, so it gets a background context.
		keyClient := &http.Client{
			Timeout:   httpClient.Timeout,
			Transport: apiKeyTransport{key: cfg.AnonKey, base: httpClient.Transport},
		}
		keyCtx := oidc.ClientContext(context.Background(), keyClient)
		keySet := oidc.NewRemoteKeySet(keyCtx, c.authURL+"/.well-known/jwks.json")
		c.verifier = oidc.NewVerifier(c.authURL, keySet, &oidc.Config{
			SkipClientIDCheck:    true,
			SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
		})
	}

	return c, nil
}

// CookieName returns the name of the session cookie.
func (c *Client) CookieName() string {
	return c.cookieName
}

// Health checks that the auth backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, "", nil, nil)
}

// apiKeyTransport adds the project key to requests made outside do, such as
// JWKS fetches by the token verifier.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t apiKeyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	r = r.Clone(r.Context())
	r.Header.Set("apikey", t.key)
	return base.RoundTrip(r)
}

// projectRef returns the first host label, the same key supabase-js uses
// to name its storage entries.
func projectRef(u *url.URL) string {
	host := u.Hostname()
	if i := strings.IndexByte(host, '.'); i > 0 {
		return host[:i]
	}
	return host
}

// APIError is a rejection reported by the auth backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase auth: %s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("supabase auth: status %d: %s", e.Status, e.Message)
}

// IsClientError reports whether err is a 4xx rejection from the backend.
func IsClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}

// errorBody covers both the current and the legacy GoTrue error shapes.
type errorBody struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func parseAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}

	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil {
		apiErr.Code = firstNonEmpty(body.ErrorCode, body.Error)
		apiErr.Message = firstNonEmpty(body.Msg, body.Message, body.ErrorDescription)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// do performs one JSON round-trip against the auth API.
// accessToken, when set, replaces the anon key as the bearer credential.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, accessToken string, body, out any) error {
	endpoint := c.authURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	bearer := c.apiKey
	if accessToken != "" {
		bearer = accessToken
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, data)
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
