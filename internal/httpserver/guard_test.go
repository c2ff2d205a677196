package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al-bashkir/supabase-auth-web/internal/supabase"
)

func TestGuardDecisionTable(t *testing.T) {
	jane := &supabase.User{ID: "u1", Email: "jane@example.com"}

	tests := []struct {
		name         string
		user         *supabase.User
		method       string
		target       string
		wantStatus   int
		wantLocation string
	}{
		{
			name:         "signed in on login page goes home",
			user:         jane,
			method:       http.MethodGet,
			target:       "/login",
			wantStatus:   http.StatusTemporaryRedirect,
			wantLocation: "http://example.com/",
		},
		{
			name:       "signed in elsewhere passes",
			user:       jane,
			method:     http.MethodGet,
			target:     "/",
			wantStatus: http.StatusOK,
		},
		{
			name:       "signed out on login page passes",
			method:     http.MethodGet,
			target:     "/login",
			wantStatus: http.StatusOK,
		},
		{
			name:         "signed out elsewhere goes to login",
			method:       http.MethodGet,
			target:       "/",
			wantStatus:   http.StatusTemporaryRedirect,
			wantLocation: "http://example.com/login",
		},
		{
			name:         "query survives the redirect",
			method:       http.MethodGet,
			target:       "/?tab=profile",
			wantStatus:   http.StatusTemporaryRedirect,
			wantLocation: "http://example.com/login?tab=profile",
		},
		{
			name:         "signed in posting a login form goes home",
			user:         jane,
			method:       http.MethodPost,
			target:       "/login/otp",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "http://example.com/",
		},
		{
			name:         "signed out sign-out goes to login",
			method:       http.MethodPost,
			target:       "/signout",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "http://example.com/login",
		},
		{
			name:         "unknown page still guarded",
			method:       http.MethodGet,
			target:       "/settings",
			wantStatus:   http.StatusTemporaryRedirect,
			wantLocation: "http://example.com/login",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuth{user: tt.user}
			server, _ := newTestServer(t, auth)

			var req *http.Request
			if tt.method == http.MethodPost {
				req = postForm(tt.target, url.Values{"email": {"jane@example.com"}})
			} else {
				req = httptest.NewRequest(tt.method, tt.target, nil)
			}

			resp := serve(server, req)
			_ = resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantLocation, resp.Header.Get("Location"))
			assert.Equal(t, 1, auth.count("refresh"))
			if tt.wantLocation != "" {
				assert.Zero(t, auth.count("otp"), "guarded request must not reach the handler")
			}
		})
	}
}

func TestGuardSkipsUnguardedPaths(t *testing.T) {
	paths := []string{
		"/static/style.css",
		"/api/auth/callback",
		"/health",
		"/favicon.ico",
		"/images/logo.png",
		"/brand.svg",
		"/photo.jpeg",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			auth := &fakeAuth{}
			server, _ := newTestServer(t, auth)

			resp := serve(server, httptest.NewRequest(http.MethodGet, path, nil))
			_ = resp.Body.Close()

			assert.Zero(t, auth.count("refresh"))
			assert.NotEqual(t, "http://example.com/login", resp.Header.Get("Location"))
		})
	}
}

func TestUnguardedPathsPattern(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/static/app.js", true},
		{"/api", true},
		{"/api/auth/callback", true},
		{"/apiary", false},
		{"/health", true},
		{"/healthz", false},
		{"/favicon.ico", true},
		{"/a/b/c.webp", true},
		{"/a/b/c.gif", true},
		{"/", false},
		{"/login", false},
		{"/png", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, unguardedPaths.MatchString(tt.path))
		})
	}
}

func TestGuardTreatsRefreshFailureAsSignedOut(t *testing.T) {
	auth := &fakeAuth{
		user:       &supabase.User{ID: "u1"},
		refreshErr: errors.New("connection refused"),
	}
	server, _ := newTestServer(t, auth)

	resp := serve(server, httptest.NewRequest(http.MethodGet, "/", nil))
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "http://example.com/login", resp.Header.Get("Location"))
	assert.Zero(t, auth.count("get_user"))
}

func TestGuardRedirectOrigin(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		want       string
	}{
		{name: "forwarded headers ignored by default", want: "http://example.com/login"},
		{name: "forwarded headers honored behind a proxy", trustProxy: true, want: "https://app.example.com/login"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Site.TrustProxy = tt.trustProxy
			server, _ := newTestServerWithConfig(t, cfg, &fakeAuth{})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Forwarded-Proto", "https")
			req.Header.Set("X-Forwarded-Host", "app.example.com")

			resp := serve(server, req)
			_ = resp.Body.Close()

			require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
			assert.Equal(t, tt.want, resp.Header.Get("Location"))
		})
	}
}

func TestIsLoginPath(t *testing.T) {
	assert.True(t, isLoginPath("/login"))
	assert.True(t, isLoginPath("/login/verify"))
	assert.False(t, isLoginPath("/loginx"))
	assert.False(t, isLoginPath("/settings/login"))
	assert.False(t, isLoginPath("/"))
}
