package httpserver

import (
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/al-bashkir/supabase-auth-web/internal/flash"
	"github.com/al-bashkir/supabase-auth-web/internal/loginflow"
	"github.com/al-bashkir/supabase-auth-web/internal/logsanitize"
	"github.com/al-bashkir/supabase-auth-web/internal/supabase"
)

// flowCookieName holds the ID of the visitor's login flow.
const flowCookieName = "login_flow"

// maxFormBytes bounds login form bodies.
const maxFormBytes = 4 << 10

var (
	sendFailedNotice = flash.Destructive(
		"Uh oh! Something went wrong.",
		"Please check if you entered your email correctly and try again.",
	)
	verifyFailedNotice = flash.Destructive(
		"Invalid OTP",
		"Please check if you entered the correct OTP and try again.",
	)
	codeSentNotice = flash.Info(
		"Check your email",
		"We sent you a one-time code.",
	)
)

// currentFlow returns the visitor's live login flow, or nil. A live flow
// has its cookie renewed so the browser keeps it as long as the server does.
func (s *Server) currentFlow(w http.ResponseWriter, r *http.Request) *loginflow.Flow {
	ck, err := r.Cookie(flowCookieName)
	if err != nil || ck.Value == "" {
		return nil
	}
	flow, err := s.flows.Get(ck.Value)
	if err != nil {
		return nil
	}
	s.setFlowCookie(w, flow.ID, s.cfg.Auth.FlowTTL)
	return flow
}

// ensureFlow returns the visitor's login flow, starting one if needed.
func (s *Server) ensureFlow(w http.ResponseWriter, r *http.Request) (*loginflow.Flow, error) {
	if flow := s.currentFlow(w, r); flow != nil {
		return flow, nil
	}

	flow, err := s.flows.Create()
	if err != nil {
		return nil, err
	}
	s.setFlowCookie(w, flow.ID, s.cfg.Auth.FlowTTL)
	return flow, nil
}

// dropFlow forgets the visitor's login flow.
func (s *Server) dropFlow(w http.ResponseWriter, r *http.Request) {
	if ck, err := r.Cookie(flowCookieName); err == nil && ck.Value != "" {
		s.flows.Delete(ck.Value)
	}
	s.setFlowCookie(w, "", -1)
}

// setFlowCookie is scoped to the whole site so the auth callback can end
// the flow too.
func (s *Server) setFlowCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     flowCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

// handleLogin renders the login page for the visitor's current flow.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	page := loginPage{
		State:      loginflow.State{AllowSendOTP: true},
		CodeLength: loginflow.CodeLength,
	}
	if flow := s.currentFlow(w, r); flow != nil {
		page.State = flow.Snapshot()
		page.CooldownSeconds = int(math.Ceil(page.State.CooldownRemaining.Seconds()))
	}
	if notice, ok := flash.ReadAndClear(w, r, s.cfg.SecureCookies()); ok {
		page.Notice = &notice
	}

	w.Header().Set("Cache-Control", "no-store")
	s.render(w, http.StatusOK, "login.html", page)
}

// handleOAuthLogin starts a Google or GitHub sign-in and sends the browser
// to the provider.
func (s *Server) handleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider := supabase.Provider(r.PathValue("provider"))

	opts := supabase.OAuthOptions{RedirectTo: s.cfg.RedirectURL()}
	if provider == supabase.ProviderGoogle {
		opts.QueryParams = map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		}
	}

	flow, err := s.auth(w, r).SignInWithOAuth(r.Context(), provider, opts)
	if err != nil {
		slog.Error("failed to start oauth sign-in", // #nosec G706 -- values sanitized via sanitizeLog
			"request_id", requestIDFrom(r.Context()),
			"provider", sanitizeLog(string(provider)),
			"error", err,
		)
		s.notify(w, flash.Destructive("Uh oh! Something went wrong.", userMessage(err)))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	slog.Info("oauth sign-in started",
		"request_id", requestIDFrom(r.Context()),
		"provider", string(flow.Provider),
	)
	http.Redirect(w, r, flow.URL, http.StatusSeeOther)
}

// handleSendOTP asks the provider to email a one-time code.
func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.renderError(w, http.StatusBadRequest, "Invalid form submission")
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))

	flow, err := s.ensureFlow(w, r)
	if err != nil {
		slog.Error("failed to create login flow", "error", err)
		s.renderError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := flow.BeginSend(email); err != nil {
		s.notify(w, flash.Destructive("Please wait", userMessage(err)))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	sendErr := s.auth(w, r).SignInWithOtp(r.Context(), email, supabase.OtpOptions{
		EmailRedirectTo: s.cfg.RedirectURL(),
	})
	flow.FinishSend(sendErr)

	if sendErr != nil {
		slog.Error("failed to send one-time code", // #nosec G706 -- email masked and sanitized
			"request_id", requestIDFrom(r.Context()),
			"email", sanitizeLog(logsanitize.MaskEmail(email)),
			"error", sendErr,
		)
		s.notify(w, sendFailedNotice)
	} else {
		slog.Info("one-time code sent", // #nosec G706 -- email masked and sanitized
			"request_id", requestIDFrom(r.Context()),
			"email", sanitizeLog(logsanitize.MaskEmail(email)),
		)
		s.notify(w, codeSentNotice)
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// handleVerifyOTP exchanges the emailed code for a session. On success the
// page is refreshed once and the visitor is sent home.
func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.renderError(w, http.StatusBadRequest, "Invalid form submission")
		return
	}

	flow := s.currentFlow(w, r)
	if flow == nil {
		s.notify(w, flash.Destructive("Invalid OTP", "Your login attempt expired. Please request a new code."))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	code := flow.SetCode(r.PostFormValue("otp"))
	email, err := flow.BeginVerify(code)
	if err != nil {
		s.notify(w, flash.Destructive("Invalid OTP", userMessage(err)))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	_, verifyErr := s.auth(w, r).VerifyOtp(r.Context(), supabase.VerifyOtpParams{
		Email:      email,
		Token:      code,
		Type:       "email",
		RedirectTo: s.cfg.RedirectURL(),
	})
	flow.FinishVerify()

	if verifyErr != nil {
		slog.Warn("one-time code rejected", // #nosec G706 -- email masked and sanitized
			"request_id", requestIDFrom(r.Context()),
			"email", sanitizeLog(logsanitize.MaskEmail(email)),
			"error", verifyErr,
		)
		s.notify(w, verifyFailedNotice)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	slog.Info("one-time code verified", // #nosec G706 -- email masked and sanitized
		"request_id", requestIDFrom(r.Context()),
		"email", sanitizeLog(logsanitize.MaskEmail(email)),
	)
	s.nav.Refresh(w, r)
	s.nav.Push(w, r, "/")
}
