// Package loginflow holds the per-browser state of the email one-time-code
// login: the address, the entered code, and the send cooldown.
package loginflow

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// CodeLength is the number of digits in an emailed one-time code.
const CodeLength = 6

var (
	// ErrCooldown is returned when a code was sent less than the cooldown ago.
	ErrCooldown = errors.New("a code was sent recently, please wait before requesting another")

	// ErrSendInFlight is returned when a send is already in progress.
	ErrSendInFlight = errors.New("a code is already being sent")

	// ErrNotSent is returned when verification is attempted before a code was sent.
	ErrNotSent = errors.New("no code has been sent")

	// ErrVerifyInFlight is returned when a verification is already in progress.
	ErrVerifyInFlight = errors.New("a code is already being verified")

	// ErrInvalidCode is returned for anything other than exactly six digits.
	ErrInvalidCode = errors.New("the code must be exactly 6 digits")
)

var validate = validator.New()

type codeInput struct {
	Code string `validate:"len=6,number"`
}

// ValidCode reports whether code is exactly six ASCII digits.
func ValidCode(code string) bool {
	return validate.Struct(codeInput{Code: code}) == nil
}

// SanitizeCode keeps only digits and truncates to CodeLength, mirroring a
// digits-only input limited to six characters.
func SanitizeCode(input string) string {
	var b strings.Builder
	for _, r := range input {
		if b.Len() == CodeLength {
			break
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// State is a point-in-time copy of a flow, used for rendering.
type State struct {
	Email             string
	OTP               string
	OTPSent           bool
	AllowSendOTP      bool
	IsSendingOTP      bool
	IsVerifyingOTP    bool
	CooldownRemaining time.Duration
}

// CanSend reports whether the send control is enabled.
func (s State) CanSend() bool {
	return s.AllowSendOTP && !s.IsSendingOTP
}

// CanVerify reports whether the verify control is enabled for the current code.
func (s State) CanVerify() bool {
	return VerifyEnabled(s.OTP, s.IsVerifyingOTP)
}

// VerifyEnabled reports whether verification may be submitted.
func VerifyEnabled(code string, verifying bool) bool {
	return !verifying && ValidCode(code)
}

// Flow is one browser's login attempt.
//
// Send: Idle -> Sending -> Sent | Failed. A successful send disables further
// sends for the cooldown. At most one re-enable timer is pending; a new
// successful send cancels the previous one and restarts the window.
type Flow struct {
	ID string

	mu             sync.Mutex
	email          string
	otp            string
	otpSent        bool
	allowSendOTP   bool
	isSendingOTP   bool
	isVerifyingOTP bool

	cooldown   time.Duration
	clock      Clock
	reenable   Timer
	reenableAt time.Time
	generation uint64 // identifies the current re-enable timer
	lastSeen   time.Time
}

func newFlow(id string, cooldown time.Duration, clock Clock) *Flow {
	return &Flow{
		ID:           id,
		allowSendOTP: true,
		cooldown:     cooldown,
		clock:        clock,
		lastSeen:     clock.Now(),
	}
}

// Snapshot returns the current state.
func (f *Flow) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := State{
		Email:          f.email,
		OTP:            f.otp,
		OTPSent:        f.otpSent,
		AllowSendOTP:   f.allowSendOTP,
		IsSendingOTP:   f.isSendingOTP,
		IsVerifyingOTP: f.isVerifyingOTP,
	}
	if !f.allowSendOTP && f.reenable != nil {
		if left := f.reenableAt.Sub(f.clock.Now()); left > 0 {
			st.CooldownRemaining = left
		}
	}
	return st
}

// BeginSend moves the flow to Sending. It fails while the cooldown is
// active or another send is in flight.
func (f *Flow) BeginSend(email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.isSendingOTP {
		return ErrSendInFlight
	}
	if !f.allowSendOTP {
		return ErrCooldown
	}

	f.email = email
	f.otpSent = false
	f.isSendingOTP = true
	return nil
}

// FinishSend records the provider's answer to a send started by BeginSend.
// A failure re-arms sending immediately; a success starts the cooldown,
// measured from now.
func (f *Flow) FinishSend(sendErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.isSendingOTP = false
	if sendErr != nil {
		return
	}

	f.otpSent = true
	f.allowSendOTP = false

	if f.reenable != nil {
		f.reenable.Stop()
	}
	f.generation++
	gen := f.generation
	f.reenableAt = f.clock.Now().Add(f.cooldown)
	f.reenable = f.clock.AfterFunc(f.cooldown, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		// A timer that fired while being replaced must not flip the new window.
		if f.generation != gen {
			return
		}
		f.allowSendOTP = true
		f.reenable = nil
	})
}

// SetCode stores the code as typed, reduced to its digits.
func (f *Flow) SetCode(input string) string {
	code := SanitizeCode(input)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.otp = code
	return code
}

// BeginVerify moves the flow to Verifying for code. It returns the
// address the code was sent to.
func (f *Flow) BeginVerify(code string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.otpSent {
		return "", ErrNotSent
	}
	if f.isVerifyingOTP {
		return "", ErrVerifyInFlight
	}
	if !ValidCode(code) {
		return "", ErrInvalidCode
	}

	f.otp = code
	f.isVerifyingOTP = true
	return f.email, nil
}

// FinishVerify ends a verification. The code and sent-state are kept so a
// failed attempt can be retried or a new code requested.
func (f *Flow) FinishVerify() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isVerifyingOTP = false
}

// stop cancels any pending re-enable timer.
func (f *Flow) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reenable != nil {
		f.reenable.Stop()
		f.reenable = nil
	}
	f.generation++
}

func (f *Flow) touch(now time.Time) {
	f.mu.Lock()
	f.lastSeen = now
	f.mu.Unlock()
}

func (f *Flow) idleSince() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSeen
}

func (f *Flow) busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isSendingOTP || f.isVerifyingOTP
}
