package loginflow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCooldown = 30 * time.Second

func newTestFlow(t *testing.T) (*Flow, *manualClock) {
	t.Helper()
	clock := newManualClock()
	return newFlow("flow-1", testCooldown, clock), clock
}

func sendOK(t *testing.T, f *Flow) {
	t.Helper()
	require.NoError(t, f.BeginSend("jane@example.com"))
	f.FinishSend(nil)
}

func TestVerifyEnabled(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		verifying bool
		want      bool
	}{
		{name: "six digits", code: "123456", want: true},
		{name: "six digits while verifying", code: "123456", verifying: true, want: false},
		{name: "empty", code: "", want: false},
		{name: "five digits", code: "12345", want: false},
		{name: "seven digits", code: "1234567", want: false},
		{name: "letter", code: "12a456", want: false},
		{name: "sign", code: "-12345", want: false},
		{name: "decimal", code: "1234.5", want: false},
		{name: "non-ascii digits", code: "١٢٣٤٥٦", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyEnabled(tt.code, tt.verifying))
		})
	}
}

func TestSanitizeCode(t *testing.T) {
	assert.Equal(t, "123456", SanitizeCode("12-34 56"))
	assert.Equal(t, "123456", SanitizeCode("1234567890"))
	assert.Equal(t, "", SanitizeCode("abc"))
}

func TestNewFlowAllowsSend(t *testing.T) {
	f, _ := newTestFlow(t)

	st := f.Snapshot()
	assert.True(t, st.AllowSendOTP)
	assert.True(t, st.CanSend())
	assert.False(t, st.OTPSent)
	assert.False(t, st.CanVerify())
}

func TestSuccessfulSendStartsCooldown(t *testing.T) {
	f, clock := newTestFlow(t)

	require.NoError(t, f.BeginSend("jane@example.com"))
	st := f.Snapshot()
	assert.True(t, st.IsSendingOTP)
	assert.False(t, st.CanSend())

	f.FinishSend(nil)
	st = f.Snapshot()
	assert.True(t, st.OTPSent)
	assert.False(t, st.AllowSendOTP)
	assert.False(t, st.IsSendingOTP)
	assert.Equal(t, testCooldown, st.CooldownRemaining)

	clock.Advance(testCooldown - time.Millisecond)
	assert.False(t, f.Snapshot().AllowSendOTP, "re-enabled before the cooldown elapsed")
	assert.ErrorIs(t, f.BeginSend("jane@example.com"), ErrCooldown)

	clock.Advance(time.Millisecond)
	assert.True(t, f.Snapshot().AllowSendOTP)
	assert.Equal(t, 0, clock.Pending())
	assert.NoError(t, f.BeginSend("jane@example.com"))
}

func TestSecondSendRestartsWindow(t *testing.T) {
	f, clock := newTestFlow(t)

	sendOK(t, f)
	clock.Advance(20 * time.Second)

	// A second completion inside the window replaces the pending timer.
	f.FinishSend(nil)
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(10 * time.Second)
	assert.False(t, f.Snapshot().AllowSendOTP, "first timer must have been cancelled")

	clock.Advance(20*time.Second - time.Millisecond)
	assert.False(t, f.Snapshot().AllowSendOTP)

	clock.Advance(time.Millisecond)
	assert.True(t, f.Snapshot().AllowSendOTP)
}

func TestStaleTimerDoesNotReenable(t *testing.T) {
	f, clock := newTestFlow(t)

	sendOK(t, f)
	first := clock.timers[0]

	f.FinishSend(nil)
	// Simulate the first timer having fired just before it was stopped.
	first.f()

	assert.False(t, f.Snapshot().AllowSendOTP)
}

func TestFailedSend(t *testing.T) {
	f, clock := newTestFlow(t)

	require.NoError(t, f.BeginSend("bad"))
	f.FinishSend(errors.New("provider rejected address"))

	st := f.Snapshot()
	assert.False(t, st.OTPSent)
	assert.True(t, st.AllowSendOTP)
	assert.False(t, st.IsSendingOTP)
	assert.Equal(t, 0, clock.Pending())
	assert.NoError(t, f.BeginSend("jane@example.com"))
}

func TestFailedResendHidesVerifyForm(t *testing.T) {
	f, clock := newTestFlow(t)

	sendOK(t, f)
	clock.Advance(testCooldown)

	require.NoError(t, f.BeginSend("jane@example.com"))
	f.FinishSend(errors.New("rate limited"))
	assert.False(t, f.Snapshot().OTPSent)
}

func TestBeginSendInFlight(t *testing.T) {
	f, _ := newTestFlow(t)

	require.NoError(t, f.BeginSend("jane@example.com"))
	assert.ErrorIs(t, f.BeginSend("jane@example.com"), ErrSendInFlight)
}

func TestVerify(t *testing.T) {
	f, _ := newTestFlow(t)

	_, err := f.BeginVerify("123456")
	assert.ErrorIs(t, err, ErrNotSent)

	sendOK(t, f)

	_, err = f.BeginVerify("12345")
	assert.ErrorIs(t, err, ErrInvalidCode)

	email, err := f.BeginVerify("123456")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", email)
	assert.False(t, f.Snapshot().CanVerify())

	_, err = f.BeginVerify("123456")
	assert.ErrorIs(t, err, ErrVerifyInFlight)

	f.FinishVerify()
	st := f.Snapshot()
	assert.True(t, st.OTPSent)
	assert.Equal(t, "123456", st.OTP)
	assert.True(t, st.CanVerify())
}

func TestSetCode(t *testing.T) {
	f, _ := newTestFlow(t)

	assert.Equal(t, "123", f.SetCode("1a2b3"))
	assert.Equal(t, "123", f.Snapshot().OTP)
	assert.False(t, f.Snapshot().CanVerify())
}
