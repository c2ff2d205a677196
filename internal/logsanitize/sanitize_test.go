package logsanitize

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "hello", want: "hello"},
		{name: "newline", input: "a\nb", want: "a_b"},
		{name: "tab kept", input: "a\tb", want: "a\tb"},
		{name: "DEL", input: "a\x7fb", want: "a_b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeTruncates(t *testing.T) {
	got := Sanitize(strings.Repeat("x", 1000))
	if len(got) != maxFieldLen+3 {
		t.Errorf("len = %d, want %d", len(got), maxFieldLen+3)
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "jane@example.com", want: "j***@example.com"},
		{input: "  bob@x.org ", want: "b***@x.org"},
		{input: "not-an-email", want: "***"},
		{input: "@example.com", want: "***"},
		{input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := MaskEmail(tt.input); got != tt.want {
				t.Errorf("MaskEmail(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
