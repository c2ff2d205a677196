// Package logsanitize provides helpers for sanitizing untrusted values before logging.
package logsanitize

import "strings"

// maxFieldLen caps a single log field so oversized input cannot flood the log.
const maxFieldLen = 256

// Sanitize removes control characters from log field values to reduce
// the risk of log injection (CWE-117) and truncates long values.
//
// Stripped ranges:
//   - C0 controls 0x00-0x1F (except horizontal tab 0x09)
//   - DEL 0x7F and C1 controls 0x80-0x9F
func Sanitize(s string) string {
	if len(s) > maxFieldLen {
		s = s[:maxFieldLen] + "..."
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return '_'
		}
		if r >= 0x7f && r <= 0x9f {
			return '_'
		}
		return r
	}, s)
}

// MaskEmail keeps the first character of the local part and the domain,
// e.g. "jane@example.com" becomes "j***@example.com".
func MaskEmail(email string) string {
	email = Sanitize(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		if email == "" {
			return ""
		}
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
