package httpserver

import "github.com/al-bashkir/supabase-auth-web/internal/logsanitize"

// sanitizeLog strips control characters from request-derived values
// before they reach the log.
func sanitizeLog(s string) string {
	return logsanitize.Sanitize(s)
}
