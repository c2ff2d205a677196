// Package flash carries one-time toast notices across a redirect.
package flash

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// CookieName is the cookie holding the pending notice.
const CookieName = "sb_flash"

// maxFieldLen bounds each text field so the cookie stays well under 4KB.
const maxFieldLen = 512

// Kind selects how a notice is presented.
type Kind string

const (
	KindDefault     Kind = "default"
	KindDestructive Kind = "destructive"
)

// Notice is a toast shown on the next page render.
type Notice struct {
	Kind        Kind   `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Destructive builds an error notice.
func Destructive(title, description string) Notice {
	return Notice{Kind: KindDestructive, Title: title, Description: description}
}

// Info builds a neutral notice.
func Info(title, description string) Notice {
	return Notice{Kind: KindDefault, Title: title, Description: description}
}

// Write stores notice for the next page render. Invalid notices are dropped.
func Write(w http.ResponseWriter, notice Notice, secure bool) {
	if w == nil {
		return
	}
	normalized, ok := normalizeNotice(notice)
	if !ok {
		return
	}
	payload, err := json.Marshal(normalized)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadAndClear returns the pending notice, if any, and expires the cookie.
func ReadAndClear(w http.ResponseWriter, r *http.Request, secure bool) (Notice, bool) {
	if r == nil {
		return Notice{}, false
	}
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Notice{}, false
	}
	Clear(w, secure)
	return decodeNotice(cookie.Value)
}

// Clear expires any pending notice.
func Clear(w http.ResponseWriter, secure bool) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func decodeNotice(raw string) (Notice, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Notice{}, false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return Notice{}, false
	}
	var notice Notice
	if err := json.Unmarshal(decoded, &notice); err != nil {
		return Notice{}, false
	}
	return normalizeNotice(notice)
}

func normalizeNotice(notice Notice) (Notice, bool) {
	notice.Title = truncate(strings.TrimSpace(notice.Title))
	notice.Description = truncate(strings.TrimSpace(notice.Description))
	if notice.Title == "" {
		return Notice{}, false
	}
	notice.Kind = Kind(strings.ToLower(strings.TrimSpace(string(notice.Kind))))
	switch notice.Kind {
	case "":
		notice.Kind = KindDefault
	case KindDefault, KindDestructive:
	default:
		return Notice{}, false
	}
	return notice, true
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxFieldLen {
		return s
	}
	return string(r[:maxFieldLen])
}
