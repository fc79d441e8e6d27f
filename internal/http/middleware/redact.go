package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var (
	tokenParamRE = regexp.MustCompile(`(?i)\b(access_token|token|code)=[^&]*`)
	jwtRE        = regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]*\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]*`)
	emailRE      = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// E.164 (+905551234567) or local groupings such as "555 123 4567" and
	// "(212) 555-1212". The left edge is checked in redactPhones.
	phoneRE = regexp.MustCompile(`(?:\+\d{1,3}[ .\-]?)?(?:\(\d{2,4}\)[ .\-]?|\d{2,4}[ .\-]?)?\d{3,4}[ .\-]?\d{4}\b`)
)

// Redactor scrubs credentials and contact details from request metadata
// before it is logged. Phone numbers are the login identifier and
// WebSocket clients send their token as ?access_token=, so both must never
// reach the access log verbatim. Bodies are never logged.
type Redactor struct {
	masked map[string]struct{}
}

// NewRedactor masks Authorization, Cookie, Set-Cookie and the extra header
// names (case-insensitive) entirely.
func NewRedactor(extraHeaders ...string) *Redactor {
	r := &Redactor{masked: map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}}
	for _, h := range extraHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.masked[h] = struct{}{}
		}
	}
	return r
}

// String replaces tokens, emails and phone numbers found in s. Token
// parameters go first so a JWT inside one is reported once.
func (r *Redactor) String(s string) string {
	if s == "" {
		return s
	}
	s = tokenParamRE.ReplaceAllString(s, "$1=[REDACTED:token]")
	s = jwtRE.ReplaceAllString(s, "[REDACTED:token]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return redactPhones(s)
}

// Query unescapes a raw query string before scrubbing it, so "%2B90..."
// and "%40" do not slip past the patterns.
func (r *Redactor) Query(raw string) string {
	if q, err := url.QueryUnescape(raw); err == nil {
		raw = q
	}
	return r.String(raw)
}

// redactPhones skips digit runs glued to a preceding word or id, such as
// the "426614174000" tail of a UUID.
func redactPhones(s string) string {
	matches := phoneRE.FindAllStringIndex(s, -1)
	if matches == nil {
		return s
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		if m[0] > 0 && continuesToken(s[m[0]-1]) {
			continue
		}
		b.WriteString(s[last:m[0]])
		b.WriteString("[REDACTED:phone]")
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func continuesToken(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	}
	return c == '_' || c == '-' || c == '.'
}

// Headers flattens h for logging with masked headers hidden and the rest
// passed through String.
func (r *Redactor) Headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.masked[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.String(strings.Join(vv, ", "))
	}
	return out
}
