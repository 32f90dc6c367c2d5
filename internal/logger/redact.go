package logger

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// Redactor masks credentials before they reach the log output. Object store
// keys and presigned URL signatures are the main concern here.
type Redactor struct {
	keys     []string
	patterns []*regexp.Regexp
}

// DefaultRedactor returns a redactor for the keys and patterns this service
// is known to handle.
func DefaultRedactor() *Redactor {
	return &Redactor{
		keys: []string{"password", "secret", "token", "access_key", "authorization"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(X-Amz-Signature=)[0-9a-fA-F]+`),
			regexp.MustCompile(`(X-Amz-Credential=)[^&\s]+`),
			regexp.MustCompile(`(redis://[^:/\s]*:)[^@\s]+(@)`),
		},
	}
}

// RedactFields returns a copy of fields with sensitive values masked.
func (r *Redactor) RedactFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if r.sensitiveKey(k) {
			out[k] = redacted
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = r.Redact(s)
			continue
		}
		out[k] = v
	}
	return out
}

// Redact masks sensitive substrings in s.
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		if p.NumSubexp() == 2 {
			s = p.ReplaceAllString(s, "${1}"+redacted+"${2}")
		} else {
			s = p.ReplaceAllString(s, "${1}"+redacted)
		}
	}
	return s
}

func (r *Redactor) sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range r.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
