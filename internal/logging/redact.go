package logging

import (
	"net/url"
	"regexp"
	"strings"
)

var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"api-key",
	"authorization",
	"credential",
	"dsn",
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(AIza[a-zA-Z0-9_-]{35})`),                     // Google API key
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9]{20,})`),                   // OpenAI style
	regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9._-]{20,})`),          // bearer tokens
	regexp.MustCompile(`(?i)(postgres(?:ql)?://[^:/\s]+:)([^@\s]+)@`), // DSN passwords
	regexp.MustCompile(`(?i)(key|token|secret|password)[=:]["']?([a-zA-Z0-9+/=_-]{24,})["']?`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces secrets embedded in a string.
func Redact(s string) string {
	result := s
	for i, pattern := range secretPatterns {
		if i == 3 {
			result = pattern.ReplaceAllString(result, "${1}"+RedactedValue+"@")
			continue
		}
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// RedactURL strips credentials and key-like query parameters from a URL.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Redact(raw)
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), RedactedValue)
		}
	}
	q := u.Query()
	changed := false
	for name := range q {
		if IsSensitiveField(name) || strings.EqualFold(name, "key") {
			q.Set(name, RedactedValue)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// RedactMap redacts sensitive fields in a nested map, returning a copy.
func RedactMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		switch {
		case IsSensitiveField(k):
			if s, ok := v.(string); ok && s == "" {
				result[k] = s
				continue
			}
			result[k] = RedactedValue
		default:
			switch typed := v.(type) {
			case map[string]any:
				result[k] = RedactMap(typed)
			case string:
				result[k] = Redact(typed)
			default:
				result[k] = v
			}
		}
	}
	return result
}

// IsSensitiveField checks if a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
