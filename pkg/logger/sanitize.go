package logger

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// sensitiveQueryKeys are request parameters whose values never reach the log.
// The login-attempts lookup takes the email as a query parameter.
var sensitiveQueryKeys = map[string]struct{}{
	"email":    {},
	"password": {},
	"code":     {},
	"token":    {},
	"session":  {},
	"secret":   {},
}

// SanitizedEmail masks the local part of an email for logging, keeping its first
// character and the domain ("a***@example.com"). The mask has a fixed width.
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}
	_, size := utf8.DecodeRuneInString(local)
	return local[:size] + "***@" + strings.ToLower(domain)
}

// RedactQuery returns rawQuery with the values of sensitive parameters replaced.
// Parameter order and non-sensitive values are preserved.
func RedactQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	pairs := strings.Split(rawQuery, "&")
	for i, pair := range pairs {
		key, _, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(key)
		if err != nil {
			name = key
		}
		if _, ok := sensitiveQueryKeys[strings.ToLower(name)]; ok {
			pairs[i] = key + "=REDACTED"
		}
	}
	return strings.Join(pairs, "&")
}
