package logging

import (
	"log/slog"
	"strings"
)

// sensitiveKeys are attribute key fragments whose values are redacted.
var sensitiveKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"private_key",
}

// redactAttr is the ReplaceAttr hook that redacts sensitive values. It keeps
// a short prefix of the value so keys can still be told apart in logs.
func redactAttr(groups []string, a slog.Attr) slog.Attr {
	if !isSensitiveKey(a.Key) {
		return a
	}
	if a.Value.Kind() == slog.KindString {
		a.Value = slog.StringValue(RedactSecret(a.Value.String()))
		return a
	}
	a.Value = slog.StringValue("***")
	return a
}

// isSensitiveKey checks if a key name indicates sensitive data.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// RedactSecret redacts a secret value, keeping a 4-character prefix for
// identification.
func RedactSecret(value string) string {
	if len(value) <= 4 {
		return "***"
	}
	return value[:4] + "***"
}
