package logger

import (
	"strings"
)

// SanitizedUsername masks an account identifier for logging (e.g., "a***e").
// Back-office usernames are often email-shaped; either way only the first
// and last characters survive.
func SanitizedUsername(username string) string {
	if username == "" {
		return "[empty]"
	}
	if at := strings.IndexByte(username, '@'); at > 0 {
		return maskWord(username[:at]) + "@" + username[at+1:]
	}
	return maskWord(username)
}

func maskWord(word string) string {
	switch len(word) {
	case 0:
		return ""
	case 1, 2:
		return string(word[0]) + "*"
	default:
		return string(word[0]) + strings.Repeat("*", len(word)-2) + string(word[len(word)-1])
	}
}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"password",
		"token",
		"secret",
		"username",
		"email",
		"auth",
		"session",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
