package logging

import "regexp"

// RedactedText is the replacement text for sensitive data.
const RedactedText = "[REDACTED]"

var (
	// API keys passed as query parameters on provider URLs.
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key|token)=[A-Za-z0-9-_]{8,}`)

	// Basic-auth credentials embedded in URLs (user:pass@host).
	urlCredsPattern = regexp.MustCompile(`://[^:/\s]+:[^@/\s]+@`)

	// Password values in connection strings.
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)
)

// SanitizeURL removes API keys and embedded credentials from a provider URL
// before it is logged.
func SanitizeURL(url string) string {
	if url == "" {
		return ""
	}
	sanitized := apiKeyPattern.ReplaceAllString(url, "${1}="+RedactedText)
	return urlCredsPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
}

// SanitizeError sanitizes an error message that might contain provider
// credentials or connection strings.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := apiKeyPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return urlCredsPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
}
