package respond

import (
	"regexp"
)

// Patterns are applied in order, most specific first.
var (
	anthropicKeyPattern = regexp.MustCompile(`sk-ant-[a-zA-Z0-9-_]+`)
	// does not match keys already masked with *
	openaiKeyPattern = regexp.MustCompile(`sk-[a-zA-Z0-9]{10,}`)
	googleKeyPattern = regexp.MustCompile(`AIza[0-9A-Za-z_-]{20,}`)
	// Gemini REST errors can echo the request URL including ?key=...
	queryKeyPattern = regexp.MustCompile(`([?&]key=)[^&\s"]+`)
	bearerPattern   = regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9._-]+`)
)

// SanitizeError returns err's message with API keys and bearer tokens masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	msg = anthropicKeyPattern.ReplaceAllString(msg, "sk-ant-****")
	msg = openaiKeyPattern.ReplaceAllString(msg, "sk-****")
	msg = googleKeyPattern.ReplaceAllString(msg, "AIza****")
	msg = queryKeyPattern.ReplaceAllString(msg, "${1}****")
	msg = bearerPattern.ReplaceAllString(msg, "${1}****")
	return msg
}
