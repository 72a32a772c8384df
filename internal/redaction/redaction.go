// Package redaction scrubs provider credentials from text that may reach
// logs, warnings, or terminal output.
package redaction

import (
	"regexp"
	"strings"
)

// credentialPatterns match provider keys and tokens commonly echoed back in
// error bodies.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-or-v1-[a-zA-Z0-9]+`),                         // OpenRouter keys
	regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9_-]{16,}`),               // OpenAI keys
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),                         // Google API keys
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]{8,}`),           // Authorization headers
	regexp.MustCompile(`(?i)([?&]key=)[^&\s"']+`),                       // key= query parameters
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+`),          // JWT tokens
	regexp.MustCompile(`(?i)api[_-]?key["']?\s*[:=]\s*["']?[^\s"',}]+`), // api_key = ...
}

const replacement = "[REDACTED]"

// Redact replaces every literal occurrence of secrets, then every built-in
// credential pattern, with [REDACTED]. Secrets shorter than four characters
// are ignored so that short values cannot blank out ordinary words.
func Redact(text string, secrets ...string) string {
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if len(s) < 4 {
			continue
		}
		text = strings.ReplaceAll(text, s, replacement)
	}
	for _, re := range credentialPatterns {
		if re.NumSubexp() > 0 {
			text = re.ReplaceAllString(text, "${1}"+replacement)
			continue
		}
		text = re.ReplaceAllString(text, replacement)
	}
	return text
}

// All applies Redact to each element of texts in place and returns it.
func All(texts []string, secrets ...string) []string {
	for i, t := range texts {
		texts[i] = Redact(t, secrets...)
	}
	return texts
}
