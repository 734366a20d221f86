package logger

import (
	"regexp"
	"strings"
)

// Mask replaces redacted values.
const Mask = "[REDACTED]"

var (
	secretAssignment = regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret|token|api[_-]?key|access[_-]?key|auth|session|cookie)(\s*[:=]\s*)("[^"]*"|'[^']*'|[^\s,;&]+)`)
	bearerToken      = regexp.MustCompile(`(?i)\b(bearer|basic)\s+[A-Za-z0-9._~+/=-]{8,}`)
	urlCredentials   = regexp.MustCompile(`(://[^/\s:@]+):[^/\s@]+@`)
	longTokenish     = regexp.MustCompile(`\b(sk|pk|ghp|gho|xox[abpr])[-_][A-Za-z0-9_-]{16,}\b`)
)

// sensitiveTargets are words in a field description that mark what is typed
// into it as secret.
var sensitiveTargets = []string{"password", "passcode", "passphrase", "pin", "secret", "token", "otp", "cvv", "cvc", "card number", "security code", "api key"}

// Redact masks credentials in free text: key=value pairs with secret-looking
// keys, bearer tokens, user:pass@ in URLs and well-known token prefixes.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = secretAssignment.ReplaceAllString(s, "${1}${2}"+Mask)
	s = bearerToken.ReplaceAllString(s, "${1} "+Mask)
	s = urlCredentials.ReplaceAllString(s, "${1}:"+Mask+"@")
	s = longTokenish.ReplaceAllString(s, Mask)
	return s
}

// RedactTyped returns the text to log for a value typed into target. Values
// typed into password-like fields are masked entirely.
func RedactTyped(target, value string) string {
	if value == "" {
		return value
	}
	t := strings.ToLower(target)
	for _, word := range sensitiveTargets {
		if containsWord(t, word) {
			return Mask
		}
	}
	return Redact(value)
}

// containsWord reports whether word occurs in s on word boundaries.
func containsWord(s, word string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
