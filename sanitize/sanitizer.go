// Package sanitize redacts well-known secret and PII patterns from
// free-text fields and config-like keys, and truncates oversized raw
// payloads. Grounded on the ordered-regex-rule shape of a PII detector,
// generalized with the assignment/vendor-secret/contact-info rules a
// gateway needs.
package sanitize

import (
	"regexp"
	"strings"
)

// Placeholder replaces every matched span.
const Placeholder = "[REDACTED]"

// rule is one ordered regex substitution. Order matters: more specific
// patterns (key=value assignments, vendor-prefixed secrets) run before
// generic ones so a matched secret isn't partially re-matched by a looser
// rule afterward.
type rule struct {
	name    string
	pattern *regexp.Regexp
}

func defaultRules() []rule {
	return []rule{
		// key=value / key: value assignments for credential-shaped keys.
		{"assignment", regexp.MustCompile(`(?i)\b(api[_-]?key|token|secret|password|credential)\s*[:=]\s*["']?[\w\-\.]+["']?`)},
		// Authorization: Bearer <token>
		{"bearer_token", regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9\-\._~\+\/]+=*`)},
		// Vendor-prefixed API secrets (OpenAI/Anthropic/GitHub/Stripe style).
		{"vendor_secret", regexp.MustCompile(`\b(sk|pk|rk|ghp|gho|ghu|ghs|ghr)-[A-Za-z0-9]{16,}\b`)},
		// Email addresses.
		{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
		// Credit card numbers (13-19 digits, optionally grouped by spaces/dashes).
		{"credit_card", regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)},
		// US Social Security numbers.
		{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		// Phone numbers (loose international form).
		{"phone", regexp.MustCompile(`\b\+?1?[ .\-]?\(?\d{3}\)?[ .\-]?\d{3}[ .\-]?\d{4}\b`)},
	}
}

// configKeyMarkers are substrings that mark a map key as credential-shaped;
// the entire value is redacted regardless of its content (spec §4.3).
var configKeyMarkers = []string{"key", "token", "secret", "password", "credential"}

// Sanitizer applies the ordered rule set to free text and config-like keys,
// and truncates oversized raw payloads.
type Sanitizer struct {
	rules            []rule
	truncationLength int
}

// New creates a Sanitizer. truncationLength bounds raw payload fields;
// a non-positive value disables truncation.
func New(truncationLength int) *Sanitizer {
	return &Sanitizer{rules: defaultRules(), truncationLength: truncationLength}
}

// SanitizeText applies every rule to s once, in order, and returns the
// redacted text. Idempotent: SanitizeText(SanitizeText(s)) == SanitizeText(s),
// since Placeholder never matches any rule's pattern.
func (s *Sanitizer) SanitizeText(text string) string {
	out := text
	for _, r := range s.rules {
		out = r.pattern.ReplaceAllString(out, Placeholder)
	}
	return out
}

// Sanitize redacts every value in fields. Keys whose name contains one of
// configKeyMarkers (case-insensitive) have their entire value replaced with
// Placeholder; all other values pass through SanitizeText.
func (s *Sanitizer) Sanitize(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if isCredentialKey(k) {
			out[k] = Placeholder
			continue
		}
		out[k] = s.SanitizeText(v)
	}
	return out
}

// TruncateRaw truncates raw to the configured truncation length, returning
// the (possibly unchanged) text and whether truncation occurred.
func (s *Sanitizer) TruncateRaw(raw string) (string, bool) {
	if s.truncationLength <= 0 || len(raw) <= s.truncationLength {
		return raw, false
	}
	return raw[:s.truncationLength], true
}

func isCredentialKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range configKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
