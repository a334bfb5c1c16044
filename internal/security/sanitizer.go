// Package security provides log sanitization and reply throttling for oracle.
package security

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

const redacted = "[REDACTED]"

// redaction replaces every match of pattern with replacement, which may
// reference capture groups.
type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// redactions run in order. Multi-line and structured secrets go first so
// the narrower token rules do not split them.
var redactions = []redaction{
	{
		regexp.MustCompile(`(?s)-----BEGIN[[:space:]]+(?:RSA[[:space:]]+)?PRIVATE[[:space:]]+KEY-----.*?-----END[[:space:]]+(?:RSA[[:space:]]+)?PRIVATE[[:space:]]+KEY-----`),
		"[REDACTED-PRIVATE-KEY]",
	},
	{
		// service account JSON
		regexp.MustCompile(`"private_key":\s*"[^"]+"|"client_email":\s*"[^"]+@[^"]+\.iam\.gserviceaccount\.com"`),
		"[REDACTED-GCP-CREDENTIALS]",
	},
	{
		regexp.MustCompile(`(?i)bearer[[:space:]]+[a-zA-Z0-9_\-\.%]+`),
		"Bearer " + redacted,
	},
	{
		regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
		"[REDACTED-JWT]",
	},
	{
		// Gemini keys
		regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`),
		"[REDACTED-GOOGLE-API-KEY]",
	},
	{
		regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret|api[_-]?token|bearer[_-]?token|secret[_-]?key|public[_-]?key)[[:space:]]*[:=][[:space:]]*['"` + "`" + `]?[a-zA-Z0-9_\-]{16,}`),
		"${1}=" + redacted,
	},
	{
		// credentials in http and postgres URLs
		regexp.MustCompile(`(?i)(https?|postgres(?:ql)?)://[^:/@[:space:]]+:[^@[:space:]]+@`),
		"${1}://" + redacted + "@",
	},
	{
		regexp.MustCompile(`(?i)\bpassword=[^[:space:]]+`),
		"password=" + redacted,
	},
}

// sensitiveKeys mark map keys whose values are redacted outright.
var sensitiveKeys = []string{"password", "passwd", "secret", "token", "api_key", "apikey", "credential", "private", "bearer"}

// minLiteralLen is the shortest literal AddLiteral accepts. Shorter values
// would redact ordinary words.
const minLiteralLen = 8

// LogSanitizer masks credentials in log output. It is safe for concurrent
// use; literals may be added while loggers are writing.
type LogSanitizer struct {
	mu       sync.RWMutex
	literals []string
	replacer *strings.Replacer
}

// NewLogSanitizer returns a sanitizer with only the built-in rules.
func NewLogSanitizer() *LogSanitizer {
	return &LogSanitizer{}
}

// AddLiteral redacts an exact secret value wherever it appears, such as a
// bearer token resolved from Secret Manager.
func (ls *LogSanitizer) AddLiteral(secret string) {
	if len(secret) < minLiteralLen {
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	for _, l := range ls.literals {
		if l == secret {
			return
		}
	}
	ls.literals = append(ls.literals, secret)
	// Longest first, so a secret containing another is masked whole.
	sort.Slice(ls.literals, func(i, j int) bool { return len(ls.literals[i]) > len(ls.literals[j]) })

	pairs := make([]string, 0, 2*len(ls.literals))
	for _, l := range ls.literals {
		pairs = append(pairs, l, redacted)
	}
	ls.replacer = strings.NewReplacer(pairs...)
}

// Sanitize masks literal secrets and anything matching the built-in rules.
func (ls *LogSanitizer) Sanitize(message string) string {
	ls.mu.RLock()
	r := ls.replacer
	ls.mu.RUnlock()
	if r != nil {
		message = r.Replace(message)
	}

	for _, rule := range redactions {
		message = rule.pattern.ReplaceAllString(message, rule.replacement)
	}
	return message
}

// SanitizeMap returns a sanitized copy of m. Values under sensitive keys are
// replaced entirely.
func (ls *LogSanitizer) SanitizeMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if IsSensitiveKey(k) {
			out[k] = redacted
		} else {
			out[k] = ls.Sanitize(v)
		}
	}
	return out
}

// IsSensitiveKey reports whether a field or label name suggests a secret.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
