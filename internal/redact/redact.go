// Package redact strips sensitive values out of log lines and telemetry
// argument documents before they leave the process.
package redact

import "regexp"

// sensitiveKeys is the union of the key lists carried by the telemetry
// aggregator and the disk/console log formatter in the system this host
// was rebuilt from; the two disagreed slightly, so every key from both
// is redacted here.
var sensitiveKeys = []string{
	"password", "pwd", "secret", "apiKey", "accessToken", "authorization",
	"clientSecret", "privateKey", "certificate", "passphrase",
}

var pattern = buildPattern()

func buildPattern() *regexp.Regexp {
	alt := ""
	for i, k := range sensitiveKeys {
		if i > 0 {
			alt += "|"
		}
		alt += regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`(?i)("(?:` + alt + `)"\s*:\s*)"([^"]+)"`)
}

// String redacts sensitive "key":"value" occurrences inside a log line
// or serialized document.
func String(s string) string {
	return pattern.ReplaceAllString(s, `$1"<REDACTED>"`)
}

func isSensitiveKey(k string) bool {
	for _, s := range sensitiveKeys {
		if len(s) == len(k) && equalFold(s, k) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Doc recursively redacts a nested argument document: values whose key
// is itself a sensitive key are fully replaced, and string leaves are
// additionally scanned for embedded "key":"value" text the way the log
// formatter redacts raw log lines.
func Doc(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isSensitiveKey(k) {
				out[k] = "<REDACTED>"
				continue
			}
			out[k] = Doc(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Doc(val)
		}
		return out
	case string:
		return String(t)
	default:
		return v
	}
}
