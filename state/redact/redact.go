// Package redact implements the sensitive-data protection the state store
// applies before persisting a value: recognized field names and secret-shaped
// strings are replaced with a literal marker, optionally suffixed with a
// deterministic hash that can be reversed back into a live execution context
// but is never itself written to disk.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// DefaultSensitiveFields is the configurable set of field names whose value
// is always redacted regardless of shape.
var DefaultSensitiveFields = []string{
	"api_key", "apikey", "token", "password", "secret", "authorization",
}

// DefaultSecretPatterns recognizes common secret shapes: provider API keys,
// JWTs, AWS access keys, GitHub tokens, and generic "password: ..." text.
var DefaultSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),                 // OpenAI/Anthropic-style keys
	regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`), // JWT
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),                    // AWS access key id
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{30,}\b`),          // GitHub token
	regexp.MustCompile(`(?i)password\s*[:=]\s*\S+`),               // generic password: ...
}

const redactedMarker = "[REDACTED]"

// Protector walks JSON-shaped values (map[string]any, []any, and scalars)
// and redacts sensitive fields/patterns. When HashReversal is enabled, the
// original value is retained in memory keyed by the emitted hash so Restore
// can reconstruct it for a live execution context; the reversal map itself
// is never serialized.
type Protector struct {
	SensitiveFields []string
	SecretPatterns  []*regexp.Regexp
	HashReversal    bool

	mu       sync.RWMutex
	reversal map[string]any
}

// New constructs a Protector with the default field/pattern sets.
func New(hashReversal bool) *Protector {
	return &Protector{
		SensitiveFields: DefaultSensitiveFields,
		SecretPatterns:  DefaultSecretPatterns,
		HashReversal:    hashReversal,
		reversal:        make(map[string]any),
	}
}

func (p *Protector) isSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, f := range p.SensitiveFields {
		if lower == f {
			return true
		}
	}
	return false
}

func (p *Protector) matchesSecretPattern(s string) bool {
	for _, re := range p.SecretPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// isRedactedMarker reports whether v is already this package's redacted
// form, either the bare marker or "marker:hash".
func isRedactedMarker(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return s == redactedMarker || strings.HasPrefix(s, redactedMarker+":")
}

func (p *Protector) redactedValue(original any) string {
	if isRedactedMarker(original) {
		return original.(string)
	}
	if !p.HashReversal {
		return redactedMarker
	}
	sum := sha256.Sum256([]byte(toHashInput(original)))
	hash := hex.EncodeToString(sum[:])
	p.mu.Lock()
	p.reversal[hash] = original
	p.mu.Unlock()
	return redactedMarker + ":" + hash
}

func toHashInput(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Redact returns a copy of x with sensitive fields and secret-shaped strings
// replaced. Redact is idempotent: a sensitive field whose value is already a
// redaction marker keeps that marker unchanged, and the marker string itself
// never matches a secret pattern.
func (p *Protector) Redact(x any) any {
	return p.redact("", x)
}

func (p *Protector) redact(fieldName string, x any) any {
	switch v := x.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if p.isSensitiveField(k) {
				out[k] = p.redactedValue(val)
				continue
			}
			out[k] = p.redact(k, val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = p.redact(fieldName, val)
		}
		return out
	case string:
		if p.matchesSecretPattern(v) {
			return p.redactedValue(v)
		}
		return v
	default:
		return v
	}
}

// Restore is the left inverse of Redact for values produced by this same
// Protector instance when hashing is enabled: it walks x and replaces any
// "[REDACTED]:<hash>" marker whose hash is present in the reversal map with
// the original value. Restore never touches disk; it only reconstructs
// values for a live execution context.
func (p *Protector) Restore(x any) any {
	return p.restore(x)
}

func (p *Protector) restore(x any) any {
	switch v := x.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = p.restore(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = p.restore(val)
		}
		return out
	case string:
		if strings.HasPrefix(v, redactedMarker+":") {
			hash := strings.TrimPrefix(v, redactedMarker+":")
			p.mu.RLock()
			orig, ok := p.reversal[hash]
			p.mu.RUnlock()
			if ok {
				return orig
			}
		}
		return v
	default:
		return v
	}
}
