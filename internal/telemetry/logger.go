// Package telemetry wraps goa.design/clue/log so call sites never import it
// directly, and redacts bearer tokens before any structured field reaches a
// log sink.
package telemetry

import (
	"context"
	"regexp"

	"goa.design/clue/log"
)

// Logger emits structured, leveled log messages with key-value fields,
// redacting any field value that looks like a bearer token first.
type Logger struct{}

// New returns a ready-to-use Logger.
func New() *Logger {
	return &Logger{}
}

// Debug emits a debug-level message.
func (l *Logger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, fielders(msg, keyvals)...)
}

// Info emits an info-level message.
func (l *Logger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, fielders(msg, keyvals)...)
}

// Warn emits a warning-level message.
func (l *Logger) Warn(ctx context.Context, msg string, keyvals ...any) {
	fs := append([]log.Fielder{log.KV{K: "severity", V: "warning"}}, fielders(msg, keyvals)...)
	log.Warn(ctx, fs...)
}

// Error emits an error-level message. If one of keyvals is an error under
// the key "error", it is passed through to clue/log separately so it is
// rendered with a stack-aware formatter.
func (l *Logger) Error(ctx context.Context, msg string, keyvals ...any) {
	var errVal error
	filtered := make([]any, 0, len(keyvals))
	for i := 0; i+1 < len(keyvals); i += 2 {
		if keyvals[i] == "error" {
			if e, ok := keyvals[i+1].(error); ok {
				errVal = e
				continue
			}
		}
		filtered = append(filtered, keyvals[i], keyvals[i+1])
	}
	log.Error(ctx, errVal, fielders(msg, filtered)...)
}

func fielders(msg string, keyvals []any) []log.Fielder {
	fs := []log.Fielder{log.KV{K: "msg", V: msg}}
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fs = append(fs, log.KV{K: key, V: Redact(key, keyvals[i+1])})
	}
	return fs
}

// tokenLikeKeys are field names whose values are always scrubbed,
// regardless of their content, carried from the original implementation's
// log sanitizer which masked the caller's bearer token on every line.
var tokenLikeKeys = map[string]bool{
	"token":         true,
	"auth_token":    true,
	"bearer_token":  true,
	"authorization": true,
}

var bearerRE = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.]+`)

// Redact masks a field value when its key is known to carry a credential, or
// scrubs an embedded "Bearer <token>" substring out of a free-text value.
func Redact(key string, value any) any {
	if tokenLikeKeys[key] {
		return "[REDACTED]"
	}
	if s, ok := value.(string); ok && bearerRE.MatchString(s) {
		return bearerRE.ReplaceAllString(s, "Bearer [REDACTED]")
	}
	return value
}
