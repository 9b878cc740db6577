// Package log holds the slog plumbing shared by the commands: a handler that
// keeps credentials out of log output and a size-rotated log file.
package log

import (
	"context"
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveKeys are attribute key fragments whose values are never logged.
// Matching is case-insensitive.
var sensitiveKeys = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"authorization",
	"cookie",
	"ticket",
	"cred",
	"session_key",
}

// safeSuffixes mark attributes that describe a secret without carrying it.
var safeSuffixes = []string{"len", "length", "count", "path", "name", "type"}

// authSchemes are header schemes whose parameter is a credential.
var authSchemes = []string{"Negotiate ", "NTLM ", "Kerberos ", "Basic ", "Bearer "}

// RedactingHandler is a slog.Handler that strips credentials from records:
// values under sensitive keys and the token part of any Authorization-style
// string value.
type RedactingHandler struct {
	next slog.Handler
}

// NewRedactingHandler wraps next.
func NewRedactingHandler(next slog.Handler) *RedactingHandler {
	return &RedactingHandler{next: next}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, redactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(clean)}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		group := make([]any, len(attrs))
		for i, attr := range attrs {
			group[i] = redactAttr(attr)
		}
		return slog.Group(a.Key, group...)
	}

	if sensitiveKey(a.Key) {
		return slog.String(a.Key, redacted)
	}
	if a.Value.Kind() == slog.KindString {
		if s := a.Value.String(); s != redactString(s) {
			return slog.String(a.Key, redactString(s))
		}
	}
	return a
}

func sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, suffix := range safeSuffixes {
		if strings.HasSuffix(k, suffix) {
			return false
		}
	}
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// redactString replaces the parameter of an embedded "Scheme <token>" with
// the redaction marker, keeping the scheme word. Quoted auth-params such as
// realm="x" are left alone.
func redactString(s string) string {
	lower := strings.ToLower(s)
	var b strings.Builder
	pos := 0
	for {
		i, scheme := nextScheme(lower, pos)
		if i < 0 {
			break
		}
		start := i + len(scheme)
		end := start
		for end < len(s) && s[end] != ' ' && s[end] != ',' && s[end] != '"' {
			end++
		}
		if end == start || (end < len(s) && s[end] == '"') {
			b.WriteString(s[pos:start])
			pos = start
			continue
		}
		b.WriteString(s[pos:start])
		b.WriteString(redacted)
		pos = end
	}
	if pos == 0 {
		return s
	}
	b.WriteString(s[pos:])
	return b.String()
}

// nextScheme finds the earliest auth scheme in lower at or after pos.
func nextScheme(lower string, pos int) (int, string) {
	best, found := -1, ""
	for _, scheme := range authSchemes {
		i := strings.Index(lower[pos:], strings.ToLower(scheme))
		if i >= 0 && (best < 0 || pos+i < best) {
			best, found = pos+i, scheme
		}
	}
	return best, found
}
