package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// RedactHandler wraps a slog handler to scrub known secret values (API keys
// for the LLM providers, the Notion integration token) from log output.
type RedactHandler struct {
	inner   slog.Handler
	mu      *sync.RWMutex
	secrets map[string]bool
}

// NewRedactHandler creates a log handler that redacts known secret values.
func NewRedactHandler(inner slog.Handler) *RedactHandler {
	return &RedactHandler{
		inner:   inner,
		mu:      &sync.RWMutex{},
		secrets: make(map[string]bool),
	}
}

// AddSecret registers a value to be redacted from log output.
func (h *RedactHandler) AddSecret(value string) {
	if value == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.secrets[value] = true
}

// Enabled delegates to the inner handler.
func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle redacts secret values from log record attributes.
func (h *RedactHandler) Handle(ctx context.Context, record slog.Record) error {
	h.mu.RLock()
	secrets := make([]string, 0, len(h.secrets))
	for s := range h.secrets {
		secrets = append(secrets, s)
	}
	h.mu.RUnlock()

	if len(secrets) == 0 {
		return h.inner.Handle(ctx, record)
	}

	msg := record.Message
	for _, s := range secrets {
		msg = strings.ReplaceAll(msg, s, "***REDACTED***")
	}

	redacted := slog.NewRecord(record.Time, record.Level, msg, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(h.redactAttr(a, secrets))
		return true
	})

	return h.inner.Handle(ctx, redacted)
}

// WithAttrs delegates to the inner handler.
// Shares the parent's mutex and secrets map so AddSecret is race-free.
func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RedactHandler{
		inner:   h.inner.WithAttrs(attrs),
		mu:      h.mu,
		secrets: h.secrets,
	}
}

// WithGroup delegates to the inner handler.
// Shares the parent's mutex and secrets map so AddSecret is race-free.
func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{
		inner:   h.inner.WithGroup(name),
		mu:      h.mu,
		secrets: h.secrets,
	}
}

func (h *RedactHandler) redactAttr(a slog.Attr, secrets []string) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		val := a.Value.String()
		for _, s := range secrets {
			val = strings.ReplaceAll(val, s, "***REDACTED***")
		}
		return slog.String(a.Key, val)
	}
	return a
}

// RedactString replaces any known secret values in a string with a placeholder.
func (h *RedactHandler) RedactString(s string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for secret := range h.secrets {
		s = strings.ReplaceAll(s, secret, "***REDACTED***")
	}
	return s
}
