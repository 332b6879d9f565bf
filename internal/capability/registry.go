package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maruhq/maru/internal/intent"
)

// Registry maps intent kinds to handlers and dispatches intents. Unknown
// or unregistered kinds route to the fallback handler so every intent
// yields a result.
type Registry struct {
	mu       sync.RWMutex
	handlers map[intent.Kind]Handler
	logger   *slog.Logger
}

// NewRegistry creates a registry with the fallback handler pre-registered.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		handlers: make(map[intent.Kind]Handler),
		logger:   logger,
	}
	r.Register(intent.KindUnknown, NewFallback())
	return r
}

// Register adds a handler for an intent kind, replacing any previous one.
func (r *Registry) Register(kind intent.Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Resolve returns the handler for kind, or the fallback handler when the
// kind has no registration.
func (r *Registry) Resolve(kind intent.Kind) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[kind]; ok {
		return h
	}
	return r.handlers[intent.KindUnknown]
}

// Kinds returns the registered intent kinds.
func (r *Registry) Kinds() []intent.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]intent.Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Dispatch executes one intent through its handler, merging the handler's
// declared context keys into the arguments first. Handler errors and
// panics are contained: both become an error-status result, never a
// propagated failure.
func (r *Registry) Dispatch(ctx context.Context, in intent.Intent, exec Context) ActionResult {
	h := r.Resolve(in.Kind)
	merged := MergeArgs(in, h.ContextKeys(), exec)

	result, err := r.safeHandle(ctx, h, merged)
	if err != nil {
		r.logger.Warn("handler failed",
			"intent", string(in.Kind),
			"handler", h.Name(),
			"error", err,
		)
		return ErrorResult(in.Kind, h.Name(), err)
	}

	// Handlers fill their own identity inconsistently; normalize here so
	// results always carry both.
	if result.IntentKind == "" {
		result.IntentKind = in.Kind
	}
	if result.Handler == "" {
		result.Handler = h.Name()
	}
	return result
}

func (r *Registry) safeHandle(ctx context.Context, h Handler, in intent.Intent) (result ActionResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Name(), rec)
		}
	}()
	return h.Handle(ctx, in)
}
