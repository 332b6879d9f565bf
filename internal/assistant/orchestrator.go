// Package assistant wires the request pipeline together: parse the text
// into an ordered intent sequence, execute it through the capability
// registry with context threading, aggregate one reply, and persist the
// turn in the session store.
package assistant

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/maruhq/maru/internal/capability"
	"github.com/maruhq/maru/internal/intent"
	"github.com/maruhq/maru/internal/llm"
)

// Orchestrator executes one request's intents strictly in order and
// renders the aggregated reply.
type Orchestrator struct {
	registry   *capability.Registry
	aggregator *Aggregator
	logger     *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the orchestrator's logger.
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator over the given registry and
// aggregator.
func NewOrchestrator(registry *capability.Registry, aggregator *Aggregator, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry:   registry,
		aggregator: aggregator,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run dispatches the intents one at a time in ascending Order; the sort
// is stable, so intents sharing an Order keep their parser emission
// order. Action i+1 does not start until action i finished. Each OK
// result's excerpt extends the request context offered to later
// handlers; an errored action contributes nothing and does not stop the
// sequence. The returned text is the aggregated reply over all results
// in execution order.
func (o *Orchestrator) Run(ctx context.Context, text string, intents []intent.Intent, history []llm.Message) ([]capability.ActionResult, string) {
	ordered := make([]intent.Intent, len(intents))
	copy(ordered, intents)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	exec := capability.NewContext()
	results := make([]capability.ActionResult, 0, len(ordered))
	for _, in := range ordered {
		start := time.Now()
		res := o.registry.Dispatch(ctx, in, exec)
		o.logger.Debug("action executed",
			"intent", string(in.Kind),
			"handler", res.Handler,
			"status", string(res.Status),
			"duration", time.Since(start),
		)

		results = append(results, res)
		if res.OK() {
			exec = exec.With(res.IntentKind, res.Excerpt)
		}
	}

	reply := o.aggregator.Aggregate(ctx, text, results, history)
	return results, reply
}
