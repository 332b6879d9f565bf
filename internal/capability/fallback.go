package capability

import (
	"context"

	"github.com/maruhq/maru/internal/intent"
)

// FallbackReply is the answer for requests no capability understands.
const FallbackReply = "무슨 요청인지 잘 모르겠어요. 다시 한번 말씀해주시겠어요?"

// Fallback handles unknown intents. It always succeeds and contributes
// nothing to the request context.
type Fallback struct{}

// NewFallback creates the fallback handler.
func NewFallback() *Fallback { return &Fallback{} }

func (h *Fallback) Name() string { return "fallback" }

func (h *Fallback) ContextKeys() []string { return nil }

func (h *Fallback) Handle(_ context.Context, in intent.Intent) (ActionResult, error) {
	return ActionResult{
		IntentKind: intent.KindUnknown,
		Handler:    h.Name(),
		Status:     StatusOK,
		Fragment:   FallbackReply,
	}, nil
}
