package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maruhq/maru/internal/capability"
	"github.com/maruhq/maru/internal/intent"
	"github.com/maruhq/maru/internal/llm"
)

const (
	aggregateSystemPrompt = "당신은 친절한 AI 개인 비서입니다. 사용자에게 간결하고 명확한 한국어로 응답합니다."
	aggregateMaxTokens    = 500
	aggregateTemperature  = 0.7
)

// Aggregator folds an ordered result list into one natural-language
// reply. The primary path asks the chat model to phrase the reply; when
// the model fails, a deterministic template over the handler fragments
// answers instead, so aggregation itself never errors.
type Aggregator struct {
	llm    llm.Client
	model  string
	logger *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorLogger sets the aggregator's logger.
func WithAggregatorLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an aggregator backed by the given chat client
// and model.
func NewAggregator(client llm.Client, model string, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		llm:    client,
		model:  model,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate renders the reply for one request. Results must be in
// execution order; their fragments are the ground truth the reply is
// built from.
func (a *Aggregator) Aggregate(ctx context.Context, text string, results []capability.ActionResult, history []llm.Message) string {
	if len(results) == 0 {
		return capability.FallbackReply
	}

	// A lone fallback result already is the full reply; rephrasing it
	// through the model adds nothing.
	if len(results) == 1 && results[0].IntentKind == intent.KindUnknown && results[0].OK() {
		return results[0].Fragment
	}

	// When nothing succeeded the fragments are already the Korean error
	// messages; the model gets no say over failure wording.
	if allErrored(results) {
		return joinFragments(results)
	}

	reply, err := a.summarize(ctx, text, results, history)
	if err != nil {
		a.logger.Warn("reply summarization failed, using template fallback", "error", err)
		return fmt.Sprintf("작업이 완료되었습니다. 결과: %s", joinFragments(results))
	}
	return reply
}

func (a *Aggregator) summarize(ctx context.Context, text string, results []capability.ActionResult, history []llm.Message) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "사용자의 요청: %q\n\n실행 결과:\n", text)
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] intent: %s, status: %s\n", i+1, r.IntentKind, r.Status)
		if r.Fragment != "" {
			fmt.Fprintf(&b, "%s\n", r.Fragment)
		}
	}
	b.WriteString("\n위 실행 결과를 바탕으로 사용자에게 자연스러운 한국어로 응답을 생성해주세요.\n")
	b.WriteString("- 간결하고 명확하게 작성\n")
	b.WriteString("- 결과의 핵심 정보를 포함\n")
	b.WriteString("- 친근한 톤 사용")

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: b.String()})

	temp := aggregateTemperature
	resp, err := a.llm.Chat(ctx, llm.ChatRequest{
		Model:       a.model,
		System:      aggregateSystemPrompt,
		Messages:    messages,
		MaxTokens:   aggregateMaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("aggregate reply: %w", err)
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", fmt.Errorf("aggregate reply: empty response")
	}
	return reply, nil
}

func allErrored(results []capability.ActionResult) bool {
	for _, r := range results {
		if r.OK() {
			return false
		}
	}
	return true
}

// joinFragments concatenates the non-empty fragments in execution order.
func joinFragments(results []capability.ActionResult) string {
	var parts []string
	for _, r := range results {
		if f := strings.TrimSpace(r.Fragment); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, "\n\n")
}
