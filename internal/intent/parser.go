package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/maruhq/maru/internal/llm"
)

// ErrNoIntents indicates the model replied but produced zero usable actions.
var ErrNoIntents = errors.New("parser produced no actions")

// Parser turns free-form request text into an ordered Intent sequence by
// asking a chat model to decompose it. Any failure (transport, malformed
// output, empty output) is returned as an error; callers degrade to
// Fallback rather than surfacing it.
type Parser struct {
	client      llm.Client
	prompt      *Prompt
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithPrompt overrides the built-in prompt template.
func WithPrompt(p *Prompt) ParserOption {
	return func(ps *Parser) { ps.prompt = p }
}

// WithMaxTokens sets the completion budget for one parse call.
func WithMaxTokens(n int) ParserOption {
	return func(ps *Parser) { ps.maxTokens = n }
}

// WithLogger sets the parser logger.
func WithLogger(l *slog.Logger) ParserOption {
	return func(ps *Parser) { ps.logger = l }
}

// NewParser creates a parser over the given model.
func NewParser(client llm.Client, model string, opts ...ParserOption) *Parser {
	p := &Parser{
		client:      client,
		prompt:      DefaultPrompt(),
		model:       model,
		maxTokens:   1024,
		temperature: 0,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result carries the parsed actions plus the model usage for the call.
type Result struct {
	Intents []Intent
	Usage   llm.TokenUsage
}

// Parse decomposes text into an ordered intent sequence. The history
// window gives the model conversational context; it is read-only here.
func (p *Parser) Parse(ctx context.Context, text string, history []llm.Message) (*Result, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	temp := p.temperature
	resp, err := p.client.Chat(ctx, llm.ChatRequest{
		Model:       p.model,
		System:      p.prompt.Text(),
		Messages:    messages,
		MaxTokens:   p.maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}

	intents, err := decodeActions(resp.Content)
	if err != nil {
		p.logger.Warn("parser output unusable", "error", err, "output_len", len(resp.Content))
		return nil, err
	}

	return &Result{Intents: intents, Usage: resp.Usage}, nil
}

// rawAction mirrors one element of the model's JSON output.
type rawAction struct {
	Intent string                 `json:"intent"`
	Params map[string]interface{} `json:"params"`
}

type actionEnvelope struct {
	Actions []rawAction `json:"actions"`
}

// decodeActions extracts the action list from model output. Accepts the
// documented envelope form, a bare array, and output wrapped in markdown
// fences.
func decodeActions(content string) ([]Intent, error) {
	payload := extractJSON(content)
	if payload == "" {
		return nil, fmt.Errorf("no JSON found in parser output")
	}

	var actions []rawAction
	if strings.HasPrefix(payload, "{") {
		var env actionEnvelope
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			return nil, fmt.Errorf("decode parser output: %w", err)
		}
		actions = env.Actions
	} else {
		if err := json.Unmarshal([]byte(payload), &actions); err != nil {
			return nil, fmt.Errorf("decode parser output: %w", err)
		}
	}

	if len(actions) == 0 {
		return nil, ErrNoIntents
	}

	intents := make([]Intent, 0, len(actions))
	for i, a := range actions {
		intents = append(intents, Intent{
			Kind:      ParseKind(a.Intent),
			Arguments: stringifyParams(a.Params),
			Order:     i,
		})
	}
	return intents, nil
}

// extractJSON locates the JSON payload inside model output, stripping
// markdown fences and any surrounding prose.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)

	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}

	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")

	start := objStart
	closer := byte('}')
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		start = arrStart
		closer = ']'
	}
	if start < 0 {
		return ""
	}

	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

// stringifyParams flattens model-emitted param values to strings. Scalars
// convert directly; composite values keep their JSON encoding.
func stringifyParams(params map[string]interface{}) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(encoded)
		}
	}
	return out
}
