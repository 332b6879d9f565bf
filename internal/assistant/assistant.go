package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maruhq/maru/internal/capability"
	"github.com/maruhq/maru/internal/intent"
	"github.com/maruhq/maru/internal/llm"
	"github.com/maruhq/maru/internal/session"
)

// DefaultHistoryWindow bounds how many recent messages feed the parser
// and aggregator as conversational context.
const DefaultHistoryWindow = 10

// ErrEmptyText marks a request with no usable text.
var ErrEmptyText = errors.New("request text is empty")

// Status is the rollup over one request's actions: ok when every action
// succeeded, error when every action failed, partial otherwise.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// ActionSummary is the per-action view returned to the caller.
type ActionSummary struct {
	Intent  string `json:"intent"`
	Handler string `json:"handler"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// Reply is the assistant's answer to one request.
type Reply struct {
	SessionID string          `json:"session_id"`
	Response  string          `json:"response"`
	Actions   []ActionSummary `json:"actions"`
	Status    Status          `json:"status"`
}

// Assistant is the request entry point.
type Assistant struct {
	store        session.Store
	parser       *intent.Parser
	orchestrator *Orchestrator
	window       int
	logger       *slog.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithHistoryWindow sets how many recent messages are read as context.
func WithHistoryWindow(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.window = n
		}
	}
}

// WithLogger sets the assistant's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// New creates the assistant entry point.
func New(store session.Store, parser *intent.Parser, orchestrator *Orchestrator, opts ...Option) *Assistant {
	a := &Assistant{
		store:        store,
		parser:       parser,
		orchestrator: orchestrator,
		window:       DefaultHistoryWindow,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle processes one request. An empty sessionID creates a fresh
// session whose id rides back on the Reply; a non-empty unknown id is
// session.ErrNotFound, never a silent creation. Parse failures degrade
// to a single unknown intent instead of erroring. Store failures are
// fatal for the request.
func (a *Assistant) Handle(ctx context.Context, text, sessionID string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	sess, err := a.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	recent, err := a.store.Recent(ctx, sess.ID, a.window)
	if err != nil {
		return nil, fmt.Errorf("read history for %s: %w", sess.ID, err)
	}
	history := historyMessages(recent)

	intents := a.parse(ctx, text, history)
	results, response := a.orchestrator.Run(ctx, text, intents, history)

	if err := a.store.TouchAppend(ctx, sess.ID, session.RoleUser, text); err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}
	if err := a.store.TouchAppend(ctx, sess.ID, session.RoleAssistant, response); err != nil {
		return nil, fmt.Errorf("append assistant turn: %w", err)
	}

	return &Reply{
		SessionID: sess.ID,
		Response:  response,
		Actions:   summarizeActions(results),
		Status:    overallStatus(results),
	}, nil
}

func (a *Assistant) resolveSession(ctx context.Context, id string) (*session.Session, error) {
	if strings.TrimSpace(id) == "" {
		sess, err := a.store.Create(ctx)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		a.logger.Info("session created", "session_id", sess.ID)
		return sess, nil
	}
	sess, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve session %s: %w", id, err)
	}
	return sess, nil
}

// parse contains every translator failure: a parser error or empty
// output becomes the single unknown intent carrying the raw text, so
// the caller always gets a reply.
func (a *Assistant) parse(ctx context.Context, text string, history []llm.Message) []intent.Intent {
	res, err := a.parser.Parse(ctx, text, history)
	if err != nil {
		a.logger.Warn("parse failed, using fallback intent", "error", err)
		return intent.Fallback(text)
	}
	if len(res.Intents) == 0 {
		return intent.Fallback(text)
	}
	return res.Intents
}

func historyMessages(msgs []session.Message) []llm.Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Text})
	}
	return out
}

func summarizeActions(results []capability.ActionResult) []ActionSummary {
	out := make([]ActionSummary, 0, len(results))
	for _, r := range results {
		out = append(out, ActionSummary{
			Intent:  string(r.IntentKind),
			Handler: r.Handler,
			Status:  string(r.Status),
			Error:   r.Err,
		})
	}
	return out
}

func overallStatus(results []capability.ActionResult) Status {
	ok := 0
	for _, r := range results {
		if r.OK() {
			ok++
		}
	}
	switch {
	case ok == len(results):
		return StatusOK
	case ok == 0:
		return StatusError
	default:
		return StatusPartial
	}
}
