// Package capability implements the action handlers and dispatch registry
// for the assistant. Each handler executes one intent kind against its
// backing service and reports an ActionResult; the registry routes intents
// to handlers and contains their failures.
package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/maruhq/maru/internal/intent"
)

// Status reports whether one action succeeded.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// ActionResult is the outcome of executing one intent. Results are
// immutable once produced; the orchestrator folds them into the reply and
// persists only the rendered text.
type ActionResult struct {
	IntentKind intent.Kind            `json:"intent"`
	Handler    string                 `json:"handler"`
	Status     Status                 `json:"status"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Fragment   string                 `json:"fragment,omitempty"`
	Err        string                 `json:"error,omitempty"`

	// Excerpt is the carry-forward text later actions in the same request
	// may inherit. Not part of the wire shape.
	Excerpt string `json:"-"`
}

// OK reports whether the action succeeded.
func (r ActionResult) OK() bool { return r.Status == StatusOK }

// ErrorResult builds the contained-failure result for a handler error.
func ErrorResult(kind intent.Kind, handler string, err error) ActionResult {
	return ActionResult{
		IntentKind: kind,
		Handler:    handler,
		Status:     StatusError,
		Fragment:   fmt.Sprintf("죄송합니다. 오류가 발생했습니다: %s", err),
		Err:        err.Error(),
	}
}

// Handler executes one intent kind.
type Handler interface {
	// Name identifies the handler in results and logs.
	Name() string
	// ContextKeys lists the reserved context keys this handler reads.
	// The declaration is static per handler kind, not per call.
	ContextKeys() []string
	// Handle executes the intent. Arguments already include any declared
	// context values the dispatcher merged in.
	Handle(ctx context.Context, in intent.Intent) (ActionResult, error)
}

// Note is one saved note.
type Note struct {
	ID      string    `json:"id,omitempty"`
	Title   string    `json:"title"`
	Body    string    `json:"body,omitempty"`
	Tags    []string  `json:"tags,omitempty"`
	Created time.Time `json:"created,omitempty"`
	URL     string    `json:"url,omitempty"`
}

// Event is one calendar entry. Date is YYYY-MM-DD and Time is HH:MM; both
// pass through to the backing service as given.
type Event struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// NotesService stores and lists notes.
type NotesService interface {
	CreateNote(ctx context.Context, note Note) (Note, error)
	ListNotes(ctx context.Context, limit int) ([]Note, error)
}

// CalendarService reads and adds calendar events.
type CalendarService interface {
	ListEvents(ctx context.Context, from, to string) ([]Event, error)
	AddEvent(ctx context.Context, event Event) (Event, error)
}

// Link is one source reference from a search.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SearchResult is a summarized web search.
type SearchResult struct {
	Query   string `json:"query"`
	Summary string `json:"summary"`
	Links   []Link `json:"links,omitempty"`
}

// Searcher runs a web search and summarizes what it finds.
type Searcher interface {
	Search(ctx context.Context, query string) (*SearchResult, error)
}
