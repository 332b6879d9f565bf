package mcpkit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/maruhq/maru/internal/capability"
)

// Tool names the backing server must expose.
const (
	toolWriteNote  = "write_note"
	toolListNotes  = "list_notes"
	toolListEvents = "list_events"
	toolAddEvent   = "add_event"
)

// ToolCaller is the slice of Client the service adapters need.
// Implemented by *Client; tests substitute scripted fakes.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// envelope is the result wrapper every tool returns in its text content.
type envelope struct {
	Status  string          `json:"status"`
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
}

func callTool(ctx context.Context, tools ToolCaller, name string, args map[string]interface{}, out interface{}) error {
	text, err := tools.CallTool(ctx, name, args)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return fmt.Errorf("tool %s: unexpected response %q: %w", name, text, err)
	}
	if env.Status != "ok" {
		return fmt.Errorf("tool %s: %s", name, env.Message)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("tool %s: decode result: %w", name, err)
		}
	}
	return nil
}

// noteRecord is the note shape tools exchange.
type noteRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	URL       string `json:"url"`
}

func (r noteRecord) toNote() capability.Note {
	note := capability.Note{
		ID:    r.ID,
		Title: r.Title,
		Body:  r.Content,
		URL:   r.URL,
	}
	if ts, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		note.Created = ts
	}
	return note
}

// NotesClient implements capability.NotesService over an MCP server.
type NotesClient struct {
	tools ToolCaller
}

// NewNotesClient wraps a tool caller as a notes service.
func NewNotesClient(tools ToolCaller) *NotesClient {
	return &NotesClient{tools: tools}
}

// CreateNote calls the write_note tool.
func (c *NotesClient) CreateNote(ctx context.Context, note capability.Note) (capability.Note, error) {
	args := map[string]interface{}{"text": note.Body}
	if note.Title != "" {
		args["title"] = note.Title
	}

	var record noteRecord
	if err := callTool(ctx, c.tools, toolWriteNote, args, &record); err != nil {
		return capability.Note{}, fmt.Errorf("mcp create note: %w", err)
	}
	return record.toNote(), nil
}

// ListNotes calls the list_notes tool. The limit is applied here; the
// tool contract has no pagination.
func (c *NotesClient) ListNotes(ctx context.Context, limit int) ([]capability.Note, error) {
	var records []noteRecord
	if err := callTool(ctx, c.tools, toolListNotes, map[string]interface{}{}, &records); err != nil {
		return nil, fmt.Errorf("mcp list notes: %w", err)
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	notes := make([]capability.Note, 0, len(records))
	for _, record := range records {
		notes = append(notes, record.toNote())
	}
	return notes, nil
}

// eventRecord is the event shape tools exchange.
type eventRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

func (r eventRecord) toEvent() capability.Event {
	return capability.Event{
		ID:          r.ID,
		Title:       r.Title,
		Date:        r.Date,
		Time:        r.Time,
		Description: r.Description,
		URL:         r.URL,
	}
}

// CalendarClient implements capability.CalendarService over an MCP
// server.
type CalendarClient struct {
	tools ToolCaller
}

// NewCalendarClient wraps a tool caller as a calendar service.
func NewCalendarClient(tools ToolCaller) *CalendarClient {
	return &CalendarClient{tools: tools}
}

// ListEvents calls the list_events tool.
func (c *CalendarClient) ListEvents(ctx context.Context, from, to string) ([]capability.Event, error) {
	args := map[string]interface{}{}
	if from != "" {
		args["range_start"] = from
	}
	if to != "" {
		args["range_end"] = to
	}

	var records []eventRecord
	if err := callTool(ctx, c.tools, toolListEvents, args, &records); err != nil {
		return nil, fmt.Errorf("mcp list events: %w", err)
	}

	events := make([]capability.Event, 0, len(records))
	for _, record := range records {
		events = append(events, record.toEvent())
	}
	return events, nil
}

// AddEvent calls the add_event tool.
func (c *CalendarClient) AddEvent(ctx context.Context, event capability.Event) (capability.Event, error) {
	args := map[string]interface{}{
		"title": event.Title,
		"date":  event.Date,
	}
	if event.Time != "" {
		args["time"] = event.Time
	}
	if event.Description != "" {
		args["description"] = event.Description
	}

	var record eventRecord
	if err := callTool(ctx, c.tools, toolAddEvent, args, &record); err != nil {
		return capability.Event{}, fmt.Errorf("mcp add event: %w", err)
	}
	return record.toEvent(), nil
}
