package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maruhq/maru/internal/intent"
)

const defaultListLimit = 10

// NoteWriter handles write_note. When the request chain includes an
// earlier web search, its excerpt is appended to the note body.
type NoteWriter struct {
	notes NotesService
}

// NewNoteWriter creates a write_note handler over the given service.
func NewNoteWriter(notes NotesService) *NoteWriter {
	return &NoteWriter{notes: notes}
}

func (h *NoteWriter) Name() string { return "note_writer" }

func (h *NoteWriter) ContextKeys() []string {
	return []string{PriorKey(intent.KindWebSearch)}
}

func (h *NoteWriter) Handle(ctx context.Context, in intent.Intent) (ActionResult, error) {
	text, _ := in.Arg("text")
	prior, _ := in.Arg(PriorKey(intent.KindWebSearch))

	body := strings.TrimSpace(text)
	if body == "" && prior == "" {
		return ActionResult{}, errors.New("note text is required")
	}
	if prior != "" {
		if body != "" {
			body += "\n\n"
		}
		body += prior
	}

	title, _ := in.Arg("title")
	if strings.TrimSpace(title) == "" {
		title = deriveTitle(body)
	}

	rawTags, _ := in.Arg("tags")
	note, err := h.notes.CreateNote(ctx, Note{
		Title:   title,
		Body:    body,
		Tags:    splitTags(rawTags),
		Created: time.Now(),
	})
	if err != nil {
		return ActionResult{}, fmt.Errorf("create note: %w", err)
	}

	payload := map[string]interface{}{
		"id":    note.ID,
		"title": note.Title,
	}
	if note.URL != "" {
		payload["url"] = note.URL
	}
	return ActionResult{
		IntentKind: intent.KindWriteNote,
		Handler:    h.Name(),
		Status:     StatusOK,
		Payload:    payload,
		Fragment:   fmt.Sprintf("메모를 저장했습니다: %s", note.Title),
		Excerpt:    fmt.Sprintf("메모 저장: %s", note.Title),
	}, nil
}

// NoteLister handles list_notes.
type NoteLister struct {
	notes NotesService
	limit int
}

// NewNoteLister creates a list_notes handler over the given service.
func NewNoteLister(notes NotesService) *NoteLister {
	return &NoteLister{notes: notes, limit: defaultListLimit}
}

func (h *NoteLister) Name() string { return "note_lister" }

func (h *NoteLister) ContextKeys() []string { return nil }

func (h *NoteLister) Handle(ctx context.Context, in intent.Intent) (ActionResult, error) {
	limit := h.limit
	if raw, ok := in.Arg("limit"); ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	notes, err := h.notes.ListNotes(ctx, limit)
	if err != nil {
		return ActionResult{}, fmt.Errorf("list notes: %w", err)
	}

	titles := make([]string, 0, len(notes))
	for _, n := range notes {
		titles = append(titles, n.Title)
	}

	var fragment string
	if len(notes) == 0 {
		fragment = "저장된 메모가 없습니다."
	} else {
		var b strings.Builder
		fmt.Fprintf(&b, "저장된 메모 %d건:", len(notes))
		for _, t := range titles {
			b.WriteString("\n- ")
			b.WriteString(t)
		}
		fragment = b.String()
	}

	return ActionResult{
		IntentKind: intent.KindListNotes,
		Handler:    h.Name(),
		Status:     StatusOK,
		Payload: map[string]interface{}{
			"count": len(notes),
			"notes": titles,
		},
		Fragment: fragment,
		Excerpt:  strings.Join(titles, ", "),
	}, nil
}

// deriveTitle takes the first line of the body, shortened to fit a title
// field.
func deriveTitle(body string) string {
	line := body
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) > 40 {
		return string(runes[:40])
	}
	if line == "" {
		return "메모"
	}
	return line
}

// splitTags accepts either a JSON array of strings or a comma-separated
// list, the two shapes models actually emit.
func splitTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err == nil {
			return tags
		}
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}
