package notion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maruhq/maru/internal/capability"
)

// Notes database property names. The database schema is owned by the
// user; these are the names the integration maps onto.
const (
	notesTitleProp   = "이름"
	notesTagsProp    = "태그"
	notesCreatedProp = "생성일"
)

// maxQueryPageSize is Notion's query page size ceiling.
const maxQueryPageSize = 100

// NotesStore implements capability.NotesService against a Notion notes
// database.
type NotesStore struct {
	client     *Client
	databaseID string
}

// NewNotesStore binds the client to a notes database.
func NewNotesStore(client *Client, databaseID string) *NotesStore {
	return &NotesStore{client: client, databaseID: databaseID}
}

// CreateNote adds a page to the notes database. The note body becomes
// paragraph blocks under the page, chunked to the API's rich text limit.
func (s *NotesStore) CreateNote(ctx context.Context, note capability.Note) (capability.Note, error) {
	title := note.Title
	if title == "" {
		title = truncateRunes(firstLine(note.Body), 100)
	}

	props := map[string]property{
		notesTitleProp: {Title: []richText{{Text: &textContent{Content: title}}}},
	}
	if len(note.Tags) > 0 {
		names := make([]selectName, 0, len(note.Tags))
		for _, tag := range note.Tags {
			names = append(names, selectName{Name: tag})
		}
		props[notesTagsProp] = property{MultiSelect: names}
	}

	req := pageRequest{
		Parent:     pageParent{DatabaseID: normalizeDatabaseID(s.databaseID)},
		Properties: props,
	}
	for _, part := range chunkRichText(note.Body, richTextLimit) {
		req.Children = append(req.Children, block{
			Object:    "block",
			Type:      "paragraph",
			Paragraph: &paragraph{RichText: []richText{part}},
		})
	}

	created, err := s.client.createPage(ctx, req)
	if err != nil {
		return capability.Note{}, fmt.Errorf("create notion note: %w", err)
	}

	note.ID = created.ID
	note.Title = title
	note.Created = created.CreatedTime
	note.URL = created.URL
	return note, nil
}

// ListNotes returns the newest notes first, up to limit.
func (s *NotesStore) ListNotes(ctx context.Context, limit int) ([]capability.Note, error) {
	if limit <= 0 || limit > maxQueryPageSize {
		limit = maxQueryPageSize
	}

	resp, err := s.client.queryDatabase(ctx, s.databaseID, queryRequest{
		Sorts:    []querySort{{Property: notesCreatedProp, Direction: "descending"}},
		PageSize: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list notion notes: %w", err)
	}

	notes := make([]capability.Note, 0, len(resp.Results))
	for _, p := range resp.Results {
		note := capability.Note{
			ID:    p.ID,
			Title: titleOf(p.Properties),
			URL:   p.URL,
		}
		if tags, ok := p.Properties[notesTagsProp]; ok {
			for _, name := range tags.MultiSelect {
				note.Tags = append(note.Tags, name.Name)
			}
		}
		note.Created = createdOf(p)
		notes = append(notes, note)
	}
	return notes, nil
}

// createdOf prefers the 생성일 property and falls back to the page's own
// created_time.
func createdOf(p page) time.Time {
	if prop, ok := p.Properties[notesCreatedProp]; ok && prop.CreatedTime != "" {
		if ts, err := time.Parse(time.RFC3339, prop.CreatedTime); err == nil {
			return ts
		}
	}
	return p.CreatedTime
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
