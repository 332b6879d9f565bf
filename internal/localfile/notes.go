package localfile

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/maruhq/maru/internal/capability"
)

// notesFile is the on-disk JSON structure.
type notesFile struct {
	Notes []capability.Note `json:"notes"`
}

// NotesStore keeps notes in a single JSON file.
type NotesStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewNotesStore creates a store backed by the file at path. The file is
// created on first write.
func NewNotesStore(path string) *NotesStore {
	return &NotesStore{path: path, now: time.Now}
}

// CreateNote appends the note and persists the file.
func (s *NotesStore) CreateNote(ctx context.Context, note capability.Note) (capability.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var file notesFile
	if err := readJSON(s.path, &file); err != nil {
		return capability.Note{}, err
	}

	note.ID = "note_" + ulid.Make().String()
	if note.Created.IsZero() {
		note.Created = s.now().UTC()
	}
	file.Notes = append(file.Notes, note)

	if err := writeJSON(s.path, &file); err != nil {
		return capability.Note{}, err
	}
	return note, nil
}

// ListNotes returns the newest notes first, up to limit.
func (s *NotesStore) ListNotes(ctx context.Context, limit int) ([]capability.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var file notesFile
	if err := readJSON(s.path, &file); err != nil {
		return nil, err
	}

	notes := file.Notes
	// Appended in creation order, so newest-first is a reversal.
	out := make([]capability.Note, 0, len(notes))
	for i := len(notes) - 1; i >= 0; i-- {
		out = append(out, notes[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
