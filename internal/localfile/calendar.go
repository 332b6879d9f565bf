package localfile

import (
	"context"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/maruhq/maru/internal/capability"
)

// calendarFile is the on-disk JSON structure.
type calendarFile struct {
	Events []capability.Event `json:"events"`
}

// CalendarStore keeps events in a single JSON file.
type CalendarStore struct {
	mu   sync.Mutex
	path string
}

// NewCalendarStore creates a store backed by the file at path.
func NewCalendarStore(path string) *CalendarStore {
	return &CalendarStore{path: path}
}

// AddEvent appends the event and persists the file.
func (s *CalendarStore) AddEvent(ctx context.Context, event capability.Event) (capability.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var file calendarFile
	if err := readJSON(s.path, &file); err != nil {
		return capability.Event{}, err
	}

	event.ID = "evt_" + ulid.Make().String()
	file.Events = append(file.Events, event)

	if err := writeJSON(s.path, &file); err != nil {
		return capability.Event{}, err
	}
	return event, nil
}

// ListEvents returns events ordered by date then time, optionally
// bounded by from and to (YYYY-MM-DD, inclusive). ISO dates compare
// correctly as strings.
func (s *CalendarStore) ListEvents(ctx context.Context, from, to string) ([]capability.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var file calendarFile
	if err := readJSON(s.path, &file); err != nil {
		return nil, err
	}

	out := make([]capability.Event, 0, len(file.Events))
	for _, event := range file.Events {
		if from != "" && event.Date < from {
			continue
		}
		if to != "" && event.Date > to {
			continue
		}
		out = append(out, event)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}
