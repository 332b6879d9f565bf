package notion

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/maruhq/maru/internal/capability"
)

const calendarDateProp = "날짜"

// calendarSchema holds the property names discovered from the calendar
// database. Users name their own columns, so the title and description
// properties are located by type rather than assumed.
type calendarSchema struct {
	title       string
	date        string
	description string
}

// CalendarStore implements capability.CalendarService against a Notion
// calendar database.
type CalendarStore struct {
	client     *Client
	databaseID string

	mu     sync.Mutex
	schema *calendarSchema
}

// NewCalendarStore binds the client to a calendar database.
func NewCalendarStore(client *Client, databaseID string) *CalendarStore {
	return &CalendarStore{client: client, databaseID: databaseID}
}

// ListEvents returns events, optionally bounded by from and to
// (YYYY-MM-DD, inclusive).
func (s *CalendarStore) ListEvents(ctx context.Context, from, to string) ([]capability.Event, error) {
	var conditions []queryFilter
	if from != "" {
		conditions = append(conditions, queryFilter{
			Property: calendarDateProp,
			Date:     &dateCondition{OnOrAfter: from},
		})
	}
	if to != "" {
		conditions = append(conditions, queryFilter{
			Property: calendarDateProp,
			Date:     &dateCondition{OnOrBefore: to},
		})
	}

	req := queryRequest{PageSize: maxQueryPageSize}
	switch len(conditions) {
	case 0:
		// Notion rejects sorts combined with some filters, so sorting is
		// only requested on the unfiltered query.
		req.Sorts = []querySort{{Property: calendarDateProp, Direction: "ascending"}}
	case 1:
		req.Filter = &conditions[0]
	default:
		req.Filter = &queryFilter{And: conditions}
	}

	resp, err := s.client.queryDatabase(ctx, s.databaseID, req)
	if err != nil {
		return nil, fmt.Errorf("list notion events: %w", err)
	}

	events := make([]capability.Event, 0, len(resp.Results))
	for _, p := range resp.Results {
		event := capability.Event{
			ID:    p.ID,
			Title: titleOf(p.Properties),
			URL:   p.URL,
		}
		if prop, ok := p.Properties[calendarDateProp]; ok && prop.Date != nil {
			event.Date, event.Time = splitNotionDate(prop.Date.Start)
		}
		event.Description = descriptionOf(p.Properties)
		events = append(events, event)
	}
	return events, nil
}

// AddEvent creates an event page. Property names come from the database
// schema, discovered once and cached.
func (s *CalendarStore) AddEvent(ctx context.Context, event capability.Event) (capability.Event, error) {
	schema, err := s.resolveSchema(ctx)
	if err != nil {
		return capability.Event{}, fmt.Errorf("add notion event: %w", err)
	}

	start := event.Date
	if event.Time != "" {
		// The +09:00 offset keeps Korean wall-clock times from shifting
		// when Notion normalizes to UTC.
		start = fmt.Sprintf("%sT%s:00+09:00", event.Date, event.Time)
	}

	props := map[string]property{
		schema.title: {Title: []richText{{Text: &textContent{Content: event.Title}}}},
		schema.date:  {Date: &dateValue{Start: start}},
	}
	if event.Description != "" && schema.description != "" {
		props[schema.description] = property{
			RichText: []richText{{Text: &textContent{Content: truncateRunes(event.Description, richTextLimit)}}},
		}
	}

	created, err := s.client.createPage(ctx, pageRequest{
		Parent:     pageParent{DatabaseID: normalizeDatabaseID(s.databaseID)},
		Properties: props,
	})
	if err != nil {
		return capability.Event{}, fmt.Errorf("add notion event: %w", err)
	}

	event.ID = created.ID
	event.URL = created.URL
	return event, nil
}

func (s *CalendarStore) resolveSchema(ctx context.Context) (*calendarSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema != nil {
		return s.schema, nil
	}

	db, err := s.client.getDatabase(ctx, s.databaseID)
	if err != nil {
		return nil, err
	}

	schema := &calendarSchema{date: calendarDateProp}
	for name, prop := range db.Properties {
		switch prop.Type {
		case "title":
			schema.title = name
		case "date":
			if name == calendarDateProp || name == "Date" {
				schema.date = name
			}
		case "rich_text":
			if name == "설명" || name == "Description" || name == "내용" {
				schema.description = name
			}
		}
	}
	if schema.title == "" {
		return nil, fmt.Errorf("calendar database has no title property")
	}

	s.schema = schema
	return schema, nil
}

// descriptionOf reads the event description, preferring the 설명 rich
// text property and falling back to joined 태그 values for databases
// still using the tag column for free text.
func descriptionOf(props map[string]property) string {
	for _, name := range []string{"설명", "Description", "내용"} {
		if p, ok := props[name]; ok && len(p.RichText) > 0 {
			return plainText(p.RichText)
		}
	}
	if p, ok := props["태그"]; ok && len(p.MultiSelect) > 0 {
		names := make([]string, 0, len(p.MultiSelect))
		for _, sel := range p.MultiSelect {
			names = append(names, sel.Name)
		}
		return strings.Join(names, ", ")
	}
	return ""
}

// splitNotionDate separates an ISO date or datetime into the date and
// HH:MM parts.
func splitNotionDate(start string) (date, clock string) {
	date, rest, found := strings.Cut(start, "T")
	if !found {
		return start, ""
	}
	if len(rest) >= 5 {
		clock = rest[:5]
	}
	return date, clock
}
