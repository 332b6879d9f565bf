package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maruhq/maru/internal/intent"
)

// CalendarReader handles get_calendar.
type CalendarReader struct {
	calendar CalendarService
}

// NewCalendarReader creates a get_calendar handler over the given service.
func NewCalendarReader(calendar CalendarService) *CalendarReader {
	return &CalendarReader{calendar: calendar}
}

func (h *CalendarReader) Name() string { return "calendar_reader" }

func (h *CalendarReader) ContextKeys() []string { return nil }

func (h *CalendarReader) Handle(ctx context.Context, in intent.Intent) (ActionResult, error) {
	from, _ := in.Arg("from")
	to, _ := in.Arg("to")

	events, err := h.calendar.ListEvents(ctx, from, to)
	if err != nil {
		return ActionResult{}, fmt.Errorf("list events: %w", err)
	}

	lines := make([]string, 0, len(events))
	for _, ev := range events {
		lines = append(lines, formatEventLine(ev))
	}

	var fragment string
	if len(events) == 0 {
		fragment = "등록된 일정이 없습니다."
	} else {
		var b strings.Builder
		fmt.Fprintf(&b, "일정 %d건:", len(events))
		for _, line := range lines {
			b.WriteString("\n- ")
			b.WriteString(line)
		}
		fragment = b.String()
	}

	return ActionResult{
		IntentKind: intent.KindGetCalendar,
		Handler:    h.Name(),
		Status:     StatusOK,
		Payload: map[string]interface{}{
			"count":  len(events),
			"events": events,
		},
		Fragment: fragment,
		Excerpt:  strings.Join(lines, "; "),
	}, nil
}

// CalendarAdder handles add_calendar. A description the parser left empty
// is filled from an earlier web search in the same request.
type CalendarAdder struct {
	calendar CalendarService
}

// NewCalendarAdder creates an add_calendar handler over the given service.
func NewCalendarAdder(calendar CalendarService) *CalendarAdder {
	return &CalendarAdder{calendar: calendar}
}

func (h *CalendarAdder) Name() string { return "calendar_adder" }

func (h *CalendarAdder) ContextKeys() []string {
	return []string{PriorKey(intent.KindWebSearch)}
}

func (h *CalendarAdder) Handle(ctx context.Context, in intent.Intent) (ActionResult, error) {
	title, _ := in.Arg("title")
	if strings.TrimSpace(title) == "" {
		return ActionResult{}, errors.New("event title is required")
	}
	date, _ := in.Arg("date")
	if strings.TrimSpace(date) == "" {
		return ActionResult{}, errors.New("event date is required")
	}

	description, _ := in.Arg("description")
	if description == "" {
		description, _ = in.Arg(PriorKey(intent.KindWebSearch))
	}
	at, _ := in.Arg("time")

	event, err := h.calendar.AddEvent(ctx, Event{
		Title:       title,
		Date:        date,
		Time:        at,
		Description: description,
	})
	if err != nil {
		return ActionResult{}, fmt.Errorf("add event: %w", err)
	}

	payload := map[string]interface{}{
		"id":    event.ID,
		"title": event.Title,
		"date":  event.Date,
	}
	if event.Time != "" {
		payload["time"] = event.Time
	}
	if event.Description != "" {
		payload["description"] = event.Description
	}
	if event.URL != "" {
		payload["url"] = event.URL
	}

	return ActionResult{
		IntentKind: intent.KindAddCalendar,
		Handler:    h.Name(),
		Status:     StatusOK,
		Payload:    payload,
		Fragment:   fmt.Sprintf("일정을 추가했습니다: %s", formatEventLine(event)),
		Excerpt:    fmt.Sprintf("일정 추가: %s (%s)", event.Title, event.Date),
	}, nil
}

func formatEventLine(ev Event) string {
	var b strings.Builder
	b.WriteString(ev.Date)
	if ev.Time != "" {
		b.WriteString(" ")
		b.WriteString(ev.Time)
	}
	b.WriteString(" ")
	b.WriteString(ev.Title)
	return b.String()
}
