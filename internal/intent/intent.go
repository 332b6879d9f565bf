// Package intent defines the structured action unit produced by parsing a
// natural-language request, and the LLM-backed parser that produces it.
package intent

import (
	"strings"
)

// Kind is the closed set of action types the assistant executes.
type Kind string

const (
	KindWriteNote   Kind = "write_note"
	KindListNotes   Kind = "list_notes"
	KindGetCalendar Kind = "get_calendar"
	KindAddCalendar Kind = "add_calendar"
	KindWebSearch   Kind = "web_search"
	KindUnknown     Kind = "unknown"
)

// kindAliases maps tags older prompt revisions or models emit onto the
// closed set.
var kindAliases = map[string]Kind{
	"write_note":    KindWriteNote,
	"note_write":    KindWriteNote,
	"create_note":   KindWriteNote,
	"list_notes":    KindListNotes,
	"note_list":     KindListNotes,
	"get_calendar":  KindGetCalendar,
	"calendar_list": KindGetCalendar,
	"list_events":   KindGetCalendar,
	"add_calendar":  KindAddCalendar,
	"calendar_add":  KindAddCalendar,
	"add_event":     KindAddCalendar,
	"web_search":    KindWebSearch,
	"search":        KindWebSearch,
	"unknown":       KindUnknown,
}

// ParseKind normalizes a raw intent tag onto the closed Kind set.
// Unrecognized tags map to KindUnknown so every parsed action stays
// executable.
func ParseKind(raw string) Kind {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return k
	}
	return KindUnknown
}

// Kinds returns every kind in the closed set.
func Kinds() []Kind {
	return []Kind{
		KindWriteNote, KindListNotes, KindGetCalendar,
		KindAddCalendar, KindWebSearch, KindUnknown,
	}
}

// Intent is one structured, typed action derived from a request.
type Intent struct {
	// Kind tags which capability executes this action.
	Kind Kind `json:"kind"`
	// Arguments carries parser-extracted argument values by name.
	Arguments map[string]string `json:"arguments,omitempty"`
	// Order is the 0-based position in the request's action sequence.
	Order int `json:"order"`
}

// Arg returns the named argument and whether it was set.
func (in Intent) Arg(name string) (string, bool) {
	v, ok := in.Arguments[name]
	return v, ok
}

// Fallback builds the single unknown intent used when parsing failed or
// produced nothing. The raw request text rides along so the fallback
// handler can echo context back to the user.
func Fallback(text string) []Intent {
	return []Intent{{
		Kind:      KindUnknown,
		Arguments: map[string]string{"text": text},
		Order:     0,
	}}
}
