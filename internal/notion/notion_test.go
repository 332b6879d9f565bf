package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maruhq/maru/internal/capability"
)

const (
	testBareID       = "0123456789abcdef0123456789abcdef"
	testHyphenatedID = "01234567-89ab-cdef-0123-456789abcdef"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("secret_test", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
}

func TestNormalizeDatabaseID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{testBareID, testHyphenatedID},
		{testHyphenatedID, testHyphenatedID},
		{"short", "short"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeDatabaseID(tt.in); got != tt.want {
			t.Errorf("normalizeDatabaseID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChunkRichText(t *testing.T) {
	content := strings.Repeat("가", 4500)
	parts := chunkRichText(content, 2000)
	if len(parts) != 3 {
		t.Fatalf("got %d chunks, want 3", len(parts))
	}
	sizes := []int{2000, 2000, 500}
	var rebuilt strings.Builder
	for i, part := range parts {
		if got := len([]rune(part.Text.Content)); got != sizes[i] {
			t.Errorf("chunk %d has %d runes, want %d", i, got, sizes[i])
		}
		rebuilt.WriteString(part.Text.Content)
	}
	if rebuilt.String() != content {
		t.Error("chunks do not reassemble into the original content")
	}
}

func TestNotesStoreCreateNote(t *testing.T) {
	var gotPath, gotAuth, gotVersion string
	var gotReq pageRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Notion-Version")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(page{
			ID:          "page-1",
			URL:         "https://notion.so/page-1",
			CreatedTime: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		})
	})

	store := NewNotesStore(client, testBareID)
	note, err := store.CreateNote(context.Background(), capability.Note{
		Title: "회의 정리",
		Body:  "첫 줄 내용\n둘째 줄 내용",
		Tags:  []string{"업무", "회의"},
	})
	if err != nil {
		t.Fatalf("CreateNote returned unexpected error: %v", err)
	}

	if gotPath != "/v1/pages" {
		t.Errorf("path = %q, want /v1/pages", gotPath)
	}
	if gotAuth != "Bearer secret_test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotVersion != apiVersion {
		t.Errorf("version header = %q, want %q", gotVersion, apiVersion)
	}
	if gotReq.Parent.DatabaseID != testHyphenatedID {
		t.Errorf("parent database id = %q, want %q", gotReq.Parent.DatabaseID, testHyphenatedID)
	}

	title := gotReq.Properties["이름"]
	if len(title.Title) != 1 || title.Title[0].Text.Content != "회의 정리" {
		t.Errorf("title property = %+v", title)
	}
	tags := gotReq.Properties["태그"]
	if len(tags.MultiSelect) != 2 || tags.MultiSelect[0].Name != "업무" {
		t.Errorf("tags property = %+v", tags)
	}
	if len(gotReq.Children) != 1 {
		t.Fatalf("got %d children blocks, want 1", len(gotReq.Children))
	}
	para := gotReq.Children[0]
	if para.Type != "paragraph" || para.Paragraph.RichText[0].Text.Content != "첫 줄 내용\n둘째 줄 내용" {
		t.Errorf("children block = %+v", para)
	}

	if note.ID != "page-1" || note.URL != "https://notion.so/page-1" {
		t.Errorf("note = %+v", note)
	}
	if note.Created.IsZero() {
		t.Error("note created time not set from response")
	}
}

func TestNotesStoreCreateNoteDerivesTitle(t *testing.T) {
	var gotReq pageRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(page{ID: "page-2"})
	})

	store := NewNotesStore(client, testBareID)
	note, err := store.CreateNote(context.Background(), capability.Note{
		Body: "장보기 목록\n우유, 달걀",
	})
	if err != nil {
		t.Fatalf("CreateNote returned unexpected error: %v", err)
	}

	if note.Title != "장보기 목록" {
		t.Errorf("derived title = %q, want first line", note.Title)
	}
	title := gotReq.Properties["이름"]
	if title.Title[0].Text.Content != "장보기 목록" {
		t.Errorf("sent title = %q", title.Title[0].Text.Content)
	}
}

func TestNotesStoreCreateNoteChunksLongBody(t *testing.T) {
	var gotReq pageRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(page{ID: "page-3"})
	})

	store := NewNotesStore(client, testBareID)
	_, err := store.CreateNote(context.Background(), capability.Note{
		Title: "긴 메모",
		Body:  strings.Repeat("a", 5000),
	})
	if err != nil {
		t.Fatalf("CreateNote returned unexpected error: %v", err)
	}
	if len(gotReq.Children) != 3 {
		t.Errorf("got %d children blocks, want 3", len(gotReq.Children))
	}
}

func TestNotesStoreListNotes(t *testing.T) {
	var gotPath string
	var gotReq queryRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(queryResponse{
			Results: []page{
				{
					ID:  "page-a",
					URL: "https://notion.so/page-a",
					Properties: map[string]property{
						"이름":  {Type: "title", Title: []richText{{PlainText: "오늘 메모"}}},
						"태그":  {MultiSelect: []selectName{{Name: "일상"}}},
						"생성일": {CreatedTime: "2026-02-03T04:05:06.000Z"},
					},
				},
				{
					ID: "page-b",
					Properties: map[string]property{
						"이름": {Type: "title", Title: []richText{{PlainText: "어제 메모"}}},
					},
				},
			},
		})
	})

	store := NewNotesStore(client, testBareID)
	notes, err := store.ListNotes(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListNotes returned unexpected error: %v", err)
	}

	if want := "/v1/databases/" + testHyphenatedID + "/query"; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if len(gotReq.Sorts) != 1 || gotReq.Sorts[0].Property != "생성일" || gotReq.Sorts[0].Direction != "descending" {
		t.Errorf("sorts = %+v", gotReq.Sorts)
	}
	if gotReq.PageSize != 10 {
		t.Errorf("page_size = %d, want 10", gotReq.PageSize)
	}

	if len(notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(notes))
	}
	if notes[0].Title != "오늘 메모" || notes[0].ID != "page-a" {
		t.Errorf("notes[0] = %+v", notes[0])
	}
	if len(notes[0].Tags) != 1 || notes[0].Tags[0] != "일상" {
		t.Errorf("notes[0].Tags = %v", notes[0].Tags)
	}
	if notes[0].Created.Year() != 2026 {
		t.Errorf("notes[0].Created = %v", notes[0].Created)
	}
	if notes[1].Title != "어제 메모" {
		t.Errorf("notes[1] = %+v", notes[1])
	}
}

func TestCalendarStoreListEventsUnfiltered(t *testing.T) {
	var gotReq queryRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(queryResponse{
			Results: []page{
				{
					ID: "evt-1",
					Properties: map[string]property{
						"이름": {Type: "title", Title: []richText{{PlainText: "팀 회의"}}},
						"날짜": {Type: "date", Date: &dateValue{Start: "2026-03-01T15:00:00.000+09:00"}},
						"설명": {Type: "rich_text", RichText: []richText{{PlainText: "분기 계획 논의"}}},
					},
				},
			},
		})
	})

	store := NewCalendarStore(client, testBareID)
	events, err := store.ListEvents(context.Background(), "", "")
	if err != nil {
		t.Fatalf("ListEvents returned unexpected error: %v", err)
	}

	if gotReq.Filter != nil {
		t.Errorf("unfiltered query sent filter %+v", gotReq.Filter)
	}
	if len(gotReq.Sorts) != 1 || gotReq.Sorts[0].Direction != "ascending" {
		t.Errorf("sorts = %+v", gotReq.Sorts)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	evt := events[0]
	if evt.Title != "팀 회의" || evt.Date != "2026-03-01" || evt.Time != "15:00" {
		t.Errorf("event = %+v", evt)
	}
	if evt.Description != "분기 계획 논의" {
		t.Errorf("description = %q", evt.Description)
	}
}

func TestCalendarStoreListEventsRangeFilter(t *testing.T) {
	var gotReq queryRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(queryResponse{})
	})

	store := NewCalendarStore(client, testBareID)
	if _, err := store.ListEvents(context.Background(), "2026-03-01", "2026-03-31"); err != nil {
		t.Fatalf("ListEvents returned unexpected error: %v", err)
	}

	if gotReq.Filter == nil || len(gotReq.Filter.And) != 2 {
		t.Fatalf("filter = %+v, want two and-conditions", gotReq.Filter)
	}
	if gotReq.Filter.And[0].Date.OnOrAfter != "2026-03-01" {
		t.Errorf("on_or_after = %q", gotReq.Filter.And[0].Date.OnOrAfter)
	}
	if gotReq.Filter.And[1].Date.OnOrBefore != "2026-03-31" {
		t.Errorf("on_or_before = %q", gotReq.Filter.And[1].Date.OnOrBefore)
	}
	if len(gotReq.Sorts) != 0 {
		t.Errorf("filtered query sent sorts %+v", gotReq.Sorts)
	}
}

func TestCalendarStoreAddEvent(t *testing.T) {
	var schemaCalls int
	var gotReq pageRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			schemaCalls++
			json.NewEncoder(w).Encode(database{
				ID: testHyphenatedID,
				Properties: map[string]property{
					"제목": {Type: "title"},
					"날짜": {Type: "date"},
					"설명": {Type: "rich_text"},
				},
			})
			return
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(page{ID: "evt-2", URL: "https://notion.so/evt-2"})
	})

	store := NewCalendarStore(client, testBareID)
	event, err := store.AddEvent(context.Background(), capability.Event{
		Title:       "저녁 약속",
		Date:        "2026-03-05",
		Time:        "19:00",
		Description: "강남역",
	})
	if err != nil {
		t.Fatalf("AddEvent returned unexpected error: %v", err)
	}

	title := gotReq.Properties["제목"]
	if len(title.Title) != 1 || title.Title[0].Text.Content != "저녁 약속" {
		t.Errorf("title property = %+v, want discovered 제목 property", gotReq.Properties)
	}
	date := gotReq.Properties["날짜"]
	if date.Date == nil || date.Date.Start != "2026-03-05T19:00:00+09:00" {
		t.Errorf("date property = %+v", date)
	}
	desc := gotReq.Properties["설명"]
	if len(desc.RichText) != 1 || desc.RichText[0].Text.Content != "강남역" {
		t.Errorf("description property = %+v", desc)
	}
	if event.ID != "evt-2" || event.URL != "https://notion.so/evt-2" {
		t.Errorf("event = %+v", event)
	}

	// The schema is cached after the first call.
	if _, err := store.AddEvent(context.Background(), capability.Event{
		Title: "점심", Date: "2026-03-06",
	}); err != nil {
		t.Fatalf("second AddEvent returned unexpected error: %v", err)
	}
	if schemaCalls != 1 {
		t.Errorf("schema fetched %d times, want 1", schemaCalls)
	}

	// A date without a time stays a bare date.
	if gotReq.Properties["날짜"].Date.Start != "2026-03-06" {
		t.Errorf("dateless start = %q, want bare date", gotReq.Properties["날짜"].Date.Start)
	}
}

func TestClientNotFoundError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(apiError{Code: "object_not_found", Message: "Could not find database"})
	})

	store := NewNotesStore(client, testBareID)
	_, err := store.ListNotes(context.Background(), 5)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "database not found") {
		t.Errorf("error = %v, want database-not-found hint", err)
	}
}

func TestClientAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apiError{Code: "validation_error", Message: "body failed validation"})
	})

	store := NewNotesStore(client, testBareID)
	_, err := store.CreateNote(context.Background(), capability.Note{Title: "x"})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "validation_error") {
		t.Errorf("error = %v, want code in message", err)
	}
}
