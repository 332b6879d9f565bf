package capability

import (
	"testing"

	"github.com/maruhq/maru/internal/intent"
)

func TestContextWithDoesNotMutateReceiver(t *testing.T) {
	base := NewContext()
	withSearch := base.With(intent.KindWebSearch, "검색 요약")

	if base.Len() != 0 {
		t.Errorf("base context mutated, len = %d", base.Len())
	}
	if got, ok := withSearch.Excerpt(intent.KindWebSearch); !ok || got != "검색 요약" {
		t.Errorf("Excerpt = %q, %v", got, ok)
	}

	// A second With on the first derived value leaves it unchanged too.
	withBoth := withSearch.With(intent.KindWriteNote, "메모 저장: x")
	if withSearch.Len() != 1 {
		t.Errorf("derived context mutated, len = %d", withSearch.Len())
	}
	if withBoth.Len() != 2 {
		t.Errorf("len = %d, want 2", withBoth.Len())
	}
}

func TestContextWithEmptyExcerptIsNoop(t *testing.T) {
	c := NewContext().With(intent.KindWebSearch, "")
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}
	if _, ok := c.Excerpt(intent.KindWebSearch); ok {
		t.Error("empty excerpt should not be stored")
	}
}

func TestContextGet(t *testing.T) {
	c := NewContext().With(intent.KindWebSearch, "요약")
	if got, ok := c.Get("prior_web_search"); !ok || got != "요약" {
		t.Errorf("Get(prior_web_search) = %q, %v", got, ok)
	}
	if _, ok := c.Get("prior_write_note"); ok {
		t.Error("absent key should not be found")
	}
}

func TestPriorKey(t *testing.T) {
	if got := PriorKey(intent.KindWebSearch); got != "prior_web_search" {
		t.Errorf("PriorKey = %q, want prior_web_search", got)
	}
}

func TestMergeArgsFillsDeclaredKey(t *testing.T) {
	exec := NewContext().With(intent.KindWebSearch, "검색 요약")
	in := intent.Intent{
		Kind:      intent.KindAddCalendar,
		Arguments: map[string]string{"title": "회의", "date": "2026-09-01"},
	}

	merged := MergeArgs(in, []string{PriorKey(intent.KindWebSearch)}, exec)
	if got, _ := merged.Arg(PriorKey(intent.KindWebSearch)); got != "검색 요약" {
		t.Errorf("merged prior = %q, want excerpt", got)
	}
	if got, _ := merged.Arg("title"); got != "회의" {
		t.Errorf("title = %q, existing args must survive", got)
	}

	// The input intent's argument map is untouched.
	if _, ok := in.Arguments[PriorKey(intent.KindWebSearch)]; ok {
		t.Error("MergeArgs mutated the input intent")
	}
}

func TestMergeArgsParserValueWins(t *testing.T) {
	exec := NewContext().With(intent.KindWebSearch, "검색 요약")
	in := intent.Intent{
		Kind:      intent.KindWriteNote,
		Arguments: map[string]string{PriorKey(intent.KindWebSearch): "파서가 준 값"},
	}

	merged := MergeArgs(in, []string{PriorKey(intent.KindWebSearch)}, exec)
	if got, _ := merged.Arg(PriorKey(intent.KindWebSearch)); got != "파서가 준 값" {
		t.Errorf("merged = %q, parser-supplied value must win", got)
	}
}

func TestMergeArgsOnlyDeclaredKeys(t *testing.T) {
	exec := NewContext().
		With(intent.KindWebSearch, "검색 요약").
		With(intent.KindWriteNote, "메모 저장: x")
	in := intent.Intent{Kind: intent.KindAddCalendar}

	merged := MergeArgs(in, []string{PriorKey(intent.KindWebSearch)}, exec)
	if _, ok := merged.Arg(PriorKey(intent.KindWriteNote)); ok {
		t.Error("undeclared key was merged")
	}
	if _, ok := merged.Arg(PriorKey(intent.KindWebSearch)); !ok {
		t.Error("declared key missing")
	}
}

func TestMergeArgsEmptyContextReturnsInputUnchanged(t *testing.T) {
	in := intent.Intent{
		Kind:      intent.KindWriteNote,
		Arguments: map[string]string{"text": "hello"},
	}
	merged := MergeArgs(in, []string{PriorKey(intent.KindWebSearch)}, NewContext())
	if len(merged.Arguments) != 1 {
		t.Errorf("arguments = %v, want unchanged", merged.Arguments)
	}
}
