package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/maruhq/maru/internal/capability"
	"github.com/maruhq/maru/internal/intent"
	"github.com/maruhq/maru/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedHandler returns a canned result and records the arguments it
// was dispatched with.
type scriptedHandler struct {
	name    string
	keys    []string
	result  capability.ActionResult
	err     error
	gotArgs []map[string]string
	log     *[]string
}

func (h *scriptedHandler) Name() string { return h.name }

func (h *scriptedHandler) ContextKeys() []string { return h.keys }

func (h *scriptedHandler) Handle(_ context.Context, in intent.Intent) (capability.ActionResult, error) {
	args := make(map[string]string, len(in.Arguments))
	for k, v := range in.Arguments {
		args[k] = v
	}
	h.gotArgs = append(h.gotArgs, args)
	if h.log != nil {
		*h.log = append(*h.log, h.name)
	}
	if h.err != nil {
		return capability.ActionResult{}, h.err
	}
	return h.result, nil
}

func okResult(kind intent.Kind, handler, fragment, excerpt string) capability.ActionResult {
	return capability.ActionResult{
		IntentKind: kind,
		Handler:    handler,
		Status:     capability.StatusOK,
		Fragment:   fragment,
		Excerpt:    excerpt,
	}
}

func newTestOrchestrator(registry *capability.Registry, agg llm.Client) *Orchestrator {
	aggregator := NewAggregator(agg, "mock-model", WithAggregatorLogger(discardLogger()))
	return NewOrchestrator(registry, aggregator, WithOrchestratorLogger(discardLogger()))
}

func TestOrchestratorRunsInOrder(t *testing.T) {
	var log []string
	registry := capability.NewRegistry(discardLogger())
	registry.Register(intent.KindWriteNote, &scriptedHandler{
		name: "note_writer", log: &log,
		result: okResult(intent.KindWriteNote, "note_writer", "메모를 저장했습니다: 메모", ""),
	})
	registry.Register(intent.KindListNotes, &scriptedHandler{
		name: "note_lister", log: &log,
		result: okResult(intent.KindListNotes, "note_lister", "저장된 메모 1건:", ""),
	})
	registry.Register(intent.KindGetCalendar, &scriptedHandler{
		name: "calendar_reader", log: &log,
		result: okResult(intent.KindGetCalendar, "calendar_reader", "등록된 일정이 없습니다.", ""),
	})

	// Parser emitted them scrambled; Order decides execution.
	intents := []intent.Intent{
		{Kind: intent.KindGetCalendar, Order: 2},
		{Kind: intent.KindWriteNote, Order: 0},
		{Kind: intent.KindListNotes, Order: 1},
	}

	mock := llm.NewMockClient(llm.MockResponse{Content: "정리한 답변입니다.", StopReason: llm.StopEndTurn})
	orch := newTestOrchestrator(registry, mock)

	results, reply := orch.Run(context.Background(), "요청", intents, nil)

	wantLog := []string{"note_writer", "note_lister", "calendar_reader"}
	if len(log) != len(wantLog) {
		t.Fatalf("executed %d handlers, want %d", len(log), len(wantLog))
	}
	for i := range wantLog {
		if log[i] != wantLog[i] {
			t.Fatalf("execution order = %v, want %v", log, wantLog)
		}
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[0].IntentKind != intent.KindWriteNote || results[2].IntentKind != intent.KindGetCalendar {
		t.Fatalf("results out of order: %v, %v", results[0].IntentKind, results[2].IntentKind)
	}
	if reply != "정리한 답변입니다." {
		t.Fatalf("reply = %q", reply)
	}
}

func TestOrchestratorStableTieBreak(t *testing.T) {
	var log []string
	registry := capability.NewRegistry(discardLogger())
	registry.Register(intent.KindWriteNote, &scriptedHandler{
		name: "note_writer", log: &log,
		result: okResult(intent.KindWriteNote, "note_writer", "저장", ""),
	})
	registry.Register(intent.KindWebSearch, &scriptedHandler{
		name: "web_search", log: &log,
		result: okResult(intent.KindWebSearch, "web_search", "검색", ""),
	})

	// Both carry Order 0; emission order must hold.
	intents := []intent.Intent{
		{Kind: intent.KindWebSearch, Order: 0},
		{Kind: intent.KindWriteNote, Order: 0},
	}

	mock := llm.NewMockClient(llm.MockResponse{Content: "답변", StopReason: llm.StopEndTurn})
	orch := newTestOrchestrator(registry, mock)
	orch.Run(context.Background(), "요청", intents, nil)

	if len(log) != 2 || log[0] != "web_search" || log[1] != "note_writer" {
		t.Fatalf("execution order = %v, want [web_search note_writer]", log)
	}
}

func TestOrchestratorThreadsContext(t *testing.T) {
	registry := capability.NewRegistry(discardLogger())
	registry.Register(intent.KindWebSearch, &scriptedHandler{
		name:   "web_search",
		result: okResult(intent.KindWebSearch, "web_search", "전시회 요약입니다.", "전시회 요약입니다."),
	})
	adder := &scriptedHandler{
		name:   "calendar_adder",
		keys:   []string{capability.PriorKey(intent.KindWebSearch)},
		result: okResult(intent.KindAddCalendar, "calendar_adder", "일정을 추가했습니다: 전시회", ""),
	}
	registry.Register(intent.KindAddCalendar, adder)

	intents := []intent.Intent{
		{Kind: intent.KindWebSearch, Arguments: map[string]string{"query": "전시회"}, Order: 0},
		{Kind: intent.KindAddCalendar, Arguments: map[string]string{"title": "전시회", "date": "2026-09-01"}, Order: 1},
	}

	mock := llm.NewMockClient(llm.MockResponse{Content: "답변", StopReason: llm.StopEndTurn})
	orch := newTestOrchestrator(registry, mock)
	orch.Run(context.Background(), "전시회 찾아서 일정 등록해줘", intents, nil)

	if len(adder.gotArgs) != 1 {
		t.Fatalf("calendar handler called %d times, want 1", len(adder.gotArgs))
	}
	got := adder.gotArgs[0][capability.PriorKey(intent.KindWebSearch)]
	if got != "전시회 요약입니다." {
		t.Fatalf("prior_web_search = %q, want the search excerpt", got)
	}
}

func TestOrchestratorErrorContributesNoContext(t *testing.T) {
	registry := capability.NewRegistry(discardLogger())
	registry.Register(intent.KindWebSearch, &scriptedHandler{
		name: "web_search",
		err:  errors.New("search backend down"),
	})
	adder := &scriptedHandler{
		name:   "calendar_adder",
		keys:   []string{capability.PriorKey(intent.KindWebSearch)},
		result: okResult(intent.KindAddCalendar, "calendar_adder", "일정을 추가했습니다: 회의", ""),
	}
	registry.Register(intent.KindAddCalendar, adder)

	intents := []intent.Intent{
		{Kind: intent.KindWebSearch, Arguments: map[string]string{"query": "회의"}, Order: 0},
		{Kind: intent.KindAddCalendar, Arguments: map[string]string{"title": "회의", "date": "2026-09-02"}, Order: 1},
	}

	mock := llm.NewMockClient(llm.MockResponse{Content: "답변", StopReason: llm.StopEndTurn})
	orch := newTestOrchestrator(registry, mock)
	results, _ := orch.Run(context.Background(), "회의 검색하고 일정 잡아줘", intents, nil)

	if results[0].Status != capability.StatusError {
		t.Fatalf("results[0].Status = %q, want error", results[0].Status)
	}
	if results[1].Status != capability.StatusOK {
		t.Fatal("second action should still run after the first failed")
	}
	if _, ok := adder.gotArgs[0][capability.PriorKey(intent.KindWebSearch)]; ok {
		t.Fatal("errored action leaked context to a later handler")
	}
}

func TestOrchestratorParserArgumentsWin(t *testing.T) {
	registry := capability.NewRegistry(discardLogger())
	registry.Register(intent.KindWebSearch, &scriptedHandler{
		name:   "web_search",
		result: okResult(intent.KindWebSearch, "web_search", "검색 결과", "검색 결과"),
	})
	adder := &scriptedHandler{
		name:   "calendar_adder",
		keys:   []string{capability.PriorKey(intent.KindWebSearch)},
		result: okResult(intent.KindAddCalendar, "calendar_adder", "일정 추가", ""),
	}
	registry.Register(intent.KindAddCalendar, adder)

	key := capability.PriorKey(intent.KindWebSearch)
	intents := []intent.Intent{
		{Kind: intent.KindWebSearch, Arguments: map[string]string{"query": "공연"}, Order: 0},
		{Kind: intent.KindAddCalendar, Arguments: map[string]string{
			"title": "공연", "date": "2026-09-03", key: "사용자가 준 설명",
		}, Order: 1},
	}

	mock := llm.NewMockClient(llm.MockResponse{Content: "답변", StopReason: llm.StopEndTurn})
	orch := newTestOrchestrator(registry, mock)
	orch.Run(context.Background(), "요청", intents, nil)

	if got := adder.gotArgs[0][key]; got != "사용자가 준 설명" {
		t.Fatalf("context overwrote a parser-supplied argument: %q", got)
	}
}
