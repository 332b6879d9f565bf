package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Info("request handled", "session_id", "sess_abc")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v (%s)", err, buf.String())
	}
	if record["msg"] != "request handled" {
		t.Errorf("expected msg='request handled', got %v", record["msg"])
	}
	if record["session_id"] != "sess_abc" {
		t.Errorf("expected session_id attr, got %v", record["session_id"])
	}
}

func TestNewLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("info log emitted despite warn level: %s", buf.String())
	}

	logger.Warn("should appear")
	if buf.Len() == 0 {
		t.Error("warn log not emitted")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// --- Correlation ID Tests ---

func TestNewCorrelationIDFormat(t *testing.T) {
	id := NewCorrelationID()
	// ULIDs are 26 characters of Crockford base32.
	if len(id) != 26 {
		t.Errorf("expected 26-char ULID, got %d chars: %q", len(id), id)
	}
	if id != strings.ToUpper(id) {
		t.Errorf("expected uppercase ULID, got %q", id)
	}
}

func TestNewCorrelationIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewCorrelationID()
		if seen[id] {
			t.Fatalf("duplicate correlation id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestWithCorrelationIDRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "explicit-id")
	if got := CorrelationID(ctx); got != "explicit-id" {
		t.Errorf("expected 'explicit-id', got %q", got)
	}
}

func TestWithCorrelationIDGeneratesWhenEmpty(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "")
	id := CorrelationID(ctx)
	if id == "" {
		t.Fatal("expected generated correlation id, got empty")
	}
	if len(id) != 26 {
		t.Errorf("expected ULID-format id, got %q", id)
	}
}

func TestCorrelationIDMissingReturnsEmpty(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("expected empty id for bare context, got %q", got)
	}
}

func TestRequestLoggerIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, slog.LevelInfo)
	ctx := WithCorrelationID(context.Background(), "corr-1")

	RequestLogger(base, ctx, "sess_xyz").Info("hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if record["session_id"] != "sess_xyz" {
		t.Errorf("expected session_id='sess_xyz', got %v", record["session_id"])
	}
	if record["correlation_id"] != "corr-1" {
		t.Errorf("expected correlation_id='corr-1', got %v", record["correlation_id"])
	}
}

// --- RedactHandler Tests ---

func TestRedactHandler_AddSecretThenRedactString(t *testing.T) {
	h := NewRedactHandler(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h.AddSecret("super-secret-token")

	got := h.RedactString("the token is super-secret-token here")
	want := "the token is ***REDACTED*** here"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRedactHandler_Handle_MessageRedacted(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		// Remove timestamp for deterministic output
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})

	h := NewRedactHandler(inner)
	h.AddSecret("my-api-key")

	logger := slog.New(h)
	logger.Info("connecting with my-api-key")

	output := buf.String()
	if strings.Contains(output, "my-api-key") {
		t.Errorf("secret was not redacted from message: %s", output)
	}
	if !strings.Contains(output, "***REDACTED***") {
		t.Errorf("expected ***REDACTED*** in output: %s", output)
	}
}

func TestRedactHandler_Handle_AttrValueRedacted(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, nil)

	h := NewRedactHandler(inner)
	h.AddSecret("ntn_secret_12345")

	logger := slog.New(h)
	logger.Info("notion request", "token", "ntn_secret_12345")

	output := buf.String()
	if strings.Contains(output, "ntn_secret_12345") {
		t.Errorf("secret was not redacted from attr value: %s", output)
	}
}

func TestRedactHandler_WithAttrs_SharesSecrets(t *testing.T) {
	h := NewRedactHandler(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h.AddSecret("shared-secret")

	child, ok := h.WithAttrs([]slog.Attr{slog.String("component", "server")}).(*RedactHandler)
	if !ok {
		t.Fatal("WithAttrs did not return *RedactHandler")
	}

	// Adding a secret to the parent should be visible to the child
	h.AddSecret("another-secret")
	got := child.RedactString("another-secret visible?")
	if strings.Contains(got, "another-secret") {
		t.Errorf("secret added to parent not visible in child: %q", got)
	}
}

func TestRedactHandler_ThreadSafety(t *testing.T) {
	h := NewRedactHandler(slog.NewTextHandler(&bytes.Buffer{}, nil))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				h.AddSecret("secret-" + string(rune('A'+n%26)))
			} else {
				_ = h.RedactString("test string with secret-A content")
			}
		}(i)
	}
	wg.Wait()
}

// --- Metrics Tests ---

func TestMetricsScrape(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("ok", 120*time.Millisecond)
	m.RecordRequest("partial", 80*time.Millisecond)
	m.RecordAction("write_note", "ok")
	m.RecordAction("web_search", "error")
	m.RecordParseFailure()
	m.RecordSweep(3)
	m.RecordTokens(100, 40)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`maru_requests_total{status="ok"} 1`,
		`maru_requests_total{status="partial"} 1`,
		`maru_actions_total{intent="write_note",status="ok"} 1`,
		`maru_actions_total{intent="web_search",status="error"} 1`,
		`maru_parse_failures_total 1`,
		`maru_sessions_swept_total 3`,
		`maru_llm_tokens_total{type="input"} 100`,
		`maru_llm_tokens_total{type="output"} 40`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q\n%s", want, body)
		}
	}
}

func TestMetricsIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.RecordRequest("ok", time.Millisecond)

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if strings.Contains(rec.Body.String(), `maru_requests_total{status="ok"} 1`) {
		t.Error("second registry observed counts from the first")
	}
}
