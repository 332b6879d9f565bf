package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MARU_LISTEN", "MARU_LOG_LEVEL", "MARU_STORE_DRIVER", "MARU_STORE_DSN",
		"MARU_LLM_MODEL", "NOTION_API_KEY", "MARU_NOTION_NOTES_DB", "MARU_NOTION_CALENDAR_DB",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load returned unexpected error: %v", err)
	}

	if cfg.Listen != ":8080" {
		t.Errorf("expected default listen ':8080', got %q", cfg.Listen)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected default driver 'sqlite', got %q", cfg.Store.Driver)
	}
	if cfg.Session.TTL.Std() != 7*24*time.Hour {
		t.Errorf("expected default TTL 168h, got %v", cfg.Session.TTL.Std())
	}
	if cfg.Session.SweepInterval.Std() != 10*time.Minute {
		t.Errorf("expected default sweep interval 10m, got %v", cfg.Session.SweepInterval.Std())
	}
	if cfg.Session.PageSize != 10 || cfg.Session.MaxPageSize != 50 {
		t.Errorf("expected page sizes 10/50, got %d/%d", cfg.Session.PageSize, cfg.Session.MaxPageSize)
	}
}

func TestLoadParsesFile(t *testing.T) {
	clearEnv(t)

	path := writeConfigFile(t, `
listen: ":9090"
log_level: "debug"
store:
  driver: "memory"
session:
  ttl: "48h"
  sweep_interval: "5m"
  history_window: 4
  page_size: 20
  max_page_size: 40
llm:
  model: "openai/gpt-4o"
  max_tokens: 512
websearch:
  endpoint: "https://search.example/html"
  max_results: 5
  fetch_timeout: "3s"
  max_body_bytes: 2000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned unexpected error: %v", err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("listen = %q, want ':9090'", cfg.Listen)
	}
	if cfg.Session.TTL.Std() != 48*time.Hour {
		t.Errorf("ttl = %v, want 48h", cfg.Session.TTL.Std())
	}
	if cfg.Session.PageSize != 20 {
		t.Errorf("page_size = %d, want 20", cfg.Session.PageSize)
	}
	if cfg.LLM.Model != "openai/gpt-4o" {
		t.Errorf("model = %q, want 'openai/gpt-4o'", cfg.LLM.Model)
	}
	if cfg.WebSearch.FetchTimeout.Std() != 3*time.Second {
		t.Errorf("fetch_timeout = %v, want 3s", cfg.WebSearch.FetchTimeout.Std())
	}
	// Unspecified sections keep defaults
	if cfg.Tools.NotesBackend != "local" {
		t.Errorf("notes_backend = %q, want default 'local'", cfg.Tools.NotesBackend)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("MARU_LISTEN", ":7000")
	t.Setenv("MARU_STORE_DRIVER", "memory")
	t.Setenv("MARU_LLM_MODEL", "ollama/llama3")
	t.Setenv("NOTION_API_KEY", "ntn_env_key")

	path := writeConfigFile(t, `
listen: ":9090"
store:
  driver: "sqlite"
  dsn: "x.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned unexpected error: %v", err)
	}

	if cfg.Listen != ":7000" {
		t.Errorf("env should win: listen = %q, want ':7000'", cfg.Listen)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("env should win: driver = %q, want 'memory'", cfg.Store.Driver)
	}
	if cfg.LLM.Model != "ollama/llama3" {
		t.Errorf("env should win: model = %q, want 'ollama/llama3'", cfg.LLM.Model)
	}
	if cfg.Notion.APIKey != "ntn_env_key" {
		t.Errorf("notion key = %q, want env value", cfg.Notion.APIKey)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
session:
  ttl: "one week"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("expected 'invalid duration' in error, got %q", err.Error())
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "cassandra"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver, got nil")
	}
	if !strings.Contains(err.Error(), "unknown store driver") {
		t.Errorf("expected driver error, got %q", err.Error())
	}
}

func TestValidateRejectsPageSizeAboveMax(t *testing.T) {
	cfg := Default()
	cfg.Session.PageSize = 100
	cfg.Session.MaxPageSize = 50

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for page_size > max_page_size, got nil")
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Tools.NotesBackend = "gdocs"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown notes backend, got nil")
	}
	if !strings.Contains(err.Error(), "notes_backend") {
		t.Errorf("expected backend error, got %q", err.Error())
	}
}

func TestValidateNotionBackendRequiresDatabase(t *testing.T) {
	cfg := Default()
	cfg.Tools.NotesBackend = "notion"
	cfg.Notion.NotesDatabaseID = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when notion backend has no database id, got nil")
	}

	cfg.Notion.NotesDatabaseID = "db123"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config with database id, got: %v", err)
	}
}

func TestValidateMemoryDriverNeedsNoDSN(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "memory"
	cfg.Store.DSN = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory driver should not require dsn, got: %v", err)
	}
}
