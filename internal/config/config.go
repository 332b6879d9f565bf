// Package config loads the service configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "10m" or "168h" parse.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full service configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	LogLevel  string          `yaml:"log_level"`
	Store     StoreConfig     `yaml:"store"`
	Session   SessionConfig   `yaml:"session"`
	LLM       LLMConfig       `yaml:"llm"`
	Parser    ParserConfig    `yaml:"parser"`
	Tools     ToolsConfig     `yaml:"tools"`
	Notion    NotionConfig    `yaml:"notion"`
	MCP       MCPConfig       `yaml:"mcp"`
	WebSearch WebSearchConfig `yaml:"websearch"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// StoreConfig selects the session persistence backend.
type StoreConfig struct {
	// Driver is one of "sqlite", "postgres", or "memory".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `yaml:"dsn"`
}

// SessionConfig controls session lifecycle behavior.
type SessionConfig struct {
	TTL           Duration `yaml:"ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
	HistoryWindow int      `yaml:"history_window"`
	PageSize      int      `yaml:"page_size"`
	MaxPageSize   int      `yaml:"max_page_size"`
}

// LLMConfig selects the model used for parsing and summarization.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// ParserConfig controls the intent parser prompt.
type ParserConfig struct {
	// PromptPath optionally overrides the built-in prompt template.
	PromptPath string `yaml:"prompt_path"`
	// WatchPrompt reloads the template when the file changes.
	WatchPrompt bool `yaml:"watch_prompt"`
}

// ToolsConfig selects the backend per capability.
type ToolsConfig struct {
	// NotesBackend and CalendarBackend are one of "notion", "local", or "mcp".
	NotesBackend    string `yaml:"notes_backend"`
	CalendarBackend string `yaml:"calendar_backend"`
	// DataDir holds the JSON files used by the local backend.
	DataDir string `yaml:"data_dir"`
}

// NotionConfig holds Notion database bindings. The API key comes from the
// NOTION_API_KEY environment variable, never from the file.
type NotionConfig struct {
	APIKey             string `yaml:"-"`
	NotesDatabaseID    string `yaml:"notes_database_id"`
	CalendarDatabaseID string `yaml:"calendar_database_id"`
}

// MCPServerConfig describes one MCP server launched over stdio.
type MCPServerConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// MCPConfig lists configured MCP servers.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// WebSearchConfig controls the web search capability.
type WebSearchConfig struct {
	Endpoint     string   `yaml:"endpoint"`
	MaxResults   int      `yaml:"max_results"`
	FetchTimeout Duration `yaml:"fetch_timeout"`
	MaxBodyBytes int      `yaml:"max_body_bytes"`
}

// RateLimitConfig controls per-client request throttling.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Default returns the configuration used when no file or overrides exist.
func Default() Config {
	return Config{
		Listen:   ":8080",
		LogLevel: "info",
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "data/maru.db",
		},
		Session: SessionConfig{
			TTL:           Duration(7 * 24 * time.Hour),
			SweepInterval: Duration(10 * time.Minute),
			HistoryWindow: 10,
			PageSize:      10,
			MaxPageSize:   50,
		},
		LLM: LLMConfig{
			Model:       "anthropic/claude-sonnet-4-5",
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Tools: ToolsConfig{
			NotesBackend:    "local",
			CalendarBackend: "local",
			DataDir:         "data",
		},
		WebSearch: WebSearchConfig{
			Endpoint:     "https://html.duckduckgo.com/html/",
			MaxResults:   3,
			FetchTimeout: Duration(10 * time.Second),
			MaxBodyBytes: 5000,
		},
		RateLimit: RateLimitConfig{
			RPS:   10,
			Burst: 20,
		},
	}
}

// Load reads the configuration file at path, overlays environment
// variables, and validates the result. A missing file is not an error;
// defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env + defaults
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto the configuration.
// Environment values win over file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("MARU_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("MARU_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MARU_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("MARU_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("MARU_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("NOTION_API_KEY"); v != "" {
		c.Notion.APIKey = v
	}
	if v := os.Getenv("MARU_NOTION_NOTES_DB"); v != "" {
		c.Notion.NotesDatabaseID = v
	}
	if v := os.Getenv("MARU_NOTION_CALENDAR_DB"); v != "" {
		c.Notion.CalendarDatabaseID = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("config: store dsn is required for driver %q", c.Store.Driver)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("config: session ttl must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("config: session sweep_interval must be positive")
	}
	if c.Session.PageSize <= 0 || c.Session.MaxPageSize <= 0 {
		return fmt.Errorf("config: session page sizes must be positive")
	}
	if c.Session.PageSize > c.Session.MaxPageSize {
		return fmt.Errorf("config: session page_size %d exceeds max_page_size %d",
			c.Session.PageSize, c.Session.MaxPageSize)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("config: llm model is required")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("config: llm max_tokens must be positive")
	}
	for _, backend := range []struct{ name, value string }{
		{"notes_backend", c.Tools.NotesBackend},
		{"calendar_backend", c.Tools.CalendarBackend},
	} {
		switch backend.value {
		case "notion", "local", "mcp":
		default:
			return fmt.Errorf("config: unknown %s %q", backend.name, backend.value)
		}
	}
	if c.Tools.NotesBackend == "notion" && c.Notion.NotesDatabaseID == "" {
		return fmt.Errorf("config: notion.notes_database_id is required for the notion notes backend")
	}
	if c.Tools.CalendarBackend == "notion" && c.Notion.CalendarDatabaseID == "" {
		return fmt.Errorf("config: notion.calendar_database_id is required for the notion calendar backend")
	}
	if c.WebSearch.MaxResults <= 0 {
		return fmt.Errorf("config: websearch max_results must be positive")
	}
	return nil
}
