package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maruhq/maru/internal/assistant"
	"github.com/maruhq/maru/internal/capability"
	"github.com/maruhq/maru/internal/config"
	"github.com/maruhq/maru/internal/intent"
	"github.com/maruhq/maru/internal/llm"
	"github.com/maruhq/maru/internal/localfile"
	"github.com/maruhq/maru/internal/mcpkit"
	"github.com/maruhq/maru/internal/notion"
	"github.com/maruhq/maru/internal/server"
	"github.com/maruhq/maru/internal/session"
	"github.com/maruhq/maru/internal/telemetry"
	"github.com/maruhq/maru/internal/websearch"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant HTTP server",
		Long:  "Loads the configuration, opens the session store, starts the expiry sweeper, and serves the assistant API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			logger := newLogger(cfg)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			store, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("opening session store: %w", err)
			}
			defer func() { _ = store.Close() }()

			metrics := telemetry.NewMetrics()

			sweeper := session.NewSweeper(store, cfg.Session.SweepInterval.Std(),
				session.WithSweeperLogger(logger),
				session.WithSweepCallback(metrics.RecordSweep))
			if err := sweeper.Start(); err != nil {
				return fmt.Errorf("starting sweeper: %w", err)
			}
			defer sweeper.Stop()

			llmClient, model := llm.NewClientForModel(cfg.LLM.Model)

			parser, err := buildParser(ctx, cfg, llmClient, model, logger)
			if err != nil {
				return err
			}

			pool := mcpkit.NewPool()
			defer func() { _ = pool.Close() }()

			registry, err := buildRegistry(ctx, cfg, llmClient, model, logger, pool)
			if err != nil {
				return err
			}

			aggregator := assistant.NewAggregator(llmClient, model,
				assistant.WithAggregatorLogger(logger))
			orchestrator := assistant.NewOrchestrator(registry, aggregator,
				assistant.WithOrchestratorLogger(logger))
			asst := assistant.New(store, parser, orchestrator,
				assistant.WithHistoryWindow(cfg.Session.HistoryWindow),
				assistant.WithLogger(logger))

			srv := server.New(asst, store,
				server.WithLogger(logger),
				server.WithMetrics(metrics),
				server.WithRateLimiter(server.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)),
				server.WithVersion(version))

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe(cfg.Listen)
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config)")

	return cmd
}

// newLogger builds the JSON logger with secret redaction.
func newLogger(cfg *config.Config) *slog.Logger {
	level := telemetry.ParseLevel(cfg.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	handler := telemetry.NewRedactHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	if cfg.Notion.APIKey != "" {
		handler.AddSecret(cfg.Notion.APIKey)
	}
	return slog.New(handler)
}

// openStore opens the session store selected by the config.
func openStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	ttl := session.WithTTL(cfg.Session.TTL.Std())
	switch cfg.Store.Driver {
	case "memory":
		return session.NewMemoryStore(ttl), nil
	case "postgres":
		return session.NewPostgresStore(ctx, cfg.Store.DSN, ttl)
	default:
		return session.NewSQLiteStore(cfg.Store.DSN, ttl)
	}
}

// buildParser assembles the intent parser, loading and optionally
// watching a prompt template file.
func buildParser(ctx context.Context, cfg *config.Config, client llm.Client, model string, logger *slog.Logger) (*intent.Parser, error) {
	opts := []intent.ParserOption{
		intent.WithMaxTokens(cfg.LLM.MaxTokens),
		intent.WithLogger(logger),
	}

	if cfg.Parser.PromptPath != "" {
		prompt, err := intent.LoadPrompt(cfg.Parser.PromptPath)
		if err != nil {
			return nil, fmt.Errorf("loading parser prompt: %w", err)
		}
		if cfg.Parser.WatchPrompt {
			if err := prompt.Watch(ctx, logger); err != nil {
				return nil, fmt.Errorf("watching parser prompt: %w", err)
			}
		}
		opts = append(opts, intent.WithPrompt(prompt))
	}

	return intent.NewParser(client, model, opts...), nil
}

// buildRegistry registers one handler per capability, with the notes and
// calendar services backed by the configured backend.
func buildRegistry(ctx context.Context, cfg *config.Config, client llm.Client, model string, logger *slog.Logger, pool *mcpkit.Pool) (*capability.Registry, error) {
	var notionClient *notion.Client
	if cfg.Tools.NotesBackend == "notion" || cfg.Tools.CalendarBackend == "notion" {
		if cfg.Notion.APIKey == "" {
			return nil, fmt.Errorf("notion backend selected but NOTION_API_KEY is not set")
		}
		notionClient = notion.NewClient(cfg.Notion.APIKey)
	}

	notes, err := notesService(ctx, cfg, notionClient, pool)
	if err != nil {
		return nil, err
	}
	calendar, err := calendarService(ctx, cfg, notionClient, pool)
	if err != nil {
		return nil, err
	}

	searcher := websearch.NewSearcher(client, model,
		websearch.WithEndpoint(cfg.WebSearch.Endpoint),
		websearch.WithMaxResults(cfg.WebSearch.MaxResults),
		websearch.WithFetchTimeout(cfg.WebSearch.FetchTimeout.Std()),
		websearch.WithMaxBodyLen(cfg.WebSearch.MaxBodyBytes),
		websearch.WithLogger(logger))

	registry := capability.NewRegistry(logger)
	registry.Register(intent.KindWriteNote, capability.NewNoteWriter(notes))
	registry.Register(intent.KindListNotes, capability.NewNoteLister(notes))
	registry.Register(intent.KindGetCalendar, capability.NewCalendarReader(calendar))
	registry.Register(intent.KindAddCalendar, capability.NewCalendarAdder(calendar))
	registry.Register(intent.KindWebSearch, capability.NewSearchHandler(searcher))
	return registry, nil
}

func notesService(ctx context.Context, cfg *config.Config, notionClient *notion.Client, pool *mcpkit.Pool) (capability.NotesService, error) {
	switch cfg.Tools.NotesBackend {
	case "notion":
		return notion.NewNotesStore(notionClient, cfg.Notion.NotesDatabaseID), nil
	case "mcp":
		client, err := connectMCP(ctx, cfg, pool)
		if err != nil {
			return nil, err
		}
		return mcpkit.NewNotesClient(client), nil
	default:
		return localfile.NewNotesStore(filepath.Join(cfg.Tools.DataDir, "notes.json")), nil
	}
}

func calendarService(ctx context.Context, cfg *config.Config, notionClient *notion.Client, pool *mcpkit.Pool) (capability.CalendarService, error) {
	switch cfg.Tools.CalendarBackend {
	case "notion":
		return notion.NewCalendarStore(notionClient, cfg.Notion.CalendarDatabaseID), nil
	case "mcp":
		client, err := connectMCP(ctx, cfg, pool)
		if err != nil {
			return nil, err
		}
		return mcpkit.NewCalendarClient(client), nil
	default:
		return localfile.NewCalendarStore(filepath.Join(cfg.Tools.DataDir, "calendar.json")), nil
	}
}

// connectMCP connects the first configured MCP server. The pool collapses
// repeat calls onto the same connection.
func connectMCP(ctx context.Context, cfg *config.Config, pool *mcpkit.Pool) (*mcpkit.Client, error) {
	if len(cfg.MCP.Servers) == 0 {
		return nil, fmt.Errorf("mcp backend selected but no mcp servers configured")
	}
	sc := cfg.MCP.Servers[0]
	return pool.Connect(ctx, mcpkit.ServerConfig{
		Name:    sc.Name,
		Command: sc.Command,
		Args:    sc.Args,
	})
}
