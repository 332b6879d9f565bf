package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maruhq/maru/internal/assistant"
	"github.com/maruhq/maru/internal/config"
	"github.com/maruhq/maru/internal/llm"
	"github.com/maruhq/maru/internal/mcpkit"
	"github.com/maruhq/maru/internal/session"
)

func newChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Long:  "Interactive loop against the configured store and model. Slash commands switch sessions; /help lists them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := newLogger(cfg)
			ctx := context.Background()

			store, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("opening session store: %w", err)
			}
			defer func() { _ = store.Close() }()

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

			if sessionID != "" {
				if _, err := store.Get(ctx, sessionID); err != nil {
					return fmt.Errorf("resuming session %s: %w", sessionID, err)
				}
			}

			return runChatLoop(ctx, asst, store, sessionID)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Resume an existing session")

	return cmd
}

func runChatLoop(ctx context.Context, asst *assistant.Assistant, store session.Store, sessionID string) error {
	fmt.Println("maru chat. /help lists commands, /exit quits.")

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				leaveSession(ctx, store, sessionID)
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			exit := runChatCommand(ctx, store, &sessionID, line)
			if exit {
				return nil
			}
			continue
		}

		reply, err := asst.Handle(ctx, line, sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		sessionID = reply.SessionID

		fmt.Println(reply.Response)
		if verbose {
			for _, action := range reply.Actions {
				fmt.Fprintf(os.Stderr, "  [%s] %s via %s\n", action.Status, action.Intent, action.Handler)
			}
		}
	}
}

// runChatCommand executes one slash command. It returns true when the
// loop should exit.
func runChatCommand(ctx context.Context, store session.Store, sessionID *string, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/exit", "/quit":
		leaveSession(ctx, store, *sessionID)
		return true

	case "/new":
		leaveSession(ctx, store, *sessionID)
		*sessionID = ""
		fmt.Println("Started a new conversation.")

	case "/session":
		if arg == "" {
			if *sessionID == "" {
				fmt.Println("No active session yet. Say something first.")
			} else {
				fmt.Println(*sessionID)
			}
			return false
		}
		if _, err := store.Get(ctx, arg); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return false
		}
		leaveSession(ctx, store, *sessionID)
		*sessionID = arg
		fmt.Printf("Switched to session %s.\n", arg)

	case "/history":
		if *sessionID == "" {
			fmt.Println("No active session yet.")
			return false
		}
		messages, err := store.ReadPage(ctx, *sessionID, 0, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return false
		}
		for _, m := range messages {
			fmt.Printf("[%s] %s\n", m.Role, m.Text)
		}

	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /new            start a fresh conversation")
		fmt.Println("  /session [id]   show or switch the active session")
		fmt.Println("  /history        show recent messages in this session")
		fmt.Println("  /exit           quit")

	default:
		fmt.Printf("Unknown command %s. /help lists commands.\n", cmd)
	}

	return false
}

// leaveSession drops the session if no messages were ever exchanged, so
// switching around does not litter the store with empty sessions.
func leaveSession(ctx context.Context, store session.Store, sessionID string) {
	if sessionID == "" {
		return
	}
	if deleted, err := store.DeleteIfEmpty(ctx, sessionID); err == nil && deleted {
		fmt.Printf("Discarded empty session %s.\n", sessionID)
	}
}
