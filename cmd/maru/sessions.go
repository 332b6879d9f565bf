package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maruhq/maru/internal/config"
	"github.com/maruhq/maru/internal/session"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage stored sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	cmd.AddCommand(newSessionsStatsCmd())

	return cmd
}

// openConfiguredStore loads the config file and opens the store it
// selects. The caller closes the store.
func openConfiguredStore(ctx context.Context) (session.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	return store, nil
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := openConfiguredStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			summaries, err := store.ListSessions(ctx)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}

			fmt.Printf("%-32s %8s  %-19s %-19s\n", "ID", "MESSAGES", "CREATED", "EXPIRES")
			fmt.Println(strings.Repeat("-", 82))
			for _, s := range summaries {
				fmt.Printf("%-32s %8d  %-19s %-19s\n",
					s.ID, s.MessageCount,
					s.CreatedAt.Format("2006-01-02 15:04:05"),
					s.ExpiresAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	var (
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a page of a session's messages",
		Long:  "Page 0 holds the newest messages; higher pages reach further back.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := openConfiguredStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			messages, err := store.ReadPage(ctx, args[0], page, pageSize)
			if err != nil {
				return err
			}
			if len(messages) == 0 {
				fmt.Printf("No messages on page %d.\n", page)
				return nil
			}

			for _, m := range messages {
				fmt.Printf("%4d  %-9s  %s  %s\n",
					m.Seq, m.Role, m.CreatedAt.Format("2006-01-02 15:04:05"), m.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 0, "Page number (0 is newest)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Messages per page (0 uses the default)")

	return cmd
}

func newSessionsDeleteCmd() *cobra.Command {
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := openConfiguredStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if !autoApprove {
				fmt.Printf("This will delete session %s and all its messages.\n", args[0])
				fmt.Print("Are you sure? (yes/no): ")
				var response string
				_, _ = fmt.Scanln(&response)
				if response != "yes" {
					fmt.Println("Delete cancelled.")
					return nil
				}
			}

			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted session %s.\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "yes", false, "Skip confirmation prompt")

	return cmd
}

func newSessionsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store-wide session and message counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := openConfiguredStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Sessions: %d\n", stats.Sessions)
			fmt.Printf("Messages: %d\n", stats.Messages)
			return nil
		},
	}
}
