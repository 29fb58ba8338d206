// Command mnemo is a demo chatbot with tiered semantic memory backed by
// Redis. It remembers answers across sessions, summarizes conversations
// into episodic memory, and mines transcripts for long-term facts.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/config"
	"github.com/mnemo-ai/mnemo/store"
	"github.com/mnemo-ai/mnemo/telemetry"
)

var (
	version   = "dev"
	gitCommit string
)

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "mnemo",
		Short:         "Chatbot with tiered semantic memory over Redis",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	root.AddCommand(newChatCommand(&configPath))
	root.AddCommand(newChatsCommand(&configPath))
	root.AddCommand(newClearCommand(&configPath))
	root.AddCommand(newVersionCommand())
	return root
}

// setup loads config and assembles the assistant plus its pool. The caller
// owns the returned cleanup.
func setup(configPath string) (*mnemo.Assistant, config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.Config{}, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	pool, err := store.NewPool(store.Options{
		URL:          cfg.Redis.URL,
		DialAttempts: cfg.Redis.DialAttempts,
		DialBackoff:  cfg.Redis.DialBackoff,
		Logger:       logger,
	})
	if err != nil {
		return nil, config.Config{}, nil, err
	}

	tp := telemetry.NewTracerProvider(logger)

	assistant, err := mnemo.New(context.Background(),
		mnemo.WithConfig(cfg),
		mnemo.WithPool(pool),
		mnemo.WithLogger(logger),
		mnemo.WithTracer(telemetry.Tracer(tp)),
	)
	if err != nil {
		pool.Close()
		return nil, config.Config{}, nil, err
	}

	cleanup := func() {
		assistant.Close()
		_ = tp.Shutdown(context.Background())
		_ = pool.Close()
	}
	return assistant, cfg, cleanup, nil
}

func newChatCommand(configPath *string) *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:     "chat",
		Short:   "Start an interactive chat session",
		Example: "  mnemo chat\n  mnemo chat --chat-id 7c3a...",
		RunE: func(cmd *cobra.Command, args []string) error {
			assistant, cfg, cleanup, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()
			return runREPL(assistant, cfg.Chat.UserID, chatID)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat-id", "", "Resume an existing chat")
	return cmd
}

func newChatsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List chats with last-message previews",
		RunE: func(cmd *cobra.Command, args []string) error {
			assistant, cfg, cleanup, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			infos, err := assistant.ListChats(cmd.Context(), cfg.Chat.UserID)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("No chats yet.")
				return nil
			}
			for _, info := range infos {
				fmt.Printf("%s  (%d messages)  %s\n", info.ChatID, info.Messages, info.Preview)
			}
			return nil
		},
	}
}

func newClearCommand(configPath *string) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the current chat, or all memory with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			assistant, cfg, cleanup, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			if all {
				if err := assistant.ClearAllMemory(cmd.Context(), cfg.Chat.UserID); err != nil {
					return err
				}
				fmt.Println("All memory cleared.")
				return nil
			}
			if err := assistant.ClearChat(cmd.Context(), cfg.Chat.UserID); err != nil {
				return err
			}
			fmt.Println("Chat cleared.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Wipe every memory tier, not just the chat")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			v := version
			if gitCommit != "" {
				v += fmt.Sprintf(" (git: %s)", gitCommit)
			}
			fmt.Printf("mnemo %s %s\n", v, runtime.Version())
		},
	}
}
