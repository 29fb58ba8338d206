package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/mnemo-ai/mnemo"
)

const replHelp = `Commands:
  /new            start a fresh chat
  /chats          list chats
  /switch <id>    switch to another chat
  /clear          clear the current chat (keeps its summary)
  /forget         wipe every memory tier
  /help           show this help
  /exit           leave`

// runREPL drives the interactive chat loop.
func runREPL(assistant *mnemo.Assistant, userID, chatID string) error {
	if chatID == "" {
		chatID = assistant.CurrentChat(userID)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".mnemo_history"),
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("mnemo — chat %s (type /help for commands)\n\n", shortID(chatID))

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			done, err := handleCommand(assistant, userID, &chatID, input)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			if done {
				return nil
			}
			continue
		}

		reply, err := assistant.ProcessMessage(context.Background(), userID, chatID, input)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		if reply.CacheHit {
			fmt.Printf("\nmnemo> %s\n  (from %s memory, distance %.3f)\n\n", reply.Text, reply.Source, reply.Distance)
		} else {
			fmt.Printf("\nmnemo> %s\n\n", reply.Text)
		}
	}
}

// handleCommand runs one slash command. It reports whether the REPL should
// exit.
func handleCommand(assistant *mnemo.Assistant, userID string, chatID *string, input string) (bool, error) {
	ctx := context.Background()
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/exit", "/quit":
		fmt.Println("Goodbye!")
		return true, nil

	case "/help":
		fmt.Println(replHelp)

	case "/new":
		*chatID = assistant.NewChat(userID)
		fmt.Printf("Started chat %s\n", shortID(*chatID))

	case "/chats":
		infos, err := assistant.ListChats(ctx, userID)
		if err != nil {
			return false, err
		}
		if len(infos) == 0 {
			fmt.Println("No chats yet.")
			break
		}
		for _, info := range infos {
			marker := " "
			if info.ChatID == *chatID {
				marker = "*"
			}
			fmt.Printf("%s %s  (%d messages)  %s\n", marker, info.ChatID, info.Messages, info.Preview)
		}

	case "/switch":
		if arg == "" {
			return false, fmt.Errorf("usage: /switch <chat-id>")
		}
		*chatID = arg
		fmt.Printf("Switched to chat %s\n", shortID(arg))

	case "/clear":
		if err := assistant.ClearChat(ctx, userID); err != nil {
			return false, err
		}
		fmt.Println("Chat cleared.")

	case "/forget":
		if err := assistant.ClearAllMemory(ctx, userID); err != nil {
			return false, err
		}
		fmt.Println("All memory cleared.")

	default:
		fmt.Printf("Unknown command %s (try /help)\n", cmd)
	}
	return false, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
