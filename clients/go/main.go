// globalchat CLI - command line client for the global chat server
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/globalchat/clients/go/globalchat"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("GLOBALCHAT_URL")
	if baseURL == "" {
		baseURL = globalchat.DefaultBaseURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := globalchat.NewClient(baseURL)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "read":
		state, err := client.GetChat(ctx)
		exitOnError(err)
		for _, msg := range state.Messages {
			printMessage(msg)
		}
		fmt.Printf("-- active: %s\n", strings.Join(state.ActiveUsers, ", "))

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: globalchat send <user> <message>")
			os.Exit(1)
		}
		msg, err := client.PostMessage(ctx, strings.Join(os.Args[3:], " "), os.Args[2], "cli-"+os.Args[2])
		exitOnError(err)
		fmt.Printf("Posted: %s\n", msg.ID)

	case "clear":
		exitOnError(client.Clear(ctx))
		fmt.Println("Chat cleared")

	case "watch":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: globalchat watch <user>")
			os.Exit(1)
		}
		exitOnError(watch(ctx, client, os.Args[2]))

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// watch joins the chat as user, prints changes as they arrive and sends
// every stdin line as a message.
func watch(ctx context.Context, client *globalchat.Client, user string) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.WarnLevel).
		With().Timestamp().Logger()

	fallback, err := globalchat.NewSQLiteFallback(ctx, fallbackPath())
	if err != nil {
		return fmt.Errorf("open fallback store: %w", err)
	}
	defer fallback.Close()

	svc := globalchat.New(ctx,
		globalchat.WithClient(client),
		globalchat.WithFallback(fallback),
		globalchat.WithLogger(log),
	)
	defer svc.Close()

	var mu sync.Mutex
	last := ""
	render := func(msgs []globalchat.Message) {
		fresh, reset := unseen(msgs, last)
		if reset {
			fmt.Println("-- chat reset")
		}
		for _, msg := range fresh {
			printMessage(msg)
		}
		last = lastID(msgs)
	}
	svc.OnMessage(func(msgs []globalchat.Message) {
		mu.Lock()
		defer mu.Unlock()
		render(msgs)
	})
	svc.OnUsersChange(func(users []string) {
		fmt.Printf("-- active: %s\n", strings.Join(users, ", "))
	})

	mu.Lock()
	render(svc.Messages())
	mu.Unlock()

	svc.SetCurrentUser(ctx, user)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "/clear" {
				if err := svc.ClearChat(ctx); err != nil {
					log.Warn().Err(err).Msg("clear failed")
				}
				continue
			}
			if err := svc.SendMessage(ctx, line); err != nil && !errors.Is(err, globalchat.ErrEmptyMessage) {
				log.Warn().Err(err).Msg("send failed")
			}
		}
	}
}

func fallbackPath() string {
	if p := os.Getenv("GLOBALCHAT_FALLBACK"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "globalchat", "fallback.db")
	}
	return filepath.Join(home, ".globalchat", "fallback.db")
}

func printMessage(msg globalchat.Message) {
	ts := msg.Timestamp
	if t, err := time.Parse(globalchat.TimestampFormat, msg.Timestamp); err == nil {
		ts = t.Local().Format("15:04:05")
	}
	fmt.Printf("[%s] %s: %s\n", ts, msg.Sender, msg.Text)
}

func usage() {
	fmt.Println(`globalchat CLI - global chat room client

Usage: globalchat <command> [options]

Commands:
  read                    Print all messages and active users
  send <user> <message>   Post a message as user
  clear                   Delete every message
  watch <user>            Join as user, follow the chat, send stdin lines
                          ("/clear" clears the chat)
  health                  Check server health

Environment:
  GLOBALCHAT_URL        Server URL (default: http://localhost:3001/api)
  GLOBALCHAT_FALLBACK   Offline message store (default: ~/.globalchat/fallback.db)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
