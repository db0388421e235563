// batepapo CLI - command line client for a batepapo server
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/eldtechnologies/batepapo/clients/go/batepapo"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("BATEPAPO_URL")
	client := batepapo.NewClient(baseURL, os.Getenv("BATEPAPO_USER"))
	cmd := os.Args[1]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "join":
		if len(os.Args) > 2 {
			client.User = os.Args[2]
		}
		requireUser(client)
		exitOnError(client.Join(ctx))
		fmt.Printf("Joined as %s, sending heartbeats (Ctrl+C to stop)\n", client.User)
		err := client.KeepAlive(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}
		exitOnError(err)

	case "ping":
		requireUser(client)
		exitOnError(client.Refresh(ctx))
		fmt.Println("ok")

	case "who":
		resp, err := client.Participants(ctx)
		exitOnError(err)
		for _, p := range resp {
			fmt.Printf("  %s\n", p.Name)
		}

	case "say":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: batepapo say <message>")
			os.Exit(1)
		}
		requireUser(client)
		resp, err := client.Post(ctx, batepapo.MessageRequest{
			To:   batepapo.Broadcast,
			Text: strings.Join(os.Args[2:], " "),
			Type: batepapo.TypeMessage,
		})
		exitOnError(err)
		fmt.Printf("Posted: %s\n", resp.ID)

	case "whisper":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: batepapo whisper <to> <message>")
			os.Exit(1)
		}
		requireUser(client)
		resp, err := client.Post(ctx, batepapo.MessageRequest{
			To:   os.Args[2],
			Text: strings.Join(os.Args[3:], " "),
			Type: batepapo.TypePrivateMessage,
		})
		exitOnError(err)
		fmt.Printf("Posted: %s\n", resp.ID)

	case "read":
		limit := 20
		if len(os.Args) > 2 {
			n, err := strconv.Atoi(os.Args[2])
			exitOnError(err)
			limit = n
		}
		msgs, err := client.Messages(ctx, limit)
		exitOnError(err)
		for _, msg := range msgs {
			printMessage(msg)
		}

	case "search":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: batepapo search <query>")
			os.Exit(1)
		}
		resp, err := client.Search(ctx, strings.Join(os.Args[2:], " "))
		exitOnError(err)
		for _, msg := range resp.Results {
			printMessage(msg)
		}

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`batepapo CLI - chat room client

Usage: batepapo <command> [options]

Commands:
  join [name]             Join the room and keep the heartbeat alive
  ping                    Send a single heartbeat
  who                     List active participants
  say <message>           Post a message to everyone
  whisper <to> <message>  Post a private message
  read [n]                Read the last n visible messages (default 20)
  search <query>          Search visible messages
  health                  Check server health

Environment:
  BATEPAPO_URL            Server URL (default: http://localhost:5000)
  BATEPAPO_USER           Participant name`)
}

func printMessage(msg batepapo.Message) {
	switch msg.Type {
	case batepapo.TypeStatus:
		fmt.Printf("(%s) %s %s\n", msg.Time, msg.From, msg.Text)
	case batepapo.TypePrivateMessage:
		fmt.Printf("(%s) %s reservadamente para %s: %s\n", msg.Time, msg.From, msg.To, msg.Text)
	default:
		fmt.Printf("(%s) %s para %s: %s\n", msg.Time, msg.From, msg.To, msg.Text)
	}
}

func requireUser(c *batepapo.Client) {
	if c.User == "" {
		fmt.Fprintln(os.Stderr, "Set BATEPAPO_USER or pass a name")
		os.Exit(1)
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
