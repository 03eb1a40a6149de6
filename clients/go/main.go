// agentrooms CLI - command line client for agentrooms
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/eldtechnologies/agentrooms/clients/go/roomchat"
	"github.com/eldtechnologies/agentrooms/internal/models"
	"github.com/eldtechnologies/agentrooms/internal/roomsync"
	"github.com/eldtechnologies/agentrooms/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		baseURL     string
		user        string
		password    string
		name        string
		inviteCode  string
		description string
		verbose     bool
	)

	flagSet := pflag.NewFlagSet("agentrooms", pflag.ContinueOnError)
	flagSet.StringVar(&baseURL, "url", envOr("AGENTROOMS_URL", roomchat.DefaultURL), "server base URL")
	flagSet.StringVarP(&user, "user", "u", os.Getenv("AGENTROOMS_USER"), "shared-secret user")
	flagSet.StringVarP(&password, "password", "p", os.Getenv("AGENTROOMS_PASSWORD"), "shared-secret password")
	flagSet.StringVarP(&name, "name", "n", os.Getenv("USER"), "display name used by join")
	flagSet.StringVar(&inviteCode, "invite", "", "invite code for create (random when empty)")
	flagSet.StringVar(&description, "description", "", "room description for create")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log transport activity in watch")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			usage(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		usage(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) == 0 {
		usage(flagSet)
		return errors.New("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := roomchat.NewClient(baseURL, user, password)

	switch cmd := args[0]; cmd {
	case "health":
		resp, err := client.Health(ctx)
		if err != nil {
			return err
		}
		printJSON(resp)

	case "rooms":
		resp, err := client.ListRooms(ctx, 0, 0)
		if err != nil {
			return err
		}
		for _, room := range resp.Rooms {
			fmt.Printf("  %s  %-10s %s (%d members, %d agents)\n",
				room.ID, room.InviteCode, room.Name, len(room.Members), len(room.Agents))
		}

	case "create":
		if len(args) < 2 {
			return errors.New("usage: agentrooms create <name> [--invite code] [--description text]")
		}
		room, err := client.CreateRoom(ctx, roomchat.CreateRoomRequest{
			Name:        strings.Join(args[1:], " "),
			Description: description,
			InviteCode:  inviteCode,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created %s, invite code: %s\n", room.ID, room.InviteCode)

	case "join":
		if len(args) < 2 {
			return errors.New("usage: agentrooms join <invite-code> --name <display name>")
		}
		room, err := client.FindInvite(ctx, args[1])
		if err != nil {
			return err
		}
		session, err := client.Join(ctx, room.ID, name)
		if err != nil {
			return err
		}
		if err := client.SaveSession(); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		fmt.Printf("Joined %s as %s\n", room.Name, session.User.Name)

	case "read":
		roomID, err := sessionRoom(client, args)
		if err != nil {
			return err
		}
		msgs, err := client.FetchMessages(ctx, roomID)
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			printMessage(msg)
		}

	case "post":
		if len(args) < 2 {
			return errors.New("usage: agentrooms post <message>")
		}
		msg, err := client.PostMessage(ctx, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("Posted #%d\n", msg.ID)

	case "ask":
		if len(args) < 2 {
			return errors.New("usage: agentrooms ask <prompt>")
		}
		text, err := client.Complete(ctx, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Println(text)

	case "watch":
		return watch(ctx, client, verbose)

	default:
		usage(flagSet)
		return fmt.Errorf("unknown command: %s", cmd)
	}

	return nil
}

// watch follows the session room live and posts every line read from stdin.
func watch(ctx context.Context, client *roomchat.Client, verbose bool) error {
	if client.Session == nil {
		return errors.New("not joined to a room, run join first")
	}
	session := client.Session

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()

	tr := transport.NewClient(transport.ClientOptions{
		URL:     client.WebSocketURL(),
		Header:  client.AuthHeader(),
		Backoff: transport.DefaultBackoff,
		Logger:  logger,
	})
	defer tr.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- tr.Run(ctx) }()

	var lastID int64
	sub := roomsync.Subscribe(tr, client, roomsync.Options{
		RoomID:   session.RoomID,
		UserID:   session.User.ID,
		UserName: session.User.Name,
		Logger:   logger,
		OnChange: func(msgs []models.Message) {
			for _, msg := range msgs {
				if msg.ID > lastID {
					printMessage(msg)
					lastID = msg.ID
				}
			}
		},
	})
	defer sub.Close()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := sub.Post(ctx, line); err != nil {
				logger.Warn().Err(err).Msg("send failed, retrying over HTTP")
				if _, err := client.PostMessage(ctx, line); err != nil {
					return err
				}
			}
		}
	}
}

func sessionRoom(client *roomchat.Client, args []string) (string, error) {
	if len(args) > 1 {
		return args[1], nil
	}
	if client.Session != nil {
		return client.Session.RoomID, nil
	}
	return "", errors.New("no room given and not joined to a room")
}

func printMessage(msg models.Message) {
	fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Local().Format("2006-01-02 15:04:05"), msg.Sender, msg.Text)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func usage(flagSet *pflag.FlagSet) {
	fmt.Println(`agentrooms CLI - chat rooms with LLM agents

Usage: agentrooms [flags] <command> [args]

Commands:
  health                  Check server health
  rooms                   List rooms
  create <name>           Create a room
  join <invite-code>      Join a room and remember the session
  read [room]             Read messages from a room
  post <message>          Post to the joined room
  ask <prompt>            One-off answer from the server's model
  watch                   Follow the joined room live; stdin lines are posted

Environment:
  AGENTROOMS_URL, AGENTROOMS_USER, AGENTROOMS_PASSWORD, AGENTROOMS_CONFIG

Flags:`)
	flagSet.PrintDefaults()
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
