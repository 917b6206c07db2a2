// Command watchctl joins a watch-party room from the terminal. It keeps a
// simulated playhead in sync with the host so it can stand in for either
// side during manual testing.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/watchparty-server/internal/log"
	"github.com/vovakirdan/watchparty-server/internal/roomclient"
)

type options struct {
	addr     string
	room     string
	name     string
	token    string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "watchctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "watchctl",
		Short:         "Interactive watch-party participant",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "ws://localhost:8080/ws", "websocket address")
	f.StringVarP(&opts.room, "room", "r", "", "room code to join (empty creates a room)")
	f.StringVarP(&opts.name, "name", "n", "cli-user", "display name")
	f.StringVar(&opts.token, "token", "", "JWT from /api/login or /api/guest")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level for diagnostics on stderr")
	return cmd
}

func run(parent context.Context, opts *options) error {
	logger := log.NewWithWriter(os.Stderr, opts.logLevel)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	target, err := dialURL(opts.addr, opts.token)
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	sender := roomclient.SenderFunc(func(ctx context.Context, frame []byte) error {
		return conn.Write(ctx, websocket.MessageText, frame)
	})
	player := roomclient.NewVirtualPlayer()
	store := roomclient.New(roomclient.Options{
		Sender: sender,
		Player: player,
		Logger: logger,
	})
	defer store.Close()
	sess := &session{store: store, player: player, name: opts.name, out: os.Stdout}

	if err := store.Join(ctx, opts.room, opts.name, ""); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	fmt.Printf("connected to %s as %s (client %s)\n", opts.addr, opts.name, store.ClientID())
	fmt.Println("type to chat, /help for commands, Ctrl+C to exit")

	readErr := make(chan error, 1)
	go func() {
		defer cancel()
		readErr <- readLoop(ctx, conn, store, logger)
	}()

	inputLoop(ctx, sess, logger)

	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	if err := <-readErr; err != nil {
		return err
	}
	return nil
}

func dialURL(addr, token string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse addr: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func readLoop(ctx context.Context, conn *websocket.Conn, store *roomclient.Store, logger *zerolog.Logger) error {
	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		if line := describe(frame, store.State()); line != "" {
			fmt.Println(line)
		}
		if err := store.Apply(ctx, frame); err != nil {
			logger.Debug().Err(err).Msg("apply frame")
		}
	}
}

func inputLoop(ctx context.Context, sess *session, logger *zerolog.Logger) {
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
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			quit, err := sess.execute(ctx, line)
			if err != nil {
				fmt.Printf("! %v\n", err)
				logger.Debug().Err(err).Str("input", line).Msg("command failed")
			}
			if quit {
				return
			}
		}
	}
}
