package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/prudhvinik1/boardsync/internal/client"
	"github.com/prudhvinik1/boardsync/internal/logging"
	"github.com/prudhvinik1/boardsync/internal/protocol"
	"golang.org/x/sync/errgroup"
)

const BoardWatchVersion = "0.1.0"

const defaultURL = "ws://localhost:8080/ws"

func main() {
	usage := `Board watch.

Joins a board on a boardsync server and prints live events, or sends one.

Usage:
    boardwatch watch <board_id> [--url=<url>] [--token=<token>]
        [--count=<count>] [--log_level=<level>]
    boardwatch emit <board_id> <event> <data> [--url=<url>] [--token=<token>]
        [--log_level=<level>]
    boardwatch -h | --help
    boardwatch --version

Options:
    -h --help              Show this screen.
    --version              Show version.
    --url=<url>            Websocket url [default: ws://localhost:8080/ws].
    --token=<token>        Bearer token when the server verifies identity.
    --count=<count>        Print this many events then exit.
    --log_level=<level>    debug, info, warn or error [default: warn].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], BoardWatchVersion)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logLevel, _ := opts.String("--log_level")
	logging.InitLogger(logLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watch_, _ := opts.Bool("watch"); watch_ {
		err = watch(ctx, opts)
	} else if emit_, _ := opts.Bool("emit"); emit_ {
		err = emit(ctx, opts)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func clientOptions(opts docopt.Opts) (string, []client.Option) {
	url, _ := opts.String("--url")
	if url == "" {
		url = defaultURL
	}
	boardID, _ := opts.String("<board_id>")

	options := []client.Option{client.WithBoard(boardID)}
	if token, _ := opts.String("--token"); token != "" {
		options = append(options, client.WithToken(token))
	}
	return url, options
}

func watch(ctx context.Context, opts docopt.Opts) error {
	count := 0
	if _, ok := opts["--count"].(string); ok {
		n, err := opts.Int("--count")
		if err != nil || n <= 0 {
			return errors.New("--count must be a positive integer")
		}
		count = n
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	printed := 0
	url, options := clientOptions(opts)
	options = append(options,
		client.OnStatus(func(online bool) {
			if online {
				fmt.Fprintln(os.Stderr, "online")
			} else {
				fmt.Fprintln(os.Stderr, "offline")
			}
		}),
		client.OnError(func(p protocol.ErrorPayload) {
			fmt.Fprintf(os.Stderr, "error: %s\n", p.Message)
		}),
		client.OnEvent(func(ev protocol.MutationEvent) {
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Warn("Failed to encode event", "error", err)
				return
			}
			fmt.Printf("%s %s %s\n", time.Now().Format(time.RFC3339), ev.ServerName(), data)
			printed++
			if count > 0 && printed >= count {
				cancel()
			}
		}),
	)

	c := client.New(url, options...)
	defer c.Close()
	return c.Run(ctx)
}

func emit(ctx context.Context, opts docopt.Opts) error {
	name, _ := opts.String("<event>")
	data, _ := opts.String("<data>")

	ev, err := protocol.DecodeClientEvent(name, []byte(data))
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	online := make(chan struct{}, 1)
	url, options := clientOptions(opts)
	options = append(options, client.OnStatus(func(up bool) {
		if up {
			select {
			case online <- struct{}{}:
			default:
			}
		}
	}))
	c := client.New(url, options...)
	defer c.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Run(gctx)
	})
	g.Go(func() error {
		defer c.Close()
		select {
		case <-online:
		case <-gctx.Done():
			return fmt.Errorf("failed to connect to %s: %w", url, gctx.Err())
		}
		if err := c.Emit(ev); err != nil {
			return fmt.Errorf("failed to emit %s: %w", name, err)
		}
		fmt.Fprintf(os.Stderr, "sent %s\n", name)
		return nil
	})
	return g.Wait()
}
