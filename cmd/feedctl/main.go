package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/lysyi3m/claude-rss-reader/app/cfg"
	"github.com/lysyi3m/claude-rss-reader/app/client"
)

type Options struct {
	Server  string        `long:"server" env:"FEEDCTL_SERVER" default:"http://127.0.0.1:3847" description:"Reader server URL"`
	Timeout time.Duration `long:"timeout" env:"FEEDCTL_TIMEOUT" default:"10s" description:"Request timeout"`
	Debug   bool          `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var (
	opts   Options
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

func newParser() *flags.Parser {
	parser := flags.NewParser(&opts, flags.Default)
	parser.CommandHandler = func(command flags.Commander, args []string) error {
		level := slog.LevelWarn
		if opts.Debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if command == nil {
			return nil
		}
		return command.Execute(args)
	}

	parser.AddCommand("list", "List feed items", "Print a page of the aggregated feed.", &ListCommand{})
	parser.AddCommand("show", "Show one item", "Print a single feed item as JSON.", &ShowCommand{})
	parser.AddCommand("read", "Mark items as read", "Mark one or more items as read.", &ReadCommand{})
	parser.AddCommand("refresh", "Invalidate the feed cache", "Force the next listing to refetch every provider.", &RefreshCommand{})
	parser.AddCommand("providers", "List providers", "Show active and available providers.", &ProvidersCommand{})
	parser.AddCommand("status", "Check the server", "Report server health.", &StatusCommand{})
	parser.AddCommand("watch", "Follow notifications", "Show coalesced Claude notifications as they arrive.", &WatchCommand{})
	parser.AddCommand("notify", "Send a hook event", "Forward a Claude Code hook event (JSON on stdin) to the server.", &NotifyCommand{})

	return parser
}

func main() {
	if _, err := newParser().Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.New(opts.Server, &http.Client{Timeout: opts.Timeout}, "feedctl/"+cfg.GetVersion())
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
