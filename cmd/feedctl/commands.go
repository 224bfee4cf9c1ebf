package main

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/lysyi3m/claude-rss-reader/app/coalesce"
	"github.com/lysyi3m/claude-rss-reader/app/console"
	"github.com/lysyi3m/claude-rss-reader/app/notify"
)

type ListCommand struct {
	Provider string `long:"provider" short:"p" description:"Only items from this provider"`
	Limit    int    `long:"limit" short:"n" default:"20" description:"Number of items"`
	Offset   int    `long:"offset" default:"0" description:"Items to skip"`
	JSON     bool   `long:"json" description:"Print raw JSON"`
}

func (c *ListCommand) Execute(_ []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	page, err := newClient().Feed(ctx, c.Provider, c.Limit, c.Offset)
	if err != nil {
		return fmt.Errorf("failed to list feed: %w", err)
	}

	if c.JSON {
		return writeJSON(page)
	}

	if err := console.WriteItems(stdout, page.Items); err != nil {
		return err
	}
	if page.HasMore {
		color.New(color.Faint).Fprintf(stdout, "more items: --offset %d\n", c.Offset+c.Limit)
	}
	return nil
}

type ShowCommand struct {
	Full bool `long:"full" description:"Extract the full article when the item has no content"`

	Args struct {
		ID string `positional-arg-name:"id" required:"yes"`
	} `positional-args:"yes"`
}

func (c *ShowCommand) Execute(_ []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	item, err := newClient().Item(ctx, c.Args.ID, c.Full)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", c.Args.ID, err)
	}
	return writeJSON(item)
}

type ReadCommand struct {
	Args struct {
		IDs []string `positional-arg-name:"id" required:"1"`
	} `positional-args:"yes"`
}

func (c *ReadCommand) Execute(_ []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cl := newClient()
	for _, id := range c.Args.IDs {
		if err := cl.MarkAsRead(ctx, id); err != nil {
			return fmt.Errorf("failed to mark %s as read: %w", id, err)
		}
		fmt.Fprintf(stdout, "marked %s as read\n", id)
	}
	return nil
}

type RefreshCommand struct{}

func (c *RefreshCommand) Execute(_ []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	if err := newClient().Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh: %w", err)
	}
	fmt.Fprintln(stdout, "feed cache invalidated")
	return nil
}

type ProvidersCommand struct {
	Test bool `long:"test" description:"Check every provider's connection"`
}

func (c *ProvidersCommand) Execute(_ []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cl := newClient()
	resp, err := cl.Providers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list providers: %w", err)
	}

	var results map[string]bool
	if c.Test {
		if results, err = cl.TestProviders(ctx); err != nil {
			return fmt.Errorf("failed to test providers: %w", err)
		}
	}

	active := make([]string, 0, len(resp.Providers))
	for _, p := range resp.Providers {
		active = append(active, p.Name)
	}

	return console.WriteProviders(stdout, active, resp.Available, results)
}

type StatusCommand struct{}

func (c *StatusCommand) Execute(_ []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	health, err := newClient().Health(ctx)
	if err != nil {
		color.New(color.FgRed).Fprintf(stdout, "✗ server not running at %s\n", opts.Server)
		return err
	}

	color.New(color.FgGreen).Fprintf(stdout, "✓ server %s at %s\n", health.Status, opts.Server)
	fmt.Fprintf(stdout, "  providers: %d\n  clients:   %d\n", health.Providers, health.Clients)
	return nil
}

type WatchCommand struct {
	Mute         bool          `long:"mute" description:"Do not ring the terminal bell"`
	Focused      bool          `long:"focused" description:"Skip desktop notifications"`
	Debounce     time.Duration `long:"debounce" default:"2s" description:"Window that coalesces bursts of events"`
	DismissAfter time.Duration `long:"dismiss-after" default:"10s" description:"How long a notification stays visible"`
}

func (c *WatchCommand) Execute(_ []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	presenter := console.NewPresenter(stdout, c.Focused)
	coalescer := coalesce.New(presenter, coalesce.Options{
		Debounce:     c.Debounce,
		DismissAfter: c.DismissAfter,
		Muted:        c.Mute,
	})
	defer coalescer.Stop()

	color.New(color.Faint).Fprintf(stdout, "watching %s, press Ctrl+C to stop\n", opts.Server)

	err := newClient().Watch(ctx, func(event notify.Event) {
		switch event.Type {
		case notify.TypeConnected:
			slog.Info("Connected to event stream", "client_id", event.Field("clientId"))
		case notify.TypeClaudeReady:
			coalescer.Push(event)
		}
	})
	if errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// hookInput is the JSON a Claude Code hook receives on stdin.
type hookInput struct {
	HookEventName string `json:"hook_event_name"`
	Cwd           string `json:"cwd"`
}

type NotifyCommand struct {
	Event string `long:"event" short:"e" description:"Event name, overrides the hook input (stop, attention_needed)"`
	Cwd   string `long:"cwd" description:"Working directory, overrides the hook input"`
}

// Execute never fails: a hook must not break the session when the reader is
// not running.
func (c *NotifyCommand) Execute(_ []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	input := readHookInput(stdin)
	event := cmp.Or(c.Event, hookEvent(input.HookEventName), "ready")
	cwd := cmp.Or(c.Cwd, input.Cwd)

	clients, err := newClient().Notify(ctx, event, cwd)
	if err != nil {
		slog.Warn("Failed to notify reader", "server", opts.Server, "error", err)
		return nil
	}

	slog.Debug("Notification sent", "event", event, "clients", clients)
	return nil
}

// readHookInput decodes hook JSON from r. Empty or invalid input yields the
// zero value. A terminal stdin is not read.
func readHookInput(r io.Reader) hookInput {
	var input hookInput

	if f, ok := r.(*os.File); ok {
		if info, err := f.Stat(); err != nil || info.Mode()&os.ModeCharDevice != 0 {
			return input
		}
	}

	if err := json.NewDecoder(r).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		slog.Debug("Ignoring hook input", "error", err)
	}
	return input
}

func hookEvent(name string) string {
	switch name {
	case "Stop", "SubagentStop":
		return "stop"
	case "Notification":
		return "attention_needed"
	default:
		return ""
	}
}

func writeJSON(v any) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
