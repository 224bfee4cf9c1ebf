package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/lysyi3m/claude-rss-reader/app/coalesce"
)

const (
	notificationTitle = "Claude RSS Reader"
	notifyTimeout     = 5 * time.Second
)

var _ coalesce.Presenter = (*Presenter)(nil)

// Presenter prints notifications to a terminal and optionally raises a
// desktop notification.
type Presenter struct {
	out     io.Writer
	focused bool
	run     func(ctx context.Context, name string, args ...string) error

	mu      sync.Mutex
	visible bool
}

// NewPresenter writes to out. When focused is true the terminal is assumed
// to be watched and desktop notifications are skipped.
func NewPresenter(out io.Writer, focused bool) *Presenter {
	return &Presenter{
		out:     out,
		focused: focused,
		run:     runCommand,
	}
}

func (p *Presenter) Show(n coalesce.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.visible = true

	c := color.New(color.FgGreen, color.Bold)
	switch n.Kind {
	case coalesce.KindAttention:
		c = color.New(color.FgYellow, color.Bold)
	case coalesce.KindDefault:
		c = color.New(color.FgCyan)
	}

	c.Fprintf(p.out, "● %s", n.Message)
	color.New(color.Faint).Fprintf(p.out, "  %s\n", n.At.Format(time.TimeOnly))
}

func (p *Presenter) Dismiss() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.visible {
		p.visible = false
		slog.Debug("Notification dismissed")
	}
}

// PlaySound rings the terminal bell.
func (p *Presenter) PlaySound() {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.out, "\a")
}

func (p *Presenter) SystemNotify(n coalesce.Notification) {
	name, args, ok := systemNotifyCommand(runtime.GOOS, n.Message)
	if !ok {
		slog.Debug("Desktop notifications not supported", "os", runtime.GOOS)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := p.run(ctx, name, args...); err != nil {
		slog.Warn("Failed to send desktop notification", "command", name, "error", err)
	}
}

func (p *Presenter) Focused() bool {
	return p.focused
}

func systemNotifyCommand(goos, message string) (string, []string, bool) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", message, notificationTitle)
		return "osascript", []string{"-e", script}, true
	case "linux", "freebsd", "openbsd":
		return "notify-send", []string{"--app-name", notificationTitle, notificationTitle, message}, true
	default:
		return "", nil, false
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return err
	}
	return exec.CommandContext(ctx, name, args...).Run()
}
