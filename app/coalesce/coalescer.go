package coalesce

import (
	"fmt"
	"sync"
	"time"

	"github.com/lysyi3m/claude-rss-reader/app/notify"
)

const (
	DefaultDebounce     = 2 * time.Second
	DefaultDismissAfter = 10 * time.Second
)

// Kind orders readiness events by importance. A higher kind wins within one
// debounce window.
type Kind int

const (
	KindDefault Kind = iota
	KindAttention
	KindStop
)

// KindOf maps a hook event name to its kind. Both the hook names (Stop,
// Notification) and the normalized names are accepted.
func KindOf(event string) Kind {
	switch event {
	case "stop", "Stop":
		return KindStop
	case "attention_needed", "Notification":
		return KindAttention
	default:
		return KindDefault
	}
}

func (k Kind) Message() string {
	switch k {
	case KindStop:
		return "Claude is ready for your input"
	case KindAttention:
		return "Claude needs your attention"
	default:
		return "Claude is ready"
	}
}

type Notification struct {
	Kind    Kind
	Event   string
	Project string
	Message string
	At      time.Time
}

// Presenter renders notifications to the user.
type Presenter interface {
	Show(n Notification)
	Dismiss()
	PlaySound()
	SystemNotify(n Notification)
	// Focused reports whether the user is looking at the reader right now.
	Focused() bool
}

type Timer interface {
	Stop() bool
}

type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Options struct {
	Debounce     time.Duration
	DismissAfter time.Duration
	Muted        bool
	AfterFunc    AfterFunc
}

type pending struct {
	kind    Kind
	event   string
	project string
}

// Coalescer turns bursts of readiness events into a single notification.
type Coalescer struct {
	presenter    Presenter
	debounce     time.Duration
	dismissAfter time.Duration
	afterFunc    AfterFunc

	mu            sync.Mutex
	muted         bool
	stopped       bool
	pending       *pending
	debounceTimer Timer
	debounceSeq   uint64
	dismissTimer  Timer
	dismissSeq    uint64
}

func New(presenter Presenter, opts Options) *Coalescer {
	c := &Coalescer{
		presenter:    presenter,
		debounce:     opts.Debounce,
		dismissAfter: opts.DismissAfter,
		afterFunc:    opts.AfterFunc,
		muted:        opts.Muted,
	}

	if c.debounce <= 0 {
		c.debounce = DefaultDebounce
	}
	if c.dismissAfter <= 0 {
		c.dismissAfter = DefaultDismissAfter
	}
	if c.afterFunc == nil {
		c.afterFunc = realAfterFunc
	}

	return c
}

// Push records a readiness event and restarts the debounce window.
func (c *Coalescer) Push(event notify.Event) {
	kind := KindOf(event.Event)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	if c.pending == nil || kind >= c.pending.kind {
		c.pending = &pending{kind: kind, event: event.Event, project: event.Field("project")}
	}

	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	c.debounceSeq++
	seq := c.debounceSeq
	c.debounceTimer = c.afterFunc(c.debounce, func() { c.flush(seq) })
}

func (c *Coalescer) SetMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
}

// Stop cancels pending timers. Events pushed afterwards are dropped.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	c.pending = nil
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	if c.dismissTimer != nil {
		c.dismissTimer.Stop()
	}
}

func (c *Coalescer) flush(seq uint64) {
	c.mu.Lock()
	if c.stopped || seq != c.debounceSeq || c.pending == nil {
		c.mu.Unlock()
		return
	}

	p := c.pending
	c.pending = nil

	n := Notification{
		Kind:    p.kind,
		Event:   p.event,
		Project: p.project,
		Message: message(p.kind, p.project),
		At:      time.Now(),
	}

	if c.dismissTimer != nil {
		c.dismissTimer.Stop()
	}
	c.dismissSeq++
	dismissSeq := c.dismissSeq
	c.dismissTimer = c.afterFunc(c.dismissAfter, func() { c.dismiss(dismissSeq) })
	muted := c.muted
	c.mu.Unlock()

	c.presenter.Show(n)
	if !muted {
		c.presenter.PlaySound()
	}
	if !c.presenter.Focused() {
		c.presenter.SystemNotify(n)
	}
}

func (c *Coalescer) dismiss(seq uint64) {
	c.mu.Lock()
	current := !c.stopped && seq == c.dismissSeq
	c.mu.Unlock()

	if current {
		c.presenter.Dismiss()
	}
}

func message(kind Kind, project string) string {
	if project == "" {
		return kind.Message()
	}
	return fmt.Sprintf("%s (%s)", kind.Message(), project)
}
