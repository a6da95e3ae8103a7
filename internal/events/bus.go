// Package events carries rendering-surface events out of the pipeline and
// commands back in.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names an outbound event
type Type string

const (
	UtteranceInterim Type = "utterance.interim"
	UtteranceFinal   Type = "utterance.final"
	UtteranceStatus  Type = "utterance.status"
	VerdictAttached  Type = "verdict.attached"
	SourcesAppended  Type = "verdict.sources"
	SessionSummary   Type = "session.summary"
	GraphStage       Type = "graph.stage"
	GraphReady       Type = "graph.ready"
	GraphMerged      Type = "graph.merged"
	GraphEmpty       Type = "graph.empty"
	LayoutTick       Type = "layout.tick"
	NodeSelected     Type = "node.selected"
	CommandFailed    Type = "command.failed"
	ViewTransform    Type = "view.transform"
)

// Event is one message to the rendering surface
type Event struct {
	ID   string    `json:"id"`
	Type Type      `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// Handler processes events. Handlers run synchronously on the publishing
// goroutine and must not block.
type Handler func(Event)

type subscription struct {
	handler Handler
	types   map[Type]bool
}

// Bus fans events out to subscribers and keeps a bounded history so late
// subscribers can catch up. Safe for concurrent use.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]*subscription
	history []Event
	limit   int
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Bus
type Option func(*Bus)

// WithHistory bounds the replay history (0 disables it)
func WithHistory(n int) Option {
	return func(b *Bus) { b.limit = n }
}

// WithClock overrides event timestamps
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// NewBus creates an event bus
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:  make(map[string]*subscription),
		limit: 256,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Subscribe registers handler for the given types (none = all) and returns
// the subscription id
func (b *Bus) Subscribe(handler Handler, types ...Type) string {
	sub := &subscription{handler: handler}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	id := uuid.NewString()
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription; it reports whether it existed
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return false
	}
	delete(b.subs, id)
	return true
}

// Publish stamps and broadcasts an event
func (b *Bus) Publish(t Type, data any) Event {
	ev := Event{ID: uuid.NewString(), Type: t, At: b.now(), Data: data}

	b.mu.Lock()
	// Layout ticks are high volume and only the latest matters
	if b.limit > 0 && t != LayoutTick {
		b.history = append(b.history, ev)
		if over := len(b.history) - b.limit; over > 0 {
			b.history = append([]Event(nil), b.history[over:]...)
		}
	}
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if s.types != nil && !s.types[t] {
			continue
		}
		b.deliver(s, ev)
	}
	return ev
}

func (b *Bus) deliver(s *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "type", ev.Type, "panic", r)
		}
	}()
	s.handler(ev)
}

// History returns the retained events, oldest first
func (b *Bus) History() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Event(nil), b.history...)
}

// Subscribers returns the number of active subscriptions
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
