// Package session keeps the live view of a capture session fresh.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/veracast/internal/clock"
)

// FetchFunc re-reads session state
type FetchFunc func(ctx context.Context) error

// Poller calls a fetch function on an interval. Work that must not interleave
// with a refresh runs inside Suspend.
type Poller struct {
	clock    clock.Clock
	interval time.Duration
	fetch    FetchFunc
	logger   *slog.Logger

	// fetches hold the write lock, suspenders share the read lock
	gate sync.RWMutex

	mu        sync.Mutex
	suspended int
	polls     int
	skipped   int
	failures  int

	resumed chan struct{}
}

// Option configures a Poller
type Option func(*Poller)

// WithClock overrides the time source
func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// NewPoller creates a poller
func NewPoller(interval time.Duration, fetch FetchFunc, opts ...Option) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	p := &Poller{
		clock:    clock.Real{},
		interval: interval,
		fetch:    fetch,
		resumed:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Run polls until ctx is done. A resume after Suspend refreshes immediately.
func (p *Poller) Run(ctx context.Context) error {
	tick := p.clock.After(p.interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.resumed:
		case <-tick:
			tick = p.clock.After(p.interval)
		}
		p.Poll(ctx)
	}
}

// Poll runs one refresh unless polling is suspended. It reports whether the
// fetch ran.
func (p *Poller) Poll(ctx context.Context) bool {
	if p.skipIfSuspended() {
		return false
	}

	p.gate.Lock()
	defer p.gate.Unlock()

	// A suspender may have arrived while we waited for the gate
	if p.skipIfSuspended() {
		return false
	}

	err := p.safeFetch(ctx)

	p.mu.Lock()
	p.polls++
	if err != nil {
		p.failures++
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("session refresh failed", "error", err)
	}
	return true
}

func (p *Poller) skipIfSuspended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.suspended > 0 {
		p.skipped++
		return true
	}
	return false
}

func (p *Poller) safeFetch(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
		}
	}()
	return p.fetch(ctx)
}

// Suspend pauses polling for the duration of fn, waiting for an in-flight
// refresh first. Polling restarts when fn returns, errors or panics.
func (p *Poller) Suspend(fn func() error) error {
	p.mu.Lock()
	p.suspended++
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.suspended--
		resume := p.suspended == 0
		p.mu.Unlock()
		if resume {
			select {
			case p.resumed <- struct{}{}:
			default:
			}
		}
	}()

	p.gate.RLock()
	defer p.gate.RUnlock()
	return fn()
}

// Suspended reports whether any Suspend call is active
func (p *Poller) Suspended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suspended > 0
}

// Stats returns completed refreshes, refreshes skipped while suspended and
// failed refreshes
func (p *Poller) Stats() (polls, skipped, failures int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls, p.skipped, p.failures
}
