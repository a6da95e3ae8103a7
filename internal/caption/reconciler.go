// Package caption turns a noisy, duplicate-prone stream of caption fragments
// into ordered, per-speaker utterances.
package caption

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/veracast/internal/metrics"
	"github.com/ppiankov/veracast/internal/model"
)

// Reconciler owns all per-session caption state: the seen-set, the last
// known speaker and the utterance aggregator. It is safe for concurrent use,
// but every call is serialized so the state has a single writer.
type Reconciler struct {
	mu       sync.Mutex
	seen     *SeenSet
	registry *Registry
	resolver Resolver
	agg      *Aggregator
	logger   *slog.Logger
	sink     func(model.UtteranceEvent)
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithRegistry replaces the classifier registry
func WithRegistry(r *Registry) Option {
	return func(rc *Reconciler) { rc.registry = r }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(rc *Reconciler) { rc.logger = l }
}

// WithSink receives every emitted event, in order
func WithSink(fn func(model.UtteranceEvent)) Option {
	return func(rc *Reconciler) { rc.sink = fn }
}

// WithDedup sizes the seen-set
func WithDedup(limit int, evictFraction float64) Option {
	return func(rc *Reconciler) { rc.seen = NewSeenSet(limit, evictFraction) }
}

// WithClock overrides the time source used for utterance timestamps
func WithClock(now func() time.Time) Option {
	return func(rc *Reconciler) { rc.agg.now = now }
}

// WithIDs overrides utterance id generation
func WithIDs(newID func() string) Option {
	return func(rc *Reconciler) { rc.agg.newID = newID }
}

// NewReconciler creates a reconciler for one capture session
func NewReconciler(sessionID string, opts ...Option) *Reconciler {
	r := &Reconciler{
		seen:     NewSeenSet(1000, 0.2),
		registry: NewRegistry(),
		agg:      NewAggregator(sessionID),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Ingest processes one fragment observed in domCtx. It returns the events
// produced (nil when the fragment was rejected): at most one final event for
// the previous speaker, followed by one interim event.
func (r *Reconciler) Ingest(fragment string, domCtx any) []model.UtteranceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	text := Normalize(fragment)
	kind := Classify(text)
	switch kind {
	case KindEmpty, KindHandle, KindNoise:
		metrics.FragmentsTotal.WithLabelValues(kind.String()).Inc()
		return nil
	}
	if r.seen.Contains(text) {
		metrics.FragmentsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	classifier := r.registry.Find(domCtx)
	attr, err := classifier.Attribute(text, domCtx)
	if err != nil {
		metrics.FragmentsTotal.WithLabelValues("malformed").Inc()
		r.logger.Debug("skipping fragment with malformed context", "classifier", classifier.Name(), "error", err)
		return nil
	}

	r.seen.Add(text)

	if attr.SpeakerMeta || (kind == KindDisplayName && attr.HandleNearby()) {
		metrics.FragmentsTotal.WithLabelValues(KindDisplayName.String()).Inc()
		return nil
	}

	speaker, displayName, src := r.resolver.Resolve(attr)
	r.logger.Debug("fragment attributed", "speaker", speaker, "source", src, "classifier", classifier.Name())

	events := r.agg.Add(speaker, displayName, text)
	metrics.FragmentsTotal.WithLabelValues("accepted").Inc()
	r.emit(events)
	return events
}

// Flush finalizes the trailing utterance, e.g. when monitoring stops
func (r *Reconciler) Flush() (model.UtteranceEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, ok := r.agg.Flush()
	if ok {
		r.emit([]model.UtteranceEvent{ev})
	}
	return ev, ok
}

// ResumeSequence continues utterance numbering after seq
func (r *Reconciler) ResumeSequence(seq int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agg.Resume(seq)
}

// LastSpeaker returns the last definitively resolved handle
func (r *Reconciler) LastSpeaker() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolver.Last()
}

// SeenCount returns the current size of the seen-set
func (r *Reconciler) SeenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen.Len()
}

func (r *Reconciler) emit(events []model.UtteranceEvent) {
	for _, ev := range events {
		if ev.Final {
			metrics.UtterancesFinalized.Inc()
			r.logger.Info("utterance finalized",
				"speaker", ev.Utterance.SpeakerKey,
				"seq", ev.Utterance.SequenceNumber,
				"words", len(strings.Fields(ev.Utterance.Text)))
		}
		if r.sink != nil {
			r.sink(ev)
		}
	}
}
