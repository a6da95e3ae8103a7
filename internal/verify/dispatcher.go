package verify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/veracast/internal/metrics"
	"github.com/ppiankov/veracast/internal/model"
	"github.com/ppiankov/veracast/internal/worker"
)

// Outcome is the result of one verification request. Exactly one of
// Verdict and Err is set.
type Outcome struct {
	Ticket      string
	UtteranceID string
	Verdict     *model.VerificationVerdict
	Err         error
	Duration    time.Duration
}

// GetError implements worker.Result
func (o *Outcome) GetError() error { return o.Err }

type verifyJob struct {
	ticket  string
	u       model.Utterance
	summary string
	checker Checker
}

func (j *verifyJob) Execute(ctx context.Context) worker.Result {
	start := time.Now()
	out := &Outcome{Ticket: j.ticket, UtteranceID: j.u.ID}
	v, err := j.checker.Check(ctx, j.u, j.summary)
	switch {
	case errors.Is(err, ErrTooShort):
		out.Verdict = &v
	case err != nil:
		out.Err = err
	default:
		out.Verdict = &v
	}
	out.Duration = time.Since(start)
	return out
}

// Dispatcher runs verifications concurrently. Each submission gets a ticket;
// outcomes are delivered in completion order to the result handler, which
// matches them to utterances by id.
type Dispatcher struct {
	checker  Checker
	minWords int
	workers  int
	onResult func(Outcome)
	logger   *slog.Logger

	pool *worker.Pool
	done chan struct{}

	mu      sync.Mutex
	pending map[string]string
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher. onResult may be called concurrently
// from Submit (skipped utterances) and the result loop.
func NewDispatcher(checker Checker, workers, minWords int, onResult func(Outcome), opts ...DispatcherOption) *Dispatcher {
	if minWords <= 0 {
		minWords = DefaultMinWords
	}
	d := &Dispatcher{
		checker:  checker,
		minWords: minWords,
		workers:  workers,
		onResult: onResult,
		pending:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Start launches the workers; jobs run under ctx
func (d *Dispatcher) Start(ctx context.Context) {
	d.pool = worker.NewPoolWithContext(ctx, d.workers)
	d.done = make(chan struct{})
	d.pool.Start()

	go func() {
		defer close(d.done)
		for res := range d.pool.Results() {
			switch r := res.(type) {
			case *Outcome:
				d.finish(*r)
			case *worker.PanicResult:
				if job, ok := r.Job.(*verifyJob); ok {
					d.finish(Outcome{Ticket: job.ticket, UtteranceID: job.u.ID, Err: r.GetError()})
				}
			}
		}
	}()
}

// Submit queues an utterance and returns its ticket. Utterances too short
// to check are resolved locally without a collaborator call.
func (d *Dispatcher) Submit(u model.Utterance, contextSummary string) (string, error) {
	ticket := uuid.NewString()

	if TooShort(u.Text, d.minWords) {
		v := SkippedVerdict(u.ID)
		d.track(ticket, u.ID)
		d.finish(Outcome{Ticket: ticket, UtteranceID: u.ID, Verdict: &v})
		return ticket, nil
	}

	d.track(ticket, u.ID)
	if err := d.pool.Submit(&verifyJob{ticket: ticket, u: u, summary: contextSummary, checker: d.checker}); err != nil {
		d.mu.Lock()
		delete(d.pending, ticket)
		d.mu.Unlock()
		return "", err
	}
	return ticket, nil
}

func (d *Dispatcher) track(ticket, utteranceID string) {
	d.mu.Lock()
	d.pending[ticket] = utteranceID
	d.mu.Unlock()
}

func (d *Dispatcher) finish(o Outcome) {
	d.mu.Lock()
	delete(d.pending, o.Ticket)
	d.mu.Unlock()

	switch {
	case o.Err != nil:
		metrics.Verifications.WithLabelValues("failed").Inc()
		d.logger.Warn("verification failed", "utterance", o.UtteranceID, "error", o.Err)
	case o.Verdict.Skipped:
		metrics.Verifications.WithLabelValues("skipped").Inc()
	default:
		metrics.Verifications.WithLabelValues("complete").Inc()
		d.logger.Debug("verification complete", "utterance", o.UtteranceID, "verdict", o.Verdict.Verdict, "took", o.Duration)
	}
	if d.onResult != nil {
		d.onResult(o)
	}
}

// Pending returns the number of tickets awaiting an outcome
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close stops accepting work and waits for queued verifications
func (d *Dispatcher) Close() {
	if d.pool == nil {
		return
	}
	d.pool.Close()
	<-d.done
}
