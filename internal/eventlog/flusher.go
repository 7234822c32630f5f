package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/pressure.report/internal/timeutil"
)

const (
	// DefaultFlushInterval is how often buffered rows are persisted.
	DefaultFlushInterval = 60 * time.Second
	// DefaultFinalAttempts is how many times the shutdown flush retries the
	// primary sink before falling back.
	DefaultFinalAttempts = 3
)

// ErrUnflushed is returned when the final flush could not persist every
// buffered row to any sink.
var ErrUnflushed = errors.New("event log rows left unflushed")

// FlusherConfig contains configuration for Flusher.
type FlusherConfig struct {
	// Buffer is drained on every flush. The flusher must be its only reader.
	Buffer *Buffer
	// Sinks receive every drained batch. Delivery is tracked per sink, so
	// a retry only goes to the sinks that have not persisted the rows.
	Sinks []Sink
	// Fallback is optional; the final flush writes to it when a sink keeps
	// failing.
	Fallback Sink
	// Interval between periodic flushes; zero uses DefaultFlushInterval.
	Interval time.Duration
	// FinalAttempts bounds retries of the final flush; zero uses
	// DefaultFinalAttempts.
	FinalAttempts int
	// Clock drives the periodic ticker; nil uses the real clock.
	Clock timeutil.Clock
	// Logger is optional; if nil, uses log.Default().
	Logger *log.Logger
}

// Flusher periodically drains a Buffer into its sinks and performs one last
// flush when stopped. Rows some sink failed to persist are requeued so the
// next attempt writes them first, to that sink only.
type Flusher struct {
	buf           *Buffer
	sinks         []Sink
	fallback      Sink
	interval      time.Duration
	finalAttempts int
	clock         timeutil.Clock
	logger        *log.Logger

	// flushMu serialises flushes. skip[i] counts the rows at the head of
	// buf that sinks[i] already holds.
	flushMu sync.Mutex
	skip    []int

	mu       sync.Mutex
	running  bool
	closed   bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	finalErr error
}

// NewFlusher creates a Flusher. It does not start flushing until Run.
func NewFlusher(cfg FlusherConfig) *Flusher {
	f := &Flusher{
		buf:           cfg.Buffer,
		sinks:         cfg.Sinks,
		skip:          make([]int, len(cfg.Sinks)),
		fallback:      cfg.Fallback,
		interval:      cfg.Interval,
		finalAttempts: cfg.FinalAttempts,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	if f.buf == nil {
		f.buf = NewBuffer()
	}
	if f.interval <= 0 {
		f.interval = DefaultFlushInterval
	}
	if f.finalAttempts <= 0 {
		f.finalAttempts = DefaultFinalAttempts
	}
	if f.clock == nil {
		f.clock = timeutil.RealClock{}
	}
	if f.logger == nil {
		f.logger = log.Default()
	}
	return f
}

// Buffer returns the buffer this flusher drains.
func (f *Flusher) Buffer() *Buffer { return f.buf }

// Run flushes on every interval until ctx is cancelled or Close is called,
// then performs the final flush. It returns the final flush error.
func (f *Flusher) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.running || f.closed {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	f.mu.Unlock()

	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()
	f.logger.Printf("eventlog: flusher started: interval=%v", f.interval)

	for {
		select {
		case <-ctx.Done():
			f.logger.Printf("eventlog: flusher stopping due to context cancellation")
			return f.finish()
		case <-f.stopCh:
			return f.finish()
		case <-ticker.C():
			// periodic failures are retried on the next tick
			_ = f.FlushNow(ctx)
		}
	}
}

// finish runs the final flush on the Run goroutine and records its result
// for Close.
func (f *Flusher) finish() error {
	err := f.flushFinal()
	f.mu.Lock()
	f.finalErr = err
	f.closed = true
	f.running = false
	f.mu.Unlock()
	close(f.doneCh)
	return err
}

// FlushNow drains the buffer into every sink immediately. Each sink is sent
// only the rows it does not already hold. Rows any sink failed to persist
// are requeued and the joined sink errors are returned.
func (f *Flusher) FlushNow(ctx context.Context) error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()

	rows := f.buf.Drain()
	if len(rows) == 0 || len(f.sinks) == 0 {
		f.buf.Requeue(rows)
		return nil
	}

	var errs []error
	held := make([]int, len(f.sinks))
	minHeld := len(rows)
	for i, s := range f.sinks {
		held[i] = f.skip[i]
		if held[i] < len(rows) {
			if err := s.WriteRows(ctx, rows[held[i]:]); err != nil {
				errs = append(errs, err)
			} else {
				held[i] = len(rows)
			}
		}
		minHeld = min(minHeld, held[i])
	}
	for i := range f.skip {
		f.skip[i] = held[i] - minHeld
	}
	f.buf.Requeue(rows[minHeld:])

	if err := errors.Join(errs...); err != nil {
		f.logger.Printf("eventlog: error flushing %d rows (%d pending): %v", len(rows), len(rows)-minHeld, err)
		return err
	}
	f.logger.Printf("eventlog: flushed %d rows", len(rows))
	return nil
}

// Close stops the periodic loop and blocks until the final flush has run.
// When Run was never started the final flush runs on the caller. Close is
// safe to call more than once; later calls return the first result.
func (f *Flusher) Close() error {
	f.mu.Lock()
	switch {
	case f.running:
		select {
		case <-f.stopCh:
		default:
			close(f.stopCh)
		}
		f.mu.Unlock()
		<-f.doneCh
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.finalErr
	case f.closed:
		defer f.mu.Unlock()
		return f.finalErr
	default:
		f.closed = true
		f.mu.Unlock()
	}

	err := f.flushFinal()
	f.mu.Lock()
	f.finalErr = err
	f.mu.Unlock()
	return err
}

// flushFinal writes everything still buffered, retrying the sinks and then
// writing whatever some sink still lacks to the fallback. It does not use the run context, which is
// normally cancelled by then.
func (f *Flusher) flushFinal() error {
	ctx := context.Background()
	var err error
	for attempt := 1; attempt <= f.finalAttempts; attempt++ {
		if err = f.FlushNow(ctx); err == nil {
			if f.buf.Len() == 0 {
				f.logger.Printf("eventlog: final flush complete")
				return nil
			}
			// rows appended during the flush; go round again
			continue
		}
		f.logger.Printf("eventlog: final flush attempt %d/%d failed: %v", attempt, f.finalAttempts, err)
	}

	f.flushMu.Lock()
	defer f.flushMu.Unlock()
	rows := f.buf.Drain()
	if len(rows) == 0 {
		return nil
	}
	if f.fallback != nil {
		ferr := f.fallback.WriteRows(ctx, rows)
		if ferr == nil {
			clear(f.skip)
			f.logger.Printf("eventlog: final flush wrote %d rows to fallback sink", len(rows))
			return nil
		}
		err = errors.Join(err, ferr)
	}
	f.buf.Requeue(rows)
	return fmt.Errorf("%w: %d rows: %v", ErrUnflushed, len(rows), err)
}
