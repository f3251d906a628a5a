package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrQueueFull is returned by Notify when the entry was dropped.
	ErrQueueFull = errors.New("audit queue full")
	// ErrClosed is returned by Notify after Close.
	ErrClosed = errors.New("audit queue closed")
)

// Options configures a Queue.
type Options struct {
	// Size is the number of entries buffered before Notify starts dropping.
	Size int
	// Workers is the number of goroutines writing to the sinks.
	Workers int
	// MaxElapsed bounds how long one entry is retried against one sink.
	MaxElapsed time.Duration
	// InitialInterval is the first retry delay. Zero uses the backoff default.
	InitialInterval time.Duration
	Logger          *slog.Logger
}

// Queue buffers entries and delivers each one to every sink, retrying every
// sink independently with exponential backoff.
type Queue struct {
	sinks   []Sink
	records chan Entry
	opts    Options
	logger  *slog.Logger

	// cancelled on Close deadline to stop pending retries
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	// OTEL metrics
	appended     metric.Int64Counter
	dropped      metric.Int64Counter
	failed       metric.Int64Counter
	registration metric.Registration
}

// NewQueue starts the workers. Uses the global OTel meter for metrics.
func NewQueue(opts Options, sinks ...Sink) (*Queue, error) {
	if opts.Size <= 0 {
		opts.Size = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		sinks:   sinks,
		records: make(chan Entry, opts.Size),
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := q.initMetrics(); err != nil {
		cancel()
		return nil, err
	}

	for i := 0; i < opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q, nil
}

func (q *Queue) initMetrics() error {
	m := meter()

	var err error
	q.appended, err = m.Int64Counter(
		"audit.records.appended",
		metric.WithDescription("Total audit records written to a sink"),
	)
	if err != nil {
		return fmt.Errorf("creating appended counter: %w", err)
	}

	q.dropped, err = m.Int64Counter(
		"audit.records.dropped",
		metric.WithDescription("Total audit records dropped due to full queue"),
	)
	if err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}

	q.failed, err = m.Int64Counter(
		"audit.records.failed",
		metric.WithDescription("Total audit records a sink gave up on"),
	)
	if err != nil {
		return fmt.Errorf("creating failed counter: %w", err)
	}

	size, err := m.Int64ObservableGauge(
		"audit.queue.size",
		metric.WithDescription("Current number of audit records in queue"),
	)
	if err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}

	q.registration, err = m.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(size, int64(q.Len()))
			return nil
		},
		size,
	)
	if err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}
	return nil
}

// Notify enqueues e. It never blocks: a full queue drops the entry.
func (q *Queue) Notify(e Entry) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.records <- e:
		return nil
	default:
		q.dropped.Add(context.Background(), 1)
		q.logger.Warn("audit record dropped", "op", e.Op, "marker", e.MarkerID)
		return ErrQueueFull
	}
}

// Len returns the number of buffered entries.
func (q *Queue) Len() int {
	return len(q.records)
}

// Close stops accepting entries, drains the buffer and closes every sink.
// If ctx expires first, pending retries are abandoned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.records)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		q.cancel()
		<-done
		errs = append(errs, fmt.Errorf("drain audit queue: %w", ctx.Err()))
	}
	q.cancel()

	if q.registration != nil {
		if err := q.registration.Unregister(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range q.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s sink: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for e := range q.records {
		for _, s := range q.sinks {
			q.deliver(s, e)
		}
	}
}

func (q *Queue) deliver(s Sink, e Entry) {
	sinkAttr := metric.WithAttributes(attribute.String("sink", s.Name()))

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = q.opts.MaxElapsed
	if q.opts.InitialInterval > 0 {
		b.InitialInterval = q.opts.InitialInterval
	}

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return s.Append(q.ctx, e)
	}, backoff.WithContext(b, q.ctx))

	if err != nil {
		q.failed.Add(context.Background(), 1, sinkAttr)
		q.logger.Warn("audit record not written",
			"sink", s.Name(), "op", e.Op, "marker", e.MarkerID, "attempts", attempts, "error", err)
		return
	}
	q.appended.Add(context.Background(), 1, sinkAttr)
	q.logger.Debug("audit record written", "sink", s.Name(), "message", e.Message())
}
