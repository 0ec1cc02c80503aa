// Package async runs documents through a handler on a fixed worker pool.
package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document waiting to be processed.
type Job struct {
	Path        string
	SubmittedAt time.Time
	TraceID     string
}

// Handler processes one job. Errors are logged, never retried.
type Handler func(ctx context.Context, job Job) error

type Queue struct {
	handle  Handler
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(handle Handler, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		handle:  handle,
		logger:  logger,
		workers: 2,
		timeout: time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.work(i + 1)
		}
	})
}

func (q *Queue) work(workerID int) {
	defer q.wg.Done()
	q.logger.Debug("worker started", "worker_id", workerID)

	for job := range q.ch {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.run(ctx, job)
		cancel()

		if err != nil {
			q.logger.Error("queue.job.failed", "worker_id", workerID, "path", job.Path, "trace_id", job.TraceID, "error", err)
			continue
		}
		q.logger.Info("queue.job.ok",
			"worker_id", workerID,
			"path", job.Path,
			"trace_id", job.TraceID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}

	q.logger.Debug("worker stopped", "worker_id", workerID)
}

// run shields the worker from a panicking handler.
func (q *Queue) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue.job.panic", "path", job.Path, "panic", r)
			err = errors.New("handler panicked")
		}
	}()
	return q.handle(ctx, job)
}

// Enqueue blocks while the queue is full, until ctx is done.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "path", job.Path)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}

	select {
	case q.ch <- job:
		q.logger.Debug("queue.job.enqueued", "path", job.Path, "trace_id", job.TraceID)
		return nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "path", job.Path)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or for
// ctx to expire.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
		return ctx.Err()
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
		return nil
	}
}
