// Package queue implements the FIFO operation queue that serializes every
// durable write and delete. A single worker drains it, so at most one
// operation is in flight and operations complete in submission order.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrClosed is returned for operations submitted after Close.
var ErrClosed = errors.New("queue is closed")

// Op is one durable operation.
type Op func() error

type job struct {
	name     string
	fn       Op
	done     chan error // nil for fire-and-forget jobs
	enqueued time.Time
}

// Options tunes a Queue. The zero value is usable.
type Options struct {
	Logger *zap.Logger

	// SlowOpThreshold logs a warning for any op still running after this
	// long. The op keeps running; nothing is cancelled or reordered.
	SlowOpThreshold time.Duration

	// OnDone is called by the worker after every op, in order.
	OnDone func(name string, elapsed time.Duration, err error)
}

// Queue is an unbounded FIFO of operations with a single consumer.
type Queue struct {
	mu     sync.Mutex
	items  []job
	notify chan struct{}
	closed bool

	logger *zap.Logger
	slow   time.Duration
	onDone func(string, time.Duration, error)
}

// New creates an empty queue. Call Run to start draining it.
func New(opts Options) *Queue {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		notify: make(chan struct{}, 1),
		logger: logger,
		slow:   opts.SlowOpThreshold,
		onDone: opts.OnDone,
	}
}

// Enqueue appends an op without waiting for it. Failures are reported
// through OnDone only.
func (q *Queue) Enqueue(name string, fn Op) error {
	return q.push(job{name: name, fn: fn})
}

// Submit appends an op and returns a channel that receives its result once
// the worker has run it.
func (q *Queue) Submit(name string, fn Op) <-chan error {
	done := make(chan error, 1)
	if err := q.push(job{name: name, fn: fn, done: done}); err != nil {
		done <- err
	}
	return done
}

// Do submits an op and waits for its result or for ctx to end. A ctx
// error does not cancel the op; it still runs in its turn.
func (q *Queue) Do(ctx context.Context, name string, fn Op) error {
	select {
	case err := <-q.Submit(name, fn):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain blocks until every op enqueued before the call has completed.
func (q *Queue) Drain(ctx context.Context) error {
	return q.Do(ctx, "drain", func() error { return nil })
}

// Len returns the number of ops waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting ops. Run returns once the backlog is drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

// Run drains the queue until it is closed and empty or ctx is cancelled.
// Exactly one goroutine may call Run.
func (q *Queue) Run(ctx context.Context) {
	for {
		j, ok := q.next(ctx)
		if !ok {
			return
		}
		q.execute(j)
	}
}

// ---------- internal ----------

func (q *Queue) push(j job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	j.enqueued = time.Now()
	q.items = append(q.items, j)

	// Non-blocking notify.
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// next blocks until a job is available. Returns false when the queue is
// closed and empty, or ctx is done.
func (q *Queue) next(ctx context.Context) (job, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			j := q.items[0]
			q.items[0] = job{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return j, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return job{}, false
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return job{}, false
		}
	}
}

func (q *Queue) execute(j job) {
	start := time.Now()

	var timer *time.Timer
	if q.slow > 0 {
		timer = time.AfterFunc(q.slow, func() {
			q.logger.Warn("storage operation is slow; later operations are waiting",
				zap.String("op", j.name),
				zap.Duration("threshold", q.slow),
				zap.Duration("queued", start.Sub(j.enqueued)),
			)
		})
	}

	err := safeCall(j.fn)

	if timer != nil {
		timer.Stop()
	}
	elapsed := time.Since(start)

	if err != nil {
		q.logger.Debug("storage operation failed", zap.String("op", j.name), zap.Error(err))
	}
	if q.onDone != nil {
		q.onDone(j.name, elapsed, err)
	}
	if j.done != nil {
		j.done <- err
	}
}

// safeCall turns a panicking op into an error so one bad op cannot kill
// the worker.
func safeCall(fn Op) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return fn()
}
