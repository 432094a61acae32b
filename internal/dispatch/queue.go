// Package dispatch runs outbound work off the webhook request path: a
// bounded worker pool plus the send-and-persist job.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned when the task buffer is saturated.
var ErrQueueFull = errors.New("dispatch queue full")

type task struct {
	name string
	fn   func(ctx context.Context)
}

// Queue is a fixed-size worker pool. Tasks are self-contained; ordering
// between tasks is not guaranteed.
type Queue struct {
	tasks   chan task
	workers int
	logger  *slog.Logger

	once   sync.Once
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewQueue creates a queue with the given worker count and buffer size.
func NewQueue(log *slog.Logger, workers, size int) *Queue {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	if size <= 0 {
		size = 256
	}
	return &Queue{
		tasks:   make(chan task, size),
		workers: workers,
		logger:  log.With(slog.String("component", "dispatch")),
	}
}

// Start launches the workers.
func (q *Queue) Start() {
	q.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		q.cancel = cancel
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.worker(ctx)
		}
	})
}

// Stop drains nothing: queued tasks not yet picked up are abandoned, and
// running tasks are cancelled through their context.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// Submit enqueues a task without blocking the caller.
func (q *Queue) Submit(name string, fn func(ctx context.Context)) error {
	select {
	case q.tasks <- task{name: name, fn: fn}:
		return nil
	default:
		q.logger.Error("task dropped", slog.String("task", name))
		return ErrQueueFull
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.tasks:
			q.run(ctx, t)
		}
	}
}

func (q *Queue) run(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", slog.String("task", t.name), slog.Any("panic", r))
		}
	}()
	t.fn(ctx)
}
