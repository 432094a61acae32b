package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueRunsSubmittedTasks(t *testing.T) {
	t.Parallel()

	q := NewQueue(nil, 2, 8)
	q.Start()
	defer q.Stop()

	done := make(chan struct{})
	if err := q.Submit("probe", func(ctx context.Context) { close(done) }); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestQueueFullRejectsWithoutBlocking(t *testing.T) {
	t.Parallel()

	// Workers never started, so the buffer fills and stays full.
	q := NewQueue(nil, 1, 1)
	if err := q.Submit("first", func(ctx context.Context) {}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := q.Submit("second", func(ctx context.Context) {}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err=%v want ErrQueueFull", err)
	}
}

func TestQueueRecoversFromPanickingTask(t *testing.T) {
	t.Parallel()

	q := NewQueue(nil, 1, 8)
	q.Start()
	defer q.Stop()

	if err := q.Submit("boom", func(ctx context.Context) { panic("boom") }); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// The worker must survive the panic and keep serving tasks.
	done := make(chan struct{})
	if err := q.Submit("after", func(ctx context.Context) { close(done) }); err != nil {
		t.Fatalf("submit after panic: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestQueueStopCancelsRunningTasks(t *testing.T) {
	t.Parallel()

	q := NewQueue(nil, 1, 8)
	q.Start()

	var cancelled atomic.Bool
	started := make(chan struct{})
	if err := q.Submit("long", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	<-started
	q.Stop()
	if !cancelled.Load() {
		t.Fatal("running task was not cancelled on stop")
	}
}
