package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_ConcurrencyBound(t *testing.T) {
	for _, limit := range []int{1, 2, 5} {
		for _, n := range []int{0, 1, 3, 17} {
			var running, peak, done int32
			tasks := make([]Task, n)
			for i := range tasks {
				tasks[i] = func(ctx context.Context) error {
					cur := atomic.AddInt32(&running, 1)
					for {
						old := atomic.LoadInt32(&peak)
						if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					atomic.AddInt32(&running, -1)
					atomic.AddInt32(&done, 1)
					return nil
				}
			}

			errs, err := New(limit).Run(context.Background(), tasks)
			if err != nil {
				t.Fatalf("limit=%d n=%d: unexpected error %v", limit, n, err)
			}
			if len(errs) != n {
				t.Fatalf("expected %d error slots, got %d", n, len(errs))
			}
			if p := atomic.LoadInt32(&peak); p > int32(limit) {
				t.Errorf("limit=%d n=%d: peak concurrency %d exceeds limit", limit, n, p)
			}
			if d := atomic.LoadInt32(&done); d != int32(n) {
				t.Errorf("limit=%d n=%d: expected all tasks to run, got %d", limit, n, d)
			}
		}
	}
}

func TestPool_IsolatesFailuresAndPanics(t *testing.T) {
	var ran int32
	boom := errors.New("boom")
	tasks := []Task{
		func(ctx context.Context) error { atomic.AddInt32(&ran, 1); return boom },
		func(ctx context.Context) error { atomic.AddInt32(&ran, 1); panic("unexpected") },
		func(ctx context.Context) error { atomic.AddInt32(&ran, 1); return nil },
	}

	errs, err := New(1).Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&ran) != 3 {
		t.Fatalf("every task must run, ran=%d", ran)
	}
	if !errors.Is(errs[0], boom) {
		t.Errorf("expected task 0 error, got %v", errs[0])
	}
	if errs[1] == nil {
		t.Error("expected panic to be converted into an error")
	}
	if errs[2] != nil {
		t.Errorf("expected task 2 to succeed, got %v", errs[2])
	}
}

func TestPool_CancellationSkipsPendingTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ran int32
	tasks := make([]Task, 5)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			cancel()
			return nil
		}
	}

	errs, err := New(1).Run(ctx, tasks)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := atomic.LoadInt32(&ran); got != 1 {
		t.Errorf("only the first task may run, ran=%d", got)
	}
	if errs[0] != nil {
		t.Errorf("first task should succeed, got %v", errs[0])
	}
	for i := 1; i < len(errs); i++ {
		if !errors.Is(errs[i], ErrSkipped) {
			t.Errorf("task %d: expected ErrSkipped, got %v", i, errs[i])
		}
	}
}

func TestPool_TaskQueuedForSlotSkippedAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	release := make(chan struct{})
	var ran int32
	tasks := []Task{
		func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			<-release
			return nil
		},
		func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		},
	}

	// Task 1 passes the pre-submit check and waits for the only slot.
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
		close(release)
	}()

	errs, err := New(1).Run(ctx, tasks)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := atomic.LoadInt32(&ran); got != 1 {
		t.Errorf("queued task must not run after cancel, ran=%d", got)
	}
	if !errors.Is(errs[1], ErrSkipped) {
		t.Errorf("expected ErrSkipped for queued task, got %v", errs[1])
	}
}
