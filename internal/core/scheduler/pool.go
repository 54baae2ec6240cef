// Package scheduler runs independent tasks with a bound on how many are in flight.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"liuproxy_prober/internal/shared/logger"
)

// ErrSkipped marks a task that never started because the context was cancelled.
var ErrSkipped = errors.New("task skipped: batch cancelled")

// Task is one unit of work.
type Task func(ctx context.Context) error

// Pool 以有限并发执行任务。任务之间互相隔离: 一个任务失败或 panic 不会影响其它任务。
type Pool struct {
	limit int
}

func New(limit int) *Pool {
	if limit <= 0 {
		limit = 1
	}
	return &Pool{limit: limit}
}

// Limit returns the concurrency bound.
func (p *Pool) Limit() int { return p.limit }

// Run starts tasks in submission order, at most Limit at a time, and waits for all
// started tasks. The returned slice holds each task's error (panics included),
// index-aligned with tasks. The error is ctx.Err() if cancellation left tasks unstarted.
func (p *Pool) Run(ctx context.Context, tasks []Task) ([]error, error) {
	l := logger.WithComponent("Prober/Scheduler")
	errs := make([]error, len(tasks))

	var g errgroup.Group
	g.SetLimit(p.limit)

	var skipped atomic.Int32
	for i, task := range tasks {
		i, task := i, task
		if ctx.Err() != nil {
			errs[i] = ErrSkipped
			skipped.Add(1)
			continue
		}
		// g.Go blocks while every slot is busy; cancellation may land in between.
		g.Go(func() error {
			if ctx.Err() != nil {
				errs[i] = ErrSkipped
				skipped.Add(1)
				return nil
			}
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("task panicked: %v", r)
					l.Error().Int("task", i).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Task panicked, isolated.")
				}
			}()
			if err := task(ctx); err != nil {
				errs[i] = err
				l.Warn().Int("task", i).Err(err).Msg("Task failed.")
			}
			// Never propagate: one failure must not affect the others.
			return nil
		})
	}
	g.Wait()

	if n := int(skipped.Load()); n > 0 {
		l.Warn().Int("skipped", n).Int("total", len(tasks)).Msg("Batch cancelled before all tasks started.")
		return errs, ctx.Err()
	}
	return errs, nil
}
