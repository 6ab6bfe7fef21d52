// Package supervisor runs background tasks that must never take the
// process down: errors and panics are logged, siblings keep running.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Task is a unit of supervised work.
type Task func(ctx context.Context) error

// Group supervises tasks. Unlike errgroup, a failing task never cancels
// the others and Wait never returns an error.
type Group struct {
	logger *zap.Logger
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
}

// New creates a group. maxInflight bounds tasks started with GoBounded;
// zero or negative means unbounded.
func New(maxInflight int64, logger *zap.Logger) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Group{logger: logger}
	if maxInflight > 0 {
		g.sem = semaphore.NewWeighted(maxInflight)
	}
	return g
}

// Go runs task in a new goroutine.
func (g *Group) Go(ctx context.Context, name string, task Task) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.run(ctx, name, task)
	}()
}

// GoBounded runs task once a slot is free. It never blocks the caller:
// the goroutine is spawned immediately and waits for the slot itself.
// If ctx ends before a slot frees up the task is skipped.
func (g *Group) GoBounded(ctx context.Context, name string, task Task) {
	if g.sem == nil {
		g.Go(ctx, name, task)
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.sem.Acquire(ctx, 1); err != nil {
			g.logger.Warn("task skipped, no slot", zap.String("task", name), zap.Error(err))
			return
		}
		defer g.sem.Release(1)
		g.run(ctx, name, task)
	}()
}

func (g *Group) run(ctx context.Context, name string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("task panicked",
				zap.String("task", name),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	if err := task(ctx); err != nil {
		g.logger.Warn("task failed", zap.String("task", name), zap.Error(err))
	}
}

// Wait blocks until every task started so far has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}
