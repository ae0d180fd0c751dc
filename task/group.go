// Package task runs a set of related long-lived tasks, such as the
// per-replica pollers of a registry, as a group with shared cancellation.
package task

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Group runs queued tasks concurrently under a shared Context. The Context
// is cancelled when any task errors, when Cancel is called, or when the
// parent Context is cancelled; tasks are expected to watch the Context and
// return promptly once it resolves. Group methods are not thread-safe:
// queue from one goroutine, then GoRun and Wait.
type Group struct {
	ctx      context.Context
	cancelFn context.CancelFunc

	tasks   []task
	eg      *errgroup.Group
	started bool
}

// task is a queued function with a description, which prefixes its error.
type task struct {
	desc string
	fn   func() error
}

// NewGroup returns an empty Group rooted at the Context.
func NewGroup(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	return &Group{ctx: ctx, eg: eg, cancelFn: cancel}
}

// Context returns the Group's shared Context.
func (g *Group) Context() context.Context { return g.ctx }

// Cancel resolves the Group's Context, stopping its tasks.
func (g *Group) Cancel() { g.cancelFn() }

// Queue adds a task to be started by GoRun. It panics if GoRun has
// already been called.
func (g *Group) Queue(desc string, fn func() error) {
	if g.started {
		panic("Queue called after GoRun")
	}
	g.tasks = append(g.tasks, task{desc: desc, fn: fn})
}

// GoRun starts every queued task in its own goroutine. It panics on a
// second invocation.
func (g *Group) GoRun() {
	if g.started {
		panic("GoRun already called")
	}
	g.started = true

	for i := range g.tasks {
		var t = g.tasks[i]
		g.eg.Go(func() error { return errors.WithMessage(t.fn(), t.desc) })
	}
}

// Wait blocks until every started task returns, and returns the first
// non-nil task error. It panics if GoRun has not been called.
func (g *Group) Wait() error {
	if !g.started {
		panic("Wait called before GoRun")
	}
	return g.eg.Wait()
}
