// Package pool runs indexed tasks on a fixed number of worker slots.
package pool

import (
	"context"
)

// Task is one unit of work. i is the task's index in [0, n).
type Task func(ctx context.Context, i int) error

// Pool holds up to Size tasks in flight at once.
type Pool struct {
	size int
}

func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size}
}

func (p *Pool) Size() int {
	return p.size
}

// Run starts task for every index in order. When every slot is busy it waits
// for one to finish before starting the next task, so at most Size tasks run
// concurrently and nothing is queued.
//
// Before each start Run checks ctx and the results collected so far. Once ctx
// is done or a task has failed no further tasks are started; the ones already
// running are waited for. Running tasks are not interrupted by Run.
//
// The first task error is returned. Otherwise ctx.Err() is returned if
// scheduling stopped early, and nil if every task ran.
func (p *Pool) Run(ctx context.Context, n int, task Task) error {
	done := make(chan error, p.size)
	active := 0

	var firstErr error
	reap := func(err error) {
		active--
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	stopped := false
	for i := 0; i < n; i++ {
		// pick up slots that already finished
	collect:
		for active > 0 {
			select {
			case err := <-done:
				reap(err)
			default:
				break collect
			}
		}

		if active == p.size {
			reap(<-done)
		}

		if firstErr != nil || ctx.Err() != nil {
			stopped = true
			break
		}

		active++
		i := i
		go func() {
			done <- task(ctx, i)
		}()
	}

	for active > 0 {
		reap(<-done)
	}

	if firstErr != nil {
		return firstErr
	}
	if stopped {
		return ctx.Err()
	}
	return nil
}
