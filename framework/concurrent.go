package framework

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RunConcurrently runs each task on its own goroutine and waits for all of them. The returned
// slice has one entry per task, in task order. A failing task does not cancel the others:
// the point of running them together is usually to see whether one disturbs the rest.
func RunConcurrently(ctx context.Context, tasks ...func(context.Context) error) []error {
	errs := make([]error, len(tasks))
	var g errgroup.Group
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("task %d panicked: %v", i+1, r)
				}
			}()
			errs[i] = task(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
