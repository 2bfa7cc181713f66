package framework

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DeadlineError is returned by RunWithDeadline when the action did not finish in time.
type DeadlineError struct {
	Limit time.Duration
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("operation did not complete within %s", e.Limit)
}

type actionResult struct {
	err      error
	panicked bool
	panicVal interface{}
}

// RunWithDeadline runs an action that is expected to finish well within limit. If it does not,
// RunWithDeadline returns a *DeadlineError as soon as the limit elapses, even if the action
// ignores its context; the action keeps running in the background until it notices.
//
// A panic inside the action (such as a FailNow from a test assertion) is re-raised on the
// calling goroutine if it happens before the deadline.
func RunWithDeadline(ctx context.Context, limit time.Duration, action func(context.Context) error) error {
	boundedCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan actionResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- actionResult{panicked: true, panicVal: r}
			}
		}()
		done <- actionResult{err: action(boundedCtx)}
	}()

	select {
	case result := <-done:
		if result.panicked {
			panic(result.panicVal)
		}
		if result.err != nil && errors.Is(result.err, context.DeadlineExceeded) &&
			errors.Is(boundedCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return &DeadlineError{Limit: limit}
		}
		return result.err
	case <-boundedCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &DeadlineError{Limit: limit}
	}
}

// IsDeadline returns true if err is or wraps a *DeadlineError.
func IsDeadline(err error) bool {
	var de *DeadlineError
	return errors.As(err, &de)
}
