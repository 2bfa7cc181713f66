package framework

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRunWithDeadlineReturnsActionResult(t *testing.T) {
	defer goleak.VerifyNone(t)

	assert.NoError(t, RunWithDeadline(context.Background(), time.Second, func(context.Context) error {
		return nil
	}))

	boom := errors.New("no such window")
	assert.Equal(t, boom, RunWithDeadline(context.Background(), time.Second, func(context.Context) error {
		return boom
	}))
}

func TestRunWithDeadlineReportsHangEvenIfActionIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	var finished int32
	start := time.Now()
	err := RunWithDeadline(context.Background(), 50*time.Millisecond, func(context.Context) error {
		<-release
		atomic.StoreInt32(&finished, 1)
		return nil
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, IsDeadline(err))
	assert.Equal(t, "operation did not complete within 50ms", err.Error())
	assert.Less(t, int64(elapsed), int64(time.Second))
	assert.Equal(t, int32(0), atomic.LoadInt32(&finished))

	close(release)
}

func TestRunWithDeadlineTranslatesContextDeadlineFromAction(t *testing.T) {
	defer goleak.VerifyNone(t)

	err := RunWithDeadline(context.Background(), 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.True(t, IsDeadline(err))
}

func TestRunWithDeadlineParentCancellationIsNotADeadline(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RunWithDeadline(ctx, time.Second, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.False(t, IsDeadline(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunWithDeadlineReraisesPanic(t *testing.T) {
	defer goleak.VerifyNone(t)

	assert.PanicsWithValue(t, "failnow", func() {
		_ = RunWithDeadline(context.Background(), time.Second, func(context.Context) error {
			panic("failnow")
		})
	})
}
