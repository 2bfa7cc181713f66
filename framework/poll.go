package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
)

// PollUntil calls check immediately and then once per interval until it returns true, returns
// an error, or the deadline elapses. It returns false with a nil error if the deadline elapsed
// first, and the context's error if the context was cancelled first.
func PollUntil(
	ctx context.Context,
	interval time.Duration,
	deadline time.Duration,
	check func() (bool, error),
) (bool, error) {
	if interval <= 0 {
		return false, fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := check()
		if err != nil || ok {
			return ok, err
		}
		select {
		case <-ticker.C:
		case <-timer.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// AwaitArtifact waits for a file to exist. The file is detected within one interval of its
// appearance; if it never appears, AwaitArtifact returns false when the deadline elapses.
//
// A nil fs means the real filesystem.
func AwaitArtifact(
	ctx context.Context,
	fs afero.Fs,
	path string,
	interval time.Duration,
	deadline time.Duration,
) (bool, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return PollUntil(ctx, interval, deadline, func() (bool, error) {
		exists, err := afero.Exists(fs, path)
		if err != nil {
			return false, fmt.Errorf("checking for artifact %s: %w", path, err)
		}
		return exists, nil
	})
}
