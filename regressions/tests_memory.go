package regressions

import (
	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/fixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	missingElementWarmup  = 20
	missingElementLookups = 500
	maxMemoryGrowthBytes  = 64 * 1024 * 1024
)

var missingElement = driver.ID("this-element-does-not-exist")

func DoMemoryTests(t *T) {
	// Each failed lookup used to leave something behind in the driver or the browser.
	t.Run("repeated missing-element lookups do not leak", func(t *T) {
		t.RequireCapability(CapabilityProcessMemory)
		session := t.NewSession()
		if session.ProcessID() == 0 {
			t.SkipWithReason("the session has no local process to measure")
		}
		t.Navigate(session, t.Fixtures().PageURL(fixtures.PageInput))

		lookUpMissing := func(n int) {
			for i := 0; i < n; i++ {
				_, found := t.FindOptional(session, missingElement)
				require.False(t, found, "%s unexpectedly exists", missingElement)
			}
		}

		// the first lookups allocate caches that are not leaks
		lookUpMissing(missingElementWarmup)
		before, err := driver.ProcessTreeMemory(session.ProcessID())
		require.NoError(t, err)

		lookUpMissing(missingElementLookups)
		after, err := driver.ProcessTreeMemory(session.ProcessID())
		require.NoError(t, err)

		t.Debug("process tree memory: %d bytes before, %d bytes after %d lookups",
			before, after, missingElementLookups)
		assert.Less(t, after-before, maxMemoryGrowthBytes,
			"memory grew by %d bytes over %d missing-element lookups", after-before, missingElementLookups)
	})
}
