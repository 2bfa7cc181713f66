package regressions

import (
	"context"
	"time"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/fixtures"
	"github.com/browser-repro/regression-tests/framework"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	newWindowTimeout    = 5 * time.Second
	frameLookupTimeout  = 20 * time.Second
	handlesTimeout      = 5 * time.Second
	slowWindowDelay     = 30 * time.Second
	windowPollInterval  = 100 * time.Millisecond
	visibilityPollLimit = 5 * time.Second
)

func DoWindowTests(t *T) {
	// Finding an element inside an iframe of a tab opened by a click used to hang forever.
	t.Run("iframe in new window is reachable", func(t *T) {
		session := t.NewSession()
		t.Navigate(session, t.Fixtures().PageURL(fixtures.PageWindowOne))

		original, err := session.CurrentWindowHandle(t.Ctx())
		require.NoError(t, err)
		require.Len(t, t.RequireHandles(session), 1)

		require.NoError(t, t.RequireElement(session, driver.Name("windowTwo")).Click(t.Ctx()))
		handles := awaitWindowCount(t, session, 2)
		require.Len(t, handles, 2)

		for _, h := range handles {
			if h != original {
				require.NoError(t, session.SwitchToWindow(t.Ctx(), h))
				break
			}
		}

		t.RequireWithinDeadline(frameLookupTimeout, func(ctx context.Context) error {
			frame, err := session.FindElement(ctx, driver.ID("the-iframe"))
			if err != nil {
				return err
			}
			if err := session.SwitchToFrame(ctx, frame); err != nil {
				return err
			}
			_, err = session.FindElement(ctx, driver.ID("iframe-header"))
			return err
		})
	})

	// Listing window handles used to block until every window had finished loading.
	t.Run("handles returned while second window loads slowly", func(t *T) {
		slow := t.Fixtures().NewEndpoint(
			fixtures.DelayedHandler(slowWindowDelay, fixtures.PageHandler("Slow Page")), 1, t.DebugLogger())
		t.Defer(slow.Close)

		session := t.NewSession()
		t.Navigate(session, t.Fixtures().OpenerURL(slow.BaseURL()))

		require.NoError(t, t.RequireElement(session, driver.ID("open-slow")).Click(t.Ctx()))
		// the second window must still be loading while the handles are listed
		if _, err := slow.AwaitRequest(newWindowTimeout); err != nil {
			t.HarnessFailNow("second window never requested its page: %s", err)
		}

		var handles []string
		err := t.WithinDeadline(handlesTimeout, func(ctx context.Context) error {
			h, err := session.WindowHandles(ctx)
			handles = h
			return err
		})
		if framework.IsDeadline(err) {
			require.Fail(t, "listing window handles hung while the second window was loading", "%s", err)
		}
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(handles), 2)
	})

	t.Run("minimized window is hidden", func(t *T) {
		session := t.NewSession()
		t.Navigate(session, t.Fixtures().PageURL(fixtures.PageWindowOne))

		err := session.MinimizeWindow(t.Ctx())
		t.SkipIfUnsupported(err)
		require.NoError(t, err)

		// visibilitychange is dispatched asynchronously after the window state changes.
		var state string
		_, err = framework.PollUntil(t.Ctx(), windowPollInterval, visibilityPollLimit, func() (bool, error) {
			v, err := session.ExecuteScript(t.Ctx(), "return document.visibilityState")
			if err != nil {
				return false, err
			}
			state = v.StringValue()
			return state == "hidden", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "hidden", state)
	})
}

// awaitWindowCount waits briefly for a window opened by a click to show up, and returns the
// handles seen last.
func awaitWindowCount(t *T, session driver.Session, count int) []string {
	var handles []string
	_, err := framework.PollUntil(t.Ctx(), windowPollInterval, newWindowTimeout, func() (bool, error) {
		h, err := session.WindowHandles(t.Ctx())
		handles = h
		return len(h) >= count, err
	})
	require.NoError(t, err)
	return handles
}
