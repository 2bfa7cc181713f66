package regressions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/browser-repro/regression-tests/fixtures"
	"github.com/browser-repro/regression-tests/framework"

	"github.com/stretchr/testify/assert"
)

const (
	// The alert is raised by a zero-delay timer after the page loads, so there is no event we
	// can wait for that says it is showing. Give it this long before relying on it.
	dialogSettleTime = 500 * time.Millisecond
	// Loading the alert page may not finish while the alert is open.
	dialogNavigationLimit  = 5 * time.Second
	otherSessionPageLoads  = 3
	otherSessionTimeLimit  = 30 * time.Second
	dialogSessionHoldLimit = otherSessionTimeLimit + 5*time.Second
)

func DoConcurrencyTests(t *T) {
	// A dialog left open in one browser used to stall commands that the same chromedriver
	// received for another browser.
	t.Run("unhandled dialog does not stall another session", func(t *T) {
		shared := t.SharedDriver()
		dialogSession := t.NewSessionOn(shared)
		otherSession := t.NewSessionOn(shared)

		dialogShown := make(chan struct{})
		otherDone := make(chan struct{})
		pages := []string{fixtures.PageInput, fixtures.PageWindowOne, fixtures.PageConsole}

		errs := t.Concurrently(
			func(ctx context.Context) error {
				err := t.WithinDeadline(dialogNavigationLimit, func(ctx context.Context) error {
					return dialogSession.Navigate(ctx, t.Fixtures().PageURL(fixtures.PageAlert))
				})
				if err != nil && !framework.IsDeadline(err) && !mentionsAlert(err) {
					close(dialogShown)
					return fmt.Errorf("opening the alert page: %w", err)
				}
				time.Sleep(dialogSettleTime)
				close(dialogShown)
				// keep the dialog open until the other session has finished
				select {
				case <-otherDone:
				case <-time.After(dialogSessionHoldLimit):
				case <-ctx.Done():
				}
				return nil
			},
			func(ctx context.Context) error {
				defer close(otherDone)
				select {
				case <-dialogShown:
				case <-ctx.Done():
					return ctx.Err()
				}
				return t.WithinDeadline(otherSessionTimeLimit, func(ctx context.Context) error {
					for i := 0; i < otherSessionPageLoads; i++ {
						page := pages[i%len(pages)]
						if err := otherSession.Navigate(ctx, t.Fixtures().PageURL(page)); err != nil {
							return fmt.Errorf("navigating to %s: %w", page, err)
						}
						if _, err := otherSession.Title(ctx); err != nil {
							return fmt.Errorf("reading title of %s: %w", page, err)
						}
					}
					return nil
				})
			},
		)

		if errs[0] != nil {
			t.HarnessFailNow("%s", errs[0])
		}
		assert.NoError(t, errs[1], "the second session was disturbed by the open dialog")
	})
}

// mentionsAlert reports whether a navigation error is the driver complaining about the alert
// that the page opened while loading.
func mentionsAlert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "alert")
}
