package regressions

import (
	"net/http"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/fixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const googleURL = "https://www.google.com"

// DoSetupTests checks that a session can be created and used at all. If these fail, nothing
// else in the run means much.
func DoSetupTests(t *T) {
	t.Run("navigate to google.com", func(t *T) {
		t.RequireCapability(CapabilityNetwork)
		session := t.NewSession()

		t.Navigate(session, googleURL)
		assert.Equal(t, "Google", t.RequireTitle(session))
	})

	t.Run("navigate to a local page", func(t *T) {
		session := t.NewSession()

		t.Navigate(session, t.Fixtures().PageURL(fixtures.PageWindowOne))
		assert.Equal(t, "Window One", t.RequireTitle(session))
	})

	// Deleting emulated network conditions used to leave the browser unable to load pages.
	t.Run("navigate after deleting network conditions", func(t *T) {
		t.RequireBackend(driver.BackendWebDriver)
		session := t.NewSession()
		commander := t.RequireCommander(session)

		_, err := commander.Command(t.Ctx(), http.MethodPost, "/chromium/network_conditions", map[string]interface{}{
			"network_conditions": map[string]interface{}{
				"offline":             false,
				"latency":             5,
				"download_throughput": 500 * 1024,
				"upload_throughput":   500 * 1024,
			},
		})
		require.NoError(t, err, "setting network conditions")
		_, err = commander.Command(t.Ctx(), http.MethodDelete, "/chromium/network_conditions", nil)
		require.NoError(t, err, "deleting network conditions")

		t.Navigate(session, t.Fixtures().PageURL(fixtures.PageInput))
		assert.Equal(t, "Input Test", t.RequireTitle(session))
	})
}
