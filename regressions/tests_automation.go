package regressions

import (
	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/sessiondef"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func DoAutomationTests(t *T) {
	// navigator.webdriver must be true for any browser under WebDriver control. With
	// enable-automation excluded and a fixed remote debugging port it used to be false.
	t.Run("navigator.webdriver with enable-automation excluded", func(t *T) {
		t.RequireBackend(driver.BackendWebDriver)
		session := t.NewSession(
			sessiondef.WithArgs("--remote-debugging-port=9222"),
			sessiondef.WithExcludedSwitches("enable-automation"),
		)

		t.Navigate(session, "about:blank")
		value, err := session.ExecuteScript(t.Ctx(), "return navigator.webdriver")
		require.NoError(t, err)
		assert.True(t, value.BoolValue(), "navigator.webdriver was %s", value.JSONString())
	})
}
