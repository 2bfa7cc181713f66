package regressions

import (
	"errors"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/driver/webdriver"
	"github.com/browser-repro/regression-tests/sessiondef"

	"github.com/stretchr/testify/assert"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Top-level capabilities that chromedriver used to return without the vendor prefix.
var nonW3CCapabilities = []string{"networkConnectionEnabled", "chrome"}

func DoCapabilityTests(t *T) {
	t.Run("W3C session is the default", func(t *T) {
		t.RequireBackend(driver.BackendWebDriver)
		session := t.NewSession()

		t.Debug("Default session capabilities: %s", session.Capabilities().JSONString())
		assert.True(t, webdriver.IsW3C(session.Capabilities()),
			"the default session should be W3C compliant and report %s", sessiondef.CapabilityChromeOptions)
	})

	// Asking for w3c:false may either be refused outright, or be ignored in favor of a W3C
	// session; only a genuine legacy session means the old protocol is still there. Failing to
	// create the session for any other reason says nothing about the protocol.
	t.Run("legacy protocol is rejected", func(t *T) {
		t.RequireBackend(driver.BackendWebDriver)
		session, err := t.TryNewSession(sessiondef.WithW3C(false))

		var refused driver.SessionCreationError
		switch {
		case err == nil:
			t.Debug("Legacy session capabilities: %s", session.Capabilities().JSONString())
			assert.True(t, webdriver.IsW3C(session.Capabilities()),
				"a legacy non-W3C session was created")
		case errors.As(err, &refused):
			t.Debug("Session creation with w3c:false was refused: %s", refused.Message)
			assert.Contains(t, refused.Message, "session not created",
				"the refusal should come from the driver rejecting the legacy protocol")
		default:
			t.HarnessFailNow("session creation failed for an unrelated reason: %s", err)
		}
	})

	t.Run("no non-W3C keys returned", func(t *T) {
		t.RequireBackend(driver.BackendWebDriver)
		session := t.NewSession()

		caps := session.Capabilities()
		for _, key := range nonW3CCapabilities {
			assert.False(t, hasKey(caps, key),
				"non-W3C capability %q should not be present; it should have the goog: prefix", key)
		}
	})
}

func hasKey(object ldvalue.Value, key string) bool {
	for _, k := range object.Keys() {
		if k == key {
			return true
		}
	}
	return false
}
