package regressions

import (
	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/fixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func DoInputTests(t *T) {
	// With some keyboard layouts '^' is a dead key, and typing it used to produce nothing.
	t.Run("special characters are typed", func(t *T) {
		session := t.NewSession()
		t.Navigate(session, t.Fixtures().PageURL(fixtures.PageInput))

		input := t.RequireElement(session, driver.ID("testInput"))
		require.NoError(t, input.SendKeys(t.Ctx(), "1^1"))

		value, err := input.Property(t.Ctx(), "value")
		require.NoError(t, err)
		assert.Equal(t, "1^1", value.StringValue())
	})
}
