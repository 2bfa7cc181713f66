package regressions

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/driver/drivertest"
	"github.com/browser-repro/regression-tests/fixtures"
	"github.com/browser-repro/regression-tests/framework"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCases(t *testing.T, env *Environment, d driver.Driver, filter string, cases func(*T)) []framework.TestResult {
	var filters framework.RegexFilters
	if filter != "" {
		filters.MustMatch = mustRegexList(t, filter)
	}
	results := framework.Run(filters.AsFilter, nil, framework.Config{}, func(ctx *framework.Context) {
		cases(newTestScope(ctx, env, d))
	})
	return results.Tests
}

// windowFake behaves like a browser whose links open new windows, requesting the slow
// opener's target the way a real one would.
func windowFake() *drivertest.FakeDriver {
	return &drivertest.FakeDriver{
		Elements: map[string]bool{
			driver.Name("windowTwo").Value:   true,
			driver.ID("the-iframe").Value:    true,
			driver.ID("iframe-header").Value: true,
			driver.ID("open-slow").Value:     true,
		},
		OnClick: func(s *drivertest.FakeSession, selector string) {
			switch selector {
			case driver.Name("windowTwo").Value:
				s.OpenWindow()
			case driver.ID("open-slow").Value:
				opener, err := url.Parse(s.URL())
				if err != nil {
					return
				}
				go func() {
					if resp, err := http.Get(opener.Query().Get("target")); err == nil {
						resp.Body.Close()
					}
				}()
				s.OpenWindow()
			}
		},
	}
}

func TestWindowCasesAgainstFake(t *testing.T) {
	fake := windowFake()
	tests := runCases(t, &Environment{Fixtures: newFixtureServer(t)}, fake, "", DoWindowTests)

	require.Len(t, tests, 3)
	outcomes := map[string]framework.Outcome{}
	for _, r := range tests {
		outcomes[r.TestID.Path[len(r.TestID.Path)-1]] = r.Outcome
	}
	assert.Equal(t, map[string]framework.Outcome{
		"iframe in new window is reachable":                 framework.DefectAbsent,
		"handles returned while second window loads slowly": framework.DefectAbsent,
		"minimized window is hidden":                        framework.Skipped,
	}, outcomes)
	assert.Equal(t, fake.Created(), fake.Closed())
}

func TestSlowWindowHandlesHangIsDefect(t *testing.T) {
	fake := windowFake()
	fake.HandlesDelay = 2 * handlesTimeout

	start := time.Now()
	tests := runCases(t, &Environment{Fixtures: newFixtureServer(t)}, fake,
		"handles returned while second window loads slowly", DoWindowTests)

	require.Len(t, tests, 1)
	assert.Equal(t, framework.DefectPresent, tests[0].Outcome)
	require.NotEmpty(t, tests[0].Errors)
	assert.Contains(t, tests[0].Errors[0].Error(), "hung")
	assert.Less(t, time.Since(start), fake.HandlesDelay)
	assert.Equal(t, 1, fake.Closed())
}

func TestSlowWindowNeverRequestedIsHarnessError(t *testing.T) {
	fake := windowFake()
	fake.OnClick = nil

	tests := runCases(t, &Environment{Fixtures: newFixtureServer(t)}, fake,
		"handles returned while second window loads slowly", DoWindowTests)

	require.Len(t, tests, 1)
	assert.Equal(t, framework.HarnessError, tests[0].Outcome)
}

func TestConcurrencyCaseUsesOneSharedDriver(t *testing.T) {
	fake := &drivertest.FakeDriver{}
	tests := runCases(t, &Environment{Fixtures: newFixtureServer(t)}, fake, "", DoConcurrencyTests)

	require.Len(t, tests, 1)
	assert.Equal(t, framework.DefectAbsent, tests[0].Outcome)
	started, closed := fake.SharedDrivers()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 2, fake.Created())
	assert.Equal(t, 2, fake.Closed())
	for _, s := range fake.Sessions() {
		assert.NotEqual(t, "", s.URL())
	}
}

func TestConcurrencyCaseBoundsHungDialogNavigation(t *testing.T) {
	server := newFixtureServer(t)
	fake := &drivertest.FakeDriver{Hangs: map[string]bool{server.PageURL(fixtures.PageAlert): true}}

	start := time.Now()
	tests := runCases(t, &Environment{Fixtures: server}, fake, "", DoConcurrencyTests)

	require.Len(t, tests, 1)
	assert.Equal(t, framework.DefectAbsent, tests[0].Outcome)
	assert.Less(t, time.Since(start), dialogNavigationLimit+dialogSettleTime+5*time.Second)
	assert.Equal(t, fake.Created(), fake.Closed())
}

func TestConcurrencyCaseNeedsASharedDriver(t *testing.T) {
	fake := &drivertest.FakeDriver{}
	// hides StartShared
	unshareable := struct{ driver.Driver }{fake}

	tests := runCases(t, &Environment{Fixtures: newFixtureServer(t)}, unshareable, "", DoConcurrencyTests)

	require.Len(t, tests, 1)
	assert.Equal(t, framework.Skipped, tests[0].Outcome)
	assert.Equal(t, 0, fake.Created())
}
