package regressions

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/driver/drivertest"
	"github.com/browser-repro/regression-tests/fixtures"
	"github.com/browser-repro/regression-tests/framework"
	"github.com/browser-repro/regression-tests/sessiondef"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

func runOne(env *Environment, d driver.Driver, action func(*T)) framework.TestResult {
	results := framework.Run(nil, nil, framework.Config{}, func(c *framework.Context) {
		newTestScope(c, env, d).Run("case", action)
	})
	if len(results.Tests) != 1 {
		panic("expected exactly one result")
	}
	return results.Tests[0]
}

func TestSessionsAreClosedOnEveryExitPath(t *testing.T) {
	cases := map[string]struct {
		action  func(*T)
		outcome framework.Outcome
	}{
		"success": {
			action:  func(t *T) {},
			outcome: framework.DefectAbsent,
		},
		"assertion failure": {
			action:  func(t *T) { assert.Fail(t, "defect") },
			outcome: framework.DefectPresent,
		},
		"FailNow": {
			action:  func(t *T) { require.Fail(t, "defect") },
			outcome: framework.DefectPresent,
		},
		"panic": {
			action:  func(t *T) { panic("interaction blew up") },
			outcome: framework.HarnessError,
		},
		"skip": {
			action:  func(t *T) { t.SkipWithReason("not today") },
			outcome: framework.Skipped,
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			fake := &drivertest.FakeDriver{}
			result := runOne(&Environment{}, fake, func(rt *T) {
				rt.NewSession()
				rt.NewSession()
				c.action(rt)
				rt.NewSession()
			})
			assert.Equal(t, c.outcome, result.Outcome)
			assert.Equal(t, fake.Created(), fake.Closed())
			for _, s := range fake.Sessions() {
				assert.True(t, s.IsClosed())
			}
		})
	}
}

func TestSessionsAreClosedInReverseOrderBeforeArtifactsAreRemoved(t *testing.T) {
	fs := afero.NewMemMapFs()
	fake := &drivertest.FakeDriver{}
	var dir string
	var events []string
	result := runOne(&Environment{Fs: fs}, fake, func(rt *T) {
		dir = rt.ArtifactDir("order")
		first := rt.NewSession()
		second := rt.NewSession()
		rt.Defer(func() {
			events = append(events, "deferred")
			assert.False(t, first.(*drivertest.FakeSession).IsClosed())
			assert.False(t, second.(*drivertest.FakeSession).IsClosed())
		})
	})
	assert.Equal(t, framework.DefectAbsent, result.Outcome)
	assert.Equal(t, []string{"deferred"}, events)
	assert.Equal(t, 2, fake.Closed())
	exists, err := afero.DirExists(fs, dir)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewSessionFailureIsHarnessError(t *testing.T) {
	fake := &drivertest.FakeDriver{FailCreation: errors.New("chromedriver not found")}
	result := runOne(&Environment{}, fake, func(rt *T) {
		rt.NewSession()
		assert.Fail(rt, "should not get here")
	})
	assert.Equal(t, framework.HarnessError, result.Outcome)
	assert.Equal(t, 0, fake.Created())
	assert.Equal(t, 0, fake.Closed())
}

func TestTryNewSessionReturnsCreationError(t *testing.T) {
	fake := &drivertest.FakeDriver{FailCreation: driver.SessionCreationError{Message: "w3c is not supported"}}
	var err error
	result := runOne(&Environment{}, fake, func(rt *T) {
		_, err = rt.TryNewSession()
	})
	assert.Equal(t, framework.DefectAbsent, result.Outcome)
	assert.True(t, driver.IsSessionCreation(err))
	assert.Equal(t, 0, fake.Closed())
}

func TestSessionConfigMergesDefaultsForLocalSessionsOnly(t *testing.T) {
	env := &Environment{Defaults: sessiondef.StandardDefaults()}
	fake := &drivertest.FakeDriver{}
	runOne(env, fake, func(rt *T) {
		rt.NewSession(sessiondef.WithArgs("--remote-debugging-port=9222"))
		rt.NewSession(sessiondef.WithRemoteURL("http://127.0.0.1:4723"))
	})
	configs := fake.Configs()
	require.Len(t, configs, 2)
	assert.Equal(t, []string{"--headless", "--no-sandbox", "--remote-debugging-port=9222"}, configs[0].Args())
	assert.Empty(t, configs[1].Args())
}

func TestFindOptionalToleratesRepeatedMisses(t *testing.T) {
	fake := &drivertest.FakeDriver{Elements: map[string]bool{"#present": true}}
	var session *drivertest.FakeSession
	result := runOne(&Environment{}, fake, func(rt *T) {
		session = rt.NewSession().(*drivertest.FakeSession)
		for i := 0; i < 1000; i++ {
			_, found := rt.FindOptional(session, driver.ID("absent"))
			require.False(rt, found)
		}
		_, found := rt.FindOptional(session, driver.ID("present"))
		assert.True(rt, found)
	})
	assert.Equal(t, framework.DefectAbsent, result.Outcome)
	assert.Equal(t, 1001, session.Lookups())
}

func TestRequireElementMissIsDefect(t *testing.T) {
	result := runOne(&Environment{}, &drivertest.FakeDriver{}, func(rt *T) {
		rt.RequireElement(rt.NewSession(), driver.ID("absent"))
	})
	assert.Equal(t, framework.DefectPresent, result.Outcome)
}

func TestArtifactDirIsRemovedUnlessKept(t *testing.T) {
	for _, keep := range []bool{false, true} {
		fs := afero.NewMemMapFs()
		var dir string
		runOne(&Environment{Fs: fs, ArtifactRoot: "/artifacts", KeepArtifacts: keep}, nil, func(rt *T) {
			dir = rt.ArtifactDir("x")
			require.NoError(rt, afero.WriteFile(fs, filepath.Join(dir, "f"), []byte("y"), 0o644))
		})
		assert.Equal(t, "/artifacts", filepath.Dir(dir))
		exists, err := afero.DirExists(fs, dir)
		require.NoError(t, err)
		assert.Equal(t, keep, exists)
	}
}

func TestAwaitArtifact(t *testing.T) {
	fs := afero.NewMemMapFs()
	result := runOne(&Environment{Fs: fs}, nil, func(rt *T) {
		go func() {
			time.Sleep(100 * time.Millisecond)
			_ = afero.WriteFile(fs, "/later", nil, 0o644)
		}()
		assert.True(rt, rt.AwaitArtifact("/later", 5*time.Second))
		assert.False(rt, rt.AwaitArtifact("/never", 300*time.Millisecond))
	})
	assert.Equal(t, framework.DefectAbsent, result.Outcome)
}

func TestRequireWithinDeadlineReportsHangAsDefect(t *testing.T) {
	result := runOne(&Environment{}, nil, func(rt *T) {
		rt.RequireWithinDeadline(50*time.Millisecond, func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(100 * time.Millisecond)
			return nil
		})
	})
	assert.Equal(t, framework.DefectPresent, result.Outcome)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Error(), "interaction hung")
}

func TestRequireBackendAndCapability(t *testing.T) {
	fake := &drivertest.FakeDriver{BackendName: driver.BackendCDP}
	assert.Equal(t, framework.Skipped, runOne(&Environment{}, fake, func(rt *T) {
		rt.RequireBackend(driver.BackendWebDriver)
	}).Outcome)
	assert.Equal(t, framework.DefectAbsent, runOne(&Environment{}, fake, func(rt *T) {
		rt.RequireBackend(driver.BackendWebDriver, driver.BackendCDP)
	}).Outcome)
	assert.Equal(t, framework.Skipped, runOne(&Environment{Offline: true}, fake, func(rt *T) {
		rt.RequireCapability(CapabilityNetwork)
	}).Outcome)
	assert.Equal(t, framework.Skipped, runOne(&Environment{}, fake, func(rt *T) {
		rt.RequireCapability(CapabilityAppium)
	}).Outcome)
}

func TestLegacyProtocolOutcomes(t *testing.T) {
	legacyCaps := ldvalue.ObjectBuild().Set("browserName", ldvalue.String("chrome")).
		Set("chrome", ldvalue.ObjectBuild().Build()).Build()

	cases := map[string]struct {
		fake    *drivertest.FakeDriver
		outcome framework.Outcome
	}{
		"creation refused": {
			fake: &drivertest.FakeDriver{FailCreation: driver.SessionCreationError{
				Message: "session not created: w3c must be true"}},
			outcome: framework.DefectAbsent,
		},
		"refused for another reason": {
			fake: &drivertest.FakeDriver{FailCreation: driver.SessionCreationError{
				Message: "Chrome failed to start: crashed"}},
			outcome: framework.DefectPresent,
		},
		"W3C session instead": {
			fake:    &drivertest.FakeDriver{},
			outcome: framework.DefectAbsent,
		},
		"legacy session created": {
			fake:    &drivertest.FakeDriver{Capabilities: legacyCaps},
			outcome: framework.DefectPresent,
		},
		"unrelated failure": {
			fake:    &drivertest.FakeDriver{FailCreation: driver.ProtocolError{Code: "unknown error", Message: "boom"}},
			outcome: framework.HarnessError,
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			c.fake.BackendName = driver.BackendWebDriver
			results := framework.Run(framework.RegexFilters{
				MustMatch: mustRegexList(t, "legacy protocol"),
			}.AsFilter, nil, framework.Config{}, func(ctx *framework.Context) {
				DoCapabilityTests(newTestScope(ctx, &Environment{}, c.fake))
			})
			require.Len(t, results.Tests, 1)
			assert.Equal(t, c.outcome, results.Tests[0].Outcome)
			assert.Equal(t, c.fake.Created(), c.fake.Closed())
			for _, config := range c.fake.Configs() {
				w3c, defined := config.Bool(sessiondef.OptionW3C)
				assert.True(t, defined)
				assert.False(t, w3c)
			}
		})
	}
}

func TestSpecialCharactersAgainstFake(t *testing.T) {
	fake := &drivertest.FakeDriver{Elements: map[string]bool{"#testInput": true}}
	results := framework.Run(nil, nil, framework.Config{}, func(ctx *framework.Context) {
		DoInputTests(newTestScope(ctx, &Environment{Fixtures: newFixtureServer(t)}, fake))
	})
	require.Len(t, results.Tests, 1)
	assert.Equal(t, framework.DefectAbsent, results.Tests[0].Outcome)
	assert.Equal(t, 1, fake.Closed())
}

func TestMemoryCaseIsSkippedWithoutLocalProcess(t *testing.T) {
	results := framework.Run(nil, nil, framework.Config{}, func(ctx *framework.Context) {
		DoMemoryTests(newTestScope(ctx, &Environment{}, &drivertest.FakeDriver{}))
	})
	require.Len(t, results.Tests, 1)
	assert.Equal(t, framework.Skipped, results.Tests[0].Outcome)
}

func mustRegexList(t *testing.T, patterns ...string) framework.RegexList {
	var list framework.RegexList
	for _, p := range patterns {
		require.NoError(t, list.Set(p))
	}
	return list
}

func newFixtureServer(t *testing.T) *fixtures.Server {
	server, err := fixtures.NewServer("localhost", 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	return server
}
