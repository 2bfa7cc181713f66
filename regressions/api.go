package regressions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/fixtures"
	"github.com/browser-repro/regression-tests/framework"
	"github.com/browser-repro/regression-tests/sessiondef"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// Capabilities that a run may or may not have. Cases that depend on one are skipped when it
// is missing.
const (
	// CapabilityNetwork means the browser can reach the public internet.
	CapabilityNetwork = "network"
	// CapabilityAppium means an Appium server driving Chrome on Android was configured.
	CapabilityAppium = "appium"
	// CapabilityProcessMemory means the process tree of a session can be measured.
	CapabilityProcessMemory = "process-memory"
)

const (
	artifactPollInterval = 250 * time.Millisecond
	sessionCloseTimeout  = 30 * time.Second
)

// Environment is everything a run of the suite shares. Nothing in this package reads global
// state: log locations, directories and endpoints all come from here.
type Environment struct {
	// Drivers are the backends to run the suite against, keyed by backend name.
	Drivers map[string]driver.Driver

	// Fixtures serves the local test pages.
	Fixtures *fixtures.Server

	// Defaults are merged into every local session's config.
	Defaults sessiondef.SessionConfig

	// Fs is where artifact directories are created. It defaults to the OS filesystem; it
	// must be the real filesystem whenever a real browser writes into it.
	Fs afero.Fs

	// ArtifactRoot is the parent of per-test artifact directories; "" means the OS temp dir.
	ArtifactRoot string

	// KeepArtifacts leaves artifact directories in place after each test.
	KeepArtifacts bool

	// Offline means cases that need the public internet are skipped.
	Offline bool

	// AppiumURL is the remote end for the Android cases; "" skips them.
	AppiumURL string
}

func (env *Environment) fs() afero.Fs {
	if env.Fs == nil {
		return afero.NewOsFs()
	}
	return env.Fs
}

// T represents a test or subtest in the regression suite.
//
// It implements the same basic functionality as Go's testing.T, but in an environment that is
// outside of the Go test runner. Those features are provided by our lower-level framework package.
//
// It also provides functionality that is specific to browser regressions: acquiring sessions
// that are released automatically when the test ends, probing for elements that may not exist,
// bounding an interaction by a deadline, and waiting for files that the browser writes.
//
// To make test assertions, you can use the assert and require packages, passing the *T as if it
// were a *testing.T. A failed assertion means the defect under test is present. Problems that
// stop the test from observing anything at all, such as a browser that will not start, are
// harness errors instead.
type T struct {
	context *framework.Context
	env     *Environment
	driver  driver.Driver
}

func newTestScope(c *framework.Context, env *Environment, d driver.Driver) *T {
	return &T{context: c, env: env, driver: d}
}

// Errorf is called by assertions to log a test failure. It does not cause an immediate exit.
func (t *T) Errorf(format string, args ...interface{}) {
	t.context.Errorf(format, args...)
}

// FailNow is called by assertions when a test should fail and immediately exit. The methods in
// the require package call FailNow.
func (t *T) FailNow() {
	t.context.FailNow()
}

// HarnessFailNow marks the test as unable to make an observation and exits immediately.
func (t *T) HarnessFailNow(format string, args ...interface{}) {
	t.context.HarnessFailNow(fmt.Errorf(format, args...))
}

// Run runs a subtest. This is equivalent to the Run method of testing.T.
func (t *T) Run(name string, action func(*T)) {
	t.context.Run(name, func(c *framework.Context) {
		action(newTestScope(c, t.env, t.driver))
	})
}

// Debug logs some debug output for the test. The output will be passed to the test logger at
// the end of the test.
func (t *T) Debug(format string, args ...interface{}) {
	t.context.Debug(format, args...)
}

func (t *T) DebugLogger() framework.Logger {
	return t.context.DebugLogger()
}

// Defer schedules a function to run when the test ends, after any that were scheduled later.
func (t *T) Defer(fn func()) {
	t.context.Defer(fn)
}

// Ctx is cancelled when the test ends or its test-level deadline expires.
func (t *T) Ctx() context.Context {
	return t.context.Ctx()
}

// Fixtures returns the local fixture server.
func (t *T) Fixtures() *fixtures.Server {
	return t.env.Fixtures
}

// Backend returns the name of the backend this test runs against.
func (t *T) Backend() string {
	if t.driver == nil {
		return ""
	}
	return t.driver.Name()
}

// SkipWithReason stops the test and reports it as skipped.
func (t *T) SkipWithReason(reason string) {
	t.context.SkipWithReason(reason)
}

// RequireBackend skips this test unless it is running against one of the named backends.
func (t *T) RequireBackend(names ...string) {
	for _, n := range names {
		if t.Backend() == n {
			return
		}
	}
	t.context.SkipWithReason(fmt.Sprintf("not applicable to the %s backend", t.Backend()))
}

// RequireCapability skips this test if the run does not have the capability.
func (t *T) RequireCapability(capability string) {
	var has bool
	switch capability {
	case CapabilityNetwork:
		has = !t.env.Offline
	case CapabilityAppium:
		has = t.env.AppiumURL != ""
	case CapabilityProcessMemory:
		_, err := driver.ProcessTreeMemory(os.Getpid())
		has = err == nil
	}
	if !has {
		t.context.SkipWithReason(fmt.Sprintf("run does not have capability %q", capability))
	}
}

// SessionConfig builds the config that NewSession would use: the configurers applied in order,
// with the run's defaults filling in anything they did not set. Sessions on a remote end get
// no defaults, since local browser switches mean nothing to an Appium server.
func (t *T) SessionConfig(configurers ...sessiondef.Configurer) sessiondef.SessionConfig {
	config := sessiondef.Build(configurers...)
	if config.Has(sessiondef.OptionRemoteURL) || t.env.Defaults == nil {
		return config
	}
	return config.Merge(t.env.Defaults)
}

// TryNewSession asks the driver for a session and returns the creation error instead of
// failing, for cases where failing to create the session is itself the observation.
//
// A session that is created is closed when the test ends, exactly once, whatever the outcome.
func (t *T) TryNewSession(configurers ...sessiondef.Configurer) (driver.Session, error) {
	return t.tryNewSessionOn(t.backendDriver(), configurers...)
}

func (t *T) backendDriver() driver.Driver {
	if t.driver == nil {
		t.HarnessFailNow("test tried to create a session outside of a backend scope")
	}
	return t.driver
}

func (t *T) tryNewSessionOn(d driver.Driver, configurers ...sessiondef.Configurer) (driver.Session, error) {
	config := t.SessionConfig(configurers...)
	t.Debug("Creating %s session with options %s", d.Name(), config.JSONString())
	session, err := d.NewSession(t.Ctx(), config)
	if err != nil {
		t.Debug("Session creation failed: %s", err)
		return nil, err
	}
	t.Debug("Created session %s", session.ID())
	t.context.Defer(func() { t.closeSession(session) })
	return session, nil
}

// NewSession creates a session that is closed when the test ends. If the session cannot be
// created, the test stops with a harness error.
func (t *T) NewSession(configurers ...sessiondef.Configurer) driver.Session {
	return t.NewSessionOn(t.backendDriver(), configurers...)
}

// NewSessionOn is NewSession through a particular driver, such as one from SharedDriver.
func (t *T) NewSessionOn(d driver.Driver, configurers ...sessiondef.Configurer) driver.Session {
	session, err := t.tryNewSessionOn(d, configurers...)
	if err != nil {
		t.HarnessFailNow("could not create %s session: %s", d.Name(), err)
	}
	return session
}

// SharedDriver starts a driver process that every session created through it shares. It is
// stopped when the test ends, after those sessions are closed. Backends without a separate
// driver process skip the test.
func (t *T) SharedDriver() driver.Driver {
	starter, ok := t.backendDriver().(driver.SharedStarter)
	if !ok {
		t.context.SkipWithReason(fmt.Sprintf("the %s backend has no driver process to share", t.Backend()))
	}
	shared, err := starter.StartShared(t.Ctx())
	if err != nil {
		t.HarnessFailNow("could not start a shared %s driver: %s", t.Backend(), err)
	}
	t.context.Defer(func() {
		if err := shared.Close(); err != nil {
			t.Debug("Error stopping shared driver: %s", err)
		}
	})
	return shared
}

func (t *T) closeSession(session driver.Session) {
	done := make(chan error, 1)
	go func() { done <- session.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Debug("Error closing session %s: %s", session.ID(), err)
		}
	case <-time.After(sessionCloseTimeout):
		t.context.HarnessErrorf("session %s did not close within %s", session.ID(), sessionCloseTimeout)
	}
}

// FindOptional looks for an element that may legitimately be missing. A miss returns false;
// any other error fails the test.
func (t *T) FindOptional(session driver.Session, selector driver.Selector) (driver.Element, bool) {
	element, err := session.FindElement(t.Ctx(), selector)
	if driver.IsNotFound(err) {
		return nil, false
	}
	require.NoError(t, err, "looking for %s", selector)
	return element, true
}

// RequireElement looks for an element and fails the test if it is not there.
func (t *T) RequireElement(session driver.Session, selector driver.Selector) driver.Element {
	element, err := session.FindElement(t.Ctx(), selector)
	require.NoError(t, err, "looking for %s", selector)
	return element
}

// Navigate loads a URL and fails the test if navigation fails.
func (t *T) Navigate(session driver.Session, url string) {
	t.Debug("Navigating to %s", url)
	require.NoError(t, session.Navigate(t.Ctx(), url))
}

// RequireTitle returns the current page title, failing the test if it cannot be read.
func (t *T) RequireTitle(session driver.Session) string {
	title, err := session.Title(t.Ctx())
	require.NoError(t, err)
	return title
}

// RequireHandles returns the session's window handles, failing the test if they cannot be read.
func (t *T) RequireHandles(session driver.Session) []string {
	handles, err := session.WindowHandles(t.Ctx())
	require.NoError(t, err)
	return handles
}

// ArtifactDir creates an empty directory for files that a browser produces. It is removed when
// the test ends unless the run keeps artifacts.
//
// Call it before creating the session that writes into it: deferred cleanups run in reverse
// order, so the session is then closed before its directory goes away.
func (t *T) ArtifactDir(prefix string) string {
	fs := t.env.fs()
	if t.env.ArtifactRoot != "" {
		if err := fs.MkdirAll(t.env.ArtifactRoot, 0o755); err != nil {
			t.HarnessFailNow("can't create artifact root: %s", err)
		}
	}
	dir, err := afero.TempDir(fs, t.env.ArtifactRoot, prefix)
	if err != nil {
		t.HarnessFailNow("can't create artifact directory: %s", err)
	}
	t.Debug("Artifact directory: %s", dir)
	if !t.env.KeepArtifacts {
		t.context.Defer(func() {
			if err := fs.RemoveAll(dir); err != nil {
				t.Debug("Could not remove %s: %s", dir, err)
			}
		})
	}
	return dir
}

// ArtifactFs is the filesystem that ArtifactDir creates directories in.
func (t *T) ArtifactFs() afero.Fs {
	return t.env.fs()
}

// AwaitArtifact waits up to deadline for a file to appear and reports whether it did.
func (t *T) AwaitArtifact(path string, deadline time.Duration) bool {
	found, err := framework.AwaitArtifact(t.Ctx(), t.env.fs(), path, artifactPollInterval, deadline)
	if err != nil {
		t.HarnessFailNow("waiting for %s: %s", path, err)
	}
	return found
}

// WithinDeadline runs an interaction that should finish well within limit. If it does not, the
// returned error satisfies framework.IsDeadline; a hang is then reported instead of stalling
// the test until the test-level deadline.
func (t *T) WithinDeadline(limit time.Duration, action func(ctx context.Context) error) error {
	start := time.Now()
	err := framework.RunWithDeadline(t.Ctx(), limit, action)
	t.Debug("Bounded interaction finished after %s (limit %s)", time.Since(start).Round(time.Millisecond), limit)
	return err
}

// RequireWithinDeadline is WithinDeadline, failing the test on any error.
func (t *T) RequireWithinDeadline(limit time.Duration, action func(ctx context.Context) error) {
	err := t.WithinDeadline(limit, action)
	var de *framework.DeadlineError
	if errors.As(err, &de) {
		require.Fail(t, "interaction hung", "%s", de)
	}
	require.NoError(t, err)
}

// Concurrently runs each task on its own goroutine and returns their errors in task order.
// Tasks must report problems through their return values; assertions against the *T are not
// safe to call from them.
func (t *T) Concurrently(tasks ...func(ctx context.Context) error) []error {
	return framework.RunConcurrently(t.Ctx(), tasks...)
}

// RequireCommander returns the session's raw command interface, skipping the test if the
// backend has none.
func (t *T) RequireCommander(session driver.Session) driver.Commander {
	c, ok := session.(driver.Commander)
	if !ok {
		t.context.SkipWithReason(fmt.Sprintf("the %s backend does not accept raw commands", t.Backend()))
	}
	return c
}

// SkipIfUnsupported skips the test if err says the backend cannot do what was asked.
func (t *T) SkipIfUnsupported(err error) {
	if driver.IsUnsupported(err) {
		t.context.SkipWithReason(err.Error())
	}
}
