package framework

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// DefaultTestTimeout is the test-level deadline used when Config.TestTimeout is zero. Driver
// and browser startup alone can take a long time on a cold machine.
const DefaultTestTimeout = 5 * time.Minute

// Config contains optional parameters for Run.
type Config struct {
	// TestTimeout bounds every leaf test. A leaf test that is still running when it expires
	// fails as if an assertion had failed.
	TestTimeout time.Duration

	// Context is the parent of every per-test context. It defaults to context.Background().
	Context context.Context
}

type environment struct {
	results     Results
	testLogger  TestLogger
	filter      Filter
	testTimeout time.Duration
	parentCtx   context.Context
	lock        sync.Mutex
}

type Context struct {
	env          *environment
	id           TestID
	ctx          context.Context
	cancel       context.CancelFunc
	debugLogger  CapturingLogger
	failed       bool
	harnessError bool
	skipped      bool
	skipReason   string
	hasSubtests  bool
	errors       []error
	deferred     []func()
	lock         sync.Mutex
}

func Run(
	filter Filter,
	testLogger TestLogger,
	config Config,
	action func(*Context),
) Results {
	if testLogger == nil {
		testLogger = nullTestLogger{}
	}
	if config.TestTimeout <= 0 {
		config.TestTimeout = DefaultTestTimeout
	}
	if config.Context == nil {
		config.Context = context.Background()
	}
	env := &environment{
		filter:      filter,
		testLogger:  testLogger,
		testTimeout: config.TestTimeout,
		parentCtx:   config.Context,
	}
	c := env.newContext(TestID{})
	c.run(action)
	return env.results
}

func (env *environment) newContext(id TestID) *Context {
	ctx, cancel := context.WithTimeout(env.parentCtx, env.testTimeout)
	return &Context{
		env:    env,
		id:     id,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Context) run(action func(*Context)) {
	defer func() {
		if r := recover(); r != nil {
			if !c.isSkipped() {
				var addError error
				if _, ok := r.(*Context); ok {
					c.lock.Lock()
					noMessage := len(c.errors) == 0
					if noMessage && !c.harnessError {
						c.failed = true
					}
					c.lock.Unlock()
					if noMessage {
						addError = errors.New("test failed with no failure message")
					}
				} else {
					c.lock.Lock()
					c.harnessError = true
					c.lock.Unlock()
					addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
				}
				if addError != nil {
					c.addError(addError)
				}
			}
		}

		expired := errors.Is(c.ctx.Err(), context.DeadlineExceeded)
		c.runDeferred()
		if expired && !c.hasSubtests && !c.isSkipped() && c.Outcome() == DefectAbsent {
			c.Errorf("test did not finish within the test-level deadline of %s", c.env.testTimeout)
		}
		c.cancel()

		if len(c.id.Path) == 0 || (c.hasSubtests && c.Outcome() == DefectAbsent) {
			return
		}
		result := TestResult{TestID: c.id, Outcome: c.Outcome(), Errors: c.Errors()}
		c.env.lock.Lock()
		c.env.results.Tests = append(c.env.results.Tests, result)
		if result.Outcome == DefectPresent || result.Outcome == HarnessError {
			c.env.results.Failures = append(c.env.results.Failures, result)
		}
		c.env.lock.Unlock()
	}()

	action(c)
}

func (c *Context) runDeferred() {
	c.lock.Lock()
	deferred := c.deferred
	c.deferred = nil
	c.lock.Unlock()
	for i := len(deferred) - 1; i >= 0; i-- {
		c.runOneDeferred(deferred[i])
	}
}

func (c *Context) runOneDeferred(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*Context); ok {
				return // a require failure inside cleanup was already recorded
			}
			c.lock.Lock()
			c.harnessError = true
			c.lock.Unlock()
			c.addError(fmt.Errorf("unexpected panic in deferred cleanup: %+v", r))
		}
	}()
	fn()
}

func (c *Context) addError(err error) {
	c.lock.Lock()
	c.errors = append(c.errors, err)
	c.lock.Unlock()
	c.env.testLogger.TestError(c.id, reformatError(err))
}

func (c *Context) isSkipped() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.skipped
}

func (c *Context) ID() TestID {
	return c.id
}

// Ctx returns the per-test context. It is cancelled when the test finishes or when the
// test-level deadline expires, whichever comes first.
func (c *Context) Ctx() context.Context {
	return c.ctx
}

// Outcome returns the outcome of the test so far.
func (c *Context) Outcome() Outcome {
	c.lock.Lock()
	defer c.lock.Unlock()
	switch {
	case c.skipped:
		return Skipped
	case c.harnessError:
		return HarnessError
	case c.failed:
		return DefectPresent
	default:
		return DefectAbsent
	}
}

// Errors returns a copy of the errors recorded so far.
func (c *Context) Errors() []error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]error(nil), c.errors...)
}

func (c *Context) Run(name string, action func(*Context)) {
	id := c.id.Plus(name)
	c.lock.Lock()
	c.hasSubtests = true
	c.lock.Unlock()

	c.env.testLogger.TestStarted(id)
	if c.env.filter != nil && !c.env.filter(id) {
		c.env.testLogger.TestSkipped(id, "excluded by filter parameters")
		return
	}
	c1 := c.env.newContext(id)
	c1.run(action)
	if c1.isSkipped() {
		c.env.testLogger.TestSkipped(id, c1.skipReason)
	} else {
		c.env.testLogger.TestFinished(id, c1.Outcome(), c1.debugLogger.Output())
	}
}

// Errorf records a failed expectation. The test continues; at the end its outcome is
// DefectPresent unless a harness error was also recorded.
func (c *Context) Errorf(format string, args ...interface{}) {
	c.lock.Lock()
	c.failed = true
	c.lock.Unlock()
	c.addError(fmt.Errorf(format, args...))
}

// HarnessErrorf records a failure of the test infrastructure rather than of the product.
func (c *Context) HarnessErrorf(format string, args ...interface{}) {
	c.lock.Lock()
	c.harnessError = true
	c.lock.Unlock()
	c.addError(fmt.Errorf(format, args...))
}

// HarnessFailNow records err as a harness error and stops the test.
func (c *Context) HarnessFailNow(err error) {
	c.HarnessErrorf("%s", err)
	c.FailNow()
}

func (c *Context) FailNow() {
	panic(c)
}

func (c *Context) Skip() {
	c.lock.Lock()
	c.skipped = true
	c.lock.Unlock()
	panic(c)
}

func (c *Context) SkipWithReason(reason string) {
	c.lock.Lock()
	c.skipReason = reason
	c.lock.Unlock()
	c.Skip()
}

// Defer schedules a function to run when the test finishes, in last-in-first-out order. Each
// deferred function runs exactly once even if the test fails, is skipped, or panics.
func (c *Context) Defer(fn func()) {
	c.lock.Lock()
	c.deferred = append(c.deferred, fn)
	c.lock.Unlock()
}

func (c *Context) Debug(message string, args ...interface{}) {
	c.debugLogger.Printf(message, args...)
}

func (c *Context) DebugLogger() Logger {
	return &c.debugLogger
}

// testify puts a tab-indented "Error Trace" block in front of every message; keep the text but
// make the indentation consistent so the console logger can prefix each line.
func reformatError(err error) error {
	s := strings.TrimSpace(strings.ReplaceAll(err.Error(), "\t", "  "))
	if s == err.Error() {
		return err
	}
	return errors.New(s)
}
