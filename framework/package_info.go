// Package framework contains the low-level implementation of test harness infrastructure
// that can be reused for different kinds of browser regression tests.
//
// The general model is:
//
// 1. A test acquires one or more automation sessions from a driver (see the driver package),
// interacts with them, observes some piece of state, and asserts on it.
//
// 2. There is a general notion of a test context which is similar to Go's *testing.T,
// allowing pieces of test logic to be associated with a test identifier and to accumulate
// results. Unlike *testing.T, a test finishes with one of three outcomes: the defect is
// absent, the defect is present (an assertion failed), or the harness itself broke.
//
// 3. Cleanup registered with Context.Defer always runs, exactly once, whether the test
// passed, failed, or panicked.
//
// The domain-specific code that knows what is being reproduced is responsible for building
// session configurations, driving the sessions, and providing a domain-specific test API on
// top of the test context.
package framework
