package framework

import (
	"fmt"
	"strings"
)

// Outcome is the final state of a single test.
type Outcome int

const (
	// DefectAbsent means every assertion held: the product behaves as the fixed version should.
	DefectAbsent Outcome = iota
	// DefectPresent means an assertion failed or the test-level deadline expired, which for a
	// reproduction case is the signal that the reported bug is still there.
	DefectPresent
	// HarnessError means the test could not make a meaningful observation: an unexpected panic,
	// a fixture that could not start, or a session that could not be acquired when one was needed.
	HarnessError
	// Skipped means the test did not run.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case DefectAbsent:
		return "defect absent"
	case DefectPresent:
		return "defect present"
	case HarnessError:
		return "harness error"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

type Results struct {
	Tests    []TestResult
	Failures []TestResult
}

type TestResult struct {
	TestID  TestID
	Outcome Outcome
	Errors  []error
}

// OK returns true if no test reported a defect or a harness error.
func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// Count returns the number of tests that finished with the given outcome.
func (r Results) Count(outcome Outcome) int {
	n := 0
	for _, t := range r.Tests {
		if t.Outcome == outcome {
			n++
		}
	}
	return n
}

// HasHarnessErrors returns true if any test could not make a meaningful observation.
func (r Results) HasHarnessErrors() bool {
	for _, f := range r.Failures {
		if f.Outcome == HarnessError {
			return true
		}
	}
	return false
}

type TestID struct {
	Path []string
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

// Plus returns a new TestID with an additional path component.
func (t TestID) Plus(name string) TestID {
	return TestID{Path: append(append([]string(nil), t.Path...), name)}
}

type TestFailure struct {
	ID  TestID
	Err error
}

func (f TestFailure) Error() string {
	return fmt.Sprintf("[%s]: %s", f.ID, f.Err)
}
