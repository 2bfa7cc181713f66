package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/browser-repro/regression-tests/framework"

	"github.com/fatih/color"
)

var (
	absentColor  = color.New(color.FgGreen)
	presentColor = color.New(color.FgRed, color.Bold)
	harnessColor = color.New(color.FgYellow, color.Bold)
	skippedColor = color.New(color.Faint)
)

func outcomeColor(outcome framework.Outcome) *color.Color {
	switch outcome {
	case framework.DefectPresent:
		return presentColor
	case framework.HarnessError:
		return harnessColor
	case framework.Skipped:
		return skippedColor
	default:
		return absentColor
	}
}

type ConsoleTestLogger struct {
	Out                  io.Writer
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
}

func (c *ConsoleTestLogger) TestStarted(id framework.TestID) {
	fmt.Fprintf(c.Out, "[%s]\n", id)
}

func (c *ConsoleTestLogger) TestError(id framework.TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Fprintf(c.Out, "  %s\n", line)
	}
}

func (c *ConsoleTestLogger) TestFinished(id framework.TestID, outcome framework.Outcome, debugOutput framework.CapturedOutput) {
	failed := outcome == framework.DefectPresent || outcome == framework.HarnessError
	if failed {
		outcomeColor(outcome).Fprintf(c.Out, "  %s: %s\n", strings.ToUpper(outcome.String()), id)
	}
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		debugOutput.Dump(c.Out, "    DEBUG ")
	}
}

func (c *ConsoleTestLogger) TestSkipped(id framework.TestID, reason string) {
	if reason == "" {
		skippedColor.Fprintf(c.Out, "  SKIPPED: %s\n", id)
	} else {
		skippedColor.Fprintf(c.Out, "  SKIPPED: %s (%s)\n", id, reason)
	}
}

// PrintResults prints a summary of the run, listing every test that did not pass grouped by
// outcome.
func PrintResults(out io.Writer, results framework.Results) {
	if results.OK() {
		absentColor.Fprintf(out, "All tests passed: %d defects absent, %d skipped\n",
			results.Count(framework.DefectAbsent), results.Count(framework.Skipped))
		return
	}
	for _, outcome := range []framework.Outcome{framework.DefectPresent, framework.HarnessError} {
		var ids []string
		for _, f := range results.Failures {
			if f.Outcome == outcome {
				ids = append(ids, f.TestID.String())
			}
		}
		if len(ids) == 0 {
			continue
		}
		outcomeColor(outcome).Fprintf(out, "%s (%d):\n", strings.ToUpper(outcome.String()), len(ids))
		for _, id := range ids {
			fmt.Fprintf(out, "  %s\n", id)
		}
	}
	fmt.Fprintf(out, "%d defects absent, %d skipped\n",
		results.Count(framework.DefectAbsent), results.Count(framework.Skipped))
}
