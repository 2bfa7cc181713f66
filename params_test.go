package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/framework"
	"github.com/browser-repro/regression-tests/sessiondef"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseParams(t *testing.T, args ...string) *commandParams {
	params := &commandParams{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	params.addFlags(fs)
	require.NoError(t, fs.Parse(args))
	require.NoError(t, params.readEnv())
	return params
}

func TestFlagDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	params := parseParams(t)
	assert.Equal(t, []string{driver.BackendWebDriver}, params.backends)
	assert.Equal(t, "localhost", params.host)
	assert.Equal(t, 0, params.port)
	assert.Equal(t, framework.DefaultTestTimeout, params.testTimeout)
	assert.False(t, params.filters.MustMatch.IsDefined())
	assert.NoError(t, params.validate())
}

func TestFlags(t *testing.T) {
	params := parseParams(t,
		"--run", "capabilities", "--skip", "android",
		"--backend", "cdp", "--backend", "playwright",
		"--port", "8111", "--offline", "--debug-all",
		"--test-timeout", "90s", "--appium-url", "http://127.0.0.1:4723")
	assert.True(t, params.filters.MustMatch.AnyMatch("webdriver/capabilities/legacy protocol is rejected"))
	assert.True(t, params.filters.MustNotMatch.AnyMatch("webdriver/android"))
	assert.Equal(t, []string{"cdp", "playwright"}, params.backends)
	assert.Equal(t, 8111, params.port)
	assert.True(t, params.offline)
	assert.Equal(t, 90*time.Second, params.testTimeout)
	assert.Equal(t, "http://127.0.0.1:4723", params.appiumURL)

	level, err := params.logLevel()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, level)
}

func TestInvalidFilterRegex(t *testing.T) {
	params := &commandParams{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	params.addFlags(fs)
	assert.Error(t, fs.Parse([]string{"--run", "("}))
}

func TestValidate(t *testing.T) {
	for name, args := range map[string][]string{
		"unknown backend": {"--backend", "selenium-grid"},
		"bad port":        {"--port", "70000"},
		"zero timeout":    {"--test-timeout", "0s"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, parseParams(t, args...).validate())
		})
	}
}

func TestEnvironment(t *testing.T) {
	t.Setenv("BROWSER_VERSION", "131.0.6778.85")
	t.Setenv("CHROMEDRIVER_PATH", "/opt/chromedriver")
	t.Setenv("CHROME_PATH", "/opt/chrome")
	t.Setenv("LOG_LEVEL", "warn")
	params := parseParams(t)

	assert.Equal(t, "/opt/chromedriver", params.env.ChromeDriverPath)
	level, err := params.logLevel()
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, level)

	defaults, err := params.sessionDefaultsConfig(afero.NewMemMapFs())
	require.NoError(t, err)
	assert.Equal(t, "131.0.6778.85", defaults.String(sessiondef.OptionBrowserVersion))
	assert.Equal(t, "/opt/chrome", defaults.String(sessiondef.OptionBinary))
	assert.Equal(t, sessiondef.DefaultArgs, defaults.Args())
}

func TestInvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "chatty")
	assert.Error(t, parseParams(t).validate())
}

func TestSessionDefaultsFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/defaults.yaml", []byte(`
args: ["--no-sandbox", "--disable-gpu"]
browserVersion: beta
`), 0o644))
	params := parseParams(t, "--session-defaults", "/defaults.yaml")

	defaults, err := params.sessionDefaultsConfig(fs)
	require.NoError(t, err)
	assert.Equal(t, []string{"--no-sandbox", "--disable-gpu"}, defaults.Args())
	assert.Equal(t, "beta", defaults.String(sessiondef.OptionBrowserVersion))

	params.sessionDefaults = "/missing.yaml"
	_, err = params.sessionDefaultsConfig(fs)
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	ok := framework.TestResult{TestID: framework.TestID{Path: []string{"a"}}, Outcome: framework.DefectAbsent}
	defect := framework.TestResult{TestID: framework.TestID{Path: []string{"b"}}, Outcome: framework.DefectPresent}
	harness := framework.TestResult{TestID: framework.TestID{Path: []string{"c"}}, Outcome: framework.HarnessError}

	assert.Equal(t, exitOK, exitCode(framework.Results{Tests: []framework.TestResult{ok}}))
	assert.Equal(t, exitDefectPresent, exitCode(framework.Results{
		Tests: []framework.TestResult{ok, defect}, Failures: []framework.TestResult{defect}}))
	assert.Equal(t, exitHarnessError, exitCode(framework.Results{
		Tests: []framework.TestResult{defect, harness}, Failures: []framework.TestResult{defect, harness}}))
}

func TestExecuteRejectsBadParameters(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitHarnessError, execute([]string{"--backend", "nope"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown backend "nope"`)

	stderr.Reset()
	assert.Equal(t, exitHarnessError, execute([]string{"--no-such-flag"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Invalid parameters")

	assert.Equal(t, exitOK, execute([]string{"--help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "--session-defaults")
}

func TestConsoleTestLogger(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	logger := &ConsoleTestLogger{Out: &out, DebugOutputOnFailure: true}
	id := framework.TestID{Path: []string{"webdriver", "input", "special characters are typed"}}
	debug := framework.CapturedOutput{{Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Message: "typed 1^1"}}

	logger.TestStarted(id)
	logger.TestError(id, errors.New("expected \"1^1\"\nactual \"11\""))
	logger.TestFinished(id, framework.DefectPresent, debug)
	logger.TestSkipped(framework.TestID{Path: []string{"cdp", "android"}}, "not applicable to the cdp backend")

	assert.Equal(t, `[webdriver/input/special characters are typed]
  expected "1^1"
  actual "11"
  DEFECT PRESENT: webdriver/input/special characters are typed
    DEBUG [2026-01-02 03:04:05.000] typed 1^1
  SKIPPED: cdp/android (not applicable to the cdp backend)
`, out.String())
}

func TestPrintResults(t *testing.T) {
	color.NoColor = true
	defect := framework.TestResult{TestID: framework.TestID{Path: []string{"webdriver", "memory"}}, Outcome: framework.DefectPresent}
	harness := framework.TestResult{TestID: framework.TestID{Path: []string{"cdp", "printing"}}, Outcome: framework.HarnessError}
	skipped := framework.TestResult{TestID: framework.TestID{Path: []string{"cdp", "android"}}, Outcome: framework.Skipped}

	var out bytes.Buffer
	PrintResults(&out, framework.Results{
		Tests:    []framework.TestResult{defect, harness, skipped},
		Failures: []framework.TestResult{defect, harness},
	})
	assert.Equal(t, `DEFECT PRESENT (1):
  webdriver/memory
HARNESS ERROR (1):
  cdp/printing
0 defects absent, 1 skipped
`, out.String())

	out.Reset()
	PrintResults(&out, framework.Results{Tests: []framework.TestResult{skipped}})
	assert.Equal(t, "All tests passed: 0 defects absent, 1 skipped\n", out.String())
}
