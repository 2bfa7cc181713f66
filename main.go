package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/driver/cdp"
	"github.com/browser-repro/regression-tests/driver/pwdriver"
	"github.com/browser-repro/regression-tests/driver/webdriver"
	"github.com/browser-repro/regression-tests/fixtures"
	"github.com/browser-repro/regression-tests/framework"
	"github.com/browser-repro/regression-tests/regressions"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	exitOK            = 0
	exitDefectPresent = 1
	exitHarnessError  = 2
)

// exitError carries an exit code out of the cobra command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

type availabilityChecker interface {
	Available() error
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "Invalid parameters: %s\n", err)
	return exitHarnessError
}

func newRootCommand(out io.Writer) *cobra.Command {
	params := &commandParams{}

	cmd := &cobra.Command{
		Use:   "browser-regressions",
		Short: "Reproduce reported browser automation defects",
		Long: `Runs a suite of small reproduction cases against Chrome, each one checking
whether a reported defect is still present.

Exit status is 0 when no defect was reproduced, 1 when at least one was, and 2 when
the harness itself could not run a test.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := params.readEnv(); err != nil {
				return err
			}
			return params.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			code := run(cmd.Context(), params, out)
			if code != exitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}
	params.addFlags(cmd.Flags())
	return cmd
}

func newLogger(params *commandParams, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	level, _ := params.logLevel() // already validated
	logger.SetLevel(level)
	return logger
}

func run(ctx context.Context, params *commandParams, out io.Writer) int {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(params, out)
	osFs := afero.NewOsFs()

	defaults, err := params.sessionDefaultsConfig(osFs)
	if err != nil {
		logger.Errorf("Session defaults: %s", err)
		return exitHarnessError
	}
	logger.Debugf("Session defaults: %s", defaults.JSONString())

	if err := osFs.MkdirAll(params.logDir, 0o755); err != nil {
		logger.Errorf("Can't create log directory: %s", err)
		return exitHarnessError
	}

	drivers, missing := selectDrivers(params, logger)
	if len(drivers) == 0 {
		logger.Errorf("None of the requested automation backends are available")
		return exitHarnessError
	}

	server, err := fixtures.NewServer(params.host, params.port, framework.LoggerWithPrefix(logger, "[fixtures] "))
	if err != nil {
		logger.Errorf("Fixture server error: %s", err)
		return exitHarnessError
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.Warnf("Fixture server did not shut down cleanly: %s", err)
		}
	}()
	logger.Infof("Fixture server listening at %s", server.BaseURL())

	available := make([]string, 0, len(drivers))
	for _, name := range params.backends {
		if _, ok := drivers[name]; ok {
			available = append(available, name)
		}
	}
	fmt.Fprintln(out)
	framework.PrintFilterDescription(out, params.filters, available, missing)

	fmt.Fprintln(out, "Running test suite")
	testLogger := &ConsoleTestLogger{
		Out:                  out,
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}
	env := &regressions.Environment{
		Drivers:       drivers,
		Fixtures:      server,
		Defaults:      defaults,
		Fs:            osFs,
		ArtifactRoot:  params.artifactDir,
		KeepArtifacts: params.keepArtifacts,
		Offline:       params.offline,
		AppiumURL:     params.appiumURL,
	}
	results := regressions.RunTestSuite(env, params.filters.AsFilter, testLogger, framework.Config{
		TestTimeout: params.testTimeout,
		Context:     ctx,
	})

	fmt.Fprintln(out)
	PrintResults(out, results)
	return exitCode(results)
}

// selectDrivers builds the requested backends and drops the ones that cannot run here.
func selectDrivers(params *commandParams, logger *logrus.Logger) (map[string]driver.Driver, []string) {
	drivers := make(map[string]driver.Driver)
	var missing []string
	for _, name := range params.backends {
		var d driver.Driver
		switch name {
		case driver.BackendWebDriver:
			d = &webdriver.Driver{
				ChromeDriverPath: params.env.ChromeDriverPath,
				LogDir:           params.logDir,
				Logger:           framework.LoggerWithPrefix(logger, "[webdriver] "),
			}
		case driver.BackendCDP:
			d = &cdp.Driver{
				ChromePath: params.env.ChromePath,
				Logger:     framework.LoggerWithPrefix(logger, "[cdp] "),
			}
		case driver.BackendPlaywright:
			d = &pwdriver.Driver{
				ChromePath: params.env.ChromePath,
				Logger:     framework.LoggerWithPrefix(logger, "[playwright] "),
			}
		}
		// an Appium server stands in for chromedriver when one is configured
		remoteOnly := name == driver.BackendWebDriver && params.appiumURL != ""
		if checker, ok := d.(availabilityChecker); ok && !remoteOnly {
			if err := checker.Available(); err != nil {
				logger.Warnf("Backend %s is not available: %s", name, err)
				missing = append(missing, name)
				continue
			}
		}
		drivers[name] = d
	}
	return drivers, missing
}

func exitCode(results framework.Results) int {
	switch {
	case results.HasHarnessErrors():
		return exitHarnessError
	case !results.OK():
		return exitDefectPresent
	default:
		return exitOK
	}
}
