package main

import (
	"fmt"
	"time"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/framework"
	"github.com/browser-repro/regression-tests/sessiondef"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	defaultPort        = 0
	defaultTestTimeout = framework.DefaultTestTimeout
)

// envParams are read from the environment, so that CI jobs can pin a browser without changing
// the command line.
type envParams struct {
	BrowserVersion   string `envconfig:"BROWSER_VERSION" default:"stable"`
	ChromeDriverPath string `envconfig:"CHROMEDRIVER_PATH"`
	ChromePath       string `envconfig:"CHROME_PATH"`
	LogLevel         string `envconfig:"LOG_LEVEL" default:"info"`
}

type commandParams struct {
	filters         framework.RegexFilters
	debug           bool
	debugAll        bool
	backends        []string
	host            string
	port            int
	logDir          string
	artifactDir     string
	keepArtifacts   bool
	offline         bool
	appiumURL       string
	sessionDefaults string
	testTimeout     time.Duration
	env             envParams
}

func (c *commandParams) addFlags(fs *pflag.FlagSet) {
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")
	fs.StringSliceVar(&c.backends, "backend", []string{driver.BackendWebDriver},
		fmt.Sprintf("automation backend(s) to run against: %v", driver.AllBackends))
	fs.StringVar(&c.host, "host", "localhost", "hostname the browser uses to reach the fixture server")
	fs.IntVar(&c.port, "port", defaultPort, "port for the fixture server (0 picks a free one)")
	fs.StringVar(&c.logDir, "log-dir", "logs", "directory for per-session chromedriver logs")
	fs.StringVar(&c.artifactDir, "artifact-dir", "", "parent directory for downloads and other files the browser writes")
	fs.BoolVar(&c.keepArtifacts, "keep-artifacts", false, "do not delete artifact directories after each test")
	fs.BoolVar(&c.offline, "offline", false, "skip tests that need the public internet")
	fs.StringVar(&c.appiumURL, "appium-url", "", "Appium server for the Android tests, e.g. http://127.0.0.1:4723")
	fs.StringVar(&c.sessionDefaults, "session-defaults", "", "YAML file of options applied to every local session")
	fs.DurationVar(&c.testTimeout, "test-timeout", defaultTestTimeout, "deadline for each test")
}

// readEnv fills in the parameters that come from environment variables.
func (c *commandParams) readEnv() error {
	if err := envconfig.Process("", &c.env); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	return nil
}

func (c *commandParams) validate() error {
	if len(c.backends) == 0 {
		return fmt.Errorf("at least one --backend is required")
	}
	for _, b := range c.backends {
		known := false
		for _, k := range driver.AllBackends {
			known = known || b == k
		}
		if !known {
			return fmt.Errorf("unknown backend %q; expected one of %v", b, driver.AllBackends)
		}
	}
	if c.port < 0 || c.port > 65535 {
		return fmt.Errorf("--port must be between 0 and 65535")
	}
	if c.testTimeout <= 0 {
		return fmt.Errorf("--test-timeout must be positive")
	}
	if _, err := c.logLevel(); err != nil {
		return err
	}
	return nil
}

func (c *commandParams) logLevel() (logrus.Level, error) {
	if c.debugAll {
		return logrus.DebugLevel, nil
	}
	level, err := logrus.ParseLevel(c.env.LogLevel)
	if err != nil {
		return level, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return level, nil
}

// sessionDefaultsConfig returns the options merged into every local session: the defaults file
// if there is one, otherwise the standard defaults, plus the browser version from the
// environment unless the file already names one.
func (c *commandParams) sessionDefaultsConfig(fs afero.Fs) (sessiondef.SessionConfig, error) {
	defaults := sessiondef.StandardDefaults()
	if c.sessionDefaults != "" {
		loaded, err := sessiondef.LoadDefaults(fs, c.sessionDefaults)
		if err != nil {
			return nil, err
		}
		defaults = loaded
	}
	if c.env.BrowserVersion != "" && !defaults.Has(sessiondef.OptionBrowserVersion) {
		defaults[sessiondef.OptionBrowserVersion] = ldvalue.String(c.env.BrowserVersion)
	}
	if c.env.ChromePath != "" && !defaults.Has(sessiondef.OptionBinary) {
		defaults[sessiondef.OptionBinary] = ldvalue.String(c.env.ChromePath)
	}
	return defaults, nil
}
