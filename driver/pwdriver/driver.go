// Package pwdriver implements the driver abstraction with Playwright. Playwright has no
// notion of window handles, so pages are given generated handles when they are first seen.
package pwdriver

import (
	"context"
	"fmt"
	"strings"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/framework"
	"github.com/browser-repro/regression-tests/sessiondef"

	"github.com/playwright-community/playwright-go"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

var channels = map[string]string{
	"stable": "chrome",
	"beta":   "chrome-beta",
	"dev":    "chrome-dev",
	"canary": "chrome-canary",
}

type Driver struct {
	ChromePath string
	Logger     framework.Logger
}

func (d *Driver) Name() string { return driver.BackendPlaywright }

// Available starts and stops the Playwright driver to see whether it is installed.
func (d *Driver) Available() error {
	pw, err := playwright.Run(&playwright.RunOptions{Verbose: false})
	if err != nil {
		return err
	}
	return pw.Stop()
}

func (d *Driver) logger() framework.Logger {
	if d.Logger == nil {
		return framework.NullLogger()
	}
	return d.Logger
}

func launchOptions(config sessiondef.SessionConfig, chromePath string) playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(false)}
	for _, arg := range config.Args() {
		if arg == "--headless" || strings.HasPrefix(arg, "--headless=") {
			opts.Headless = playwright.Bool(true)
			continue
		}
		opts.Args = append(opts.Args, arg)
	}
	for _, name := range config.ExcludeSwitches() {
		opts.IgnoreDefaultArgs = append(opts.IgnoreDefaultArgs, "--"+strings.TrimPrefix(name, "--"))
	}
	if binary := config.String(sessiondef.OptionBinary); binary != "" {
		opts.ExecutablePath = playwright.String(binary)
	} else if chromePath != "" {
		opts.ExecutablePath = playwright.String(chromePath)
	} else if channel, ok := channels[strings.ToLower(config.String(sessiondef.OptionBrowserVersion))]; ok {
		opts.Channel = playwright.String(channel)
	}
	if dir := config.String(sessiondef.OptionDownloadDir); dir != "" {
		opts.DownloadsPath = playwright.String(dir)
	}
	return opts
}

func (d *Driver) NewSession(ctx context.Context, config sessiondef.SessionConfig) (driver.Session, error) {
	logger := d.logger()

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("can't start Playwright: %w", err)
	}
	succeeded := false
	defer func() {
		if !succeeded {
			_ = pw.Stop()
		}
	}()

	browser, err := pw.Chromium.Launch(launchOptions(config, d.ChromePath))
	if err != nil {
		return nil, driver.SessionCreationError{Message: err.Error()}
	}
	defer func() {
		if !succeeded {
			_ = browser.Close()
		}
	}()

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		AcceptDownloads: playwright.Bool(true),
	})
	if err != nil {
		return nil, driver.SessionCreationError{Message: err.Error()}
	}

	s := &Session{
		pw:           pw,
		browser:      browser,
		context:      browserContext,
		handles:      make(map[playwright.Page]string),
		pageLoadMS:   config.OptionalInt(sessiondef.OptionPageLoadTimeoutMS),
		downloadDir:  config.String(sessiondef.OptionDownloadDir),
		logger:       logger,
		capabilities: ldvalue.ObjectBuild().Set(sessiondef.CapabilityBrowserName, ldvalue.String("chromium")).Set(sessiondef.CapabilityBrowserVersion, ldvalue.String(browser.Version())).Build(),
	}
	browserContext.OnPage(func(p playwright.Page) { s.track(p) })

	page, err := browserContext.NewPage()
	if err != nil {
		return nil, driver.SessionCreationError{Message: err.Error()}
	}
	s.current = s.track(page)
	s.id = s.current.handle
	logger.Printf("Launched Chromium %s through Playwright for session %s", browser.Version(), s.id)

	succeeded = true
	return s, nil
}
