// Package cdp implements the driver abstraction by talking the Chrome DevTools Protocol
// directly through chromedp, without chromedriver.
package cdp

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/framework"
	"github.com/browser-repro/regression-tests/sessiondef"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Driver launches one Chrome process per session.
type Driver struct {
	// ChromePath is the browser executable; "" lets chromedp find one. The session config's
	// binary option takes precedence.
	ChromePath string
	Logger     framework.Logger
}

func (d *Driver) Name() string { return driver.BackendCDP }

// Available reports whether a browser executable can be found.
func (d *Driver) Available() error {
	if d.ChromePath != "" {
		_, err := exec.LookPath(d.ChromePath)
		return err
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no Chrome or Chromium executable found on the PATH")
}

func (d *Driver) logger() framework.Logger {
	if d.Logger == nil {
		return framework.NullLogger()
	}
	return d.Logger
}

// chromeFlags computes the command-line switches for the browser, starting from chromedp's
// defaults. A false value means the switch is removed.
func chromeFlags(config sessiondef.SessionConfig) map[string]interface{} {
	flags := map[string]interface{}{"headless": false}
	for _, arg := range config.Args() {
		name, value := parseSwitch(arg)
		if name != "" {
			flags[name] = value
		}
	}
	for _, name := range config.ExcludeSwitches() {
		flags[strings.TrimPrefix(name, "--")] = false
	}
	return flags
}

func parseSwitch(arg string) (string, interface{}) {
	if !strings.HasPrefix(arg, "-") {
		return "", nil
	}
	arg = strings.TrimLeft(arg, "-")
	if i := strings.IndexByte(arg, '='); i >= 0 {
		return arg[:i], arg[i+1:]
	}
	return arg, true
}

func (d *Driver) allocatorOptions(config sessiondef.SessionConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	flags := chromeFlags(config)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	execPath := config.String(sessiondef.OptionBinary)
	if execPath == "" {
		execPath = d.ChromePath
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	if dir := config.String(sessiondef.OptionUserDataDir); dir != "" {
		opts = append(opts, chromedp.UserDataDir(dir))
	}
	opts = append(opts, chromedp.CombinedOutput(framework.LoggerWriter(framework.LoggerWithPrefix(d.logger(), "[chrome] "))))
	return opts
}

func (d *Driver) NewSession(ctx context.Context, config sessiondef.SessionConfig) (driver.Session, error) {
	logger := d.logger()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions(config)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Printf),
		chromedp.WithErrorf(logger.Printf),
	)
	succeeded := false
	defer func() {
		if !succeeded {
			cancelBrowser()
			cancelAlloc()
		}
	}()

	s := &Session{
		browserCtx: browserCtx,
		cancel: func() {
			_ = chromedp.Cancel(browserCtx)
			cancelBrowser()
			cancelAlloc()
		},
		tabs:   make(map[string]*tab),
		logger: logger,
	}

	if err := start(ctx, browserCtx, cancelBrowser); err != nil {
		return nil, driver.SessionCreationError{Message: err.Error()}
	}
	first := s.adoptTab(browserCtx)
	s.current = first
	s.id = first.handle

	if dir := config.String(sessiondef.OptionDownloadDir); dir != "" {
		if err := s.SetDownloadDir(ctx, dir); err != nil {
			return nil, err
		}
	}

	version, err := s.browserVersion(ctx)
	if err != nil {
		return nil, err
	}
	s.capabilities = ldvalue.ObjectBuild().
		Set(sessiondef.CapabilityBrowserName, ldvalue.String("chrome")).
		Set(sessiondef.CapabilityBrowserVersion, ldvalue.String(version)).
		Build()
	logger.Printf("Launched Chrome %s for session %s", version, s.id)

	succeeded = true
	return s, nil
}

func (s *Session) browserVersion(ctx context.Context) (string, error) {
	var product string
	err := s.run(ctx, s.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, p, _, _, _, err := browser.GetVersion().Do(ctx)
		product = p
		return err
	}))
	if err != nil {
		return "", err
	}
	// product looks like "HeadlessChrome/131.0.6778.85"
	if i := strings.LastIndexByte(product, '/'); i >= 0 {
		return product[i+1:], nil
	}
	return product, nil
}
