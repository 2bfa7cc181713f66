// Package driver defines the abstraction that regression cases use to control a browser,
// independent of the automation protocol behind it.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/browser-repro/regression-tests/sessiondef"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Backend names accepted by --backend.
const (
	BackendWebDriver  = "webdriver"
	BackendCDP        = "cdp"
	BackendPlaywright = "playwright"
)

// AllBackends lists every backend this build knows about.
var AllBackends = []string{BackendWebDriver, BackendCDP, BackendPlaywright}

// Driver creates sessions.
type Driver interface {
	// Name returns the backend name, one of the Backend* constants.
	Name() string

	// NewSession launches a browser (or connects to a remote end) with the given options.
	// If it returns an error, nothing needs to be released.
	NewSession(ctx context.Context, config sessiondef.SessionConfig) (Session, error)
}

// Session is a live connection to one browser instance.
//
// Close must be safe to call more than once; only the first call does anything.
type Session interface {
	ID() string

	// Capabilities returns the capabilities reported by the remote end when the session was
	// created, exactly as received.
	Capabilities() ldvalue.Value

	// DriverLogPath returns the driver log file for this session, or "" if there is none.
	DriverLogPath() string

	// ProcessID returns the OS process ID of the driver (or browser, for backends that have
	// no separate driver process), or 0 if it is not a local process.
	ProcessID() int

	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	ExecuteScript(ctx context.Context, script string, args ...interface{}) (ldvalue.Value, error)
	FindElement(ctx context.Context, selector Selector) (Element, error)
	Logs(ctx context.Context, channel string) ([]LogRecord, error)

	WindowHandles(ctx context.Context) ([]string, error)
	CurrentWindowHandle(ctx context.Context) (string, error)
	SwitchToWindow(ctx context.Context, handle string) error
	SwitchToFrame(ctx context.Context, frame Element) error
	SwitchToParentFrame(ctx context.Context) error
	MinimizeWindow(ctx context.Context) error

	Close() error
}

// Element is a reference to a DOM element within a session.
type Element interface {
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Property(ctx context.Context, name string) (ldvalue.Value, error)
}

// SharedStarter is implemented by backends that normally start a driver process for every
// session but can also start one for several sessions to share.
type SharedStarter interface {
	StartShared(ctx context.Context) (SharedDriver, error)
}

// SharedDriver creates every session through the same driver process. Close stops that
// process; sessions created through it should be closed first.
type SharedDriver interface {
	Driver
	Close() error
}

// Printer is implemented by sessions that can render the current page as a PDF.
type Printer interface {
	PrintPDF(ctx context.Context, options PrintOptions) ([]byte, error)
}

// Commander is implemented by sessions that accept raw protocol commands. For WebDriver the
// method is an HTTP method and path is relative to the session URL; for CDP the method is the
// CDP method name and path is ignored.
type Commander interface {
	Command(ctx context.Context, method, path string, params interface{}) (ldvalue.Value, error)
}

// Downloader is implemented by sessions that can redirect downloads to a directory after
// the session has started.
type Downloader interface {
	SetDownloadDir(ctx context.Context, dir string) error
}

// SelectorStrategy says how Selector.Value is interpreted.
type SelectorStrategy string

const (
	ByCSS   SelectorStrategy = "css selector"
	ByXPath SelectorStrategy = "xpath"
)

// Selector locates an element.
type Selector struct {
	Strategy SelectorStrategy
	Value    string
}

// CSS is shorthand for a CSS selector.
func CSS(value string) Selector { return Selector{Strategy: ByCSS, Value: value} }

// ID selects an element by its id attribute.
func ID(id string) Selector { return Selector{Strategy: ByCSS, Value: "#" + id} }

// Name selects an element by its name attribute.
func Name(name string) Selector { return Selector{Strategy: ByCSS, Value: fmt.Sprintf("[name=%q]", name)} }

func (s Selector) String() string { return string(s.Strategy) + "=" + s.Value }

// LogRecord is one entry from a browser or driver log channel.
type LogRecord struct {
	Time    time.Time
	Level   string
	Source  string
	Message string
}

// Log channel names.
const (
	LogBrowser = "browser"
	LogDriver  = "driver"
)

// PrintOptions control PDF rendering. Sizes are in centimeters.
type PrintOptions struct {
	PageWidthCM  float64
	PageHeightCM float64
	Landscape    bool
	Background   bool
}

// A4 is 21.0 x 29.7 cm.
var A4 = PrintOptions{PageWidthCM: 21.0, PageHeightCM: 29.7}
