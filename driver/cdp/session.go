package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/framework"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const cmPerInch = 2.54

// Session drives one Chrome process. Window handles are page target IDs.
type Session struct {
	id           string
	capabilities ldvalue.Value
	browserCtx   context.Context
	cancel       func()
	tabs         map[string]*tab
	current      *tab
	logger       framework.Logger
	lock         sync.Mutex
	closeOnce    sync.Once
}

// tab is one page target with its own chromedp context, console buffer and frame stack.
type tab struct {
	handle string
	ctx    context.Context
	frames []*cdp.Node
	logs   []driver.LogRecord
	lock   sync.Mutex
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) Capabilities() ldvalue.Value { return s.capabilities }
func (s *Session) DriverLogPath() string       { return "" }

// ProcessID returns the browser's process ID, since there is no separate driver process.
func (s *Session) ProcessID() int {
	c := chromedp.FromContext(s.browserCtx)
	if c == nil || c.Browser == nil {
		return 0
	}
	if p := c.Browser.Process(); p != nil {
		return p.Pid
	}
	return 0
}

// run executes actions in a chromedp context while honoring the caller's ctx. Cancelling ctx
// aborts the actions but does not close the tab.
func (s *Session) run(ctx context.Context, tabCtx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// start makes the first chromedp.Run on chromeCtx. chromedp ties the browser process, or a
// tab's event loop, to the context of the first Run on it, so that Run must use chromeCtx
// itself and ctx can only bound the wait. If ctx ends first, cancel releases chromeCtx.
func start(ctx context.Context, chromeCtx context.Context, cancel func()) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(chromeCtx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Session) currentTab() *tab {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.current
}

func (s *Session) adoptTab(tabCtx context.Context) *tab {
	t := &tab{
		handle: string(chromedp.FromContext(tabCtx).Target.TargetID),
		ctx:    tabCtx,
	}
	chromedp.ListenTarget(tabCtx, t.onEvent)
	s.lock.Lock()
	s.tabs[t.handle] = t
	s.lock.Unlock()
	return t
}

func (t *tab) onEvent(ev interface{}) {
	var record driver.LogRecord
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		var parts []string
		for _, arg := range e.Args {
			parts = append(parts, remoteObjectText(arg))
		}
		record = driver.LogRecord{
			Level:   consoleLevel(string(e.Type)),
			Source:  "console-api",
			Message: strings.Join(parts, " "),
		}
		if e.Timestamp != nil {
			record.Time = e.Timestamp.Time()
		}
	case *cdplog.EventEntryAdded:
		if e.Entry == nil {
			return
		}
		record = driver.LogRecord{
			Level:   consoleLevel(string(e.Entry.Level)),
			Source:  string(e.Entry.Source),
			Message: e.Entry.Text,
		}
		if e.Entry.Timestamp != nil {
			record.Time = e.Entry.Timestamp.Time()
		}
	default:
		return
	}
	t.lock.Lock()
	t.logs = append(t.logs, record)
	t.lock.Unlock()
}

func remoteObjectText(o *runtime.RemoteObject) string {
	if o == nil {
		return ""
	}
	if len(o.Value) > 0 {
		var s string
		if err := json.Unmarshal([]byte(o.Value), &s); err == nil {
			return s
		}
		return string(o.Value)
	}
	return o.Description
}

// levels as chromedriver reports them
func consoleLevel(cdpLevel string) string {
	switch cdpLevel {
	case "warning":
		return "WARNING"
	case "error", "assert":
		return "SEVERE"
	case "debug", "verbose":
		return "DEBUG"
	default:
		return "INFO"
	}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.currentTab().ctx, chromedp.Navigate(url)); err != nil {
		return driver.NavigationError{URL: url, Err: err}
	}
	t := s.currentTab()
	t.lock.Lock()
	t.frames = nil
	t.lock.Unlock()
	return nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, s.currentTab().ctx, chromedp.Title(&title))
	return title, err
}

// ExecuteScript runs script as the body of a function, with args available as arguments,
// the way WebDriver's execute/sync does.
func (s *Session) ExecuteScript(ctx context.Context, script string, args ...interface{}) (ldvalue.Value, error) {
	if args == nil {
		args = []interface{}{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return ldvalue.Null(), err
	}
	expression := fmt.Sprintf("(function(){%s\n}).apply(null, %s)", script, argsJSON)
	var result ldvalue.Value
	err = s.run(ctx, s.currentTab().ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, exception, err := runtime.Evaluate(expression).WithReturnByValue(true).WithAwaitPromise(true).Do(ctx)
		if err != nil {
			return err
		}
		if exception != nil {
			return driver.ProtocolError{Code: "javascript error", Message: exceptionText(exception)}
		}
		result = ldvalue.Parse([]byte(res.Value))
		return nil
	}))
	return result, err
}

func exceptionText(e *runtime.ExceptionDetails) string {
	if e.Exception != nil && e.Exception.Description != "" {
		return firstLine(e.Exception.Description)
	}
	return e.Text
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (s *Session) FindElement(ctx context.Context, selector driver.Selector) (driver.Element, error) {
	t := s.currentTab()
	opts := []chromedp.QueryOption{chromedp.AtLeast(0)}
	switch selector.Strategy {
	case driver.ByXPath:
		opts = append(opts, chromedp.BySearch)
	default:
		opts = append(opts, chromedp.ByQuery)
	}
	t.lock.Lock()
	if n := len(t.frames); n > 0 {
		opts = append(opts, chromedp.FromNode(t.frames[n-1]))
	}
	t.lock.Unlock()

	var nodes []*cdp.Node
	if err := s.run(ctx, t.ctx, chromedp.Nodes(selector.Value, &nodes, opts...)); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, driver.NotFoundError{What: "element"}
	}
	return &Element{session: s, tab: t, node: nodes[0]}, nil
}

func (s *Session) Logs(ctx context.Context, channel string) ([]driver.LogRecord, error) {
	if channel != driver.LogBrowser {
		return nil, fmt.Errorf("%s log: %w", channel, driver.ErrUnsupported)
	}
	t := s.currentTab()
	t.lock.Lock()
	defer t.lock.Unlock()
	// reading drains the buffer, as WebDriver does
	logs := t.logs
	t.logs = nil
	return logs, nil
}

func (s *Session) WindowHandles(ctx context.Context) ([]string, error) {
	var infos []*target.Info
	err := s.run(ctx, s.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		infos, err = chromedp.Targets(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	var handles []string
	for _, info := range infos {
		if info.Type == "page" {
			handles = append(handles, string(info.TargetID))
		}
	}
	return handles, nil
}

func (s *Session) CurrentWindowHandle(context.Context) (string, error) {
	return s.currentTab().handle, nil
}

func (s *Session) SwitchToWindow(ctx context.Context, handle string) error {
	s.lock.Lock()
	t, ok := s.tabs[handle]
	s.lock.Unlock()
	if !ok {
		handles, err := s.WindowHandles(ctx)
		if err != nil {
			return err
		}
		if !contains(handles, handle) {
			return driver.NotFoundError{What: "window"}
		}
		// cancelling tabCtx closes the window, so it is only released with the browser
		tabCtx, cancelTab := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(target.ID(handle)))
		if err := start(ctx, tabCtx, cancelTab); err != nil {
			return err
		}
		t = s.adoptTab(tabCtx)
	}
	s.lock.Lock()
	s.current = t
	s.lock.Unlock()
	return nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

func (s *Session) SwitchToFrame(ctx context.Context, frame driver.Element) error {
	e, ok := frame.(*Element)
	if !ok || e.session != s {
		return fmt.Errorf("frame element does not belong to this session")
	}
	if e.node.NodeName != "IFRAME" && e.node.NodeName != "FRAME" {
		return driver.NotFoundError{What: "frame"}
	}
	e.tab.lock.Lock()
	e.tab.frames = append(e.tab.frames, e.node)
	e.tab.lock.Unlock()
	return nil
}

func (s *Session) SwitchToParentFrame(context.Context) error {
	t := s.currentTab()
	t.lock.Lock()
	if n := len(t.frames); n > 0 {
		t.frames = t.frames[:n-1]
	}
	t.lock.Unlock()
	return nil
}

func (s *Session) MinimizeWindow(ctx context.Context) error {
	t := s.currentTab()
	return s.run(ctx, t.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		windowID, _, err := browser.GetWindowForTarget().WithTargetID(target.ID(t.handle)).Do(ctx)
		if err != nil {
			return err
		}
		return browser.SetWindowBounds(windowID, &browser.Bounds{WindowState: browser.WindowStateMinimized}).Do(ctx)
	}))
}

func (s *Session) PrintPDF(ctx context.Context, options driver.PrintOptions) ([]byte, error) {
	var data []byte
	err := s.run(ctx, s.currentTab().ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		p := page.PrintToPDF().
			WithPaperWidth(options.PageWidthCM / cmPerInch).
			WithPaperHeight(options.PageHeightCM / cmPerInch).
			WithLandscape(options.Landscape).
			WithPrintBackground(options.Background)
		var err error
		data, _, err = p.Do(ctx)
		return err
	}))
	return data, err
}

func (s *Session) SetDownloadDir(ctx context.Context, dir string) error {
	return s.run(ctx, s.browserCtx, browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
		WithDownloadPath(dir).
		WithEventsEnabled(true))
}

// Close shuts the browser down and waits for the process to exit.
func (s *Session) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
