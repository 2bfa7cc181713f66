package pwdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/framework"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

type Session struct {
	id           string
	capabilities ldvalue.Value
	pw           *playwright.Playwright
	browser      playwright.Browser
	context      playwright.BrowserContext
	handles      map[playwright.Page]string
	pages        []*pageState
	current      *pageState
	pageLoadMS   ldvalue.OptionalInt
	downloadDir  string
	logger       framework.Logger
	lock         sync.Mutex
	closeOnce    sync.Once
	closeErr     error
}

type pageState struct {
	handle string
	page   playwright.Page
	frames []playwright.Frame
	logs   []driver.LogRecord
	lock   sync.Mutex
}

// track assigns a handle to a page the first time it is seen and starts collecting its
// console output and downloads.
func (s *Session) track(p playwright.Page) *pageState {
	s.lock.Lock()
	defer s.lock.Unlock()
	if handle, ok := s.handles[p]; ok {
		for _, ps := range s.pages {
			if ps.handle == handle {
				return ps
			}
		}
	}
	ps := &pageState{handle: uuid.NewString(), page: p}
	s.handles[p] = ps.handle
	s.pages = append(s.pages, ps)
	p.OnConsole(func(m playwright.ConsoleMessage) {
		ps.lock.Lock()
		ps.logs = append(ps.logs, driver.LogRecord{
			Time:    time.Now(),
			Level:   consoleLevel(m.Type()),
			Source:  "console-api",
			Message: m.Text(),
		})
		ps.lock.Unlock()
	})
	p.OnDownload(func(d playwright.Download) {
		s.lock.Lock()
		dir := s.downloadDir
		s.lock.Unlock()
		if dir == "" {
			return
		}
		if err := d.SaveAs(filepath.Join(dir, d.SuggestedFilename())); err != nil {
			s.logger.Printf("Could not save download %s: %s", d.SuggestedFilename(), err)
		}
	})
	p.OnClose(func(playwright.Page) {
		s.lock.Lock()
		defer s.lock.Unlock()
		delete(s.handles, p)
		for i, e := range s.pages {
			if e == ps {
				s.pages = append(s.pages[:i], s.pages[i+1:]...)
				break
			}
		}
	})
	return ps
}

func consoleLevel(t string) string {
	switch t {
	case "warning":
		return "WARNING"
	case "error", "assert":
		return "SEVERE"
	case "debug", "trace":
		return "DEBUG"
	default:
		return "INFO"
	}
}

func (s *Session) currentPage() *pageState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.current
}

// withContext runs a blocking Playwright call, abandoning it if ctx ends first.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) Capabilities() ldvalue.Value { return s.capabilities }
func (s *Session) DriverLogPath() string       { return "" }
func (s *Session) ProcessID() int              { return 0 }

func (s *Session) Navigate(ctx context.Context, url string) error {
	ps := s.currentPage()
	opts := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad}
	if s.pageLoadMS.IsDefined() {
		opts.Timeout = playwright.Float(float64(s.pageLoadMS.IntValue()))
	}
	_, err := withContext(ctx, func() (playwright.Response, error) { return ps.page.Goto(url, opts) })
	if err != nil {
		return driver.NavigationError{URL: url, Err: err}
	}
	ps.lock.Lock()
	ps.frames = nil
	ps.lock.Unlock()
	return nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	ps := s.currentPage()
	return withContext(ctx, ps.page.Title)
}

// target is the frame that scripts and lookups apply to.
func (ps *pageState) target() playwright.Frame {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	if n := len(ps.frames); n > 0 {
		return ps.frames[n-1]
	}
	return ps.page.MainFrame()
}

func (s *Session) ExecuteScript(ctx context.Context, script string, args ...interface{}) (ldvalue.Value, error) {
	if args == nil {
		args = []interface{}{}
	}
	expression := fmt.Sprintf("(args) => (function(){%s\n}).apply(null, args)", script)
	target := s.currentPage().target()
	result, err := withContext(ctx, func() (interface{}, error) { return target.Evaluate(expression, args) })
	if err != nil {
		return ldvalue.Null(), err
	}
	return ldvalue.CopyArbitraryValue(normalize(result)), nil
}

// Playwright decodes JSON numbers as int or float64 and objects as map[string]interface{};
// round-tripping through encoding/json gives ldvalue a shape it can copy.
func normalize(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func (s *Session) FindElement(ctx context.Context, selector driver.Selector) (driver.Element, error) {
	query := selector.Value
	if selector.Strategy == driver.ByXPath {
		query = "xpath=" + query
	}
	target := s.currentPage().target()
	handle, err := withContext(ctx, func() (playwright.ElementHandle, error) { return target.QuerySelector(query) })
	if err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, driver.NotFoundError{What: "element"}
	}
	return &Element{session: s, handle: handle}, nil
}

func (s *Session) Logs(ctx context.Context, channel string) ([]driver.LogRecord, error) {
	if channel != driver.LogBrowser {
		return nil, fmt.Errorf("%s log: %w", channel, driver.ErrUnsupported)
	}
	ps := s.currentPage()
	ps.lock.Lock()
	defer ps.lock.Unlock()
	logs := ps.logs
	ps.logs = nil
	return logs, nil
}

func (s *Session) WindowHandles(ctx context.Context) ([]string, error) {
	for _, p := range s.context.Pages() {
		s.track(p)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	handles := make([]string, 0, len(s.pages))
	for _, ps := range s.pages {
		handles = append(handles, ps.handle)
	}
	return handles, nil
}

func (s *Session) CurrentWindowHandle(context.Context) (string, error) {
	return s.currentPage().handle, nil
}

func (s *Session) SwitchToWindow(ctx context.Context, handle string) error {
	if _, err := s.WindowHandles(ctx); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, ps := range s.pages {
		if ps.handle == handle {
			s.current = ps
			return nil
		}
	}
	return driver.NotFoundError{What: "window"}
}

func (s *Session) SwitchToFrame(ctx context.Context, frame driver.Element) error {
	e, ok := frame.(*Element)
	if !ok || e.session != s {
		return fmt.Errorf("frame element does not belong to this session")
	}
	f, err := withContext(ctx, e.handle.ContentFrame)
	if err != nil {
		return err
	}
	if f == nil {
		return driver.NotFoundError{What: "frame"}
	}
	ps := s.currentPage()
	ps.lock.Lock()
	ps.frames = append(ps.frames, f)
	ps.lock.Unlock()
	return nil
}

func (s *Session) SwitchToParentFrame(context.Context) error {
	ps := s.currentPage()
	ps.lock.Lock()
	if n := len(ps.frames); n > 0 {
		ps.frames = ps.frames[:n-1]
	}
	ps.lock.Unlock()
	return nil
}

// MinimizeWindow goes through a CDP session since Playwright has no window management.
func (s *Session) MinimizeWindow(ctx context.Context) error {
	ps := s.currentPage()
	cdpSession, err := s.context.NewCDPSession(ps.page)
	if err != nil {
		return fmt.Errorf("minimize: %w", driver.ErrUnsupported)
	}
	defer func() { _ = cdpSession.Detach() }()
	window, err := withContext(ctx, func() (interface{}, error) {
		return cdpSession.Send("Browser.getWindowForTarget", nil)
	})
	if err != nil {
		return err
	}
	windowID := ldvalue.CopyArbitraryValue(normalize(window)).GetByKey("windowId").IntValue()
	_, err = withContext(ctx, func() (interface{}, error) {
		return cdpSession.Send("Browser.setWindowBounds", map[string]interface{}{
			"windowId": windowID,
			"bounds":   map[string]interface{}{"windowState": "minimized"},
		})
	})
	return err
}

// Command sends a raw CDP command to the current page; path is ignored.
func (s *Session) Command(ctx context.Context, method, _ string, params interface{}) (ldvalue.Value, error) {
	var paramMap map[string]interface{}
	if params != nil {
		m, ok := normalize(params).(map[string]interface{})
		if !ok {
			return ldvalue.Null(), fmt.Errorf("CDP command parameters must be an object")
		}
		paramMap = m
	}
	cdpSession, err := s.context.NewCDPSession(s.currentPage().page)
	if err != nil {
		return ldvalue.Null(), err
	}
	defer func() { _ = cdpSession.Detach() }()
	result, err := withContext(ctx, func() (interface{}, error) { return cdpSession.Send(method, paramMap) })
	if err != nil {
		return ldvalue.Null(), err
	}
	return ldvalue.CopyArbitraryValue(normalize(result)), nil
}

func (s *Session) PrintPDF(ctx context.Context, options driver.PrintOptions) ([]byte, error) {
	ps := s.currentPage()
	return withContext(ctx, func() ([]byte, error) {
		return ps.page.PDF(playwright.PagePdfOptions{
			Width:           playwright.String(fmt.Sprintf("%gcm", options.PageWidthCM)),
			Height:          playwright.String(fmt.Sprintf("%gcm", options.PageHeightCM)),
			Landscape:       playwright.Bool(options.Landscape),
			PrintBackground: playwright.Bool(options.Background),
		})
	})
}

func (s *Session) SetDownloadDir(_ context.Context, dir string) error {
	s.lock.Lock()
	s.downloadDir = dir
	s.lock.Unlock()
	return nil
}

// Close closes the browser and stops the Playwright driver.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.browser.Close(); err != nil {
			s.closeErr = err
		}
		if err := s.pw.Stop(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
