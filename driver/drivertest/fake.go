// Package drivertest provides an in-memory driver for testing code that acquires and
// releases sessions.
package drivertest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/sessiondef"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// FakeDriver hands out FakeSessions and counts how many were created and closed.
type FakeDriver struct {
	// BackendName is returned by Name; "" means "fake".
	BackendName string
	// FailCreation, if set, is returned by NewSession.
	FailCreation error
	// Titles maps URLs to the title Navigate makes Title return.
	Titles map[string]string
	// Capabilities are reported by every session; null means a minimal W3C set.
	Capabilities ldvalue.Value
	// Elements lists the selector values that FindElement can find.
	Elements map[string]bool
	// OnClick, if set, is called when an element is clicked, with the element's selector value.
	OnClick func(s *FakeSession, selector string)
	// Hangs lists URLs whose Navigate blocks until its context is done.
	Hangs map[string]bool
	// HandlesDelay makes WindowHandles take this long, or until its context is done.
	HandlesDelay time.Duration

	created  int
	closed   int
	shared   int
	unshared int
	configs  []sessiondef.SessionConfig
	sessions []*FakeSession
	lock     sync.Mutex
}

func (d *FakeDriver) Name() string {
	if d.BackendName == "" {
		return "fake"
	}
	return d.BackendName
}

func (d *FakeDriver) NewSession(ctx context.Context, config sessiondef.SessionConfig) (driver.Session, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.configs = append(d.configs, config)
	if d.FailCreation != nil {
		return nil, d.FailCreation
	}
	d.created++
	caps := d.Capabilities
	if caps.IsNull() {
		caps = ldvalue.ObjectBuild().
			Set(sessiondef.CapabilityBrowserName, ldvalue.String("chrome")).
			Set(sessiondef.CapabilityChromeOptions, ldvalue.ObjectBuild().Build()).
			Build()
	}
	s := &FakeSession{owner: d, id: "fake-" + strconv.Itoa(d.created), capabilities: caps, config: config,
		handles: []string{"window-1"}, current: "window-1"}
	d.sessions = append(d.sessions, s)
	return s, nil
}

// StartShared returns a driver that hands out this driver's sessions and counts its own
// starts and closes.
func (d *FakeDriver) StartShared(ctx context.Context) (driver.SharedDriver, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.FailCreation != nil {
		return nil, d.FailCreation
	}
	d.shared++
	return &fakeShared{owner: d}, nil
}

// SharedDrivers returns how many shared drivers were started and how many were closed.
func (d *FakeDriver) SharedDrivers() (started, closed int) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.shared, d.unshared
}

type fakeShared struct {
	owner     *FakeDriver
	closeOnce sync.Once
}

func (d *fakeShared) Name() string { return d.owner.Name() }

func (d *fakeShared) NewSession(ctx context.Context, config sessiondef.SessionConfig) (driver.Session, error) {
	return d.owner.NewSession(ctx, config)
}

func (d *fakeShared) Close() error {
	d.closeOnce.Do(func() {
		d.owner.lock.Lock()
		d.owner.unshared++
		d.owner.lock.Unlock()
	})
	return nil
}

// Created returns the number of sessions successfully created.
func (d *FakeDriver) Created() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.created
}

// Closed returns the number of sessions closed, counting each session once.
func (d *FakeDriver) Closed() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.closed
}

// Configs returns the configs passed to NewSession, including failed attempts.
func (d *FakeDriver) Configs() []sessiondef.SessionConfig {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]sessiondef.SessionConfig(nil), d.configs...)
}

// Sessions returns every session created so far.
func (d *FakeDriver) Sessions() []*FakeSession {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]*FakeSession(nil), d.sessions...)
}

// FakeSession records navigation and typed text. Elements exist only for selector values
// listed in the driver's Elements; others are not found.
type FakeSession struct {
	owner        *FakeDriver
	id           string
	capabilities ldvalue.Value
	config       sessiondef.SessionConfig
	url          string
	handles      []string
	current      string
	closed       bool
	typed        map[string]string
	lookups      int
	lock         sync.Mutex
}

func (s *FakeSession) ID() string                  { return s.id }
func (s *FakeSession) Capabilities() ldvalue.Value { return s.capabilities }
func (s *FakeSession) DriverLogPath() string       { return "" }
func (s *FakeSession) ProcessID() int              { return 0 }

// Config returns the config the session was created with.
func (s *FakeSession) Config() sessiondef.SessionConfig { return s.config }

// IsClosed reports whether Close has been called.
func (s *FakeSession) IsClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

// Lookups returns the number of FindElement calls.
func (s *FakeSession) Lookups() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lookups
}

// URL returns the last URL navigated to.
func (s *FakeSession) URL() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.url
}

func (s *FakeSession) checkOpen() error {
	if s.closed {
		return driver.NotFoundError{What: "session"}
	}
	return nil
}

// OpenWindow adds a window handle, as a click on a link with a target would, and returns it.
func (s *FakeSession) OpenWindow() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	handle := "window-" + strconv.Itoa(len(s.handles)+1)
	s.handles = append(s.handles, handle)
	return handle
}

func (s *FakeSession) Navigate(ctx context.Context, url string) error {
	if s.owner.Hangs[url] {
		<-ctx.Done()
		return ctx.Err()
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.url = url
	return ctx.Err()
}

func (s *FakeSession) Title(ctx context.Context) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	return s.owner.Titles[s.url], nil
}

func (s *FakeSession) ExecuteScript(ctx context.Context, script string, args ...interface{}) (ldvalue.Value, error) {
	return ldvalue.Null(), nil
}

func (s *FakeSession) FindElement(ctx context.Context, selector driver.Selector) (driver.Element, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.lookups++
	if !s.owner.Elements[selector.Value] {
		return nil, driver.NotFoundError{What: "element"}
	}
	return &fakeElement{session: s, key: selector.Value}, nil
}

func (s *FakeSession) Logs(ctx context.Context, channel string) ([]driver.LogRecord, error) {
	return nil, nil
}

func (s *FakeSession) WindowHandles(ctx context.Context) ([]string, error) {
	if s.owner.HandlesDelay > 0 {
		select {
		case <-time.After(s.owner.HandlesDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.handles...), nil
}

func (s *FakeSession) CurrentWindowHandle(ctx context.Context) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.current, nil
}

func (s *FakeSession) SwitchToWindow(ctx context.Context, handle string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, h := range s.handles {
		if h == handle {
			s.current = h
			return nil
		}
	}
	return driver.NotFoundError{What: "window"}
}

func (s *FakeSession) SwitchToFrame(ctx context.Context, frame driver.Element) error { return nil }
func (s *FakeSession) SwitchToParentFrame(ctx context.Context) error                 { return nil }

func (s *FakeSession) MinimizeWindow(ctx context.Context) error {
	return fmt.Errorf("minimize: %w", driver.ErrUnsupported)
}

func (s *FakeSession) Close() error {
	s.lock.Lock()
	alreadyClosed := s.closed
	s.closed = true
	s.lock.Unlock()
	if !alreadyClosed {
		s.owner.lock.Lock()
		s.owner.closed++
		s.owner.lock.Unlock()
	}
	return nil
}

type fakeElement struct {
	session *FakeSession
	key     string
}

func (e *fakeElement) Click(ctx context.Context) error {
	if e.session.owner.OnClick != nil {
		e.session.owner.OnClick(e.session, e.key)
	}
	return nil
}

func (e *fakeElement) SendKeys(ctx context.Context, text string) error {
	e.session.lock.Lock()
	defer e.session.lock.Unlock()
	if e.session.typed == nil {
		e.session.typed = make(map[string]string)
	}
	e.session.typed[e.key] += text
	return nil
}

func (e *fakeElement) Property(ctx context.Context, name string) (ldvalue.Value, error) {
	e.session.lock.Lock()
	defer e.session.lock.Unlock()
	if name != "value" {
		return ldvalue.Null(), nil
	}
	return ldvalue.String(e.session.typed[e.key]), nil
}
