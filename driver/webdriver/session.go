package webdriver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/framework"

	"github.com/tidwall/gjson"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const sessionDeleteTimeout = time.Second * 30

// Session is a WebDriver session. If it owns a chromedriver service, closing the session
// also stops the service.
type Session struct {
	id           string
	capabilities ldvalue.Value
	client       *client
	service      *Service
	logger       framework.Logger
	closeOnce    sync.Once
	closeErr     error
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) Capabilities() ldvalue.Value { return s.capabilities }

func (s *Session) DriverLogPath() string {
	if s.service == nil {
		return ""
	}
	return s.service.LogPath()
}

func (s *Session) ProcessID() int {
	if s.service == nil {
		return 0
	}
	return s.service.PID()
}

func (s *Session) path(p string) string {
	return "/session/" + s.id + p
}

func (s *Session) command(ctx context.Context, method, path string, params interface{}) (gjson.Result, error) {
	result, err := s.client.do(ctx, method, s.path(path), params)
	if err != nil {
		return result, err
	}
	return result.Get("value"), nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	_, err := s.command(ctx, http.MethodPost, "/url", map[string]interface{}{"url": url})
	if err != nil && !driver.IsTimeout(err) {
		return driver.NavigationError{URL: url, Err: err}
	}
	return err
}

func (s *Session) Title(ctx context.Context) (string, error) {
	value, err := s.command(ctx, http.MethodGet, "/title", nil)
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

func (s *Session) ExecuteScript(ctx context.Context, script string, args ...interface{}) (ldvalue.Value, error) {
	if args == nil {
		args = []interface{}{}
	}
	value, err := s.command(ctx, http.MethodPost, "/execute/sync", map[string]interface{}{
		"script": script,
		"args":   args,
	})
	if err != nil {
		return ldvalue.Null(), err
	}
	return ldvalue.Parse([]byte(value.Raw)), nil
}

func (s *Session) FindElement(ctx context.Context, selector driver.Selector) (driver.Element, error) {
	value, err := s.command(ctx, http.MethodPost, "/element", map[string]interface{}{
		"using": string(selector.Strategy),
		"value": selector.Value,
	})
	if err != nil {
		return nil, err
	}
	id := elementID(value)
	if id == "" {
		return nil, driver.ProtocolError{Message: "element response did not contain an element reference: " + value.Raw}
	}
	return &Element{session: s, id: id}, nil
}

func (s *Session) Logs(ctx context.Context, channel string) ([]driver.LogRecord, error) {
	value, err := s.command(ctx, http.MethodPost, "/se/log", map[string]interface{}{"type": channel})
	if err != nil {
		return nil, err
	}
	var records []driver.LogRecord
	value.ForEach(func(_, entry gjson.Result) bool {
		records = append(records, driver.LogRecord{
			Time:    time.UnixMilli(entry.Get("timestamp").Int()),
			Level:   entry.Get("level").String(),
			Source:  entry.Get("source").String(),
			Message: entry.Get("message").String(),
		})
		return true
	})
	return records, nil
}

func (s *Session) WindowHandles(ctx context.Context) ([]string, error) {
	value, err := s.command(ctx, http.MethodGet, "/window/handles", nil)
	if err != nil {
		return nil, err
	}
	var handles []string
	for _, h := range value.Array() {
		handles = append(handles, h.String())
	}
	return handles, nil
}

func (s *Session) CurrentWindowHandle(ctx context.Context) (string, error) {
	value, err := s.command(ctx, http.MethodGet, "/window", nil)
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

func (s *Session) SwitchToWindow(ctx context.Context, handle string) error {
	_, err := s.command(ctx, http.MethodPost, "/window", map[string]interface{}{"handle": handle})
	return err
}

func (s *Session) SwitchToFrame(ctx context.Context, frame driver.Element) error {
	e, ok := frame.(*Element)
	if !ok || e.session != s {
		return errors.New("frame element does not belong to this session")
	}
	_, err := s.command(ctx, http.MethodPost, "/frame", map[string]interface{}{"id": e.reference()})
	return err
}

func (s *Session) SwitchToParentFrame(ctx context.Context) error {
	_, err := s.command(ctx, http.MethodPost, "/frame/parent", nil)
	return err
}

func (s *Session) MinimizeWindow(ctx context.Context) error {
	_, err := s.command(ctx, http.MethodPost, "/window/minimize", nil)
	return err
}

// PrintPDF uses the W3C print endpoint.
func (s *Session) PrintPDF(ctx context.Context, options driver.PrintOptions) ([]byte, error) {
	orientation := "portrait"
	if options.Landscape {
		orientation = "landscape"
	}
	value, err := s.command(ctx, http.MethodPost, "/print", map[string]interface{}{
		"orientation": orientation,
		"background":  options.Background,
		"page": map[string]interface{}{
			"width":  options.PageWidthCM,
			"height": options.PageHeightCM,
		},
	})
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(value.String())
	if err != nil {
		return nil, fmt.Errorf("print response was not valid base64: %w", err)
	}
	return data, nil
}

// SetDownloadDir forwards Browser.setDownloadBehavior through chromedriver's CDP endpoint.
func (s *Session) SetDownloadDir(ctx context.Context, dir string) error {
	_, err := s.command(ctx, http.MethodPost, "/goog/cdp/execute", map[string]interface{}{
		"cmd": "Browser.setDownloadBehavior",
		"params": map[string]interface{}{
			"behavior":     "allow",
			"downloadPath": dir,
		},
	})
	return err
}

// Command sends an arbitrary command; path is relative to the session URL, for instance
// "/chromium/network_conditions".
func (s *Session) Command(ctx context.Context, method, path string, params interface{}) (ldvalue.Value, error) {
	value, err := s.command(ctx, method, path, params)
	if err != nil {
		return ldvalue.Null(), err
	}
	return ldvalue.Parse([]byte(value.Raw)), nil
}

// Close deletes the session and stops the service if there is one. Errors from deleting the
// session do not prevent the service from being stopped.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sessionDeleteTimeout)
		defer cancel()
		_, err := s.client.do(ctx, http.MethodDelete, s.path(""), nil)
		if err != nil {
			s.logger.Printf("Error deleting session %s: %s", s.id, err)
			s.closeErr = err
		}
		if s.service != nil {
			if err := s.service.Stop(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}
