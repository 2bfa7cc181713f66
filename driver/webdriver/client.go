package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/framework"

	"github.com/tidwall/gjson"
)

// W3C element reference key; legacy drivers use "ELEMENT".
const (
	elementKey       = "element-6066-11e4-a021-00a0f8bd3c2e"
	legacyElementKey = "ELEMENT"
)

const defaultCommandTimeout = time.Minute * 2

// client sends WebDriver commands as JSON over HTTP and decodes the responses, in either the
// W3C or the legacy JSON wire dialect.
type client struct {
	baseURL    string
	httpClient *http.Client
	logger     framework.Logger
}

func newClient(baseURL string, logger framework.Logger) *client {
	if logger == nil {
		logger = framework.NullLogger()
	}
	return &client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultCommandTimeout},
		logger:     logger,
	}
}

// do sends a command. params is JSON-encoded; nil means no body for GET and DELETE and an
// empty object otherwise. The whole decoded response body is returned.
func (c *client) do(ctx context.Context, method, path string, params interface{}) (gjson.Result, error) {
	var body io.Reader
	if params != nil || (method != http.MethodGet && method != http.MethodDelete) {
		if params == nil {
			params = struct{}{}
		}
		data, err := json.Marshal(params)
		if err != nil {
			return gjson.Result{}, err
		}
		c.logger.Printf("%s %s %s", method, path, string(data))
		body = bytes.NewReader(data)
	} else {
		c.logger.Printf("%s %s", method, path)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return gjson.Result{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, err
	}
	c.logger.Printf("HTTP %d: %s", resp.StatusCode, truncate(string(data), 500))

	if !gjson.ValidBytes(data) {
		if resp.StatusCode >= 300 {
			return gjson.Result{}, driver.ProtocolError{
				Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
			}
		}
		return gjson.Result{}, driver.ProtocolError{Message: "malformed response: " + truncate(string(data), 200)}
	}
	result := gjson.ParseBytes(data)
	if err := errorFromResponse(resp.StatusCode, result); err != nil {
		return result, err
	}
	return result, nil
}

// errorFromResponse recognizes both W3C errors ({"value":{"error":...,"message":...}}) and
// legacy ones ({"status":N,"value":{"message":...}}).
func errorFromResponse(statusCode int, result gjson.Result) error {
	message := result.Get("value.message").String()
	if code := result.Get("value.error"); code.Exists() {
		return errorForCode(code.String(), message)
	}
	if status := result.Get("status"); status.Exists() && status.Int() != 0 {
		return errorForLegacyStatus(int(status.Int()), message)
	}
	if statusCode >= 300 {
		if message == "" {
			message = result.Raw
		}
		return driver.ProtocolError{Message: fmt.Sprintf("HTTP %d: %s", statusCode, message)}
	}
	return nil
}

func errorForCode(code, message string) error {
	switch code {
	case "no such element", "no such window", "no such frame", "no such alert", "stale element reference":
		return driver.NotFoundError{What: strings.TrimPrefix(strings.TrimPrefix(code, "no such "), "stale ")}
	case "timeout", "script timeout":
		return driver.TimeoutError{Operation: firstLine(message)}
	case "session not created":
		return driver.SessionCreationError{Message: firstLine(message)}
	default:
		return driver.ProtocolError{Code: code, Message: firstLine(message)}
	}
}

// status codes of the JSON wire protocol
const (
	legacyNoSuchElement     = 7
	legacyNoSuchFrame       = 8
	legacyStaleElement      = 10
	legacyTimeout           = 21
	legacyNoSuchWindow      = 23
	legacyScriptTimeout     = 28
	legacySessionNotCreated = 33
)

func errorForLegacyStatus(status int, message string) error {
	switch status {
	case legacyNoSuchElement:
		return driver.NotFoundError{What: "element"}
	case legacyNoSuchFrame:
		return driver.NotFoundError{What: "frame"}
	case legacyNoSuchWindow:
		return driver.NotFoundError{What: "window"}
	case legacyStaleElement:
		return driver.NotFoundError{What: "element reference"}
	case legacyTimeout, legacyScriptTimeout:
		return driver.TimeoutError{Operation: firstLine(message)}
	case legacySessionNotCreated:
		return driver.SessionCreationError{Message: firstLine(message)}
	default:
		return driver.ProtocolError{Code: fmt.Sprintf("status %d", status), Message: firstLine(message)}
	}
}

// chromedriver appends multi-line stack traces and host info to messages
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func elementID(value gjson.Result) string {
	if id := value.Get(elementKey); id.Exists() {
		return id.String()
	}
	return value.Get(legacyElementKey).String()
}
