package webdriver

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/browser-repro/regression-tests/driver"
	"github.com/browser-repro/regression-tests/framework"
	"github.com/browser-repro/regression-tests/sessiondef"

	"github.com/google/uuid"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Driver creates WebDriver sessions. Unless the session config names a remote URL, every
// session gets its own chromedriver process so that driver logs and process IDs are per test.
type Driver struct {
	// ChromeDriverPath is the chromedriver executable; "" means look it up on the PATH.
	ChromeDriverPath string
	// LogDir receives a chromedriver log per session when the config does not name one.
	LogDir string
	Logger framework.Logger
}

func (d *Driver) Name() string { return driver.BackendWebDriver }

// Available reports whether sessions can be created without a remote URL.
func (d *Driver) Available() error {
	return ServiceConfig{Path: d.ChromeDriverPath}.Available()
}

func (d *Driver) logger() framework.Logger {
	if d.Logger == nil {
		return framework.NullLogger()
	}
	return d.Logger
}

func (d *Driver) NewSession(ctx context.Context, config sessiondef.SessionConfig) (driver.Session, error) {
	logger := d.logger()

	baseURL := config.String(sessiondef.OptionRemoteURL)
	var service *Service
	if baseURL == "" {
		logPath := config.String(sessiondef.OptionDriverLogPath)
		if logPath == "" && d.LogDir != "" {
			logPath = filepath.Join(d.LogDir, "chromedriver-"+uuid.NewString()+".log")
		}
		verbose, _ := config.Bool(sessiondef.OptionVerbose)
		s, err := StartService(ctx, ServiceConfig{
			Path:    d.ChromeDriverPath,
			LogPath: logPath,
			Verbose: verbose,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		service = s
		baseURL = s.URL()
	}

	succeeded := false
	defer func() {
		if !succeeded && service != nil {
			_ = service.Stop()
		}
	}()

	c := newClient(baseURL, logger)
	result, err := c.do(ctx, http.MethodPost, "/session", NewSessionPayload(config))
	if err != nil {
		return nil, err
	}
	id, capabilities := parseNewSessionResponse(result)
	if id == "" {
		return nil, driver.ProtocolError{Message: "new session response did not contain a session ID: " + result.Raw}
	}
	logger.Printf("Created session %s with capabilities: %s", id, capabilities.JSONString())

	s := &Session{
		id:           id,
		capabilities: capabilities,
		client:       c,
		service:      service,
		logger:       logger,
	}
	if err := s.applyTimeouts(ctx, config); err != nil {
		_ = s.Close()
		return nil, err
	}
	succeeded = true
	return s, nil
}

// StartShared starts one chromedriver for several sessions, for cases about sessions
// interfering with each other inside the driver.
func (d *Driver) StartShared(ctx context.Context) (driver.SharedDriver, error) {
	logPath := ""
	if d.LogDir != "" {
		logPath = filepath.Join(d.LogDir, "chromedriver-shared-"+uuid.NewString()+".log")
	}
	service, err := StartService(ctx, ServiceConfig{
		Path:    d.ChromeDriverPath,
		LogPath: logPath,
		Logger:  d.logger(),
	})
	if err != nil {
		return nil, err
	}
	return &sharedDriver{owner: d, service: service}, nil
}

type sharedDriver struct {
	owner   *Driver
	service *Service
}

func (d *sharedDriver) Name() string { return driver.BackendWebDriver }

// NewSession creates a session on the shared chromedriver. Closing the session leaves the
// chromedriver running.
func (d *sharedDriver) NewSession(ctx context.Context, config sessiondef.SessionConfig) (driver.Session, error) {
	return d.owner.NewSession(ctx, sessiondef.Build(sessiondef.WithRemoteURL(d.service.URL())).Merge(config))
}

func (d *sharedDriver) Close() error {
	return d.service.Stop()
}

func (s *Session) applyTimeouts(ctx context.Context, config sessiondef.SessionConfig) error {
	timeouts := map[string]interface{}{}
	if ms := config.OptionalInt(sessiondef.OptionPageLoadTimeoutMS); ms.IsDefined() {
		timeouts["pageLoad"] = ms.IntValue()
	}
	if ms := config.OptionalInt(sessiondef.OptionImplicitWaitMS); ms.IsDefined() {
		timeouts["implicit"] = ms.IntValue()
	}
	if len(timeouts) == 0 {
		return nil
	}
	_, err := s.command(ctx, http.MethodPost, "/timeouts", timeouts)
	return err
}

// IsW3C reports whether capabilities returned at session creation are those of a W3C session,
// which is recognizable by the vendor-prefixed goog:chromeOptions key.
func IsW3C(capabilities ldvalue.Value) bool {
	return capabilities.GetByKey(sessiondef.CapabilityChromeOptions).Type() != ldvalue.NullType
}
