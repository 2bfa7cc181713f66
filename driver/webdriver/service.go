// Package webdriver implements the driver abstraction on top of the W3C WebDriver protocol,
// either by launching a local chromedriver per session or by connecting to a remote end such
// as an Appium server.
package webdriver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/browser-repro/regression-tests/framework"

	"github.com/alessio/shellescape"
	"github.com/tidwall/gjson"
)

const (
	defaultServiceStartTimeout = time.Second * 30
	serviceStatusPollInterval  = time.Millisecond * 100
	serviceStopTimeout         = time.Second * 5
)

// ServiceConfig describes how to launch chromedriver.
type ServiceConfig struct {
	// Path is the chromedriver executable; "" means "chromedriver" on the PATH.
	Path string
	// Port to listen on; 0 picks a free port.
	Port int
	// LogPath is passed as --log-path if not empty.
	LogPath string
	// Verbose adds --verbose.
	Verbose bool
	// StartTimeout bounds how long to wait for the status endpoint; 0 means 30 seconds.
	StartTimeout time.Duration
	Logger       framework.Logger
}

// Service is a running chromedriver process.
type Service struct {
	cmd      *exec.Cmd
	url      string
	logPath  string
	exited   chan struct{}
	stopOnce sync.Once
	stopErr  error
	logger   framework.Logger
}

func (c ServiceConfig) executable() string {
	if c.Path == "" {
		return "chromedriver"
	}
	return c.Path
}

func (c ServiceConfig) args(port int) []string {
	args := []string{"--port=" + strconv.Itoa(port)}
	if c.LogPath != "" {
		args = append(args, "--log-path="+c.LogPath)
	}
	if c.Verbose {
		args = append(args, "--verbose")
	}
	return args
}

// Available reports whether the chromedriver executable can be found.
func (c ServiceConfig) Available() error {
	_, err := exec.LookPath(c.executable())
	return err
}

// StartService launches chromedriver and waits until its status endpoint reports that it is
// ready. If it returns an error, the process has already been stopped.
func StartService(ctx context.Context, config ServiceConfig) (*Service, error) {
	logger := config.Logger
	if logger == nil {
		logger = framework.NullLogger()
	}
	port := config.Port
	if port == 0 {
		p, err := freePort()
		if err != nil {
			return nil, err
		}
		port = p
	}

	commandLine := append([]string{config.executable()}, config.args(port)...)
	logger.Printf("Starting chromedriver: %s", shellescape.QuoteCommand(commandLine))
	cmd := exec.Command(commandLine[0], commandLine[1:]...) //nolint:gosec
	cmd.Stdout = framework.LoggerWriter(framework.LoggerWithPrefix(logger, "[chromedriver] "))
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("can't start chromedriver: %w", err)
	}

	s := &Service{
		cmd:     cmd,
		url:     fmt.Sprintf("http://localhost:%d", port),
		logPath: config.LogPath,
		exited:  make(chan struct{}),
		logger:  logger,
	}
	go func() {
		_ = cmd.Wait()
		close(s.exited)
	}()

	timeout := config.StartTimeout
	if timeout == 0 {
		timeout = defaultServiceStartTimeout
	}
	if err := s.awaitReady(ctx, timeout); err != nil {
		_ = s.Stop()
		return nil, err
	}
	return s, nil
}

// URL returns the base URL of the WebDriver endpoint.
func (s *Service) URL() string {
	return s.url
}

func (s *Service) LogPath() string {
	return s.logPath
}

// PID returns the process ID of chromedriver.
func (s *Service) PID() int {
	return s.cmd.Process.Pid
}

// Stop kills chromedriver and waits for it to exit. Only the first call has any effect.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		select {
		case <-s.exited:
			return
		default:
		}
		if err := s.cmd.Process.Kill(); err != nil {
			s.stopErr = fmt.Errorf("can't stop chromedriver: %w", err)
			return
		}
		select {
		case <-s.exited:
		case <-time.After(serviceStopTimeout):
			s.stopErr = fmt.Errorf("chromedriver (pid %d) did not exit after being killed", s.cmd.Process.Pid)
		}
	})
	return s.stopErr
}

func (s *Service) awaitReady(ctx context.Context, timeout time.Duration) error {
	var lastErr error
	ready, err := framework.PollUntil(ctx, serviceStatusPollInterval, timeout, func() (bool, error) {
		select {
		case <-s.exited:
			return false, fmt.Errorf("chromedriver exited during startup")
		default:
		}
		ok, err := queryStatus(ctx, s.url)
		lastErr = err
		return ok, nil
	})
	if err != nil {
		return err
	}
	if !ready {
		if lastErr != nil {
			return fmt.Errorf("timed out waiting for chromedriver, result of last query was: %w", lastErr)
		}
		return fmt.Errorf("timed out waiting for chromedriver to report that it is ready")
	}
	return nil
}

func queryStatus(ctx context.Context, baseURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/status", nil)
	if err != nil {
		return false, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	if resp.StatusCode != 200 {
		return false, fmt.Errorf("status endpoint returned HTTP %d", resp.StatusCode)
	}
	// older drivers omit "ready" and only answer once they are up
	ready := gjson.GetBytes(data, "value.ready")
	return !ready.Exists() || ready.Bool(), nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, fmt.Errorf("can't find a free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
