// Package fixtures serves the local pages and endpoints that the regression cases point the
// browser at, so that most cases do not depend on the public internet.
package fixtures

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/browser-repro/regression-tests/framework"

	"github.com/go-chi/chi/v5"
)

const (
	staticPathPrefix    = "/static/"
	endpointPathPrefix  = "/endpoints/"
	httpListenerTimeout = time.Second * 10
	maxSlowDelay        = time.Minute
)

// Names of the embedded pages.
const (
	PageWindowOne  = "window_one.html"
	PageWindowTwo  = "window_two.html"
	PageIFrame     = "iframe.html"
	PageInput      = "test.html"
	PageAlert      = "alert.html"
	PageConsole    = "console.html"
	PageSlowOpener = "slow_opener.html"
	PageDownload   = "download.html"
	PagePrint      = "print.html"
)

// DownloadContent is the body of every file served under /download/.
const DownloadContent = "downloaded by the browser regression tests\n"

//go:embed static
var staticFiles embed.FS

// Server is the fixture HTTP server. It is shared by all tests in a run; tests that need
// request-level instrumentation create their own Endpoint on it.
type Server struct {
	baseURL        string
	httpServer     *http.Server
	endpoints      map[string]*Endpoint
	lastEndpointID int
	logger         framework.Logger
	lock           sync.Mutex
}

// NewServer starts listening on the given port (0 picks a free one) and waits until the
// server is answering requests. hostname is the name the browser should use to reach it.
func NewServer(hostname string, port int, logger framework.Logger) (*Server, error) {
	if logger == nil {
		logger = framework.NullLogger()
	}
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("can't start fixture server: %w", err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port

	s := &Server{
		baseURL:   fmt.Sprintf("http://%s:%d", hostname, actualPort),
		endpoints: make(map[string]*Endpoint),
		logger:    logger,
	}
	s.httpServer = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: httpListenerTimeout,
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("Fixture server stopped unexpectedly: %s", err)
		}
	}()

	// Wait till the server is definitely listening for requests before we run any tests
	ready, err := framework.PollUntil(context.Background(), time.Millisecond*10, httpListenerTimeout,
		func() (bool, error) {
			resp, err := http.DefaultClient.Head(fmt.Sprintf("http://localhost:%d", actualPort))
			if err != nil {
				return false, nil
			}
			resp.Body.Close()
			return resp.StatusCode == 200, nil
		})
	if err == nil && !ready {
		err = fmt.Errorf("could not detect own listener on port %d", actualPort)
	}
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// BaseURL returns the externally visible base URL, without a trailing slash.
func (s *Server) BaseURL() string {
	return s.baseURL
}

// PageURL returns the URL of one of the embedded pages.
func (s *Server) PageURL(page string) string {
	return s.baseURL + staticPathPrefix + page
}

// SlowPageURL returns a URL whose response is delayed by the given duration.
func (s *Server) SlowPageURL(delay time.Duration) string {
	return fmt.Sprintf("%s/slow?ms=%d", s.baseURL, delay.Milliseconds())
}

// SlowOpenerURL returns a page with an #open-slow link that opens SlowPageURL(delay) in a
// new window.
func (s *Server) SlowOpenerURL(delay time.Duration) string {
	return fmt.Sprintf("%s?ms=%d", s.PageURL(PageSlowOpener), delay.Milliseconds())
}

// OpenerURL returns the slow opener page with its #open-slow link pointing at target instead.
func (s *Server) OpenerURL(target string) string {
	return s.PageURL(PageSlowOpener) + "?target=" + url.QueryEscape(target)
}

// DownloadURL returns a URL that is served as an attachment with the given file name.
func (s *Server) DownloadURL(name string) string {
	return s.baseURL + "/download/" + name
}

// Close stops the server and closes every endpoint.
func (s *Server) Close() error {
	s.lock.Lock()
	endpoints := make([]*Endpoint, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		endpoints = append(endpoints, e)
	}
	s.lock.Unlock()
	for _, e := range endpoints {
		e.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) router() http.Handler {
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err) // the embedded directory always exists
	}

	r := chi.NewRouter()
	r.Use(headIsAlwaysOK)
	r.Get("/slow", serveSlow)
	r.Get("/download/{name}", func(w http.ResponseWriter, req *http.Request) {
		AttachmentHandler(chi.URLParam(req, "name"), "text/plain", []byte(DownloadContent)).ServeHTTP(w, req)
	})
	r.Handle(staticPathPrefix+"*", http.StripPrefix(staticPathPrefix, http.FileServer(http.FS(static))))
	r.HandleFunc(endpointPathPrefix+"{id}", s.serveEndpoint)
	r.HandleFunc(endpointPathPrefix+"{id}/*", s.serveEndpoint)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		s.logger.Printf("Received request for unrecognized URL path %s", req.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})
	return r
}

// we use HEAD to test whether our own listener is active yet
func headIsAlwaysOK(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func serveSlow(w http.ResponseWriter, req *http.Request) {
	ms, err := strconv.Atoi(req.URL.Query().Get("ms"))
	if err != nil || ms < 0 {
		http.Error(w, "ms must be a non-negative integer", http.StatusBadRequest)
		return
	}
	delay := time.Duration(ms) * time.Millisecond
	if delay > maxSlowDelay {
		delay = maxSlowDelay
	}
	body := fmt.Sprintf("<!DOCTYPE html><html><head><title>Slow Page</title></head>"+
		"<body><h1 id=\"slow-header\">Loaded after %d ms</h1></body></html>", ms)
	DelayedHandler(delay, htmlHandler(body)).ServeHTTP(w, req)
}

func htmlHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	})
}
