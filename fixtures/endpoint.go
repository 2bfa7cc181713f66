package fixtures

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/browser-repro/regression-tests/framework"

	"github.com/go-chi/chi/v5"
)

// Endpoint is a URL on the fixture server with a caller-supplied handler, instrumented so
// that a test can see which requests the browser made.
type Endpoint struct {
	owner       *Server
	id          string
	basePath    string
	handler     http.Handler
	newRequests chan IncomingRequest
	cancels     []*context.CancelFunc
	closed      bool
	logger      framework.Logger
	lock        sync.Mutex
	closing     sync.Once
}

// IncomingRequest describes a request that the browser sent to an Endpoint.
type IncomingRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
	Context context.Context
}

// NewEndpoint adds an endpoint whose handler receives every request to its base URL or any
// subpath of it. The handler sees only the subpath, and the request context is cancelled if
// the endpoint is closed.
//
// At most maxRequests requests are buffered for AwaitRequest; later ones are still served
// but not recorded.
func (s *Server) NewEndpoint(handler http.Handler, maxRequests int, logger framework.Logger) *Endpoint {
	if logger == nil {
		logger = s.logger
	}
	if maxRequests < 1 {
		maxRequests = 1
	}
	e := &Endpoint{
		owner:       s,
		handler:     handler,
		newRequests: make(chan IncomingRequest, maxRequests),
		logger:      logger,
	}
	s.lock.Lock()
	s.lastEndpointID++
	e.id = strconv.Itoa(s.lastEndpointID)
	e.basePath = endpointPathPrefix + e.id
	s.endpoints[e.id] = e
	s.lock.Unlock()
	return e
}

// BaseURL returns the absolute URL of the endpoint.
func (e *Endpoint) BaseURL() string {
	return e.owner.baseURL + e.basePath
}

// AwaitRequest waits for the next request to the endpoint.
func (e *Endpoint) AwaitRequest(timeout time.Duration) (IncomingRequest, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case r, ok := <-e.newRequests:
		if !ok {
			return IncomingRequest{}, fmt.Errorf("endpoint %s was closed", e.basePath)
		}
		return r, nil
	case <-deadline.C:
		return IncomingRequest{}, fmt.Errorf("timed out waiting for a request to %s", e.basePath)
	}
}

// Close unregisters the endpoint. Any subsequent requests to it will receive 404 errors.
// It also cancels the Context of every active request to the endpoint.
func (e *Endpoint) Close() {
	e.closing.Do(func() {
		e.owner.lock.Lock()
		delete(e.owner.endpoints, e.id)
		e.owner.lock.Unlock()

		e.lock.Lock()
		cancellers := e.cancels
		e.cancels = nil
		e.closed = true
		close(e.newRequests)
		e.lock.Unlock()

		for _, cancel := range cancellers {
			(*cancel)()
		}
	})
}

func (s *Server) serveEndpoint(w http.ResponseWriter, req *http.Request) {
	endpointID := chi.URLParam(req, "id")
	s.lock.Lock()
	e := s.endpoints[endpointID]
	s.lock.Unlock()
	if e == nil {
		s.logger.Printf("Received request for unrecognized endpoint %s", req.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var body []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			e.logger.Printf("Unexpected error trying to read request body: %s", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body = data
	}

	subpath := ""
	if rest := chi.URLParam(req, "*"); rest != "" {
		subpath = "/" + rest
	}

	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		w.WriteHeader(http.StatusNotFound)
		return
	}
	ctx, canceller := context.WithCancel(req.Context())
	cancellerPtr := &canceller
	e.cancels = append(e.cancels, cancellerPtr)
	incoming := IncomingRequest{
		Method:  req.Method,
		Path:    subpath,
		Headers: req.Header,
		Body:    body,
		Context: ctx,
	}
	select { // non-blocking push
	case e.newRequests <- incoming:
	default:
		e.logger.Printf("Incoming request channel was full for %s", req.URL)
	}
	e.lock.Unlock()

	transformedReq := req.WithContext(ctx)
	url := *req.URL
	url.Path = subpath
	transformedReq.URL = &url
	if body != nil {
		transformedReq.Body = io.NopCloser(bytes.NewBuffer(body))
	}

	e.handler.ServeHTTP(w, transformedReq)

	e.lock.Lock()
	for i, c := range e.cancels {
		if c == cancellerPtr { // can't compare functions with ==, but can compare pointers
			e.cancels = append(e.cancels[:i], e.cancels[i+1:]...)
			break
		}
	}
	e.lock.Unlock()
	canceller()
}
