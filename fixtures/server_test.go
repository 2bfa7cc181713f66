package fixtures

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) *Server {
	s, err := NewServer("localhost", 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func get(t *testing.T, url string) (*http.Response, string) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestStaticPages(t *testing.T) {
	s := startServer(t)
	assert.True(t, strings.HasPrefix(s.BaseURL(), "http://localhost:"))

	resp, body := get(t, s.PageURL(PageWindowOne))
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, body, `name="windowTwo"`)

	_, body = get(t, s.PageURL(PageWindowTwo))
	assert.Contains(t, body, `id="the-iframe"`)

	_, body = get(t, s.PageURL(PageIFrame))
	assert.Contains(t, body, `id="iframe-header"`)

	_, body = get(t, s.PageURL(PageInput))
	assert.Contains(t, body, `id="testInput"`)

	resp, _ = get(t, s.PageURL("nonexistent.html"))
	assert.Equal(t, 404, resp.StatusCode)
}

func TestHeadAlwaysSucceeds(t *testing.T) {
	s := startServer(t)
	resp, err := http.Head(s.BaseURL() + "/anything/at/all")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestSlowPageIsDelayed(t *testing.T) {
	s := startServer(t)
	start := time.Now()
	resp, body := get(t, s.SlowPageURL(200*time.Millisecond))
	assert.GreaterOrEqual(t, int64(time.Since(start)), int64(200*time.Millisecond))
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, body, "Loaded after 200 ms")

	resp, _ = get(t, s.BaseURL()+"/slow?ms=abc")
	assert.Equal(t, 400, resp.StatusCode)
}

func TestSlowOpenerURLCarriesDelay(t *testing.T) {
	s := startServer(t)
	assert.Equal(t, s.PageURL(PageSlowOpener)+"?ms=10000", s.SlowOpenerURL(10*time.Second))
}

func TestOpenerURLCarriesTarget(t *testing.T) {
	s := startServer(t)
	assert.Equal(t, s.PageURL(PageSlowOpener)+"?target=http%3A%2F%2Fhost%2Fendpoints%2F1%3Fa%3Db",
		s.OpenerURL("http://host/endpoints/1?a=b"))
}

func TestPageHandler(t *testing.T) {
	s := startServer(t)
	e := s.NewEndpoint(PageHandler("A & B"), 1, nil)
	defer e.Close()
	resp, body := get(t, e.BaseURL())
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, body, "<title>A &amp; B</title>")
}

func TestDownloadIsServedAsAttachment(t *testing.T) {
	s := startServer(t)
	resp, body := get(t, s.DownloadURL("regression.txt"))
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, `attachment; filename="regression.txt"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, DownloadContent, body)
}

func TestEndpointReceivesSubpathAndRecordsRequests(t *testing.T) {
	s := startServer(t)
	e := s.NewEndpoint(httphelpers.HandlerWithStatus(204), 5, nil)
	defer e.Close()

	resp, _ := get(t, e.BaseURL()+"/some/subpath")
	assert.Equal(t, 204, resp.StatusCode)

	r, err := e.AwaitRequest(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "GET", r.Method)
	assert.Equal(t, "/some/subpath", r.Path)
}

func TestEndpointHandlerSeesRewrittenURL(t *testing.T) {
	s := startServer(t)
	handler, requestsCh := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(200))
	e := s.NewEndpoint(handler, 1, nil)
	defer e.Close()

	resp, err := http.Post(e.BaseURL()+"/x", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	resp.Body.Close()

	info := <-requestsCh
	assert.Equal(t, "/x", info.Request.URL.Path)
	assert.Equal(t, []byte("hello"), info.Body)
}

func TestAwaitRequestTimesOut(t *testing.T) {
	s := startServer(t)
	e := s.NewEndpoint(httphelpers.HandlerWithStatus(200), 1, nil)
	defer e.Close()

	start := time.Now()
	_, err := e.AwaitRequest(50 * time.Millisecond)
	assert.Error(t, err)
	assert.Less(t, int64(time.Since(start)), int64(time.Second))
}

func TestClosedEndpointIsNotFoundAndCancelsActiveRequests(t *testing.T) {
	s := startServer(t)
	started := make(chan struct{})
	cancelled := make(chan struct{})
	e := s.NewEndpoint(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
		close(cancelled)
	}), 1, nil)

	go func() {
		if resp, err := http.Get(e.BaseURL()); err == nil {
			resp.Body.Close()
		}
	}()
	<-started
	e.Close()
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("request context was not cancelled")
	}

	resp, _ := get(t, e.BaseURL())
	assert.Equal(t, 404, resp.StatusCode)

	r, err := e.AwaitRequest(10 * time.Millisecond) // recorded before Close
	require.NoError(t, err)
	assert.Equal(t, "GET", r.Method)
	_, err = e.AwaitRequest(10 * time.Millisecond)
	assert.Error(t, err)
}
