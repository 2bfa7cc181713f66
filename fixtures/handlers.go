package fixtures

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
)

// DelayedHandler waits for delay before delegating to the handler. If the client goes away
// first, nothing is written.
func DelayedHandler(delay time.Duration, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			handler.ServeHTTP(w, r)
		case <-r.Context().Done():
		}
	})
}

// AttachmentHandler serves content as a file download with the given name.
func AttachmentHandler(fileName, contentType string, content []byte) http.Handler {
	headers := make(http.Header)
	headers.Set("Content-Type", contentType)
	headers.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	headers.Set("Content-Length", strconv.Itoa(len(content)))
	return httphelpers.HandlerWithResponse(http.StatusOK, headers, content)
}

// PageHandler serves a minimal HTML page with the given title.
func PageHandler(title string) http.Handler {
	headers := make(http.Header)
	headers.Set("Content-Type", "text/html; charset=utf-8")
	body := fmt.Sprintf("<!DOCTYPE html><html><head><title>%s</title></head><body></body></html>",
		html.EscapeString(title))
	return httphelpers.HandlerWithResponse(http.StatusOK, headers, []byte(body))
}
