package http

import (
	"bufio"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openStream connects to the live stream over a real connection and returns
// the response body once the headers are in. The client timeout bounds every
// read so a silent stream fails the test instead of hanging it.
func openStream(t *testing.T, ts *httptest.Server, cookie *http.Cookie, path string) io.ReadCloser {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	req.AddCookie(cookie)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return resp.Body
}

// readSSEEvent consumes one framed event, skipping keep-alive comments.
func readSSEEvent(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	var payload strings.Builder
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" || payload.Len() > 0 {
				return event, payload.String()
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			payload.WriteString(strings.TrimPrefix(line, "data: "))
			payload.WriteString("\n")
		}
	}
}

func TestStreamDeliversInitialSnapshot(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")
	createRecord(t, srv, cookie, "coffee", "4.50", "Food")

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	body := openStream(t, ts, cookie, "/stream")
	defer body.Close()

	event, data := readSSEEvent(t, bufio.NewReader(body))
	require.Equal(t, "snapshot", event)
	assert.Contains(t, data, "coffee")
	assert.Contains(t, data, "4.50")
	assert.Contains(t, data, "Total")
}

func TestStreamPushesSnapshotOnMutation(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	body := openStream(t, ts, cookie, "/stream")
	defer body.Close()
	reader := bufio.NewReader(body)

	event, data := readSSEEvent(t, reader)
	require.Equal(t, "snapshot", event)
	assert.Contains(t, data, "No expenses yet")

	createRecord(t, srv, cookie, "tea", "2.00", "Food")

	event, data = readSSEEvent(t, reader)
	require.Equal(t, "snapshot", event)
	assert.Contains(t, data, "tea")
	assert.Contains(t, data, "2.00")
}

func TestStreamScopedByFilter(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")
	createRecord(t, srv, cookie, "coffee", "4.50", "Food")

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	body := openStream(t, ts, cookie, "/stream?month=3&year=1999")
	defer body.Close()
	reader := bufio.NewReader(body)

	event, data := readSSEEvent(t, reader)
	require.Equal(t, "snapshot", event)
	assert.NotContains(t, data, "coffee")
	assert.Contains(t, data, "No expenses for March 1999")

	// A write outside the filtered period refreshes the view but must not
	// leak into it.
	createRecord(t, srv, cookie, "tea", "2.00", "Food")

	event, data = readSSEEvent(t, reader)
	require.Equal(t, "snapshot", event)
	assert.NotContains(t, data, "tea")
	assert.NotContains(t, data, "coffee")
	assert.Contains(t, data, "No expenses for March 1999")
}

func TestStreamScopedToOwner(t *testing.T) {
	srv := newTestServer(t)
	alice := register(t, srv, "alice@example.com")
	bob := register(t, srv, "bob@example.com")
	createRecord(t, srv, alice, "alice-only", "1.00", "Food")

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	body := openStream(t, ts, bob, "/stream")
	defer body.Close()

	event, data := readSSEEvent(t, bufio.NewReader(body))
	require.Equal(t, "snapshot", event)
	assert.NotContains(t, data, "alice-only")
	assert.Contains(t, data, "No expenses yet")
}

func TestListRecordsRescopesStream(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")
	createRecord(t, srv, cookie, "coffee", "4.50", "Food")

	// A filter change returns the whole panel, whose stream URL carries the
	// active filter; swapping it replaces the old unscoped subscription.
	rec := get(srv, "/records?month=3&year=1999", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `id="records"`)
	assert.Contains(t, body, `sse-connect="/stream?month=3&amp;year=1999"`)
	assert.Contains(t, body, "No expenses for March 1999")

	rec = get(srv, "/records", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sse-connect="/stream"`)
	assert.Contains(t, rec.Body.String(), "coffee")
}

func TestIndexStreamCarriesFilter(t *testing.T) {
	srv := newTestServer(t)
	cookie := register(t, srv, "alice@example.com")

	rec := get(srv, "/?month=3&year=1999&category=Food", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`sse-connect="/stream?category=Food&amp;month=3&amp;year=1999"`)
}
