package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gochaorg/logd/internal/metrics"
	"github.com/gochaorg/logd/logqueue"
)

func newTestServer(t *testing.T) (*Server, *logqueue.Queue) {
	t.Helper()
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "seg-${rnd:8}.log")
	q, err := logqueue.Discover(dir, "*.log", false, tmpl, nil)
	require.NoError(t, err)

	_, err = q.Switch()
	require.NoError(t, err)

	return New(q, nil, metrics.New(), BuildInfo{Version: "test"}), q
}

func TestVersionEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body BuildInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "test", body.Version)
}

func TestLogsListing(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var entries []logListEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, uint32(1), entries[0].ItemCount)
}

func TestTailBeforeAndAfterWrite(t *testing.T) {
	s, q := newTestServer(t)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs/tail", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var tail map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tail))
	require.Equal(t, float64(0), tail["block_id"])

	_, err := q.Write(logqueue.PreparedRecord{Payload: []byte("hi")})
	require.NoError(t, err)

	w = httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs/tail", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tail))
	require.Equal(t, float64(1), tail["block_id"])
}

func TestSwitchEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/logs/switch", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs", nil))
	var entries []logListEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
}

func TestRawWriteThenRead(t *testing.T) {
	s, q := newTestServer(t)
	logID := q.Logs()[0]

	tail, _, err := q.LastRecord()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/logs/"+tail.LogID+"/0/raw", strings.NewReader("payload-bytes"))
	req.Header.Set("X-Option-content-type", "text/plain")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs/"+logID+"/1/raw", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "payload-bytes", w.Body.String())
	require.Equal(t, "text/plain", w.Header().Get("X-Option-content-type"))
}

func TestRawPutRejectsStaleTail(t *testing.T) {
	s, q := newTestServer(t)
	_ = q

	req := httptest.NewRequest(http.MethodPut, "/logs/bogus-log/99/raw", strings.NewReader("x"))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHeadersWithPreview(t *testing.T) {
	s, q := newTestServer(t)
	logID := q.Logs()[0]

	_, err := q.Write(logqueue.PreparedRecord{Payload: []byte("one")})
	require.NoError(t, err)
	_, err = q.Write(logqueue.PreparedRecord{Payload: []byte("two")})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs/"+logID+"/headers?n=2&preview=utf8", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var entries []headerEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	require.Equal(t, "two", entries[0].PreviewUTF8)
	require.Equal(t, "one", entries[1].PreviewUTF8)
}

// TestHeadersCrossSegmentBoundary covers the "last N headers" listing
// walking backward across a Switch()-induced segment roll instead of
// stopping at the requested log id's own head.
func TestHeadersCrossSegmentBoundary(t *testing.T) {
	s, q := newTestServer(t)
	firstLogID := q.Logs()[0]

	_, err := q.Write(logqueue.PreparedRecord{Payload: []byte("first-a")})
	require.NoError(t, err)
	_, err = q.Write(logqueue.PreparedRecord{Payload: []byte("first-b")})
	require.NoError(t, err)

	secondID, err := q.Switch()
	require.NoError(t, err)
	secondLogID := secondID.Value()

	_, err = q.Write(logqueue.PreparedRecord{Payload: []byte("second-a")})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs/"+secondLogID+"/headers?n=4", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var entries []headerEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))

	require.Len(t, entries, 4)
	// second-a, then second segment's own reserved head block, then the
	// walk crosses into the first segment's tail.
	require.Equal(t, secondLogID, entries[0].LogID)
	require.Equal(t, secondLogID, entries[1].LogID)
	require.Equal(t, firstLogID, entries[2].LogID)
	require.Equal(t, firstLogID, entries[3].LogID)
}

func TestElectionStatusDisabled(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/election/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"enabled":false`)
}

func TestElectionNominateDisabledIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/election/nominate", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
