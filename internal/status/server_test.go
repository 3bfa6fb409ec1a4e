package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeProgress struct {
	counts map[string]map[string]int64
	err    error
}

func (f *fakeProgress) SessionProgress(_ context.Context, sessionID string) (map[string]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.counts[sessionID], nil
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(nil, 0, &fakeProgress{})
	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSessionProgress(t *testing.T) {
	s := New(nil, 0, &fakeProgress{counts: map[string]map[string]int64{
		"sess-1": {"lofi beats": 12, "city pop": 3},
	}})

	rec := get(t, s, "/v1/sessions/sess-1/progress")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		SessionID string           `json:"session_id"`
		Keywords  map[string]int64 `json:"keywords"`
		Total     int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "sess-1", body.SessionID)
	require.EqualValues(t, 15, body.Total)
	require.EqualValues(t, 12, body.Keywords["lofi beats"])
}

func TestSessionProgressUnknownSessionIsEmpty(t *testing.T) {
	s := New(nil, 0, &fakeProgress{})
	rec := get(t, s, "/v1/sessions/nope/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":0`)
}

func TestSessionProgressStoreError(t *testing.T) {
	s := New(nil, 0, &fakeProgress{err: errors.New("redis down")})
	rec := get(t, s, "/v1/sessions/sess-1/progress")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpointServes(t *testing.T) {
	s := New(nil, 0, &fakeProgress{})
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}
