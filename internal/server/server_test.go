package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/mapsync/internal/config"
	"github.com/OCAP2/mapsync/internal/pipeline"
	"github.com/OCAP2/mapsync/internal/storage/memory"
	"github.com/OCAP2/mapsync/pkg/core"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() config.ServerConfig {
	return config.ServerConfig{Listen: "127.0.0.1:0", ActorHeader: "X-User", ActorMaxLen: 40, MaxBodyBytes: 1 << 20}
}

func newTestServer(t *testing.T, seed ...core.Marker) (*Server, *memory.Store) {
	t.Helper()
	store := memory.NewWith(core.Collection{Markers: seed})
	p, err := pipeline.New(store, pipeline.Options{Logger: testLogger})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return New(testConfig(), p, testLogger, "test"), store
}

func do(t *testing.T, s *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeMarker(t *testing.T, w *httptest.ResponseRecorder) core.Marker {
	t.Helper()
	var m core.Marker
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestCreateThenSnapshot(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/markers", `{"name":"Bob","type":"player","x":10,"y":20}`)
	require.Equal(t, http.StatusOK, w.Code)
	m := decodeMarker(t, w)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, core.ColorPlayer, m.Color)
	assert.Equal(t, "", m.Avatar)
	assert.JSONEq(t, `{"id":"`+m.ID+`","x":10,"y":20,"name":"Bob","type":"player","color":"#2563eb","avatar":""}`, w.Body.String())

	w = do(t, s, http.MethodGet, "/data", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var c core.Collection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, []core.Marker{m}, c.Markers)
}

func TestSnapshot_Empty(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/data", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"markers":[]}`, w.Body.String())
}

func TestCreate_EmptyBody(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/markers", "")
	require.Equal(t, http.StatusOK, w.Code)
	m := decodeMarker(t, w)
	assert.Equal(t, m.ID, m.Name)
	assert.Equal(t, core.TypePlayer, m.Type)
	assert.Zero(t, m.X)
}

func TestCreate_NonNumericCoordinates(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/markers", `{"x":"left","y":null,"type":"dragon"}`)
	require.Equal(t, http.StatusOK, w.Code)
	m := decodeMarker(t, w)
	assert.Zero(t, m.X)
	assert.Zero(t, m.Y)
	assert.Equal(t, core.TypePlayer, m.Type)
}

func TestCreate_HugeCoordinates(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/markers", `{"name":"Far","x":1e307,"y":-1e300}`)
	require.Equal(t, http.StatusOK, w.Code)
	m := decodeMarker(t, w)
	assert.Equal(t, 1e307, m.X)
	assert.Equal(t, -1e300, m.Y)

	w = do(t, s, http.MethodGet, "/data", "")
	require.Equal(t, http.StatusOK, w.Code)
	var c core.Collection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, []core.Marker{m}, c.Markers)
}

func TestPatch_RoundsAndKeepsName(t *testing.T) {
	s, store := newTestServer(t, core.Marker{ID: "camp", Name: "Camp", Type: core.TypeLocation, Color: core.ColorLocation})

	w := do(t, s, http.MethodPatch, "/markers/camp", `{"x":5.555}`)
	require.Equal(t, http.StatusOK, w.Code)
	m := decodeMarker(t, w)
	assert.Equal(t, 5.56, m.X)
	assert.Equal(t, "Camp", m.Name)

	c, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5.56, c.Markers[0].X)
}

func TestPatch_IgnoresUnknownFields(t *testing.T) {
	s, store := newTestServer(t, core.Marker{ID: "a", Name: "A"})

	w := do(t, s, http.MethodPatch, "/markers/a", `{"role":"admin","name":"B"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "role")

	c, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "B", c.Markers[0].Name)
}

func TestPatch_NotFound(t *testing.T) {
	s, store := newTestServer(t, core.Marker{ID: "a"})

	w := do(t, s, http.MethodPatch, "/markers/zzz", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
	assert.Equal(t, 0, store.Saves())
}

func TestDelete(t *testing.T) {
	s, store := newTestServer(t, core.Marker{ID: "a"}, core.Marker{ID: "b"})

	w := do(t, s, http.MethodDelete, "/markers/a", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	c, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Marker{{ID: "b"}}, c.Markers)
}

func TestDelete_NeverCreated(t *testing.T) {
	s, store := newTestServer(t, core.Marker{ID: "a"})

	w := do(t, s, http.MethodDelete, "/markers/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())

	c, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Markers, 1)
	assert.Equal(t, 0, store.Saves())
}

func TestInvalidJSON(t *testing.T) {
	s, _ := newTestServer(t, core.Marker{ID: "a"})

	for _, body := range []string{`{not json`, `[1,2]`, `"text"`} {
		w := do(t, s, http.MethodPost, "/markers", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"error":"invalid json"}`, w.Body.String())

		w = do(t, s, http.MethodPatch, "/markers/a", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestBodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 16
	s := New(cfg, &fakeMutator{}, testLogger, "test")

	w := do(t, s, http.MethodPost, "/markers", `{"name":"`+strings.Repeat("x", 64)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

type fakeMutator struct {
	actor string
	err   error
}

func (f *fakeMutator) Snapshot(context.Context) (core.Collection, error) {
	return core.Collection{}, f.err
}

func (f *fakeMutator) Create(_ context.Context, _ core.Fields, actor string) (core.Marker, error) {
	f.actor = actor
	return core.Marker{ID: "1"}, f.err
}

func (f *fakeMutator) Patch(_ context.Context, id string, _ core.Fields, actor string) (core.Marker, error) {
	f.actor = actor
	return core.Marker{ID: id}, f.err
}

func (f *fakeMutator) Delete(_ context.Context, id string, actor string) (core.Marker, error) {
	f.actor = actor
	return core.Marker{ID: id}, f.err
}

func TestActorHeader(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   string
	}{
		{"missing", nil, "anon"},
		{"blank", []string{"X-User", "   "}, "anon"},
		{"trimmed", []string{"X-User", "  alice "}, "alice"},
		{"truncated", []string{"X-User", strings.Repeat("ü", 50)}, strings.Repeat("ü", 40)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeMutator{}
			s := New(testConfig(), f, testLogger, "test")

			w := do(t, s, http.MethodDelete, "/markers/1", "", tt.header...)
			require.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, tt.want, f.actor)
		})
	}
}

func TestStoreFailure(t *testing.T) {
	s := New(testConfig(), &fakeMutator{err: errors.New("disk full")}, testLogger, "test")

	w := do(t, s, http.MethodGet, "/data", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"disk full"}`, w.Body.String())

	w = do(t, s, http.MethodPost, "/markers", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	do(t, s, http.MethodGet, "/data", "")
	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mapsync_http_requests_total")
}

func TestRun_Shutdown(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
