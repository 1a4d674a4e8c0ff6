package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-enclave-agent/api"
)

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
}

func newTestServer(t *testing.T, origins []string) http.Handler {
	t.Helper()
	srv, err := New(&api.HTTPServerConfig{
		ListenAddr:         "127.0.0.1:0",
		Log:                slog.New(slog.NewTextHandler(io.Discard, nil)),
		DrainDuration:      time.Millisecond,
		CORSAllowedOrigins: origins,
	}, pingRoutes{})
	require.NoError(t, err)
	return srv.Handler()
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRoutesMounted(t *testing.T) {
	h := newTestServer(t, nil)

	w := get(h, "/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	assert.Equal(t, http.StatusOK, get(h, "/livez").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/debug/pprof/").Code)
}

func TestDrainUndrain(t *testing.T) {
	h := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, get(h, "/readyz").Code)

	w := get(h, "/drain")
	assert.JSONEq(t, `{"status":"draining"}`, w.Body.String())
	assert.Equal(t, http.StatusServiceUnavailable, get(h, "/readyz").Code)

	w = get(h, "/drain")
	assert.JSONEq(t, `{"status":"already draining"}`, w.Body.String())

	w = get(h, "/undrain")
	assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())
	assert.Equal(t, http.StatusOK, get(h, "/readyz").Code)

	w = get(h, "/undrain")
	assert.JSONEq(t, `{"status":"already ready"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, []string{"*"})

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))

	plain := newTestServer(t, nil)
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example")
	w = httptest.NewRecorder()
	plain.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
