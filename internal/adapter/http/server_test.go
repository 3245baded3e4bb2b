package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/meteolab/storm-cluster-service/internal/adapter/http"
)

type stubChecker struct {
	err error
}

func (s *stubChecker) CheckReadiness(context.Context) error { return s.err }

func newTestServer(checker httpadapter.ReadinessChecker) *httpadapter.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", checker, logger)
}

func get(t *testing.T, srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(nethttp.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	rec := get(t, newTestServer(&stubChecker{}), "/healthz")

	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_ReadyzTracksSweepProgress(t *testing.T) {
	checker := &stubChecker{err: errors.New("no grid point has completed yet")}
	srv := newTestServer(checker)

	rec := get(t, srv, "/readyz")
	assert.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Contains(t, body["error"], "no grid point")

	checker.err = nil
	rec = get(t, srv, "/readyz")
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	rec := get(t, newTestServer(&stubChecker{}), "/metrics")
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

func TestServer_UnknownRoute(t *testing.T) {
	rec := get(t, newTestServer(&stubChecker{}), "/nope")
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
}
