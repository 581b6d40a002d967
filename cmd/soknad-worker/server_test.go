// cmd/soknad-worker/server_test.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"soknad-workers/internal/common/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_Health(t *testing.T) {
	srv := newServer(":0", prometheus.NewRegistry(), nil)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestServer_Ready(t *testing.T) {
	ok := readinessCheck{name: "postgres", ping: func(context.Context) error { return nil }}
	down := readinessCheck{name: "redis", ping: func(context.Context) error { return fmt.Errorf("connection refused") }}

	rec := httptest.NewRecorder()
	newServer(":0", prometheus.NewRegistry(), []readinessCheck{ok}).Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	newServer(":0", prometheus.NewRegistry(), []readinessCheck{ok, down}).Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["postgres"])
	assert.Equal(t, "connection refused", body["redis"])
}

func TestServer_MetricsUsesInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.NotificationsPublished.WithLabelValues("SøknadTilGodkjenning").Inc()

	rec := httptest.NewRecorder()
	newServer(":0", reg, nil).Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "soknad_notifications_published_total")
}
