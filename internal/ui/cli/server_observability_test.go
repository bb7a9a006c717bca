package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qmakemodel/internal/core/buildsystem"
)

type fakeScheduler struct {
	state   buildsystem.State
	pending int
}

func (f fakeScheduler) State() buildsystem.State { return f.state }
func (f fakeScheduler) PendingEvaluations() int   { return f.pending }

func TestObservabilityServer_Health(t *testing.T) {
	last := func() *buildsystem.Update { return &buildsystem.Update{Generation: 7} }
	srv := NewObservabilityServer("127.0.0.1:0", fakeScheduler{state: buildsystem.InProgress, pending: 2}, last)

	rec := httptest.NewRecorder()
	srv.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status healthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, healthStatus{Status: "up", State: "in_progress", Pending: 2, Generation: 7}, status)
}

func TestObservabilityServer_HealthDownWhileShuttingDown(t *testing.T) {
	srv := NewObservabilityServer("127.0.0.1:0", fakeScheduler{state: buildsystem.ShuttingDown}, nil)

	rec := httptest.NewRecorder()
	srv.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestObservabilityServer_Metrics(t *testing.T) {
	srv := NewObservabilityServer("127.0.0.1:0", fakeScheduler{}, nil)

	rec := httptest.NewRecorder()
	srv.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "qmakemodel_pending_evaluations")
}
