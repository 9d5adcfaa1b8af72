package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMetricsRegistersInstruments(t *testing.T) {
	m := NewMetrics()
	assert.NotNil(t, m.IngestionMessagesTotal)
	assert.NotNil(t, m.EventQueueDepth)
	assert.NotNil(t, m.SignalsEmittedTotal)
	assert.NotNil(t, m.SinkCircuitBreakerState)
}

func TestHealthStatusServeHTTPDegradedWhenDisconnected(t *testing.T) {
	h := NewHealthStatus()
	h.SetIngestionConnected(false)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, 503, rec.Code)
}

func TestHealthStatusServeHTTPHealthyWhenAllUp(t *testing.T) {
	h := NewHealthStatus()
	h.SetIngestionConnected(true)
	h.mu.Lock()
	h.UpdateBusConnected = true
	h.SinkOK = true
	h.mu.Unlock()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}
