package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceRecordsPaymentAttempts(t *testing.T) {
	m := NewMetricsService()
	m.RecordPaymentAttempt("simulated", "success", 20*time.Millisecond)
	m.RecordPaymentAttempt("simulated", "success", 30*time.Millisecond)
	m.RecordPaymentAttempt("live", "failed", time.Second)
	m.SetOpenFlows(4)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	attempts := map[string]float64{}
	var open float64
	for _, f := range families {
		switch f.GetName() {
		case "payment_attempts_total":
			for _, metric := range f.GetMetric() {
				key := ""
				for _, l := range metric.GetLabel() {
					key += l.GetName() + "=" + l.GetValue() + ";"
				}
				attempts[key] = metric.GetCounter().GetValue()
			}
		case "payment_flows_open":
			open = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 2.0, attempts["mode=simulated;outcome=success;"])
	assert.Equal(t, 1.0, attempts["mode=live;outcome=failed;"])
	assert.Equal(t, 4.0, open)
}

func TestMetricsServiceHandler(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/competitions", http.StatusOK, 5*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="GET",path="/api/v1/competitions",status="200"} 1`)
	assert.Contains(t, w.Body.String(), "cache_hits_total 1")

	var nilMetrics *MetricsService
	w = httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
