package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metricValue reads the current value of a single counter or gauge.
func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var d dto.Metric
	require.NoError(t, m.Write(&d))
	if d.Counter != nil {
		return d.GetCounter().GetValue()
	}
	return d.GetGauge().GetValue()
}

func TestPrometheusMetrics_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("metrics-test"))
	r.Get("/api/v1/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id, nil))
	}

	counter := httpRequestsTotal.WithLabelValues("metrics-test", http.MethodGet, "/api/v1/orders/{id}", "404")
	assert.Equal(t, float64(3), metricValue(t, counter))
	assert.Equal(t, float64(0), metricValue(t, httpRequestsInFlight.WithLabelValues("metrics-test")))
}

func TestPrometheusMetrics_UnmatchedRoute(t *testing.T) {
	h := PrometheusMetrics("metrics-unmatched")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/whatever", nil))

	counter := httpRequestsTotal.WithLabelValues("metrics-unmatched", http.MethodGet, "unknown", "200")
	assert.Equal(t, float64(1), metricValue(t, counter))
}
