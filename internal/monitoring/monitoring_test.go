package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/require"

	"github.com/brocaar/ttn-sensor-node/internal/test"
)

var testCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "monitoring_test_count",
	Help: "Test counter.",
})

func TestHandler(t *testing.T) {
	conf := test.GetConfig()
	conf.Monitoring.PrometheusEndpoint = true
	conf.Monitoring.HealthcheckEndpoint = true
	h := newHandler(conf)

	t.Run("Metrics", func(t *testing.T) {
		assert := require.New(t)
		testCounter.Inc()

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(http.StatusOK, rec.Code)
		assert.Contains(rec.Body.String(), "monitoring_test_count 1")
	})

	t.Run("Health not joined", func(t *testing.T) {
		assert := require.New(t)
		SetJoined(false)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(http.StatusServiceUnavailable, rec.Code)
		assert.Equal("not joined", rec.Body.String())
	})

	t.Run("Health joined", func(t *testing.T) {
		assert := require.New(t)
		SetJoined(true)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(http.StatusOK, rec.Code)
	})

	t.Run("Disabled endpoints", func(t *testing.T) {
		assert := require.New(t)
		h := newHandler(test.GetConfig())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(http.StatusNotFound, rec.Code)
	})
}
