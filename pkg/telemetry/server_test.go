package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsHandler(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ramcreds", Name: "telemetry_test_total", Help: "test counter"})
	prometheus.MustRegister(counter)
	defer prometheus.Unregister(counter)
	counter.Inc()

	r, _ := http.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	NewMetricsServer(":0").Handler().ServeHTTP(rr, r)

	if rr.Code != http.StatusOK {
		t.Error("unexpected status, was", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "ramcreds_telemetry_test_total 1") {
		t.Error("expected counter in output")
	}
}

func TestProfileHandler(t *testing.T) {
	r, _ := http.NewRequest("GET", "/debug/pprof/", nil)
	rr := httptest.NewRecorder()
	NewProfileServer(":0").Handler().ServeHTTP(rr, r)

	if rr.Code != http.StatusOK {
		t.Error("unexpected status, was", rr.Code)
	}
}
