package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCalculation(t *testing.T) {
	m := New("pricing")
	m.RecordCalculation("FiniteDifference", 10*time.Millisecond, nil)
	m.RecordCalculation("FiniteDifference", 10*time.Millisecond, errors.New("boom"))
	m.RecordCalculation("MonteCarloForward", time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PricingCalculations.WithLabelValues("FiniteDifference", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PricingCalculations.WithLabelValues("FiniteDifference", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PricingCalculations.WithLabelValues("MonteCarloForward", "success")))
}

func TestRecordCacheLookup(t *testing.T) {
	m := New("pricing")
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New("pricing")
	m.MCExhausted.Inc()
	m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "optionpricing_pricing_mc_exhausted_total 1")
	assert.Contains(t, rec.Body.String(), `optionpricing_pricing_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestNewSanitizesSubsystem(t *testing.T) {
	m := New("option-pricing.v2")
	m.FDRecalculations.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "optionpricing_option_pricing_v2_fd_recalculations_total 1")
}
