package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_CountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheHit()
	c.RecordCacheHit()
	c.RecordCacheMiss()
	c.RecordFetchSuccess()
	c.RecordFetchFailure()
	c.RecordAppointmentsServed(5)

	if got := testutil.ToFloat64(c.cacheHit); got != 2 {
		t.Errorf("cache_hit = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.cacheMiss); got != 1 {
		t.Errorf("cache_miss = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.fetchSuccess); got != 1 {
		t.Errorf("fetch_success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.fetchFail); got != 1 {
		t.Errorf("fetch_fail = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.appointmentsServed); got != 5 {
		t.Errorf("appointments_served = %v, want 5", got)
	}
}

func TestCollector_HTTPStatusByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(400)

	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("200")); got != 2 {
		t.Errorf("status 200 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("400")); got != 1 {
		t.Errorf("status 400 = %v, want 1", got)
	}
}

func TestHandler_ExposesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordCacheHit()
	c.RecordFetchLatency(120 * time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "calman_cache_hit_total 1") {
		t.Errorf("calman_cache_hit_total が公開されるべき:\n%s", body)
	}
	if !strings.Contains(body, "calman_fetch_latency_seconds") {
		t.Errorf("calman_fetch_latency_seconds が公開されるべき:\n%s", body)
	}
}
