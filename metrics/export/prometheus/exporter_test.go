package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/connectit/authcore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("expected no metrics for disabled source, got %d", n)
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:      7,
				authcore.MetricSessionSuperseded: 2,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
	})

	expected := `
# HELP authcore_login_success_total Successful logins.
# TYPE authcore_login_success_total counter
authcore_login_success_total 7
# HELP authcore_session_superseded_total Requests carrying a superseded session.
# TYPE authcore_session_superseded_total counter
authcore_session_superseded_total 2
# HELP authcore_audit_dropped_total Audit events dropped by dispatcher backpressure.
# TYPE authcore_audit_dropped_total counter
authcore_audit_dropped_total 3
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"authcore_login_success_total",
		"authcore_session_superseded_total",
		"authcore_audit_dropped_total",
	)
	if err != nil {
		t.Fatalf("unexpected collector output: %v", err)
	}

	histogram := `
# HELP authcore_validate_latency_seconds Session validation latency.
# TYPE authcore_validate_latency_seconds histogram
authcore_validate_latency_seconds_bucket{le="0.005"} 1
authcore_validate_latency_seconds_bucket{le="0.01"} 3
authcore_validate_latency_seconds_bucket{le="0.025"} 6
authcore_validate_latency_seconds_bucket{le="0.05"} 10
authcore_validate_latency_seconds_bucket{le="0.1"} 15
authcore_validate_latency_seconds_bucket{le="0.25"} 21
authcore_validate_latency_seconds_bucket{le="0.5"} 28
authcore_validate_latency_seconds_bucket{le="+Inf"} 36
authcore_validate_latency_seconds_sum 0
authcore_validate_latency_seconds_count 36
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(histogram), "authcore_validate_latency_seconds"); err != nil {
		t.Fatalf("unexpected histogram output: %v", err)
	}
}

func TestCollectorPassesLint(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{authcore.MetricLogout: 1},
		},
	})

	problems, err := testutil.CollectAndLint(c)
	if err != nil {
		t.Fatalf("lint error: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("unexpected lint problems: %v", problems)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollectorFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1},
		},
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authcore_login_success_total 1") {
		t.Fatalf("expected counter in body, got:\n%s", rec.Body.String())
	}
}
