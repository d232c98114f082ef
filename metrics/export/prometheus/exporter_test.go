package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/scalebench/authcore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f *fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderCounters(t *testing.T) {
	source := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricAuthSuccess:    7,
				authcore.MetricDeviceMismatch: 2,
			},
			Histograms: map[authcore.MetricID][]uint64{},
		},
		dropped: 3,
	}

	out := NewPrometheusExporterFromSource(source).Render()

	for _, want := range []string{
		"# TYPE authcore_auth_success_total counter",
		"authcore_auth_success_total 7",
		"authcore_device_mismatch_total 2",
		"authcore_refresh_success_total 0",
		"authcore_audit_dropped_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q", want)
		}
	}
}

func TestRenderHistogramCumulative(t *testing.T) {
	source := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricValidateLatency: {1, 2, 0, 0, 0, 0, 0, 1},
			},
		},
	}

	out := NewPrometheusExporterFromSource(source).Render()

	for _, want := range []string{
		"# TYPE authcore_validate_latency_seconds histogram",
		`authcore_validate_latency_seconds_bucket{le="0.005"} 1`,
		`authcore_validate_latency_seconds_bucket{le="0.01"} 3`,
		`authcore_validate_latency_seconds_bucket{le="+Inf"} 4`,
		"authcore_validate_latency_seconds_count 4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q", want)
		}
	}
}

func TestRenderEmptySnapshot(t *testing.T) {
	source := &fakeSource{snapshot: authcore.MetricsSnapshot{}}
	if out := NewPrometheusExporterFromSource(source).Render(); out != "" {
		t.Fatalf("empty snapshot rendered %q", out)
	}
}

func TestHandlerContentType(t *testing.T) {
	source := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{authcore.MetricLogout: 1},
		},
	}
	rec := httptest.NewRecorder()
	NewPrometheusExporterFromSource(source).Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("content type = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "authcore_logout_total 1") {
		t.Error("handler body missing counter")
	}
}
