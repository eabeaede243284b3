package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	credVault "github.com/MrEthical07/credVault"
)

type fakeSource struct {
	snapshot credVault.MetricsSnapshot
	dropped  uint64
	sessions int
}

func (f fakeSource) MetricsSnapshot() credVault.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }
func (f fakeSource) SessionCount() int                          { return f.sessions }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: credVault.MetricsSnapshot{
			Counters:   map[credVault.MetricID]uint64{},
			Histograms: map[credVault.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: credVault.MetricsSnapshot{
			Counters: map[credVault.MetricID]uint64{
				credVault.MetricLoginSuccess: 7,
			},
			Histograms: map[credVault.MetricID][]uint64{
				credVault.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped:  2,
		sessions: 4,
	})

	out := exp.Render()
	if !strings.Contains(out, "credvault_login_success_total 7") {
		t.Fatalf("expected login_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "credvault_authenticate_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "credvault_authenticate_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "credvault_sessions_active 4") {
		t.Fatalf("expected session gauge in output, got:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE credvault_sessions_active gauge") {
		t.Fatalf("expected gauge type line in output, got:\n%s", out)
	}
	if !strings.Contains(out, "credvault_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: credVault.MetricsSnapshot{
			Counters:   map[credVault.MetricID]uint64{credVault.MetricLoginSuccess: 1},
			Histograms: map[credVault.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: credVault.MetricsSnapshot{
			Counters: map[credVault.MetricID]uint64{
				credVault.MetricLoginSuccess:        1000,
				credVault.MetricLoginFailure:        40,
				credVault.MetricPasswordlessIssued:  800,
				credVault.MetricPasswordlessReplay:  10,
				credVault.MetricSessionCreated:      800,
				credVault.MetricSessionExpired:      20,
				credVault.MetricRecoveryCodeFailed:  3,
			},
			Histograms: map[credVault.MetricID][]uint64{
				credVault.MetricAuthenticateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		dropped: 0,
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
