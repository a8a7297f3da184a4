package prometheus

import (
	"strings"
	"testing"

	trustgate "github.com/trustgate-io/trustgate"
)

type stubSource struct {
	snapshot trustgate.MetricsSnapshot
	dropped  uint64
}

func (s *stubSource) MetricsSnapshot() trustgate.MetricsSnapshot { return s.snapshot }
func (s *stubSource) AuditDropped() uint64                       { return s.dropped }

func TestRender_Counters(t *testing.T) {
	source := &stubSource{
		snapshot: trustgate.MetricsSnapshot{
			Counters: map[trustgate.MetricID]uint64{
				trustgate.MetricAuthSuccess:  7,
				trustgate.MetricAuthFailure:  3,
				trustgate.MetricTokenRevoked: 1,
			},
			Histograms: map[trustgate.MetricID][]uint64{},
		},
		dropped: 2,
	}

	out := NewExporterFromSource(source).Render()

	for _, want := range []string{
		"# TYPE trustgate_auth_success_total counter",
		"trustgate_auth_success_total 7",
		"trustgate_auth_failure_total 3",
		"trustgate_token_revoked_total 1",
		"trustgate_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRender_Histogram(t *testing.T) {
	source := &stubSource{
		snapshot: trustgate.MetricsSnapshot{
			Counters: map[trustgate.MetricID]uint64{trustgate.MetricValidateSuccess: 3},
			Histograms: map[trustgate.MetricID][]uint64{
				trustgate.MetricValidateLatency: {1, 0, 2, 0, 0, 0, 0, 0},
			},
		},
	}

	out := NewExporterFromSource(source).Render()

	for _, want := range []string{
		"# TYPE trustgate_validate_latency_seconds histogram",
		`trustgate_validate_latency_seconds_bucket{le="0.005"} 1`,
		`trustgate_validate_latency_seconds_bucket{le="0.025"} 3`,
		`trustgate_validate_latency_seconds_bucket{le="+Inf"} 3`,
		"trustgate_validate_latency_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRender_EmptySource(t *testing.T) {
	out := NewExporterFromSource(&stubSource{snapshot: trustgate.MetricsSnapshot{
		Counters:   map[trustgate.MetricID]uint64{},
		Histograms: map[trustgate.MetricID][]uint64{},
	}}).Render()
	if out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}

	var nilExporter *Exporter
	if nilExporter.Render() != "" {
		t.Fatal("nil exporter rendered output")
	}
}
