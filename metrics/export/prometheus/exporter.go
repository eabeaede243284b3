package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	credVault "github.com/MrEthical07/credVault"
	"github.com/MrEthical07/credVault/metrics/export/internaldefs"
)

// metricsSource is the read surface the exporter needs from an engine:
// counter/histogram snapshots, audit backpressure drops, and the live
// session count.
type metricsSource interface {
	MetricsSnapshot() credVault.MetricsSnapshot
	AuditDropped() uint64
	SessionCount() int
}

// PrometheusExporter renders credVault metrics in Prometheus text exposition format.
//
//	Docs: docs/metrics.md
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from the given [credVault.Engine].
//
//	Docs: docs/metrics.md
func NewPrometheusExporter(engine *credVault.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from a
// custom [MetricsSource].
//
//	Docs: docs/metrics.md
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves Prometheus metrics.
//
//	Docs: docs/metrics.md
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current metrics in Prometheus text exposition format:
// every counter from the engine taxonomy, the authenticate latency
// histogram, the live session gauge, and the audit drop counter.
//
//	Docs: docs/metrics.md
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	sessions := p.source.SessionCount()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 && sessions == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(8192)

	for _, def := range internaldefs.CounterDefs {
		writeHeader(&b, def.Name, def.Help, "counter")
		writeSample(&b, def.Name, "", snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		writeHeader(&b, def.Name, def.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			writeSample(&b, def.Name, `_bucket{le="`+le+`"}`, cumulative[i])
		}
		// The core tracks bucket counts only, so there is no _sum series.
		writeSample(&b, def.Name, "_count", cumulative[len(cumulative)-1])
	}

	writeHeader(&b, "credvault_sessions_active", "Live sessions currently tracked by the session manager.", "gauge")
	writeSample(&b, "credvault_sessions_active", "", uint64(max(sessions, 0)))

	writeHeader(&b, "credvault_audit_dropped_total", "Dropped audit events due to dispatcher backpressure.", "counter")
	writeSample(&b, "credvault_audit_dropped_total", "", dropped)

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name, suffix string, value uint64) {
	b.WriteString(name)
	b.WriteString(suffix)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
