// Package prometheus provides Prometheus collectors for credVault metrics.
//
// [NewPrometheusExporter] accepts an [credVault.Engine] and exposes an [http.Handler]
// that renders all credVault counters and histograms in Prometheus text exposition format.
// Counter names are prefixed credvault_*_total; the single histogram is
// credvault_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
