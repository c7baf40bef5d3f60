// Package prometheus exposes goIdentity metrics as a Prometheus collector.
//
// [PrometheusExporter] implements prometheus.Collector over
// [goIdentity.Engine.MetricsSnapshot]. Register it with any registry, or mount
// [PrometheusExporter.Handler], which serves it from a private registry.
// Counter names are goidentity_*_total; latency histograms end in _seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
