// Package otel binds goIdentity metrics to OpenTelemetry instruments.
//
// Engine counters are grouped into a few observable counters and told
// apart by attributes: goidentity.logins{result}, goidentity.users{event},
// goidentity.key.loads{source,result} and so on. Login and refresh latency
// is exported as cumulative gauges goidentity.latency.bucket{op,le} and
// goidentity.latency.count{op}. A single callback reads
// [goIdentity.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
