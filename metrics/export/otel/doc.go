// Package otel bridges the gate's in-process metrics into OpenTelemetry as
// observable instruments. Counters map onto Int64ObservableCounter; the
// latency histogram is exposed as cumulative bucket gauges because the core
// snapshot carries bucket counts, not raw samples.
package otel
