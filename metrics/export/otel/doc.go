// Package otel bridges the engine's counters and the validation latency
// histogram onto OpenTelemetry observable instruments. A single registered
// callback reads a metrics snapshot on each collection cycle; the caller
// owns the MeterProvider.
package otel
