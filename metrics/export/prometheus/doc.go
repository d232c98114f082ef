// Package prometheus renders the engine's counters and the validation
// latency histogram in Prometheus text exposition format, without pulling
// the Prometheus client library into the core module.
package prometheus
