// Package otel registers observable OpenTelemetry instruments for the
// engine counters and the dispatch latency histogram. A single callback
// reads one snapshot per collection. Callers own the MeterProvider.
package otel
