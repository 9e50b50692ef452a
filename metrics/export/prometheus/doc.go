// Package prometheus exposes engine counters and the dispatch latency
// histogram as a prometheus.Collector.
//
// [Exporter.Handler] serves a private registry so nothing leaks into the
// global default registry; [Exporter.Register] adds the collector to a
// caller-owned registerer instead.
package prometheus
