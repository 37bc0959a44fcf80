// Package prometheus exposes the engine's counters and latency histograms as a
// prometheus.Collector.
//
// Series are named tenantauth_*_total and tenantauth_*_latency_seconds. The exporter
// never touches the default registry; mount [Exporter.Handler] or register the
// collector on a registry you own.
package prometheus
