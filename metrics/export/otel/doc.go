// Package otel bridges the engine's in-process metrics to an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter. Each latency histogram becomes a
// "<name>_bucket" gauge with one data point per "le" attribute value, plus a
// "<name>_count" gauge. One callback reads Engine.MetricsSnapshot per collection.
// Callers own the MeterProvider.
package otel
