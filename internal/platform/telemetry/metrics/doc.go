// Package metrics provides operational metrics collection.
//
// This package handles system observability for monitoring and alerting:
//
// # Metric Categories
//
//   - Latency: Request and action duration histograms by route and kind
//   - Errors: Rejection counts by code
//   - Usage: Active rooms, live subscribers, websocket connections
//   - Conversion: Pipeline job and model request outcomes
//
// # Integration
//
// Metrics are collected via HTTP middleware and runtime hooks and exposed in
// Prometheus format. The metrics endpoint can be scraped by standard
// monitoring infrastructure.
package metrics
