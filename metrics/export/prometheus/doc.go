// Package prometheus exposes branchauth engine metrics as a prometheus.Collector.
//
// [NewExporter] reads [branchauth.Engine.MetricsSnapshot] on every scrape. Counters are named
// branchauth_*_total and the request latency histogram is branchauth_request_latency_seconds.
// Register the exporter in your own registry, or mount [Exporter.Handler], which uses a
// private one.
package prometheus
