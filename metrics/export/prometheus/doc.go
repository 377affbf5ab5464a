// Package prometheus renders goCreds engine metrics in the Prometheus text
// exposition format.
//
// Counters are named gocreds_*_total and the latency histograms
// gocreds_*_latency_seconds. Nothing is registered globally; mount
// [Exporter.Handler] wherever the scraper expects it.
package prometheus
