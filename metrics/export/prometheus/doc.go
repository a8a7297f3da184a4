// Package prometheus renders the gate's in-process metrics in Prometheus
// text exposition format without depending on the Prometheus client
// library. Serve [Exporter.Handler] on a scrape endpoint.
package prometheus
