// Package internaldefs holds the shared metric name and bucket definitions
// used by the Prometheus and OTel exporters, so the two render the same
// series from one source of truth.
package internaldefs
