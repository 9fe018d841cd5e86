// Package metrics exports provisioning progress as Prometheus metrics and
// serves them, together with a JSON run status, over HTTP.
package metrics
