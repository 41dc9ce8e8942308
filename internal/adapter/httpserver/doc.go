// Package httpserver serves the optional admin HTTP API: probes, version, Prometheus metrics,
// connection listing and operator broadcasts.
package httpserver
