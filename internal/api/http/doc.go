// Package httpapi serves the REST API of the supervisor: zone status and
// commands, device metrics, the event journal, a websocket event feed and
// Prometheus metrics.
package httpapi
