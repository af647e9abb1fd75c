// Package supervisor wires the security zones of one process: device
// registry, zones on the event loop, state persistence, event sinks and the
// HTTP and gRPC servers.
package supervisor
