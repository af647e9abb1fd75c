// Package version exposes build metadata of the security-zone binary.
//
// Variables Version, Commit and BuildTime are injected at build time via
// Go ldflags. Get adds the Go version and platform; Short and Full render
// the version for CLI output, logs and the gRPC user agent.
package version
