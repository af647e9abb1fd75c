// Package common holds helpers shared by several services.
//
// It provides a gRPC health client for the supervisor with call timeouts and
// identifies the operator running a command (hostname/username) so requests
// can be attributed in server logs.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
