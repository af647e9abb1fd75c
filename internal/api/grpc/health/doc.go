// Package health reports zone states over the standard gRPC health protocol.
//
// Every zone is a health service named "security_zone.<zone id>": it is
// SERVING while the zone is quiet and NOT_SERVING while the zone is in an
// alarm sequence. The empty service name reports the supervisor itself.
package health
