// Package state persists zone snapshots so that zones resume after a restart.
//
// FileRepository keeps every zone in one protobuf JSON document on disk and
// RedisRepository stores one JSON value per zone. Persister decouples the
// zone loop from storage latency.
package state
