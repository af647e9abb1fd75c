// Package events publishes zone lifecycle events and user-facing notifications.
//
// Zones emit Events on the loop goroutine through a Bus, which fans them out
// to Sinks (log, metrics, journal, Kafka, websocket). Sinks doing I/O are
// wrapped with NewAsync so that emitting never blocks a zone.
package events
