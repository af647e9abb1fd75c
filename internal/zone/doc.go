// Package zone implements the security zone state machine.
//
// A Zone moves between off, delayActivate, on, delayAlarm, alarm and timeout
// in response to arm/disarm commands, sensor triggers and its own timers.
// Zones are not safe for concurrent use: every method must run on the
// goroutine of the Scheduler the zone was created with.
package zone
