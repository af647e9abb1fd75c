// Package zone contains core domain types for security zones.
//
// It defines the zone Category, the lifecycle State with its derived Level,
// the commands accepted by the state machine, the TestRule sensor comparison
// entries and the Snapshot persisted across restarts. Clone helpers avoid
// leaking internal references between the state machine and its observers.
package zone
