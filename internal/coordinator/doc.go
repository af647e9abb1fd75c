// Package coordinator lets zones of the same category suppress each other,
// so that only one of them reports an alarm at a time.
package coordinator
