// Package registry holds the devices known to the supervisor: physical
// sensors fed through the API and the virtual devices that mirror each zone.
//
// The registry is safe for concurrent use. Subscribers are called outside
// the registry lock on the goroutine that changed the metric.
package registry
