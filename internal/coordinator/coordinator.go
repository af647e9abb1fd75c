package coordinator

import (
	"sync"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
)

// Member is a zone known to the coordinator.
type Member interface {
	ID() string
	Category() domain.Category
	CategoryLabel() string
	State() domain.State
}

// Coordinator tracks the live zones of the process.
type Coordinator struct {
	// mu protects members.
	mu sync.RWMutex
	// members are the registered zones by id.
	members map[string]Member
}

// New creates an empty coordinator.
func New() *Coordinator {
	return &Coordinator{
		members: make(map[string]Member),
	}
}

// Register adds or replaces a zone.
func (c *Coordinator) Register(member Member) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.members[member.ID()] = member
}

// Unregister removes a zone.
func (c *Coordinator) Unregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.members, id)
}

// Suppressed reports whether another zone of the same category is in
// delayAlarm, alarm or timeout. Zones of CategoryOther are siblings only
// when their labels match too.
func (c *Coordinator) Suppressed(member Member) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for id, sibling := range c.members {
		if id == member.ID() || !sameCategory(member, sibling) {
			continue
		}

		if sibling.State().Alarming() {
			return true
		}
	}

	return false
}

// Members returns the number of registered zones.
func (c *Coordinator) Members() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.members)
}

func sameCategory(a, b Member) bool {
	if a.Category() != b.Category() {
		return false
	}

	return a.Category() != domain.CategoryOther || a.CategoryLabel() == b.CategoryLabel()
}
