package zone

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/security-zone/internal/coordinator"
	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/events"
	"github.com/oshokin/security-zone/internal/loop"
	"github.com/oshokin/security-zone/internal/rules"
)

var (
	// errRegistryRequired is returned when a zone is created without a registry.
	errRegistryRequired = errors.New("device registry must be provided")
	// errSchedulerRequired is returned when a zone is created without a scheduler.
	errSchedulerRequired = errors.New("scheduler must be provided")
)

// Registry is the device registry a zone reads and subscribes to.
type Registry interface {
	rules.Registry
	// Subscribe calls fn after every change of the level or change metric of ref.
	Subscribe(ref string, fn func()) (cancel func())
	// RequestUpdate asks the device to refresh its metrics.
	RequestUpdate(ref string)
}

// Scheduler serializes zone work and runs delayed callbacks on the same goroutine.
type Scheduler interface {
	Post(fn func()) bool
	AfterFunc(d time.Duration, fn func()) loop.Timer
}

// Publisher mirrors the zone snapshot to the outside world.
type Publisher interface {
	Publish(settings *domain.Settings, snapshot *domain.Snapshot)
}

// Emitter receives lifecycle events.
type Emitter interface {
	Emit(ctx context.Context, event events.Event)
}

// Notifier receives user-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, notification events.Notification)
}

// Member is the view of a zone shared with its siblings.
type Member = coordinator.Member

// Coordinator tracks sibling zones for single-zone-per-category suppression.
type Coordinator interface {
	Register(member Member)
	Unregister(id string)
	// Suppressed reports whether another zone of the same category is alarming.
	Suppressed(member Member) bool
}

// Recorder observes zone activity for metrics.
type Recorder interface {
	Transition(zoneID string, from, to domain.State)
	RuleError(zoneID string, err error)
	Vetoed(zoneID string)
}

// Deps are the collaborators of a zone. Registry and Scheduler are required.
type Deps struct {
	Registry    Registry
	Scheduler   Scheduler
	Publisher   Publisher
	Emitter     Emitter
	Notifier    Notifier
	Coordinator Coordinator
	Recorder    Recorder
	Messages    *Messages
	// Clock returns the current time; time.Now when nil.
	Clock func() time.Time
}

func (d *Deps) withDefaults() error {
	if d.Registry == nil {
		return errRegistryRequired
	}

	if d.Scheduler == nil {
		return errSchedulerRequired
	}

	if d.Publisher == nil {
		d.Publisher = nopPublisher{}
	}

	if d.Emitter == nil {
		d.Emitter = nopEmitter{}
	}

	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}

	if d.Coordinator == nil {
		d.Coordinator = nopCoordinator{}
	}

	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}

	if d.Messages == nil {
		d.Messages = DefaultMessages()
	}

	if d.Clock == nil {
		d.Clock = time.Now
	}

	return nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(*domain.Settings, *domain.Snapshot) {}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, events.Event) {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, events.Notification) {}

type nopCoordinator struct{}

func (nopCoordinator) Register(Member)        {}
func (nopCoordinator) Unregister(string)      {}
func (nopCoordinator) Suppressed(Member) bool { return false }

type nopRecorder struct{}

func (nopRecorder) Transition(string, domain.State, domain.State) {}
func (nopRecorder) RuleError(string, error)                       {}
func (nopRecorder) Vetoed(string)                                 {}

// Publishers publishes to every element in order.
type Publishers []Publisher

// Publish implements Publisher.
func (p Publishers) Publish(settings *domain.Settings, snapshot *domain.Snapshot) {
	for _, publisher := range p {
		publisher.Publish(settings, snapshot)
	}
}
