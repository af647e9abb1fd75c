package zone

import (
	"context"
	"fmt"
	"slices"
	"time"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/logger"
	"github.com/oshokin/security-zone/internal/loop"
	"github.com/oshokin/security-zone/internal/rules"
)

const (
	// RecheckDelay is how long after an immediate alarm without a persisting
	// trigger the rules are evaluated again.
	RecheckDelay = 5 * time.Second
	// ActivationWarningDelay is how long after arming the activation check
	// evaluates the rules of the requested phases.
	ActivationWarningDelay = 30 * time.Second
)

// timerKind indexes the timers owned by a zone.
type timerKind int

const (
	timerDelayActivate timerKind = iota
	timerDelayAlarm
	timerTimeout
	timerRecheck
	timerWarning
	timerCount
)

// Zone is one security zone.
type Zone struct {
	// ctx carries the zone logger.
	ctx context.Context //nolint:containedctx // The zone logs from timer callbacks.
	// settings are immutable after New.
	settings domain.Settings
	// deps are the zone collaborators.
	deps Deps
	// evaluator checks the zone test rules.
	evaluator *rules.Evaluator

	// state is the current lifecycle state.
	state domain.State
	// resume is the state restored when an alarm sequence ends.
	resume domain.State
	// triggered holds labels of the sensors behind the current trigger.
	triggered []string
	// delayActivateAt is the pending activation deadline.
	delayActivateAt *time.Time
	// delayAlarmAt is the pending alarm deadline.
	delayAlarmAt *time.Time

	// timers are the currently scheduled callbacks; stale callbacks are ignored.
	timers [timerCount]loop.Timer
	// warningPhases are the phases awaiting the activation check.
	warningPhases []domain.Phase
	// unsubscribe cancels the device subscriptions.
	unsubscribe []func()
	// stopped is set by Stop; every later callback is a no-op.
	stopped bool
}

// New validates the settings and creates a disarmed zone.
func New(ctx context.Context, settings domain.Settings, deps Deps) (*Zone, error) {
	settings.Tests = slices.Clone(settings.Tests)
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("validate zone settings: %w", err)
	}

	if err := deps.withDefaults(); err != nil {
		return nil, fmt.Errorf("zone %s: %w", settings.ID, err)
	}

	z := &Zone{
		ctx:      logger.WithKV(ctx, "zone_id", settings.ID, "category", settings.Category),
		settings: settings,
		deps:     deps,
		state:    domain.StateOff,
		resume:   domain.StateOn,
	}

	z.evaluator = rules.NewEvaluator(deps.Registry, func(rule domain.TestRule, err error) {
		logger.WarnKV(z.ctx, "Skipping zone test", "device", rule.Device, "kind", rule.Kind, "error", err)
		z.deps.Recorder.RuleError(z.settings.ID, err)
	})

	return z, nil
}

// ID returns the zone identifier.
func (z *Zone) ID() string {
	return z.settings.ID
}

// Category returns the zone category.
func (z *Zone) Category() domain.Category {
	return z.settings.Category
}

// CategoryLabel returns the sub-label of CategoryOther zones.
func (z *Zone) CategoryLabel() string {
	return z.settings.CategoryLabel
}

// State returns the current state.
func (z *Zone) State() domain.State {
	return z.state
}

// Settings returns a copy of the zone settings.
func (z *Zone) Settings() domain.Settings {
	settings := z.settings
	settings.Tests = slices.Clone(z.settings.Tests)

	return settings
}

// Snapshot returns the current externally visible state.
func (z *Zone) Snapshot() *domain.Snapshot {
	snapshot := &domain.Snapshot{
		State:            z.state,
		Level:            domain.LevelOf(z.state),
		Icon:             domain.IconOf(z.state),
		TriggeredDevices: z.triggered,
		DelayActivate:    z.delayActivateAt,
		DelayAlarm:       z.delayAlarmAt,
	}

	return snapshot.Clone()
}

// Start subscribes to the zone devices and resumes from a restored snapshot.
// A nil snapshot starts the zone disarmed.
func (z *Zone) Start(restored *domain.Snapshot) {
	seen := make(map[string]struct{}, len(z.settings.Tests))
	for _, test := range z.settings.Tests {
		if _, ok := seen[test.Device]; ok {
			continue
		}

		seen[test.Device] = struct{}{}
		z.unsubscribe = append(z.unsubscribe, z.deps.Registry.Subscribe(test.Device, func() {
			z.deps.Scheduler.Post(z.CheckAlarm)
		}))
	}

	z.deps.Coordinator.Register(z)

	if restored != nil && restored.State.Valid() {
		z.restore(restored)
	}

	logger.InfoKV(z.ctx, "Zone started", "state", z.state)
	z.publish()
}

// restore resumes a persisted snapshot. Pending delays continue from their
// stored deadlines and an interrupted timeout falls back to alarm.
func (z *Zone) restore(snapshot *domain.Snapshot) {
	z.state = snapshot.State
	z.triggered = slices.Clone(snapshot.TriggeredDevices)

	switch z.state {
	case domain.StateDelayActivate:
		z.delayActivateAt = cloneTime(snapshot.DelayActivate)
		z.startDelayActivate()
	case domain.StateDelayAlarm:
		z.delayAlarmAt = cloneTime(snapshot.DelayAlarm)
		z.startDelayAlarm()
	case domain.StateTimeout:
		z.transition(domain.StateAlarm)
	case domain.StateOff, domain.StateOn:
		z.triggered = nil
	case domain.StateAlarm:
	}
}

// Stop cancels all timers and subscriptions. The zone ignores every later call.
func (z *Zone) Stop() {
	if z.stopped {
		return
	}

	z.stopped = true
	z.cancelAll()

	for _, cancel := range z.unsubscribe {
		cancel()
	}

	z.unsubscribe = nil
	z.deps.Coordinator.Unregister(z.settings.ID)

	logger.InfoKV(z.ctx, "Zone stopped", "state", z.state)
}

// Arm is the external "on" command.
func (z *Zone) Arm() {
	z.handle(domain.CommandArm, false)
}

// Disarm is the external "off" command.
func (z *Zone) Disarm() {
	z.handle(domain.CommandDisarm, false)
}

// SetLevel applies a level write to the zone device. It reports false for
// values other than on and off.
func (z *Zone) SetLevel(level string) bool {
	switch domain.Level(level) {
	case domain.LevelOn:
		z.Arm()
	case domain.LevelOff:
		z.Disarm()
	default:
		return false
	}

	return true
}

// CheckAlarm evaluates the test rules and issues alarm or stop accordingly.
// It runs after every change of a monitored device.
func (z *Zone) CheckAlarm() {
	if z.stopped || z.state == domain.StateOff || z.state == domain.StateDelayActivate {
		return
	}

	triggered, labels := z.evaluator.TestsRules(z.settings.Tests, z.settings.TestThreshold)

	switch {
	case triggered:
		z.triggered = labels
		z.dispatch(domain.CommandAlarm, false)
	case z.state == domain.StateOn:
		z.triggered = nil
	default:
		// Labels stay until the stop actually ends the alarm sequence.
		z.dispatch(domain.CommandStop, false)
	}

	z.publish()
}

// handle dispatches a command and publishes the resulting snapshot.
func (z *Zone) handle(cmd domain.Command, viaTimer bool) {
	if z.stopped {
		return
	}

	z.dispatch(cmd, viaTimer)
	z.publish()
}

func (z *Zone) publish() {
	z.deps.Publisher.Publish(&z.settings, z.Snapshot())
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	v := *t

	return &v
}
