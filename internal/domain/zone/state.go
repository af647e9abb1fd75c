package zone

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a zone.
type State string

const (
	// StateOff means the zone is disarmed.
	StateOff State = "off"
	// StateDelayActivate means the zone was armed and waits for the activation delay.
	StateDelayActivate State = "delayActivate"
	// StateOn means the zone is armed and monitoring its sensors.
	StateOn State = "on"
	// StateDelayAlarm means a trigger was detected and the alarm delay is running.
	StateDelayAlarm State = "delayAlarm"
	// StateAlarm means the alarm is raised.
	StateAlarm State = "alarm"
	// StateTimeout means the trigger ended and the post-alarm timeout is running.
	StateTimeout State = "timeout"
)

// States lists every valid state.
var States = []State{StateOff, StateDelayActivate, StateOn, StateDelayAlarm, StateAlarm, StateTimeout}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateOff, StateDelayActivate, StateOn, StateDelayAlarm, StateAlarm, StateTimeout:
		return true
	default:
		return false
	}
}

// Alarming reports whether the zone is handling an alarm condition.
// Sibling zones of the same category are suppressed while this holds.
func (s State) Alarming() bool {
	return s == StateDelayAlarm || s == StateAlarm || s == StateTimeout
}

// ParseState converts a persisted string into a State.
func ParseState(s string) (State, error) {
	state := State(s)
	if !state.Valid() {
		return "", fmt.Errorf("unknown state %q: %w", s, ErrInvalidValue)
	}

	return state, nil
}

// Level is the binary armed flag published by the zone.
type Level string

const (
	// LevelOn means armed.
	LevelOn Level = "on"
	// LevelOff means disarmed.
	LevelOff Level = "off"
)

// LevelOf derives the level from a state: off only for StateOff.
func LevelOf(s State) Level {
	if s == StateOff {
		return LevelOff
	}

	return LevelOn
}

// IconOf returns the icon name shown for a state.
func IconOf(s State) string {
	switch s {
	case StateOff:
		return "off"
	case StateDelayAlarm, StateAlarm, StateTimeout:
		return "alarm"
	default:
		return "on"
	}
}

// Command is an input of the zone state machine.
type Command string

const (
	// CommandArm arms the zone ("on").
	CommandArm Command = "on"
	// CommandDisarm disarms the zone ("off").
	CommandDisarm Command = "off"
	// CommandAlarm reports a trigger.
	CommandAlarm Command = "alarm"
	// CommandStop reports the end of a trigger.
	CommandStop Command = "stop"
)

// Snapshot is the externally visible and persisted state of a zone.
type Snapshot struct {
	// State is the current lifecycle state.
	State State
	// Level is derived from State.
	Level Level
	// Icon is derived from State.
	Icon string
	// TriggeredDevices holds labels of the sensors responsible for the current trigger.
	TriggeredDevices []string
	// DelayActivate is the pending activation deadline, set only in StateDelayActivate.
	DelayActivate *time.Time
	// DelayAlarm is the pending alarm deadline, set only in StateDelayAlarm.
	DelayAlarm *time.Time
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	cloned := *s
	cloned.TriggeredDevices = append([]string(nil), s.TriggeredDevices...)
	cloned.DelayActivate = cloneTime(s.DelayActivate)
	cloned.DelayAlarm = cloneTime(s.DelayAlarm)

	return &cloned
}

// Consistent reports whether the snapshot honours the state invariants:
// the level matches the state and deadlines exist only in their delay state.
func (s *Snapshot) Consistent() bool {
	if s.Level != LevelOf(s.State) {
		return false
	}

	if s.DelayActivate != nil && s.State != StateDelayActivate {
		return false
	}

	return s.DelayAlarm == nil || s.State == StateDelayAlarm
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	v := *t

	return &v
}
