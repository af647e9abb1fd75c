package zone

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidValue is returned when a setting holds a value outside its enumeration.
var ErrInvalidValue = errors.New("invalid value")

var (
	// errIDRequired is returned when a zone has no identifier.
	errIDRequired = errors.New("zone id must be provided")
	// errNegativeDuration is returned when a delay or timeout is negative.
	errNegativeDuration = errors.New("delays and timeouts must not be negative")
	// errNegativeThreshold is returned when the test threshold is negative.
	errNegativeThreshold = errors.New("test threshold must not be negative")
	// errDeviceRequired is returned when a test rule has no device reference.
	errDeviceRequired = errors.New("test device must be provided")
)

// Category is the kind of hazard a zone watches for.
type Category string

const (
	// CategoryIntrusion watches doors, windows and motion sensors.
	CategoryIntrusion Category = "intrusion"
	// CategoryFlood watches water leak sensors.
	CategoryFlood Category = "flood"
	// CategorySmoke watches smoke detectors.
	CategorySmoke Category = "smoke"
	// CategoryGas watches gas and CO detectors.
	CategoryGas Category = "gas"
	// CategoryHeat fires on high temperature.
	CategoryHeat Category = "heat"
	// CategoryCold fires on low temperature.
	CategoryCold Category = "cold"
	// CategoryTamper watches sensor enclosures and sirens.
	CategoryTamper Category = "tamper"
	// CategoryEnergy watches power supply and consumption.
	CategoryEnergy Category = "energy"
	// CategoryOther is refined by the zone's CategoryLabel.
	CategoryOther Category = "other"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryIntrusion, CategoryFlood, CategorySmoke, CategoryGas, CategoryHeat,
		CategoryCold, CategoryTamper, CategoryEnergy, CategoryOther:
		return true
	default:
		return false
	}
}

// Kind selects how a test rule reads its device.
type Kind string

const (
	// KindBinary compares the on/off level of a sensor.
	KindBinary Kind = "binary"
	// KindMultilevel compares a numeric level with an operator.
	KindMultilevel Kind = "multilevel"
	// KindRemote matches a remote's level or button change.
	KindRemote Kind = "remote"
)

// Valid reports whether k is a known rule kind.
func (k Kind) Valid() bool {
	return k == KindBinary || k == KindMultilevel || k == KindRemote
}

// Operator compares a device value with the configured value.
type Operator string

const (
	// OpEqual matches equal values; the default of binary rules.
	OpEqual Operator = "="
	// OpNotEqual matches different values.
	OpNotEqual Operator = "!="
	// OpGreater matches device values above the configured one.
	OpGreater Operator = ">"
	// OpLess matches device values below the configured one.
	OpLess Operator = "<"
	// OpGreaterOrEqual matches device values at or above the configured one.
	OpGreaterOrEqual Operator = ">="
	// OpLessOrEqual matches device values at or below the configured one.
	OpLessOrEqual Operator = "<="
)

// Phase controls when a rule takes part in the arm-time activation check.
type Phase string

const (
	// PhaseImmediate rules are checked at the moment of arming.
	PhaseImmediate Phase = "immediate"
	// PhaseDelayed rules are checked once the activation delay has passed.
	PhaseDelayed Phase = "delayed"
	// PhaseNever rules are only used for monitoring, never at arm time.
	PhaseNever Phase = "never"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p == PhaseImmediate || p == PhaseDelayed || p == PhaseNever
}

// TestRule is one sensor comparison of a zone.
type TestRule struct {
	// Kind is binary, multilevel or remote.
	Kind Kind
	// Device is the registry reference of the monitored device.
	Device string
	// Operator is used by binary and multilevel rules; remote rules always compare for equality.
	Operator Operator
	// Value is the configured comparison value.
	Value any
	// Phase selects the arm-time activation check the rule belongs to.
	Phase Phase
}

// Settings is the immutable configuration of one zone.
type Settings struct {
	// ID identifies the zone and names its device.
	ID string
	// Title is the display name used in messages.
	Title string
	// Room is the location reported with lifecycle events.
	Room string
	// Category is the hazard the zone watches for.
	Category Category
	// CategoryLabel is the free-form sub-label of CategoryOther zones.
	CategoryLabel string
	// Tests are the sensor rules that trigger the zone.
	Tests []TestRule
	// DelayActivateSeconds is the time between arming and the zone being on.
	DelayActivateSeconds int
	// DelayAlarmSeconds is the grace period between a trigger and the alarm.
	DelayAlarmSeconds int
	// TimeoutSeconds keeps the zone in timeout after the trigger ends.
	TimeoutSeconds int

	// Cancelable allows a stop command to abort a running alarm delay.
	Cancelable bool
	// TestThreshold is the minimum number of matching rules required to trigger; 0 means any.
	TestThreshold int
	// SingleZonePerCategory suppresses alarms while a sibling of the same category is alarming.
	SingleZonePerCategory bool
}

// DelayActivate returns the activation delay.
func (s *Settings) DelayActivate() time.Duration {
	return time.Duration(s.DelayActivateSeconds) * time.Second
}

// DelayAlarm returns the alarm delay.
func (s *Settings) DelayAlarm() time.Duration {
	return time.Duration(s.DelayAlarmSeconds) * time.Second
}

// Timeout returns the post-alarm timeout.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// SecurityType returns the category as published on the zone device,
// with the sub-label appended for CategoryOther zones.
func (s *Settings) SecurityType() string {
	if s.Category == CategoryOther && s.CategoryLabel != "" {
		return string(s.Category) + ":" + s.CategoryLabel
	}

	return string(s.Category)
}

// Validate checks structural settings. Operators are checked when rules are
// evaluated so that a single bad rule does not disable the zone.
func (s *Settings) Validate() error {
	if s.ID == "" {
		return errIDRequired
	}

	if !s.Category.Valid() {
		return fmt.Errorf("zone %s: category %q: %w", s.ID, s.Category, ErrInvalidValue)
	}

	if s.DelayActivateSeconds < 0 || s.DelayAlarmSeconds < 0 || s.TimeoutSeconds < 0 {
		return fmt.Errorf("zone %s: %w", s.ID, errNegativeDuration)
	}

	if s.TestThreshold < 0 {
		return fmt.Errorf("zone %s: %w", s.ID, errNegativeThreshold)
	}

	for i := range s.Tests {
		test := &s.Tests[i]
		if test.Device == "" {
			return fmt.Errorf("zone %s: test %d: %w", s.ID, i, errDeviceRequired)
		}

		if test.Phase == "" {
			test.Phase = PhaseImmediate
		}

		if !test.Phase.Valid() {
			return fmt.Errorf("zone %s: test %d: phase %q: %w", s.ID, i, test.Phase, ErrInvalidValue)
		}
	}

	return nil
}
