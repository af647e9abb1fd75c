package rules

import (
	"errors"
	"fmt"
	"slices"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
)

const (
	// MetricLevel is the device metric read by binary, multilevel and on/off remote rules.
	MetricLevel = "level"
	// MetricChange is the device metric read by directional remote rules.
	MetricChange = "change"
)

var (
	// ErrDeviceNotFound is returned when a rule references an unknown device.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrUnknownKind is returned for rule kinds other than binary, multilevel and remote.
	ErrUnknownKind = errors.New("unknown test kind")
	// ErrUnknownRemoteValue is returned when a remote rule value is outside its vocabulary.
	ErrUnknownRemoteValue = errors.New("unknown remote value")
	// ErrMetricMissing is returned when the device does not expose the metric a rule reads.
	ErrMetricMissing = errors.New("metric missing")
)

// remoteLevelValues are compared against the level metric of remotes.
var remoteLevelValues = []string{"on", "off"}

// remoteChangeValues are compared against the change metric of remotes.
var remoteChangeValues = []string{"upstart", "upstop", "downstart", "downstop"}

// Device is the read side of a registry device.
type Device interface {
	Metric(name string) (any, bool)
	Title() string
	Location() string
}

// Registry resolves device references.
type Registry interface {
	Lookup(ref string) (Device, bool)
}

// ErrorHandler receives rules skipped because of configuration or lookup errors.
type ErrorHandler func(rule domain.TestRule, err error)

// Result is the outcome of evaluating one rule.
type Result struct {
	// Matched reports whether the device value satisfies the rule.
	Matched bool
	// Label is the display name of the device, set when matched.
	Label string
}

// Evaluator evaluates test rules against a device registry.
type Evaluator struct {
	// registry resolves device references.
	registry Registry
	// onError is notified about every skipped rule.
	onError ErrorHandler
}

// NewEvaluator creates an evaluator. onError may be nil.
func NewEvaluator(registry Registry, onError ErrorHandler) *Evaluator {
	return &Evaluator{
		registry: registry,
		onError:  onError,
	}
}

// Evaluate resolves the rule's device and compares its metric.
func (e *Evaluator) Evaluate(rule domain.TestRule) (Result, error) {
	device, ok := e.registry.Lookup(rule.Device)
	if !ok {
		return Result{}, fmt.Errorf("%s: %w", rule.Device, ErrDeviceNotFound)
	}

	metric, op, err := metricFor(rule)
	if err != nil {
		return Result{}, err
	}

	value, ok := device.Metric(metric)
	if !ok {
		return Result{}, fmt.Errorf("%s: %s: %w", rule.Device, metric, ErrMetricMissing)
	}

	matched, err := Compare(value, op, rule.Value)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", rule.Device, err)
	}

	if !matched {
		return Result{}, nil
	}

	return Result{
		Matched: true,
		Label:   Label(rule.Device, device),
	}, nil
}

// ProcessRules evaluates the rules whose phase is listed (all rules when no
// phase is given) and returns the labels of the matching devices in rule order.
func (e *Evaluator) ProcessRules(tests []domain.TestRule, phases ...domain.Phase) []string {
	var labels []string

	for _, rule := range tests {
		if len(phases) > 0 && !slices.Contains(phases, rule.Phase) {
			continue
		}

		result, err := e.Evaluate(rule)
		if err != nil {
			if e.onError != nil {
				e.onError(rule, err)
			}

			continue
		}

		if result.Matched {
			labels = append(labels, result.Label)
		}
	}

	return labels
}

// TestsRules evaluates every rule and decides whether the zone is triggered:
// at least threshold matches when threshold is positive, any match otherwise.
func (e *Evaluator) TestsRules(tests []domain.TestRule, threshold int) (bool, []string) {
	labels := e.ProcessRules(tests)

	if threshold > 0 {
		return len(labels) >= threshold, labels
	}

	return len(labels) > 0, labels
}

// Label returns the device title, suffixed with its location in parentheses.
func Label(ref string, device Device) string {
	title := device.Title()
	if title == "" {
		title = ref
	}

	if location := device.Location(); location != "" {
		return title + " (" + location + ")"
	}

	return title
}

// metricFor picks the metric and operator a rule is evaluated with.
func metricFor(rule domain.TestRule) (string, domain.Operator, error) {
	switch rule.Kind {
	case domain.KindBinary:
		if rule.Operator == "" {
			return MetricLevel, domain.OpEqual, nil
		}

		return MetricLevel, rule.Operator, nil
	case domain.KindMultilevel:
		return MetricLevel, rule.Operator, nil
	case domain.KindRemote:
		value := toText(rule.Value)

		switch {
		case slices.Contains(remoteLevelValues, value):
			return MetricLevel, domain.OpEqual, nil
		case slices.Contains(remoteChangeValues, value):
			return MetricChange, domain.OpEqual, nil
		default:
			return "", "", fmt.Errorf("%s: %q: %w", rule.Device, value, ErrUnknownRemoteValue)
		}
	default:
		return "", "", fmt.Errorf("%s: %q: %w", rule.Device, rule.Kind, ErrUnknownKind)
	}
}
