// Package metrics exposes zone activity as Prometheus collectors.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/events"
	"github.com/oshokin/security-zone/internal/rules"
)

const (
	namespace = "security_zone"
	subsystem = "zone"
)

// Metrics holds the collectors of the supervisor.
type Metrics struct {
	state         *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	events        *prometheus.CounterVec
	ruleErrors    *prometheus.CounterVec
	vetoes        *prometheus.CounterVec
	updateRequest *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state",
			Help:      "1 for the current state of each zone, 0 for the others.",
		}, []string{"zone", "state"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transitions_total",
			Help:      "State transitions per zone and target state.",
		}, []string{"zone", "to"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_total",
			Help:      "Emitted lifecycle events.",
		}, []string{"zone", "type"}),
		ruleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rule_errors_total",
			Help:      "Test rules skipped because of configuration or lookup errors.",
		}, []string{"zone", "reason"}),
		vetoes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "vetoes_total",
			Help:      "Alarms suppressed by a sibling zone of the same category.",
		}, []string{"zone"}),
		updateRequest: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "update_requests_total",
			Help:      "Update requests issued to devices by activation checks.",
		}, []string{"device"}),
	}
}

// Publish sets the state gauge of a zone.
func (m *Metrics) Publish(settings *domain.Settings, snapshot *domain.Snapshot) {
	for _, state := range domain.States {
		value := 0.0
		if state == snapshot.State {
			value = 1
		}

		m.state.WithLabelValues(settings.ID, string(state)).Set(value)
	}
}

// Transition counts a state change.
func (m *Metrics) Transition(zoneID string, _, to domain.State) {
	m.transitions.WithLabelValues(zoneID, string(to)).Inc()
}

// RuleError counts a skipped rule.
func (m *Metrics) RuleError(zoneID string, err error) {
	m.ruleErrors.WithLabelValues(zoneID, reason(err)).Inc()
}

// Vetoed counts a suppressed alarm.
func (m *Metrics) Vetoed(zoneID string) {
	m.vetoes.WithLabelValues(zoneID).Inc()
}

// Handle implements events.Sink.
func (m *Metrics) Handle(_ context.Context, event events.Event) {
	m.events.WithLabelValues(event.ZoneID, string(event.Type)).Inc()
}

// UpdateRequested counts a device update request.
func (m *Metrics) UpdateRequested(ref string) {
	m.updateRequest.WithLabelValues(ref).Inc()
}

func reason(err error) string {
	switch {
	case errors.Is(err, rules.ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, rules.ErrMetricMissing):
		return "metric_missing"
	case errors.Is(err, rules.ErrUnknownOperator):
		return "unknown_operator"
	case errors.Is(err, rules.ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, rules.ErrUnknownRemoteValue):
		return "unknown_remote_value"
	case errors.Is(err, rules.ErrIncomparable):
		return "incomparable"
	default:
		return "other"
	}
}
