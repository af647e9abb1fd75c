package metrics

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/events"
	"github.com/oshokin/security-zone/internal/rules"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	hall := &domain.Settings{ID: "hall"}

	m.Publish(hall, &domain.Snapshot{State: domain.StateDelayAlarm})
	require.InDelta(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues("hall", "delayAlarm")), 0)
	require.InDelta(t, 0.0, testutil.ToFloat64(m.state.WithLabelValues("hall", "on")), 0)

	m.Publish(hall, &domain.Snapshot{State: domain.StateAlarm})
	require.InDelta(t, 0.0, testutil.ToFloat64(m.state.WithLabelValues("hall", "delayAlarm")), 0)
	require.InDelta(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues("hall", "alarm")), 0)

	m.Transition("hall", domain.StateOn, domain.StateAlarm)
	m.Transition("hall", domain.StateTimeout, domain.StateAlarm)
	require.InDelta(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("hall", "alarm")), 0)

	m.Handle(context.Background(), events.Event{ZoneID: "hall", Type: events.TypeAlarm})
	require.InDelta(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("hall", "alarm")), 0)

	m.RuleError("hall", fmt.Errorf("door: %w", rules.ErrDeviceNotFound))
	m.RuleError("hall", fmt.Errorf("door: %w", rules.ErrUnknownOperator))
	require.InDelta(t, 1.0, testutil.ToFloat64(m.ruleErrors.WithLabelValues("hall", "device_not_found")), 0)
	require.InDelta(t, 1.0, testutil.ToFloat64(m.ruleErrors.WithLabelValues("hall", "unknown_operator")), 0)

	m.Vetoed("hall")
	require.InDelta(t, 1.0, testutil.ToFloat64(m.vetoes.WithLabelValues("hall")), 0)

	m.UpdateRequested("door")
	require.InDelta(t, 1.0, testutil.ToFloat64(m.updateRequest.WithLabelValues("door")), 0)

	require.Equal(t, len(domain.States), testutil.CollectAndCount(m.state))
}
