package zone

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/events"
)

// TestNew_Validation verifies settings and required dependencies are checked.
func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), domain.Settings{ID: "z", Category: "unknown"}, Deps{
		Registry:  newRegistry(),
		Scheduler: newScheduler(),
	})
	require.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = New(context.Background(), domain.Settings{ID: "z", Category: domain.CategorySmoke}, Deps{
		Scheduler: newScheduler(),
	})
	require.ErrorIs(t, err, errRegistryRequired)

	_, err = New(context.Background(), domain.Settings{ID: "z", Category: domain.CategorySmoke}, Deps{
		Registry: newRegistry(),
	})
	require.ErrorIs(t, err, errSchedulerRequired)
}

// TestZone_ArmWithoutDelay verifies arming goes straight to on.
func TestZone_ArmWithoutDelay(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{}, nil)
	require.Equal(t, domain.StateOff, h.zone.State())
	require.Equal(t, domain.LevelOff, h.rec.last().Level)

	h.zone.Arm()

	require.Equal(t, domain.StateOn, h.zone.State())
	require.Equal(t, domain.LevelOn, h.rec.last().Level)
	require.Equal(t, "on", h.rec.last().Icon)
	require.Empty(t, h.rec.events)
}

// TestZone_ArmWithDelay verifies the activation delay and its deadline.
func TestZone_ArmWithDelay(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{DelayActivateSeconds: 10}, nil)
	start := h.scheduler.now

	h.zone.Arm()

	snapshot := h.rec.last()
	require.Equal(t, domain.StateDelayActivate, snapshot.State)
	require.Equal(t, domain.LevelOn, snapshot.Level)
	require.NotNil(t, snapshot.DelayActivate)
	require.Equal(t, start.Add(10*time.Second), *snapshot.DelayActivate)

	// Triggers are ignored while the zone is activating.
	h.registry.set("door", "on")
	require.Equal(t, domain.StateDelayActivate, h.zone.State())

	h.scheduler.advance(9 * time.Second)
	require.Equal(t, domain.StateDelayActivate, h.zone.State())

	h.scheduler.advance(time.Second)
	require.Equal(t, domain.StateOn, h.zone.State())
	require.Nil(t, h.rec.last().DelayActivate)
}

// TestZone_ArmIgnoredWhileActivating verifies a second arm does not skip the delay.
func TestZone_ArmIgnoredWhileActivating(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{DelayActivateSeconds: 10}, nil)

	h.zone.Arm()
	h.zone.Arm()

	require.Equal(t, domain.StateDelayActivate, h.zone.State())
}

// TestZone_DelayedAlarm follows a binary sensor through a 5 second alarm delay.
func TestZone_DelayedAlarm(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{DelayAlarmSeconds: 5}, nil)
	h.zone.Arm()

	h.registry.set("door", "on")

	snapshot := h.rec.last()
	require.Equal(t, domain.StateDelayAlarm, snapshot.State)
	require.Equal(t, "alarm", snapshot.Icon)
	require.Equal(t, []string{"Front door (Hall)"}, snapshot.TriggeredDevices)
	require.NotNil(t, snapshot.DelayAlarm)
	require.Equal(t, []events.Type{events.TypeDelayAlarm}, h.rec.eventTypes())

	delayEvent := h.rec.events[0]
	require.Equal(t, "security.intrusion.delayAlarm", delayEvent.Topic)
	require.Equal(t, "zone1", delayEvent.ZoneID)
	require.Equal(t, 5, delayEvent.DelayAlarm)
	require.Equal(t, []string{"Front door (Hall)"}, delayEvent.TriggeredDevices)
	require.NotEmpty(t, delayEvent.ID)

	// A repeated trigger does not shorten the delay.
	h.registry.set("door", "on")
	require.Equal(t, domain.StateDelayAlarm, h.zone.State())

	h.scheduler.advance(4 * time.Second)
	require.Equal(t, domain.StateDelayAlarm, h.zone.State())

	h.scheduler.advance(time.Second)
	require.Equal(t, domain.StateAlarm, h.zone.State())
	require.Nil(t, h.rec.last().DelayAlarm)
	require.Equal(t, []events.Type{events.TypeDelayAlarm, events.TypeAlarm}, h.rec.eventTypes())
	require.Len(t, h.rec.notifications, 1)
	require.Equal(t, events.SeverityAlarm, h.rec.notifications[0].Severity)
	require.Contains(t, h.rec.notifications[0].Message, "Front door (Hall)")
}

// TestZone_CancelableDelay verifies stop aborts the alarm delay only when cancelable.
func TestZone_CancelableDelay(t *testing.T) {
	t.Parallel()

	t.Run("cancelable", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, domain.Settings{DelayAlarmSeconds: 5, Cancelable: true}, nil)
		h.zone.Arm()
		h.registry.set("door", "on")
		h.registry.set("door", "off")

		require.Equal(t, domain.StateOn, h.zone.State())
		require.Empty(t, h.rec.last().TriggeredDevices)
		require.Equal(t, []events.Type{events.TypeDelayAlarm, events.TypeDelayCancel}, h.rec.eventTypes())

		h.scheduler.advance(time.Minute)
		require.Equal(t, domain.StateOn, h.zone.State())
	})

	t.Run("not cancelable", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, domain.Settings{DelayAlarmSeconds: 5}, nil)
		h.zone.Arm()
		h.registry.set("door", "on")
		h.registry.set("door", "off")

		require.Equal(t, domain.StateDelayAlarm, h.zone.State())
		require.Equal(t, []string{"Front door (Hall)"}, h.rec.last().TriggeredDevices)

		h.scheduler.advance(5 * time.Second)
		require.Equal(t, domain.StateAlarm, h.zone.State())

		// The alarm still names the sensor that started the delay.
		alarmEvent := h.rec.events[len(h.rec.events)-1]
		require.Equal(t, events.TypeAlarm, alarmEvent.Type)
		require.Equal(t, []string{"Front door (Hall)"}, alarmEvent.TriggeredDevices)
		require.Len(t, h.rec.notifications, 1)
		require.Contains(t, h.rec.notifications[0].Message, "Front door (Hall)")
	})
}

// TestZone_Timeout verifies the post-alarm timeout and its return to on.
func TestZone_Timeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{TimeoutSeconds: 10}, nil)
	h.zone.Arm()

	h.registry.set("door", "on")
	require.Equal(t, domain.StateAlarm, h.zone.State())

	h.registry.set("door", "off")
	require.Equal(t, domain.StateTimeout, h.zone.State())
	require.Equal(t, "alarm", h.rec.last().Icon)

	h.scheduler.advance(10 * time.Second)
	require.Equal(t, domain.StateOn, h.zone.State())
	require.Empty(t, h.rec.last().TriggeredDevices)
	require.Equal(t, []events.Type{events.TypeAlarm, events.TypeStop}, h.rec.eventTypes())
}

// TestZone_TimeoutRealarm verifies a new trigger during timeout returns to alarm silently.
func TestZone_TimeoutRealarm(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{TimeoutSeconds: 10}, nil)
	h.zone.Arm()
	h.registry.set("door", "on")
	h.registry.set("door", "off")
	h.registry.set("door", "on")

	require.Equal(t, domain.StateAlarm, h.zone.State())
	require.Equal(t, []events.Type{events.TypeAlarm}, h.rec.eventTypes())

	h.scheduler.advance(20 * time.Second)
	require.Equal(t, domain.StateAlarm, h.zone.State())
	require.Len(t, h.rec.events, 1)
}

// TestZone_StopWithoutTimeout verifies an alarm ends straight back in on.
func TestZone_StopWithoutTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{}, nil)
	h.zone.Arm()
	h.registry.set("door", "on")
	h.registry.set("door", "off")

	require.Equal(t, domain.StateOn, h.zone.State())
	require.Equal(t, []events.Type{events.TypeAlarm, events.TypeStop}, h.rec.eventTypes())
}

// TestZone_DisarmFromAnyState verifies disarm always lands in off with no timers left.
func TestZone_DisarmFromAnyState(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		settings domain.Settings
		drive    func(h *harness)
		want     domain.State
		event    events.Type
	}{
		{
			name:  "off",
			drive: func(*harness) {},
			want:  domain.StateOff,
		},
		{
			name:     "delayActivate",
			settings: domain.Settings{DelayActivateSeconds: 10},
			drive:    func(h *harness) { h.zone.Arm() },
			want:     domain.StateDelayActivate,
		},
		{
			name:  "on",
			drive: func(h *harness) { h.zone.Arm() },
			want:  domain.StateOn,
		},
		{
			name:     "delayAlarm",
			settings: domain.Settings{DelayAlarmSeconds: 5},
			drive: func(h *harness) {
				h.zone.Arm()
				h.registry.set("door", "on")
			},
			want:  domain.StateDelayAlarm,
			event: events.TypeDelayCancel,
		},
		{
			name: "alarm",
			drive: func(h *harness) {
				h.zone.Arm()
				h.registry.set("door", "on")
			},
			want:  domain.StateAlarm,
			event: events.TypeStop,
		},
		{
			name:     "timeout",
			settings: domain.Settings{TimeoutSeconds: 10},
			drive: func(h *harness) {
				h.zone.Arm()
				h.registry.set("door", "on")
				h.registry.set("door", "off")
			},
			want:  domain.StateTimeout,
			event: events.TypeStop,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, tc.settings, nil)
			tc.drive(h)
			require.Equal(t, tc.want, h.zone.State())

			before := len(h.rec.events)
			h.zone.Disarm()

			snapshot := h.rec.last()
			require.Equal(t, domain.StateOff, snapshot.State)
			require.Equal(t, domain.LevelOff, snapshot.Level)
			require.Empty(t, snapshot.TriggeredDevices)
			require.Nil(t, snapshot.DelayActivate)
			require.Nil(t, snapshot.DelayAlarm)
			require.Zero(t, h.scheduler.pending())

			if tc.event != "" {
				require.Equal(t, tc.event, h.rec.events[len(h.rec.events)-1].Type)
			} else {
				require.Len(t, h.rec.events, before)
			}

			after := len(h.rec.events)
			h.scheduler.advance(time.Hour)
			require.Equal(t, domain.StateOff, h.zone.State())
			require.Len(t, h.rec.events, after)
		})
	}
}

// TestZone_ImmediateAlarmRecheck verifies a short trigger pulse does not leave the zone in alarm.
func TestZone_ImmediateAlarmRecheck(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{}, nil)
	h.zone.Arm()

	h.registry.devices["door"].pulse = true
	h.registry.set("door", "on")
	require.Equal(t, domain.StateAlarm, h.zone.State())

	h.scheduler.advance(RecheckDelay)
	require.Equal(t, domain.StateOn, h.zone.State())
	require.Equal(t, []events.Type{events.TypeAlarm, events.TypeStop}, h.rec.eventTypes())
}

// TestZone_Veto verifies a sibling in alarm suppresses the trigger.
func TestZone_Veto(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{SingleZonePerCategory: true}, nil)
	h.zone.deps.Coordinator = fixedCoordinator(true)
	h.zone.Arm()

	h.registry.set("door", "on")

	require.Equal(t, domain.StateOn, h.zone.State())
	require.Empty(t, h.rec.events)
	require.Equal(t, 1, h.rec.vetoes)
}

// TestZone_VetoIgnoredWithoutFlag verifies siblings matter only when the flag is set.
func TestZone_VetoIgnoredWithoutFlag(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{}, nil)
	h.zone.deps.Coordinator = fixedCoordinator(true)
	h.zone.Arm()

	h.registry.set("door", "on")

	require.Equal(t, domain.StateAlarm, h.zone.State())
	require.Zero(t, h.rec.vetoes)
}

// TestZone_Threshold verifies the zone triggers only with enough matching rules.
func TestZone_Threshold(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{
		TestThreshold: 2,
		Tests:         []domain.TestRule{binaryRule("door"), binaryRule("window"), binaryRule("motion")},
	}, nil)
	h.zone.Arm()

	h.registry.set("door", "on")
	require.Equal(t, domain.StateOn, h.zone.State())
	require.Empty(t, h.rec.last().TriggeredDevices)

	h.registry.set("motion", "on")
	require.Equal(t, domain.StateAlarm, h.zone.State())
	require.Equal(t, []string{"Front door (Hall)", "Motion"}, h.rec.last().TriggeredDevices)
}

// TestZone_RuleErrorsAreSkipped verifies a broken rule neither triggers nor blocks others.
func TestZone_RuleErrorsAreSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{
		Tests: []domain.TestRule{
			{Kind: domain.KindMultilevel, Device: "door", Operator: "~", Value: 1},
			binaryRule("window"),
		},
	}, nil)
	h.zone.Arm()

	h.registry.set("door", "on")
	require.Equal(t, domain.StateOn, h.zone.State())
	require.Positive(t, h.rec.ruleErrors)

	h.registry.set("window", "on")
	require.Equal(t, domain.StateAlarm, h.zone.State())
}

// TestZone_Restore verifies restart behavior for each persisted state.
func TestZone_Restore(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	past := base.Add(-time.Second)
	future := base.Add(3 * time.Second)

	t.Run("delayAlarm deadline passed", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, domain.Settings{DelayAlarmSeconds: 10}, &domain.Snapshot{
			State:      domain.StateDelayAlarm,
			Level:      domain.LevelOn,
			DelayAlarm: &past,
		})

		require.Equal(t, domain.StateAlarm, h.zone.State())
		require.Nil(t, h.rec.last().DelayAlarm)
		require.Equal(t, []events.Type{events.TypeAlarm}, h.rec.eventTypes())
	})

	t.Run("delayAlarm deadline pending", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, domain.Settings{DelayAlarmSeconds: 10}, &domain.Snapshot{
			State:      domain.StateDelayAlarm,
			Level:      domain.LevelOn,
			DelayAlarm: &future,
		})

		require.Equal(t, domain.StateDelayAlarm, h.zone.State())
		require.Equal(t, future, *h.rec.last().DelayAlarm)

		h.scheduler.advance(2 * time.Second)
		require.Equal(t, domain.StateDelayAlarm, h.zone.State())

		h.scheduler.advance(time.Second)
		require.Equal(t, domain.StateAlarm, h.zone.State())
	})

	t.Run("delayAlarm without deadline", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, domain.Settings{DelayAlarmSeconds: 10}, &domain.Snapshot{
			State: domain.StateDelayAlarm,
			Level: domain.LevelOn,
		})

		require.Equal(t, base.Add(10*time.Second), *h.rec.last().DelayAlarm)
	})

	t.Run("delayActivate deadline passed", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, domain.Settings{DelayActivateSeconds: 10}, &domain.Snapshot{
			State:         domain.StateDelayActivate,
			Level:         domain.LevelOn,
			DelayActivate: &past,
		})

		require.Equal(t, domain.StateOn, h.zone.State())
		require.Nil(t, h.rec.last().DelayActivate)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, domain.Settings{TimeoutSeconds: 10}, &domain.Snapshot{
			State:            domain.StateTimeout,
			Level:            domain.LevelOn,
			TriggeredDevices: []string{"Front door (Hall)"},
		})

		require.Equal(t, domain.StateAlarm, h.zone.State())
		require.Empty(t, h.rec.events)

		h.registry.set("door", "off")
		require.Equal(t, domain.StateTimeout, h.zone.State())
	})

	t.Run("on", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, domain.Settings{}, &domain.Snapshot{State: domain.StateOn, Level: domain.LevelOn})
		require.Equal(t, domain.StateOn, h.zone.State())
	})
}

// TestZone_ActivationWarning verifies arming with an active sensor warns but succeeds.
func TestZone_ActivationWarning(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{
		Tests: []domain.TestRule{
			binaryRule("door"),
			{Kind: domain.KindBinary, Device: "window", Value: "on", Phase: domain.PhaseNever},
		},
	}, nil)
	h.registry.devices["door"].metrics["level"] = "on"
	h.registry.devices["window"].metrics["level"] = "on"

	h.zone.Arm()
	require.Equal(t, domain.StateOn, h.zone.State())
	require.Equal(t, []string{"door"}, h.registry.updates)

	h.scheduler.advance(ActivationWarningDelay - time.Second)
	require.Empty(t, h.rec.events)

	h.scheduler.advance(time.Second)
	require.Equal(t, []events.Type{events.TypeWarning}, h.rec.eventTypes())
	require.Equal(t, []string{"Front door (Hall)"}, h.rec.events[0].TriggeredDevices)
	require.Len(t, h.rec.notifications, 1)
	require.Equal(t, events.SeverityWarning, h.rec.notifications[0].Severity)
	require.Equal(t, domain.StateOn, h.zone.State())
}

// TestZone_ActivationWarningPhases verifies delayed rules are checked after activation.
func TestZone_ActivationWarningPhases(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{
		DelayActivateSeconds: 10,
		Tests: []domain.TestRule{
			binaryRule("door"),
			{Kind: domain.KindBinary, Device: "window", Value: "on", Phase: domain.PhaseDelayed},
		},
	}, nil)
	h.registry.devices["window"].metrics["level"] = "on"

	h.zone.Arm()
	require.Equal(t, []string{"door"}, h.registry.updates)

	h.scheduler.advance(10 * time.Second)
	require.Equal(t, domain.StateOn, h.zone.State())
	require.Equal(t, []string{"door", "window"}, h.registry.updates)

	h.scheduler.advance(ActivationWarningDelay)
	require.Equal(t, []events.Type{events.TypeWarning}, h.rec.eventTypes())
	require.Equal(t, []string{"Window (Bedroom)"}, h.rec.events[0].TriggeredDevices)
}

// TestZone_ActivationWarningCancelledByDisarm verifies no warning follows a disarm.
func TestZone_ActivationWarningCancelledByDisarm(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{}, nil)
	h.registry.devices["door"].metrics["level"] = "on"

	h.zone.Arm()
	h.zone.Disarm()
	h.scheduler.advance(time.Minute)

	require.Empty(t, h.rec.events)
}

// TestZone_SetLevel verifies the zone device level write interface.
func TestZone_SetLevel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{}, nil)

	require.True(t, h.zone.SetLevel("on"))
	require.Equal(t, domain.StateOn, h.zone.State())

	require.False(t, h.zone.SetLevel("alarm"))
	require.Equal(t, domain.StateOn, h.zone.State())

	require.True(t, h.zone.SetLevel("off"))
	require.Equal(t, domain.StateOff, h.zone.State())
}

// TestZone_Stop verifies a stopped zone ignores timers and devices.
func TestZone_Stop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{DelayAlarmSeconds: 5}, nil)
	h.zone.Arm()
	h.registry.set("door", "on")
	require.Equal(t, domain.StateDelayAlarm, h.zone.State())

	h.zone.Stop()
	h.scheduler.advance(time.Minute)
	h.registry.set("door", "off")
	h.zone.Disarm()

	require.Equal(t, domain.StateDelayAlarm, h.zone.State())
	require.Empty(t, h.registry.subs["door"])
}

// TestZone_LevelInvariant drives a mixed sequence and relies on the recorder
// asserting every published snapshot is consistent.
func TestZone_LevelInvariant(t *testing.T) {
	t.Parallel()

	h := newHarness(t, domain.Settings{
		DelayActivateSeconds: 3,
		DelayAlarmSeconds:    2,
		TimeoutSeconds:       4,
		Cancelable:           true,
	}, nil)

	h.zone.Arm()
	h.scheduler.advance(3 * time.Second)
	h.registry.set("door", "on")
	h.registry.set("door", "off")
	h.registry.set("door", "on")
	h.scheduler.advance(2 * time.Second)
	h.registry.set("door", "off")
	h.scheduler.advance(4 * time.Second)
	h.zone.Disarm()
	h.zone.Arm()

	require.Equal(t, []domain.State{
		domain.StateDelayActivate,
		domain.StateOn,
		domain.StateDelayAlarm,
		domain.StateOn,
		domain.StateDelayAlarm,
		domain.StateAlarm,
		domain.StateTimeout,
		domain.StateOn,
		domain.StateOff,
		domain.StateDelayActivate,
	}, h.rec.transitions)
}
