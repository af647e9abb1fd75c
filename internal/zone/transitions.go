package zone

import (
	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/events"
	"github.com/oshokin/security-zone/internal/logger"
)

// dispatch applies one command to the state machine. viaTimer is set when
// the command comes from one of the zone timers; some transitions are only
// allowed that way. Unlisted state and command pairs are ignored.
func (z *Zone) dispatch(cmd domain.Command, viaTimer bool) {
	if cmd == domain.CommandDisarm {
		z.disarm()
		return
	}

	switch z.state {
	case domain.StateOff:
		if cmd == domain.CommandArm {
			z.arm()
		}
	case domain.StateDelayActivate:
		if cmd == domain.CommandArm && viaTimer {
			z.activate()
		}
	case domain.StateOn:
		if cmd == domain.CommandAlarm {
			z.raise()
		}
	case domain.StateDelayAlarm:
		switch {
		case cmd == domain.CommandAlarm && viaTimer:
			z.raise()
		case cmd == domain.CommandStop && z.settings.Cancelable:
			z.cancelTimer(timerDelayAlarm)
			z.finish(events.TypeDelayCancel)
		}
	case domain.StateAlarm:
		if cmd == domain.CommandStop {
			z.stopAlarm()
		}
	case domain.StateTimeout:
		switch {
		case cmd == domain.CommandStop && viaTimer:
			z.finish(events.TypeStop)
		case cmd == domain.CommandAlarm:
			z.cancelTimer(timerTimeout)
			z.transition(domain.StateAlarm)
		}
	}
}

// arm leaves off, either through the activation delay or straight to on.
func (z *Zone) arm() {
	z.resume = domain.StateOn

	if z.settings.DelayActivateSeconds > 0 {
		z.activationCheck(domain.PhaseImmediate)
		z.transition(domain.StateDelayActivate)
		z.startDelayActivate()

		return
	}

	z.activationCheck(domain.PhaseImmediate, domain.PhaseDelayed)
	z.transition(domain.StateOn)
}

// activate completes the activation delay.
func (z *Zone) activate() {
	z.cancelTimer(timerDelayActivate)
	z.activationCheck(domain.PhaseDelayed)
	z.transition(domain.StateOn)
}

// raise handles a trigger in on, or the expiry of the alarm delay.
func (z *Zone) raise() {
	if z.settings.SingleZonePerCategory && z.deps.Coordinator.Suppressed(z) {
		logger.InfoKV(z.ctx, "Alarm suppressed by a sibling zone", "state", z.state, "category", z.settings.Category)
		z.deps.Recorder.Vetoed(z.settings.ID)

		if z.state == domain.StateOn {
			z.triggered = nil
		}

		return
	}

	if z.state == domain.StateOn && z.settings.DelayAlarmSeconds > 0 {
		z.resume = z.state
		z.transition(domain.StateDelayAlarm)
		z.emit(events.TypeDelayAlarm, z.triggered)
		z.startDelayAlarm()

		return
	}

	z.alarm()
}

// alarm enters the alarm state and announces it.
func (z *Zone) alarm() {
	immediate := z.state == domain.StateOn
	if immediate {
		z.resume = z.state
	}

	z.cancelTimer(timerDelayAlarm)
	z.transition(domain.StateAlarm)

	message := z.emit(events.TypeAlarm, z.triggered)
	z.deps.Notifier.Notify(z.ctx, events.Notification{
		Severity: events.SeverityAlarm,
		ZoneID:   z.settings.ID,
		Message:  message,
	})

	if !immediate {
		return
	}

	// An immediate alarm may come from a short pulse; make sure the zone
	// leaves alarm once the trigger is gone.
	if triggered, _ := z.evaluator.TestsRules(z.settings.Tests, z.settings.TestThreshold); !triggered {
		z.schedule(timerRecheck, RecheckDelay, func() {
			if z.state == domain.StateAlarm {
				z.CheckAlarm()
			}
		})
	}
}

// stopAlarm ends the trigger, going through timeout when one is configured.
func (z *Zone) stopAlarm() {
	z.cancelTimer(timerRecheck)

	if z.settings.TimeoutSeconds <= 0 {
		z.finish(events.TypeStop)
		return
	}

	z.transition(domain.StateTimeout)
	z.schedule(timerTimeout, z.settings.Timeout(), func() {
		z.handle(domain.CommandStop, true)
	})
}

// finish ends an alarm sequence: the resume state is restored, the event is
// emitted and the trigger is cleared.
func (z *Zone) finish(event events.Type) {
	z.cancelTimer(timerDelayAlarm)
	z.cancelTimer(timerTimeout)
	z.cancelTimer(timerRecheck)

	z.transition(z.resume)
	z.emit(event, z.triggered)
	z.triggered = nil
}

// disarm returns the zone to off from any state.
func (z *Zone) disarm() {
	previous := z.state

	z.cancelAll()
	z.warningPhases = nil
	z.transition(domain.StateOff)

	switch previous {
	case domain.StateDelayAlarm:
		z.emit(events.TypeDelayCancel, z.triggered)
	case domain.StateAlarm, domain.StateTimeout:
		z.emit(events.TypeStop, z.triggered)
	case domain.StateOff, domain.StateDelayActivate, domain.StateOn:
	}

	z.triggered = nil
}

// transition changes the state and drops deadlines that no longer apply.
func (z *Zone) transition(to domain.State) {
	from := z.state
	z.state = to

	if to != domain.StateDelayActivate {
		z.delayActivateAt = nil
	}

	if to != domain.StateDelayAlarm {
		z.delayAlarmAt = nil
	}

	if from == to {
		return
	}

	z.deps.Recorder.Transition(z.settings.ID, from, to)
	logger.InfoKV(z.ctx, "Zone state changed", "from", from, "to", to)
}

// emit renders the event message, sends the event and returns the message.
func (z *Zone) emit(t events.Type, devices []string) string {
	message := z.deps.Messages.Render(t, &MessageData{
		Category: z.settings.SecurityType(),
		Title:    z.settings.Title,
		State:    z.state,
		Devices:  joinLabels(devices),
		Delay:    z.settings.DelayAlarmSeconds,
	})

	z.deps.Emitter.Emit(z.ctx, events.New(t, &z.settings, z.state, devices, message, z.deps.Clock()))

	return message
}
