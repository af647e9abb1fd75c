package zone

import (
	"strings"
	"time"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/loop"
)

// schedule replaces the timer of the given kind. The callback is dropped if
// the timer was replaced or cancelled meanwhile, or the zone was stopped.
func (z *Zone) schedule(kind timerKind, d time.Duration, fn func()) {
	z.cancelTimer(kind)

	var timer loop.Timer

	timer = z.deps.Scheduler.AfterFunc(d, func() {
		if z.stopped || z.timers[kind] != timer {
			return
		}

		z.timers[kind] = nil
		fn()
	})

	z.timers[kind] = timer
}

func (z *Zone) cancelTimer(kind timerKind) {
	if timer := z.timers[kind]; timer != nil {
		timer.Stop()
		z.timers[kind] = nil
	}
}

func (z *Zone) cancelAll() {
	for kind := range timerCount {
		z.cancelTimer(kind)
	}
}

// startDelayActivate runs the activation delay until its deadline, setting
// a fresh deadline when none is pending. A deadline already in the past
// completes the activation at once.
func (z *Zone) startDelayActivate() {
	remaining, ok := z.remaining(&z.delayActivateAt, z.settings.DelayActivate())
	if !ok {
		z.dispatch(domain.CommandArm, true)
		return
	}

	z.schedule(timerDelayActivate, remaining, func() {
		z.handle(domain.CommandArm, true)
	})
}

// startDelayAlarm runs the alarm delay the same way.
func (z *Zone) startDelayAlarm() {
	remaining, ok := z.remaining(&z.delayAlarmAt, z.settings.DelayAlarm())
	if !ok {
		z.dispatch(domain.CommandAlarm, true)
		return
	}

	z.schedule(timerDelayAlarm, remaining, func() {
		z.handle(domain.CommandAlarm, true)
	})
}

// remaining returns the time left until *deadline, initializing it to now+d
// when unset. ok is false when the deadline has already passed.
func (z *Zone) remaining(deadline **time.Time, d time.Duration) (time.Duration, bool) {
	now := z.deps.Clock()

	if *deadline == nil {
		at := now.Add(d)
		*deadline = &at
	}

	left := (*deadline).Sub(now)
	if left <= 0 {
		return 0, false
	}

	return left, true
}

func joinLabels(labels []string) string {
	return strings.Join(labels, ", ")
}
