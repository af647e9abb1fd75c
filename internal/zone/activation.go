package zone

import (
	"slices"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/events"
	"github.com/oshokin/security-zone/internal/logger"
)

// activationCheck asks the devices of the given phases to refresh and
// schedules a warning check. A new check merges its phases into the pending
// one and restarts the delay.
func (z *Zone) activationCheck(phases ...domain.Phase) {
	requested := false

	for _, test := range z.settings.Tests {
		if !slices.Contains(phases, test.Phase) {
			continue
		}

		z.deps.Registry.RequestUpdate(test.Device)
		requested = true
	}

	if !requested {
		return
	}

	for _, phase := range phases {
		if !slices.Contains(z.warningPhases, phase) {
			z.warningPhases = append(z.warningPhases, phase)
		}
	}

	z.schedule(timerWarning, ActivationWarningDelay, z.warn)
}

// warn reports sensors of the pending phases that match their rules.
// Arming is never refused.
func (z *Zone) warn() {
	phases := z.warningPhases
	z.warningPhases = nil

	if z.state == domain.StateOff {
		return
	}

	labels := z.evaluator.ProcessRules(z.settings.Tests, phases...)
	if len(labels) == 0 {
		return
	}

	logger.WarnKV(z.ctx, "Zone armed with active sensors", "devices", labels)

	message := z.emit(events.TypeWarning, labels)
	z.deps.Notifier.Notify(z.ctx, events.Notification{
		Severity: events.SeverityWarning,
		ZoneID:   z.settings.ID,
		Message:  message,
	})
}
