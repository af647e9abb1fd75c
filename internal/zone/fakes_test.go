package zone

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/events"
	"github.com/oshokin/security-zone/internal/loop"
	"github.com/oshokin/security-zone/internal/rules"
)

// fakeTimer is a manually fired timer.
type fakeTimer struct {
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}

	t.stopped = true

	return true
}

// fakeScheduler runs posted work inline and fires timers on advance.
type fakeScheduler struct {
	now    time.Time
	seq    int
	timers []*fakeTimer
}

func newScheduler() *fakeScheduler {
	return &fakeScheduler{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *fakeScheduler) Post(fn func()) bool {
	fn()
	return true
}

//nolint:ireturn // Implements Scheduler.
func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) loop.Timer {
	t := &fakeTimer{at: s.now.Add(d), seq: s.seq, fn: fn}
	s.seq++
	s.timers = append(s.timers, t)

	return t
}

func (s *fakeScheduler) Clock() time.Time {
	return s.now
}

// advance moves the clock forward, firing due timers in deadline order.
func (s *fakeScheduler) advance(d time.Duration) {
	end := s.now.Add(d)

	for {
		var next *fakeTimer

		for _, t := range s.timers {
			if t.stopped || t.fired || t.at.After(end) {
				continue
			}

			if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
				next = t
			}
		}

		if next == nil {
			break
		}

		if next.at.After(s.now) {
			s.now = next.at
		}

		next.fired = true
		next.fn()
	}

	s.now = end
}

// pending counts timers that have neither fired nor been stopped.
func (s *fakeScheduler) pending() int {
	n := 0

	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}

	return n
}

// fakeDevice is a mutable registry device. A pulse device reports its level
// once and then falls back to off.
type fakeDevice struct {
	title   string
	room    string
	metrics map[string]any
	pulse   bool
}

func (d *fakeDevice) Metric(name string) (any, bool) {
	v, ok := d.metrics[name]
	if ok && d.pulse && name == rules.MetricLevel {
		d.metrics[name] = "off"
	}

	return v, ok
}

func (d *fakeDevice) Title() string    { return d.title }
func (d *fakeDevice) Location() string { return d.room }

// fakeRegistry holds devices and their subscribers.
type fakeRegistry struct {
	devices map[string]*fakeDevice
	subs    map[string]map[int]func()
	nextSub int
	updates []string
}

func newRegistry() *fakeRegistry {
	return &fakeRegistry{
		devices: map[string]*fakeDevice{
			"door":   {title: "Front door", room: "Hall", metrics: map[string]any{"level": "off"}},
			"window": {title: "Window", room: "Bedroom", metrics: map[string]any{"level": "off"}},
			"motion": {title: "Motion", metrics: map[string]any{"level": "off"}},
		},
		subs: make(map[string]map[int]func()),
	}
}

//nolint:ireturn // Implements rules.Registry.
func (r *fakeRegistry) Lookup(ref string) (rules.Device, bool) {
	d, ok := r.devices[ref]
	if !ok {
		return nil, false
	}

	return d, true
}

func (r *fakeRegistry) Subscribe(ref string, fn func()) func() {
	if r.subs[ref] == nil {
		r.subs[ref] = make(map[int]func())
	}

	id := r.nextSub
	r.nextSub++
	r.subs[ref][id] = fn

	return func() { delete(r.subs[ref], id) }
}

func (r *fakeRegistry) RequestUpdate(ref string) {
	r.updates = append(r.updates, ref)
}

// set changes a device level and notifies subscribers.
func (r *fakeRegistry) set(ref string, level string) {
	r.devices[ref].metrics[rules.MetricLevel] = level

	for _, fn := range r.subs[ref] {
		fn()
	}
}

// recorder captures everything a zone reports.
type recorder struct {
	t             *testing.T
	snapshots     []*domain.Snapshot
	events        []events.Event
	notifications []events.Notification
	transitions   []domain.State
	ruleErrors    int
	vetoes        int
}

func (r *recorder) Publish(_ *domain.Settings, snapshot *domain.Snapshot) {
	require.True(r.t, snapshot.Consistent(), "inconsistent snapshot %+v", snapshot)
	r.snapshots = append(r.snapshots, snapshot)
}

func (r *recorder) Emit(_ context.Context, event events.Event) {
	r.events = append(r.events, event)
}

func (r *recorder) Notify(_ context.Context, n events.Notification) {
	r.notifications = append(r.notifications, n)
}

func (r *recorder) Transition(_ string, _, to domain.State) {
	r.transitions = append(r.transitions, to)
}

func (r *recorder) RuleError(string, error) { r.ruleErrors++ }
func (r *recorder) Vetoed(string)           { r.vetoes++ }

func (r *recorder) eventTypes() []events.Type {
	types := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}

	return types
}

func (r *recorder) last() *domain.Snapshot {
	require.NotEmpty(r.t, r.snapshots)
	return r.snapshots[len(r.snapshots)-1]
}

// fixedCoordinator always returns the configured verdict.
type fixedCoordinator bool

func (fixedCoordinator) Register(Member)          {}
func (fixedCoordinator) Unregister(string)        {}
func (c fixedCoordinator) Suppressed(Member) bool { return bool(c) }

// harness bundles a zone with its fakes.
type harness struct {
	zone      *Zone
	scheduler *fakeScheduler
	registry  *fakeRegistry
	rec       *recorder
}

func binaryRule(device string) domain.TestRule {
	return domain.TestRule{Kind: domain.KindBinary, Device: device, Value: "on"}
}

func newHarness(t *testing.T, settings domain.Settings, restored *domain.Snapshot) *harness {
	t.Helper()

	if settings.ID == "" {
		settings.ID = "zone1"
	}

	if settings.Title == "" {
		settings.Title = "Ground floor"
	}

	if settings.Category == "" {
		settings.Category = domain.CategoryIntrusion
	}

	if settings.Tests == nil {
		settings.Tests = []domain.TestRule{binaryRule("door")}
	}

	h := &harness{
		scheduler: newScheduler(),
		registry:  newRegistry(),
		rec:       &recorder{t: t},
	}

	z, err := New(context.Background(), settings, Deps{
		Registry:    h.registry,
		Scheduler:   h.scheduler,
		Publisher:   h.rec,
		Emitter:     h.rec,
		Notifier:    h.rec,
		Recorder:    h.rec,
		Coordinator: fixedCoordinator(false),
		Clock:       h.scheduler.Clock,
	})
	require.NoError(t, err)

	z.Start(restored)
	h.zone = z

	return h
}
