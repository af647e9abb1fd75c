package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/logger"
	"github.com/oshokin/security-zone/internal/rules"
)

// VirtualPrefix prefixes the id of every zone device.
const VirtualPrefix = "SecurityZone_"

var (
	// ErrNotFound is returned for unknown device ids.
	ErrNotFound = errors.New("device not found")
	// ErrExists is returned when a device id is registered twice.
	ErrExists = errors.New("device already exists")
	// ErrReadOnly is returned when a client writes a metric a virtual device computes itself.
	ErrReadOnly = errors.New("metric is read-only")
)

// LevelHandler receives level writes of a virtual device.
type LevelHandler func(ctx context.Context, level string) error

// DeviceConfig describes a device registered at startup.
type DeviceConfig struct {
	ID      string
	Title   string
	Room    string
	Kind    string
	Metrics map[string]any
}

// Info is a point-in-time copy of a device.
type Info struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Room      string         `json:"room,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Virtual   bool           `json:"virtual"`
	Metrics   map[string]any `json:"metrics"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// device is the registry entry.
type device struct {
	info Info
	// onLevel handles level writes of virtual devices.
	onLevel LevelHandler
}

// Registry stores devices and their subscribers.
type Registry struct {
	// mu protects every field below.
	mu sync.RWMutex
	// devices by id.
	devices map[string]*device
	// subscribers by device id and subscription id.
	subscribers map[string]map[uint64]func()
	// nextID is the next subscription id.
	nextID uint64
	// onUpdate is called for every update request.
	onUpdate func(ref string)
	// clock returns the current time.
	clock func() time.Time
}

// New creates an empty registry. onUpdate may be nil.
func New(onUpdate func(ref string)) *Registry {
	return &Registry{
		devices:     make(map[string]*device),
		subscribers: make(map[string]map[uint64]func()),
		onUpdate:    onUpdate,
		clock:       time.Now,
	}
}

// VirtualID returns the id of the device mirroring a zone.
func VirtualID(zoneID string) string {
	return VirtualPrefix + zoneID
}

// Add registers a physical device.
func (r *Registry) Add(cfg DeviceConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("device id must be provided: %w", domain.ErrInvalidValue)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[cfg.ID]; ok {
		return fmt.Errorf("%s: %w", cfg.ID, ErrExists)
	}

	metrics := maps.Clone(cfg.Metrics)
	if metrics == nil {
		metrics = make(map[string]any)
	}

	r.devices[cfg.ID] = &device{
		info: Info{
			ID:        cfg.ID,
			Title:     cfg.Title,
			Room:      cfg.Room,
			Kind:      cfg.Kind,
			Metrics:   metrics,
			UpdatedAt: r.clock(),
		},
	}

	return nil
}

// AddVirtual registers the device mirroring a zone. Level writes are passed to onLevel.
func (r *Registry) AddVirtual(settings *domain.Settings, onLevel LevelHandler) error {
	id := VirtualID(settings.ID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[id]; ok {
		return fmt.Errorf("%s: %w", id, ErrExists)
	}

	r.devices[id] = &device{
		info: Info{
			ID:      id,
			Title:   settings.Title,
			Room:    settings.Room,
			Kind:    "switchBinary",
			Virtual: true,
			Metrics: map[string]any{
				"level":        string(domain.LevelOff),
				"icon":         domain.IconOf(domain.StateOff),
				"state":        string(domain.StateOff),
				"securityType": settings.SecurityType(),
				"title":        settings.Title,
			},
			UpdatedAt: r.clock(),
		},
		onLevel: onLevel,
	}

	return nil
}

// Remove deletes a device and drops its subscribers.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.devices, id)
	delete(r.subscribers, id)
}

// Lookup implements rules.Registry. The returned device is a copy.
//
//nolint:ireturn // Required by rules.Registry.
func (r *Registry) Lookup(ref string) (rules.Device, bool) {
	info, ok := r.Get(ref)
	if !ok {
		return nil, false
	}

	return deviceView{info: info}, true
}

// Get returns a copy of a device.
func (r *Registry) Get(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return Info{}, false
	}

	return d.info.clone(), true
}

// List returns copies of all devices ordered by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(r.devices))
	result := make([]Info, 0, len(ids))

	for _, id := range ids {
		result = append(result, r.devices[id].info.clone())
	}

	return result
}

// Subscribe calls fn after every write of the level or change metric of ref.
func (r *Registry) Subscribe(ref string, fn func()) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	if r.subscribers[ref] == nil {
		r.subscribers[ref] = make(map[uint64]func())
	}

	r.subscribers[ref][id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		delete(r.subscribers[ref], id)
	}
}

// RequestUpdate asks a device to refresh its metrics.
func (r *Registry) RequestUpdate(ref string) {
	logger.DebugKV(context.Background(), "Device update requested", "device", ref)

	if r.onUpdate != nil {
		r.onUpdate(ref)
	}
}

// SetMetric writes a metric of a device. A level write to a virtual device
// is a command and goes to its handler instead.
func (r *Registry) SetMetric(ctx context.Context, id, name string, value any) error {
	r.mu.Lock()

	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	if d.info.Virtual {
		handler := d.onLevel
		r.mu.Unlock()

		if name != rules.MetricLevel || handler == nil {
			return fmt.Errorf("%s: %s: %w", id, name, ErrReadOnly)
		}

		level, _ := value.(string)

		return handler(ctx, level)
	}

	d.info.Metrics[name] = value
	d.info.UpdatedAt = r.clock()

	var notify []func()
	if name == rules.MetricLevel || name == rules.MetricChange {
		notify = slices.Collect(maps.Values(r.subscribers[id]))
	}

	r.mu.Unlock()

	for _, fn := range notify {
		fn()
	}

	return nil
}

// Publish mirrors a zone snapshot onto its virtual device.
func (r *Registry) Publish(settings *domain.Settings, snapshot *domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[VirtualID(settings.ID)]
	if !ok {
		return
	}

	metrics := map[string]any{
		"level":            string(snapshot.Level),
		"icon":             snapshot.Icon,
		"state":            string(snapshot.State),
		"securityType":     settings.SecurityType(),
		"triggeredDevices": slices.Clone(snapshot.TriggeredDevices),
		"title":            settings.Title,
	}

	if snapshot.DelayActivate != nil {
		metrics["delayActivate"] = snapshot.DelayActivate.Format(time.RFC3339)
	}

	if snapshot.DelayAlarm != nil {
		metrics["delayAlarm"] = snapshot.DelayAlarm.Format(time.RFC3339)
	}

	d.info.Metrics = metrics
	d.info.UpdatedAt = r.clock()
}

func (i *Info) clone() Info {
	c := *i
	c.Metrics = maps.Clone(i.Metrics)

	return c
}

// deviceView adapts a device copy to rules.Device.
type deviceView struct {
	info Info
}

func (v deviceView) Metric(name string) (any, bool) {
	value, ok := v.info.Metrics[name]
	return value, ok
}

func (v deviceView) Title() string {
	return v.info.Title
}

func (v deviceView) Location() string {
	return v.info.Room
}
