package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/events"
	"github.com/oshokin/security-zone/internal/registry"
	"github.com/oshokin/security-zone/internal/repository/journal"
	"github.com/oshokin/security-zone/internal/rules"
)

// requestTimeout bounds every non-streaming request.
const requestTimeout = 20 * time.Second

// ZoneStatus is the JSON view of one zone.
type ZoneStatus struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Room             string          `json:"room,omitempty"`
	Category         domain.Category `json:"category"`
	SecurityType     string          `json:"security_type"`
	State            domain.State    `json:"state"`
	Level            domain.Level    `json:"level"`
	Icon             string          `json:"icon"`
	TriggeredDevices []string        `json:"triggered_devices"`
	DelayActivate    *time.Time      `json:"delay_activate,omitempty"`
	DelayAlarm       *time.Time      `json:"delay_alarm,omitempty"`
}

// NewZoneStatus builds the view of a zone from its settings and snapshot.
func NewZoneStatus(settings *domain.Settings, snapshot *domain.Snapshot) ZoneStatus {
	return ZoneStatus{
		ID:               settings.ID,
		Title:            settings.Title,
		Room:             settings.Room,
		Category:         settings.Category,
		SecurityType:     settings.SecurityType(),
		State:            snapshot.State,
		Level:            snapshot.Level,
		Icon:             snapshot.Icon,
		TriggeredDevices: append([]string{}, snapshot.TriggeredDevices...),
		DelayActivate:    snapshot.DelayActivate,
		DelayAlarm:       snapshot.DelayAlarm,
	}
}

// Zones lists the current status of every zone.
type Zones interface {
	Zones(ctx context.Context) ([]ZoneStatus, error)
}

// Devices reads and writes device metrics.
type Devices interface {
	List() []registry.Info
	Get(id string) (registry.Info, bool)
	SetMetric(ctx context.Context, id, name string, value any) error
}

// Journal lists recorded events.
type Journal interface {
	List(ctx context.Context, filter journal.Filter) ([]events.Event, error)
}

// Options wires the API to the supervisor.
type Options struct {
	Zones   Zones
	Devices Devices
	// Journal is optional.
	Journal Journal
	// Hub is optional; without it /api/events is not served.
	Hub *Hub
	// Gatherer is optional; without it /metrics is not served.
	Gatherer prometheus.Gatherer
}

// API holds the HTTP handlers.
type API struct {
	opts Options
}

// New creates the API.
func New(opts Options) *API {
	return &API{opts: opts}
}

// Handler builds the routing tree.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON)
	r.Use(RequestLogger)

	r.Get("/healthz", a.health)

	if a.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(api chi.Router) {
		if a.opts.Hub != nil {
			// Websocket connections outlive the request timeout.
			api.Get("/events", a.opts.Hub.ServeHTTP)
		}

		api.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(requestTimeout))

			api.Get("/zones", a.listZones)
			api.Get("/zones/{id}", a.getZone)
			api.Put("/zones/{id}/level", a.setZoneLevel)

			api.Get("/devices", a.listDevices)
			api.Get("/devices/{id}", a.getDevice)
			api.Put("/devices/{id}/metrics/{metric}", a.setDeviceMetric)

			api.Get("/journal", a.listJournal)
		})
	})

	return r
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) listZones(w http.ResponseWriter, r *http.Request) {
	zones, err := a.opts.Zones.Zones(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "zones_unavailable", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": zones})
}

func (a *API) getZone(w http.ResponseWriter, r *http.Request) {
	zones, err := a.opts.Zones.Zones(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "zones_unavailable", err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	for i := range zones {
		if zones[i].ID == id {
			writeJSON(w, http.StatusOK, zones[i])
			return
		}
	}

	writeError(w, http.StatusNotFound, "not_found", "Zone not found")
}

type levelPayload struct {
	Level string `json:"level"`
}

// setZoneLevel writes the level metric of the zone device, which arms or disarms it.
func (a *API) setZoneLevel(w http.ResponseWriter, r *http.Request) {
	var payload levelPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}

	id := registry.VirtualID(chi.URLParam(r, "id"))
	if err := a.opts.Devices.SetMetric(r.Context(), id, rules.MetricLevel, payload.Level); err != nil {
		writeMetricError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *API) listDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.opts.Devices.List()})
}

func (a *API) getDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := a.opts.Devices.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
		return
	}

	writeJSON(w, http.StatusOK, device)
}

type metricPayload struct {
	Value any `json:"value"`
}

func (a *API) setDeviceMetric(w http.ResponseWriter, r *http.Request) {
	var payload metricPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}

	err := a.opts.Devices.SetMetric(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "metric"), payload.Value)
	if err != nil {
		writeMetricError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *API) listJournal(w http.ResponseWriter, r *http.Request) {
	if a.opts.Journal == nil {
		writeError(w, http.StatusNotFound, "journal_disabled", "Event journal is not configured")
		return
	}

	query := r.URL.Query()
	filter := journal.Filter{
		ZoneID: query.Get("zone"),
		Type:   events.Type(query.Get("type")),
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}

		filter.Limit = limit
	}

	items, err := a.opts.Journal.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "journal_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func writeMetricError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, registry.ErrReadOnly):
		writeError(w, http.StatusConflict, "read_only", err.Error())
	case errors.Is(err, domain.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, "invalid_value", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "write_failed", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
