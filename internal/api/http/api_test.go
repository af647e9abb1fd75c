package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/events"
	"github.com/oshokin/security-zone/internal/registry"
	"github.com/oshokin/security-zone/internal/repository/journal"
)

type fakeZones struct {
	items []ZoneStatus
	err   error
}

func (f *fakeZones) Zones(context.Context) ([]ZoneStatus, error) {
	return f.items, f.err
}

type fakeJournal struct {
	filter journal.Filter
	items  []events.Event
}

func (f *fakeJournal) List(_ context.Context, filter journal.Filter) ([]events.Event, error) {
	f.filter = filter
	return f.items, nil
}

type errorBody struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newTestAPI(t *testing.T) (*registry.Registry, *fakeJournal, http.Handler) {
	t.Helper()

	reg := registry.New(nil)
	require.NoError(t, reg.Add(registry.DeviceConfig{
		ID:      "door",
		Title:   "Front door",
		Metrics: map[string]any{"level": "off"},
	}))

	hall := &domain.Settings{ID: "hall", Title: "Hall", Category: domain.CategoryIntrusion}
	require.NoError(t, reg.AddVirtual(hall, func(_ context.Context, level string) error {
		if level != "on" && level != "off" {
			return fmt.Errorf("level %q: %w", level, domain.ErrInvalidValue)
		}

		return nil
	}))

	zones := &fakeZones{items: []ZoneStatus{
		NewZoneStatus(hall, &domain.Snapshot{State: domain.StateOn, Level: domain.LevelOn, Icon: "on"}),
	}}
	j := &fakeJournal{items: []events.Event{{ID: "e1", Type: events.TypeAlarm, ZoneID: "hall"}}}

	api := New(Options{
		Zones:    zones,
		Devices:  reg,
		Journal:  j,
		Gatherer: prometheus.NewRegistry(),
	})

	return reg, j, api.Handler()
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func decodeCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))

	return body.Error.Code
}

func TestAPI_Zones(t *testing.T) {
	t.Parallel()

	_, _, handler := newTestAPI(t)

	rec := do(t, handler, http.MethodGet, "/api/zones", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Items []ZoneStatus `json:"items"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Items, 1)
	require.Equal(t, domain.StateOn, list.Items[0].State)
	require.Equal(t, "intrusion", list.Items[0].SecurityType)
	require.Empty(t, list.Items[0].TriggeredDevices)

	rec = do(t, handler, http.MethodGet, "/api/zones/hall", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, handler, http.MethodGet, "/api/zones/attic", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ZonesUnavailable(t *testing.T) {
	t.Parallel()

	handler := New(Options{Zones: &fakeZones{err: errors.New("loop closed")}, Devices: registry.New(nil)}).Handler()

	rec := do(t, handler, http.MethodGet, "/api/zones", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "zones_unavailable", decodeCode(t, rec))
}

func TestAPI_SetZoneLevel(t *testing.T) {
	t.Parallel()

	_, _, handler := newTestAPI(t)

	rec := do(t, handler, http.MethodPut, "/api/zones/hall/level", `{"level":"on"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, handler, http.MethodPut, "/api/zones/hall/level", `{"level":"maybe"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_value", decodeCode(t, rec))

	rec = do(t, handler, http.MethodPut, "/api/zones/attic/level", `{"level":"on"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, handler, http.MethodPut, "/api/zones/hall/level", `{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_payload", decodeCode(t, rec))
}

func TestAPI_Devices(t *testing.T) {
	t.Parallel()

	reg, _, handler := newTestAPI(t)

	rec := do(t, handler, http.MethodPut, "/api/devices/door/metrics/level", `{"value":"on"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	info, ok := reg.Get("door")
	require.True(t, ok)
	require.Equal(t, "on", info.Metrics["level"])

	rec = do(t, handler, http.MethodGet, "/api/devices/door", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, handler, http.MethodGet, "/api/devices/garage", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, handler, http.MethodPut, "/api/devices/"+registry.VirtualID("hall")+"/metrics/icon", `{"value":"x"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "read_only", decodeCode(t, rec))

	rec = do(t, handler, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Items []registry.Info `json:"items"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Items, 2)
}

func TestAPI_Journal(t *testing.T) {
	t.Parallel()

	_, j, handler := newTestAPI(t)

	rec := do(t, handler, http.MethodGet, "/api/journal?zone=hall&type=alarm&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, journal.Filter{ZoneID: "hall", Type: events.TypeAlarm, Limit: 5}, j.filter)

	rec = do(t, handler, http.MethodGet, "/api/journal?limit=many", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	disabled := New(Options{Zones: &fakeZones{}, Devices: registry.New(nil)}).Handler()
	rec = do(t, disabled, http.MethodGet, "/api/journal", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "journal_disabled", decodeCode(t, rec))
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	_, _, handler := newTestAPI(t)

	rec := do(t, handler, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, handler, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHub(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	handler := New(Options{Zones: &fakeZones{}, Devices: registry.New(nil), Hub: hub}).Handler()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/events"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	hub.Handle(context.Background(), events.Event{ID: "e1", Type: events.TypeAlarm, ZoneID: "hall"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var received events.Event
	require.NoError(t, conn.ReadJSON(&received))
	require.Equal(t, "e1", received.ID)
	require.Equal(t, events.TypeAlarm, received.Type)

	hub.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
}
