package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
)

// ErrNotFound is returned when no snapshot was stored for a zone.
var ErrNotFound = errors.New("state not found")

// Repository defines persistence operations for zone snapshots.
type Repository interface {
	Load(ctx context.Context, zoneID string) (*domain.Snapshot, error)
	Save(ctx context.Context, zoneID string, snapshot *domain.Snapshot) error
	Delete(ctx context.Context, zoneID string) error
}

// record is the stored form of a snapshot. Level and icon are derived from
// the state on load so that a stored snapshot cannot break the level invariant.
type record struct {
	State            string   `json:"state"`
	Level            string   `json:"level"`
	Icon             string   `json:"icon"`
	TriggeredDevices []string `json:"triggeredDevices"`
	DelayActivate    string   `json:"delayActivate,omitempty"`
	DelayAlarm       string   `json:"delayAlarm,omitempty"`
}

func toRecord(snapshot *domain.Snapshot) *record {
	r := &record{
		State:            string(snapshot.State),
		Level:            string(domain.LevelOf(snapshot.State)),
		Icon:             domain.IconOf(snapshot.State),
		TriggeredDevices: append([]string{}, snapshot.TriggeredDevices...),
	}

	if snapshot.DelayActivate != nil {
		r.DelayActivate = snapshot.DelayActivate.UTC().Format(time.RFC3339Nano)
	}

	if snapshot.DelayAlarm != nil {
		r.DelayAlarm = snapshot.DelayAlarm.UTC().Format(time.RFC3339Nano)
	}

	return r
}

func fromRecord(r *record) (*domain.Snapshot, error) {
	state, err := domain.ParseState(r.State)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.Snapshot{
		State:            state,
		Level:            domain.LevelOf(state),
		Icon:             domain.IconOf(state),
		TriggeredDevices: r.TriggeredDevices,
	}

	if state == domain.StateDelayActivate {
		if snapshot.DelayActivate, err = parseDeadline(r.DelayActivate); err != nil {
			return nil, fmt.Errorf("delay activate: %w", err)
		}
	}

	if state == domain.StateDelayAlarm {
		if snapshot.DelayAlarm, err = parseDeadline(r.DelayAlarm); err != nil {
			return nil, fmt.Errorf("delay alarm: %w", err)
		}
	}

	return snapshot, nil
}

func parseDeadline(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil //nolint:nilnil // A missing deadline is valid.
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}

	return &t, nil
}
