package events

import (
	"time"

	"github.com/google/uuid"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
)

// Type names a zone lifecycle event.
type Type string

const (
	// TypeDelayAlarm is emitted when the alarm delay starts.
	TypeDelayAlarm Type = "delayAlarm"
	// TypeDelayCancel is emitted when a running alarm delay is cancelled.
	TypeDelayCancel Type = "delayCancel"
	// TypeAlarm is emitted when the alarm is raised.
	TypeAlarm Type = "alarm"
	// TypeStop is emitted when an alarm ends.
	TypeStop Type = "stop"
	// TypeWarning is emitted when arm-time checks find matching sensors.
	TypeWarning Type = "warning"
)

// Types lists every event type.
var Types = []Type{TypeDelayAlarm, TypeDelayCancel, TypeAlarm, TypeStop, TypeWarning}

// Topic returns the topic an event of type t is published on for a category.
func Topic(category domain.Category, t Type) string {
	return "security." + string(category) + "." + string(t)
}

// Event is the payload of a zone lifecycle event.
type Event struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	ZoneID        string          `json:"zone_id"`
	Title         string          `json:"title"`
	Location      string          `json:"location,omitempty"`
	Category      domain.Category `json:"category"`
	CategoryLabel string          `json:"category_label,omitempty"`
	State         domain.State    `json:"state"`
	// DelayAlarm is the configured alarm delay in seconds.
	DelayAlarm       int      `json:"delay_alarm"`
	TriggeredDevices []string `json:"triggered_devices"`
	Message          string   `json:"message"`
}

// New creates an event with a fresh id and its topic filled in.
func New(t Type, settings *domain.Settings, state domain.State, devices []string, message string, at time.Time) Event {
	return Event{
		ID:               uuid.NewString(),
		Topic:            Topic(settings.Category, t),
		Type:             t,
		Timestamp:        at,
		ZoneID:           settings.ID,
		Title:            settings.Title,
		Location:         settings.Room,
		Category:         settings.Category,
		CategoryLabel:    settings.CategoryLabel,
		State:            state,
		DelayAlarm:       settings.DelayAlarmSeconds,
		TriggeredDevices: append([]string{}, devices...),
		Message:          message,
	}
}

// Severity grades a notification.
type Severity string

const (
	// SeverityWarning is used for arm-time warnings.
	SeverityWarning Severity = "warning"
	// SeverityAlarm is used for raised alarms.
	SeverityAlarm Severity = "alarm"
)

// Notification is a user-facing message raised by a zone.
type Notification struct {
	Severity Severity
	ZoneID   string
	Message  string
}
