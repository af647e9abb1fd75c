package zone

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	domain "github.com/oshokin/security-zone/internal/domain/zone"
	"github.com/oshokin/security-zone/internal/events"
)

// defaultMessageTemplates are the built-in notification texts per event type.
var defaultMessageTemplates = map[events.Type]string{
	events.TypeDelayAlarm:  "{{.Category}} in {{.Title}}: alarm in {{.Delay}}s ({{.Devices}})",
	events.TypeDelayCancel: "{{.Category}} in {{.Title}}: alarm delay cancelled",
	events.TypeAlarm:       "{{.Category}} in {{.Title}}: ALARM ({{.Devices}})",
	events.TypeStop:        "{{.Category}} in {{.Title}}: alarm stopped, zone {{.State}}",
	events.TypeWarning:     "{{.Category}} in {{.Title}}: armed with active sensors ({{.Devices}})",
}

// MessageData is the data passed to message templates.
type MessageData struct {
	Category string
	Title    string
	State    domain.State
	// Devices is the comma separated list of triggered device labels.
	Devices string
	// Delay is the configured alarm delay in seconds.
	Delay int
}

// Messages renders notification texts per event type.
type Messages struct {
	templates map[events.Type]*template.Template
}

// DefaultMessages returns the built-in message set.
func DefaultMessages() *Messages {
	m, err := NewMessages(nil)
	if err != nil {
		panic(err)
	}

	return m
}

// NewMessages parses the built-in templates with the given per-event overrides.
func NewMessages(overrides map[string]string) (*Messages, error) {
	m := &Messages{
		templates: make(map[events.Type]*template.Template, len(defaultMessageTemplates)),
	}

	for _, t := range events.Types {
		text := defaultMessageTemplates[t]
		if override, ok := overrides[string(t)]; ok && override != "" {
			text = override
		}

		tmpl, err := template.New(string(t)).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse %s message: %w", t, err)
		}

		m.templates[t] = tmpl
	}

	for name := range overrides {
		if _, ok := m.templates[events.Type(name)]; !ok {
			return nil, fmt.Errorf("message %q: %w", name, domain.ErrInvalidValue)
		}
	}

	return m, nil
}

// Render formats the message of an event type. Execution errors fall back
// to the plain title so a notification is never lost.
func (m *Messages) Render(t events.Type, data *MessageData) string {
	tmpl, ok := m.templates[t]
	if !ok {
		return data.Title
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return data.Title + ": " + string(t)
	}

	return strings.TrimSpace(buf.String())
}
