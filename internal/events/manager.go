package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager stamps, logs and publishes events
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager. bus may be nil, in which case events are only logged.
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Emit publishes typed event data on behalf of module
func (m *Manager) Emit(module string, data EventData) *Event {
	event := &Event{
		ID:        uuid.NewString(),
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	m.log.Info().
		Str("event_type", string(event.Type)).
		Str("module", module).
		Str("event_id", event.ID).
		Interface("data", data).
		Msg("Event emitted")

	if m.bus != nil {
		m.bus.Emit(event)
	}

	return event
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.Emit(module, &ErrorData{
		Error:   err.Error(),
		Context: context,
	})
}
