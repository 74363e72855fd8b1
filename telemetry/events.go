// Package telemetry provides step statistics, event detection, CSV output
// and particle snapshots for the simulation.
package telemetry

import "log/slog"

// EventType identifies a notable moment in a run.
type EventType string

const (
	// EventLockContention fires when node updates waited unusually long.
	EventLockContention EventType = "lock_contention"
	// EventPenetration fires when the share of particles classified inside
	// a collider crosses the configured fraction.
	EventPenetration EventType = "penetration"
	// EventImpulseSpike fires when the total contact impulse jumps well above
	// its recent average.
	EventImpulseSpike EventType = "impulse_spike"
	// EventRasterErrors fires on a step where some samples failed to rasterise.
	EventRasterErrors EventType = "raster_errors"
)

// Event is an automatically detected moment worth inspecting.
type Event struct {
	Type        EventType `csv:"type" json:"type"`
	Step        int       `csv:"step" json:"step"`
	Description string    `csv:"description" json:"description"`
}

// LogEvent logs the event using slog.
func (e Event) LogEvent() {
	slog.Info("event",
		"type", string(e.Type),
		"step", e.Step,
		"description", e.Description,
	)
}
