package sim

import (
	"log/slog"

	"github.com/pthm-cable/sandmpm/telemetry"
)

// recordTelemetry writes the step, checks for events and flushes the stats
// window when it is due.
func (w *World) recordTelemetry(stats telemetry.StepStats) {
	w.collector.Record(stats)

	if err := w.output.WriteStep(stats); err != nil {
		slog.Error("failed to write step stats", "error", err)
	}

	for _, e := range w.detector.Check(stats) {
		if w.logStats {
			e.LogEvent()
		}
		if err := w.output.WriteEvent(e); err != nil {
			slog.Error("failed to write event", "error", err)
		}
		// Save snapshot on event
		if w.snapshotDir != "" {
			w.saveSnapshot(&e)
		}
	}

	if !w.collector.ShouldFlush(w.step) {
		return
	}

	window := w.collector.Flush(w.step)
	perfStats := w.perf.Stats()

	if w.logStats {
		window.LogStats()
		perfStats.LogStats()
	}
	if err := w.output.WritePerf(perfStats, w.step); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
}

// Snapshot captures the current particle and collider state.
func (w *World) Snapshot(event *telemetry.Event) *telemetry.Snapshot {
	snap := &telemetry.Snapshot{
		Version:    telemetry.SnapshotVersion,
		Step:       w.step,
		SimTimeSec: w.simTime,
		CellWidth:  w.cfg.Grid.CellWidth,
		Colliders:  make([]telemetry.ColliderState, 0, w.colliders.Len()),
		Particles:  make([]telemetry.ParticleState, 0, w.particles),
		Event:      event,
	}

	for _, c := range w.colliders.All() {
		snap.Colliders = append(snap.Colliders, telemetry.ColliderState{
			Index:       c.Index,
			Name:        c.Name,
			Translation: arr(c.Translation),
			Velocity:    arr(c.Velocity),
			Impulse:     arr(c.Impulse),
		})
	}

	query := w.filter.Query()
	for query.Next() {
		pos, vel, mat, c := query.Get()
		snap.Particles = append(snap.Particles, telemetry.ParticleState{
			Position:       arr(pos.Vec),
			Velocity:       arr(vel.Vec),
			Block:          mat.Block,
			Kinematic:      mat.Kinematic,
			Collider:       c.Collider,
			SignedDistance: c.SignedDistance,
			Normal:         arr(c.Normal),
			Affinities:     c.Color.Affinities(),
			Tags:           c.Color.Tags(),
		})
	}

	return snap
}

// SaveSnapshot writes the current state to dir and returns the file path.
func (w *World) SaveSnapshot(dir string, event *telemetry.Event) (string, error) {
	return telemetry.SaveSnapshot(w.Snapshot(event), dir)
}

// saveSnapshot creates and saves a snapshot to the configured directory.
func (w *World) saveSnapshot(event *telemetry.Event) {
	path, err := w.SaveSnapshot(w.snapshotDir, event)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}
	slog.Info("snapshot saved", "path", path, "step", w.step)
}
