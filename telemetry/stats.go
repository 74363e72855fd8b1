package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// StepStats holds the measurements of a single simulation step.
type StepStats struct {
	Step       int     `csv:"step"`
	SimTimeSec float64 `csv:"sim_time"`

	// Rasterisation
	RigidSamples int `csv:"rigid_samples"`
	NodeUpdates  int `csv:"node_updates"`
	NodesTouched int `csv:"nodes_touched"`
	LockSpins    int `csv:"lock_spins"`
	MaxLockSpins int `csv:"max_lock_spins"`
	RasterErrors int `csv:"raster_errors"`

	// Particle classification
	Particles        int `csv:"particles"`
	ParticlesTouched int `csv:"particles_touched"`
	ParticlesInside  int `csv:"particles_inside"`
	ParticlesContact int `csv:"particles_contact"`

	// Signed distance of touched particles
	DistanceMean float64 `csv:"distance_mean"`
	DistanceP10  float64 `csv:"distance_p10"`
	DistanceP50  float64 `csv:"distance_p50"`
	DistanceP90  float64 `csv:"distance_p90"`

	// Magnitude of the summed reaction impulse over all colliders
	Impulse float64 `csv:"impulse"`
}

// InsideFraction returns the share of particles classified inside a collider.
func (s StepStats) InsideFraction() float64 {
	if s.Particles == 0 {
		return 0
	}
	return float64(s.ParticlesInside) / float64(s.Particles)
}

// Percentile returns the p-th quantile of a sorted slice using linear
// interpolation of the empirical distribution. p should be in [0, 1].
// Returns 0 if the slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// ComputeDistanceStats calculates mean and percentiles of signed distances.
// values is sorted in place.
func ComputeDistanceStats(values []float64) (mean, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	sort.Float64s(values)
	mean = stat.Mean(values, nil)
	return mean, Percentile(values, 0.10), Percentile(values, 0.50), Percentile(values, 0.90)
}

// WindowStats aggregates StepStats over a window of steps.
type WindowStats struct {
	WindowStartStep int     `csv:"window_start"`
	WindowEndStep   int     `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`
	Steps           int     `csv:"steps"`

	MeanNodeUpdates  float64 `csv:"mean_node_updates"`
	MeanLockSpins    float64 `csv:"mean_lock_spins"`
	MaxLockSpins     int     `csv:"max_lock_spins"`
	RasterErrors     int     `csv:"raster_errors"`
	MeanInside       float64 `csv:"mean_inside"`
	MeanContact      float64 `csv:"mean_contact"`
	MeanDistanceP50  float64 `csv:"mean_distance_p50"`
	MeanImpulse      float64 `csv:"mean_impulse"`
	PeakImpulse      float64 `csv:"peak_impulse"`
	ParticlesAtClose int     `csv:"particles"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", s.WindowStartStep),
		slog.Int("window_end", s.WindowEndStep),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("particles", s.ParticlesAtClose),
		slog.Float64("mean_node_updates", s.MeanNodeUpdates),
		slog.Float64("mean_lock_spins", s.MeanLockSpins),
		slog.Int("max_lock_spins", s.MaxLockSpins),
		slog.Int("raster_errors", s.RasterErrors),
		slog.Float64("mean_inside", s.MeanInside),
		slog.Float64("mean_contact", s.MeanContact),
		slog.Float64("mean_distance_p50", s.MeanDistanceP50),
		slog.Float64("mean_impulse", s.MeanImpulse),
		slog.Float64("peak_impulse", s.PeakImpulse),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}
