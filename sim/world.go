// Package sim wires the CDF grid, rigid colliders and material particles
// into a stepped simulation.
package sim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mlange-42/ark/ecs"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sandmpm/cdf"
	"github.com/pthm-cable/sandmpm/components"
	"github.com/pthm-cable/sandmpm/config"
	"github.com/pthm-cable/sandmpm/grid"
	"github.com/pthm-cable/sandmpm/parallel"
	"github.com/pthm-cable/sandmpm/rigid"
	"github.com/pthm-cable/sandmpm/telemetry"
)

// Options configures a World beyond the simulation config.
type Options struct {
	LogStats    bool
	SnapshotDir string // Directory for event snapshots (empty = disabled)
	OutputDir   string // Directory for CSV logs and config copy (empty = disabled)

	// Law overrides the default ProjectionContact built from config.
	Law CouplingLaw
}

// particleSnapshot captures the read-only state needed by the gather.
type particleSnapshot struct {
	Entity ecs.Entity
	Pos    r3.Vec
}

// World holds the complete simulation state.
type World struct {
	cfg   *config.Config
	world *ecs.World

	mapper *ecs.Map4[
		components.Position,
		components.Velocity,
		components.Material,
		components.Cdf,
	]
	filter *ecs.Filter4[
		components.Position,
		components.Velocity,
		components.Material,
		components.Cdf,
	]

	grid      *grid.Grid
	colliders *rigid.Set
	sampler   *rigid.Sampler
	pool      *parallel.Pool
	law       CouplingLaw

	// Per-step buffers reused across steps
	snapshots []particleSnapshot
	positions []r3.Vec
	cdfs      []cdf.ParticleCdf
	distances []float64

	// Telemetry
	perf        *telemetry.PerfCollector
	collector   *telemetry.Collector
	detector    *telemetry.EventDetector
	output      *telemetry.OutputManager
	logStats    bool
	snapshotDir string
	lastStats   telemetry.StepStats

	// State
	step      int
	simTime   float64
	particles int
}

// New builds a world from cfg: the grid, the colliders and one particle per
// lattice site of every configured block.
func New(cfg *config.Config, opts Options) (*World, error) {
	g, err := grid.New(vec(cfg.Grid.Origin), cfg.Grid.CellWidth, cfg.Derived.Dims)
	if err != nil {
		return nil, fmt.Errorf("creating grid: %w", err)
	}
	colliders, err := buildColliders(cfg.Colliders)
	if err != nil {
		return nil, err
	}

	law := opts.Law
	if law == nil {
		law = ProjectionContact{Margin: cfg.Derived.ContactMargin, Friction: cfg.Contact.Friction}
	}

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	if err := output.WriteConfig(cfg); err != nil {
		output.Close()
		return nil, fmt.Errorf("writing config: %w", err)
	}

	world := ecs.NewWorld()
	w := &World{
		cfg:   cfg,
		world: world,
		mapper: ecs.NewMap4[
			components.Position,
			components.Velocity,
			components.Material,
			components.Cdf,
		](world),
		filter: ecs.NewFilter4[
			components.Position,
			components.Velocity,
			components.Material,
			components.Cdf,
		](world),
		grid:        g,
		colliders:   colliders,
		sampler:     rigid.NewSampler(cfg.Derived.SampleSpacing),
		pool:        parallel.NewPool(cfg.Parallel.Workers, cfg.Parallel.Threshold),
		law:         law,
		perf:        telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		collector:   telemetry.NewCollector(cfg.Telemetry.StatsWindow),
		detector:    telemetry.NewEventDetector(cfg.Telemetry.StatsWindow, cfg.Telemetry.ContentionSpins, cfg.Telemetry.PenetrationFraction),
		output:      output,
		logStats:    opts.LogStats,
		snapshotDir: opts.SnapshotDir,
	}

	w.spawnBlocks(cfg.Blocks)

	slog.Info("world created",
		"grid_dims", cfg.Derived.Dims,
		"cell_width", cfg.Grid.CellWidth,
		"colliders", colliders.Len(),
		"particles", w.particles,
		"workers", w.pool.Workers(),
	)
	return w, nil
}

// Step advances the simulation by one time step.
//
// Rasterisation errors (lock timeouts, inconsistent samples) are counted in
// the returned stats and reported as events; the step still completes.
// Context cancellation aborts the step and is returned as the error.
func (w *World) Step(ctx context.Context) (telemetry.StepStats, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.StepStats{}, err
	}
	dt := w.cfg.Physics.DT
	w.perf.StartStep()
	defer w.perf.EndStep()

	stats := telemetry.StepStats{Step: w.step + 1}

	// 1. Move kinematic colliders and clear their impulses
	w.perf.StartPhase(telemetry.PhaseColliders)
	w.colliders.Advance(dt)

	// 2. Resample collider surfaces
	w.perf.StartPhase(telemetry.PhaseSample)
	samples := w.sampler.Sample(w.colliders)

	// 3. Clear the grid
	w.perf.StartPhase(telemetry.PhaseGridReset)
	if err := w.grid.Reset(ctx, w.pool); err != nil {
		return stats, fmt.Errorf("step %d: resetting grid: %w", stats.Step, err)
	}

	// 4. Rasterise rigid samples; Run returning is the barrier before gather
	w.perf.StartPhase(telemetry.PhaseRasterize)
	raster, err := w.grid.Rasterize(ctx, w.pool, samples, w.colliders, w.cfg.Derived.SpinBudget)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stats, ctxErr
	}
	if err != nil {
		stats.RasterErrors = len(multierr.Errors(err))
		slog.Warn("rasterize failed for some nodes", "step", stats.Step, "errors", stats.RasterErrors, "error", err)
	}
	stats.RigidSamples = raster.Samples
	stats.NodeUpdates = raster.NodeUpdates
	stats.LockSpins = raster.Spins
	stats.MaxLockSpins = raster.MaxSpins
	stats.NodesTouched = w.grid.Touched()

	// 5. Gather CDFs onto particles
	w.perf.StartPhase(telemetry.PhaseGather)
	if err := w.gather(ctx); err != nil {
		return stats, fmt.Errorf("step %d: %w", stats.Step, err)
	}

	// 6. Coupling law (single-threaded, preserves determinism)
	w.perf.StartPhase(telemetry.PhaseContact)
	w.applyContact(&stats)

	// 7. Advect
	w.perf.StartPhase(telemetry.PhaseAdvect)
	w.advect(dt)

	w.step++
	w.simTime += dt
	stats.SimTimeSec = w.simTime

	w.perf.StartPhase(telemetry.PhaseTelemetry)
	w.recordTelemetry(stats)

	w.lastStats = stats
	return stats, nil
}

// gather snapshots particle positions and resolves their CDFs in parallel.
func (w *World) gather(ctx context.Context) error {
	// Phase A: Build snapshots (single-threaded)
	w.snapshots = w.snapshots[:0]
	w.positions = w.positions[:0]
	query := w.filter.Query()
	for query.Next() {
		pos, _, _, _ := query.Get()
		w.snapshots = append(w.snapshots, particleSnapshot{Entity: query.Entity(), Pos: pos.Vec})
		w.positions = append(w.positions, pos.Vec)
	}

	n := len(w.snapshots)
	if cap(w.cdfs) < n {
		w.cdfs = make([]cdf.ParticleCdf, n)
	}
	w.cdfs = w.cdfs[:n]

	// Phase B: Compute
	if err := w.grid.Gather(ctx, w.pool, w.positions, w.cdfs); err != nil {
		return fmt.Errorf("gathering particle cdfs: %w", err)
	}
	return nil
}

// applyContact writes gathered CDFs back to the particles, applies gravity
// and runs the coupling law.
func (w *World) applyContact(stats *telemetry.StepStats) {
	dt := w.cfg.Physics.DT
	gravity := r3.Scale(dt, vec(w.cfg.Physics.Gravity))
	w.distances = w.distances[:0]

	for i, snap := range w.snapshots {
		pos, vel, mat, c := w.mapper.Get(snap.Entity)
		res := w.cdfs[i]
		c.ParticleCdf = res
		c.Contact = false

		if res.Touched() {
			stats.ParticlesTouched++
			w.distances = append(w.distances, res.SignedDistance)
			if res.Inside(uint32(res.Collider)) {
				stats.ParticlesInside++
			}
		}

		if mat.Kinematic {
			continue
		}
		vel.Vec = r3.Add(vel.Vec, gravity)
		if !res.Touched() {
			continue
		}

		collider := w.colliders.Get(uint32(res.Collider))
		state := ContactState{Position: pos.Vec, Velocity: vel.Vec, Mass: mat.Mass, Cdf: res}
		impulse, contact := w.law.Apply(&state, collider)
		if !contact {
			continue
		}
		pos.Vec = state.Position
		vel.Vec = state.Velocity
		c.Contact = true
		collider.Impulse = r3.Add(collider.Impulse, impulse)
		stats.ParticlesContact++
	}

	stats.Particles = len(w.snapshots)
	stats.DistanceMean, stats.DistanceP10, stats.DistanceP50, stats.DistanceP90 = telemetry.ComputeDistanceStats(w.distances)
	for _, col := range w.colliders.All() {
		stats.Impulse += r3.Norm(col.Impulse)
	}
}

// advect moves every particle by its velocity.
func (w *World) advect(dt float64) {
	query := w.filter.Query()
	for query.Next() {
		pos, vel, _, _ := query.Get()
		pos.Vec = r3.Add(pos.Vec, r3.Scale(dt, vel.Vec))
	}
}

// StepCount returns the number of completed steps.
func (w *World) StepCount() int {
	return w.step
}

// SimTime returns the simulated time in seconds.
func (w *World) SimTime() float64 {
	return w.simTime
}

// Particles returns the number of material particles.
func (w *World) Particles() int {
	return w.particles
}

// Grid returns the background grid.
func (w *World) Grid() *grid.Grid {
	return w.grid
}

// Colliders returns the collider set.
func (w *World) Colliders() *rigid.Set {
	return w.colliders
}

// LastStats returns the stats of the most recent step.
func (w *World) LastStats() telemetry.StepStats {
	return w.lastStats
}

// ForEachParticle calls fn for every particle in query order.
func (w *World) ForEachParticle(fn func(e ecs.Entity, pos r3.Vec, vel r3.Vec, mat components.Material, c components.Cdf)) {
	query := w.filter.Query()
	for query.Next() {
		pos, vel, mat, c := query.Get()
		fn(query.Entity(), pos.Vec, vel.Vec, *mat, *c)
	}
}

// Close stops the worker pool and flushes output files.
func (w *World) Close() error {
	w.pool.Close()
	return w.output.Close()
}
