package telemetry

import (
	"log/slog"
	"time"
)

// Phase identifies a timed section of a simulation step.
type Phase int

// Step phases in execution order.
const (
	PhaseColliders Phase = iota
	PhaseSample
	PhaseGridReset
	PhaseRasterize
	PhaseGather
	PhaseContact
	PhaseAdvect
	PhaseTelemetry
	numPhases
)

const phaseNone Phase = -1

var phaseNames = [numPhases]string{
	"colliders", "sample", "grid_reset", "rasterize",
	"gather", "contact", "advect", "telemetry",
}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// perfSample holds timing data for a single step.
type perfSample struct {
	step   time.Duration
	phases [numPhases]time.Duration
}

// PerfCollector tracks step timings over a rolling window.
type PerfCollector struct {
	samples    []perfSample
	writeIndex int
	count      int

	open       bool
	current    perfSample
	stepStart  time.Time
	phaseStart time.Time
	phase      Phase
}

// NewPerfCollector creates a collector averaging over windowSize steps.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		samples: make([]perfSample, windowSize),
		phase:   phaseNone,
	}
}

// StartStep begins timing a new step. A step still open is recorded first.
func (p *PerfCollector) StartStep() {
	if p.open {
		p.EndStep()
	}
	p.open = true
	p.current = perfSample{}
	p.stepStart = time.Now()
	p.phase = phaseNone
}

// StartPhase ends the running phase and starts timing phase.
func (p *PerfCollector) StartPhase(phase Phase) {
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.phase = phase
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase >= 0 && p.phase < numPhases {
		p.current.phases[p.phase] += now.Sub(p.phaseStart)
	}
	p.phase = phaseNone
}

// EndStep records the open step. It does nothing when no step is open.
func (p *PerfCollector) EndStep() {
	if !p.open {
		return
	}
	now := time.Now()
	p.closePhase(now)
	p.current.step = now.Sub(p.stepStart)

	p.samples[p.writeIndex] = p.current
	p.writeIndex = (p.writeIndex + 1) % len(p.samples)
	if p.count < len(p.samples) {
		p.count++
	}
	p.open = false
}

// Steps returns the number of recorded steps in the window.
func (p *PerfCollector) Steps() int {
	return p.count
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgStepDuration time.Duration
	MaxStepDuration time.Duration
	StepsPerSecond  float64

	// Share of the average step spent in each phase, in percent
	PhasePct [numPhases]float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	var s PerfStats
	if p.count == 0 {
		return s
	}

	var total time.Duration
	var phaseSum [numPhases]time.Duration
	for _, sample := range p.samples[:p.count] {
		total += sample.step
		s.MaxStepDuration = max(s.MaxStepDuration, sample.step)
		for ph, d := range sample.phases {
			phaseSum[ph] += d
		}
	}

	if total <= 0 {
		return s
	}
	s.AvgStepDuration = total / time.Duration(p.count)
	s.StepsPerSecond = float64(time.Second) / float64(s.AvgStepDuration)
	for ph, sum := range phaseSum {
		s.PhasePct[ph] = float64(sum) / float64(total) * 100
	}
	return s
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_step_us", s.AvgStepDuration.Microseconds(),
		"max_step_us", s.MaxStepDuration.Microseconds(),
		"steps_per_sec", int(s.StepsPerSecond),
	}
	for ph, pct := range s.PhasePct {
		if pct > 0.1 {
			attrs = append(attrs, Phase(ph).String()+"_pct", float64(int(pct*10))/10.0)
		}
	}
	slog.Info("perf", attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd    int     `csv:"window_end"`
	AvgStepUS    int64   `csv:"avg_step_us"`
	MaxStepUS    int64   `csv:"max_step_us"`
	StepsPerSec  float64 `csv:"steps_per_sec"`
	CollidersPct float64 `csv:"colliders_pct"`
	SamplePct    float64 `csv:"sample_pct"`
	GridResetPct float64 `csv:"grid_reset_pct"`
	RasterizePct float64 `csv:"rasterize_pct"`
	GatherPct    float64 `csv:"gather_pct"`
	ContactPct   float64 `csv:"contact_pct"`
	AdvectPct    float64 `csv:"advect_pct"`
	TelemetryPct float64 `csv:"telemetry_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:    windowEnd,
		AvgStepUS:    s.AvgStepDuration.Microseconds(),
		MaxStepUS:    s.MaxStepDuration.Microseconds(),
		StepsPerSec:  s.StepsPerSecond,
		CollidersPct: s.PhasePct[PhaseColliders],
		SamplePct:    s.PhasePct[PhaseSample],
		GridResetPct: s.PhasePct[PhaseGridReset],
		RasterizePct: s.PhasePct[PhaseRasterize],
		GatherPct:    s.PhasePct[PhaseGather],
		ContactPct:   s.PhasePct[PhaseContact],
		AdvectPct:    s.PhasePct[PhaseAdvect],
		TelemetryPct: s.PhasePct[PhaseTelemetry],
	}
}
