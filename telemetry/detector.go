package telemetry

import "fmt"

// EventDetector detects interesting moments from per-step stats.
type EventDetector struct {
	// Rolling history (circular buffer)
	history     []StepStats
	historySize int
	historyIdx  int
	historyFull bool

	contentionSpins     int
	penetrationFraction float64

	// State tracking
	penetrating bool // inside fraction currently above threshold
	contended   bool // previous step was contended
}

// NewEventDetector creates a detector with the given history size and
// thresholds. contentionSpins <= 0 disables contention events;
// penetrationFraction <= 0 disables penetration events.
func NewEventDetector(historySize, contentionSpins int, penetrationFraction float64) *EventDetector {
	if historySize < 3 {
		historySize = 3
	}
	return &EventDetector{
		history:             make([]StepStats, historySize),
		historySize:         historySize,
		contentionSpins:     contentionSpins,
		penetrationFraction: penetrationFraction,
	}
}

// Check analyzes the latest step and returns any triggered events.
func (d *EventDetector) Check(s StepStats) []Event {
	var events []Event

	if e := d.checkContention(s); e != nil {
		events = append(events, *e)
	}
	if e := d.checkPenetration(s); e != nil {
		events = append(events, *e)
	}
	if e := d.checkImpulseSpike(s); e != nil {
		events = append(events, *e)
	}
	if s.RasterErrors > 0 {
		events = append(events, Event{
			Type:        EventRasterErrors,
			Step:        s.Step,
			Description: fmt.Sprintf("%d node updates failed during rasterisation", s.RasterErrors),
		})
	}

	d.addToHistory(s)
	return events
}

func (d *EventDetector) addToHistory(s StepStats) {
	d.history[d.historyIdx] = s
	d.historyIdx = (d.historyIdx + 1) % d.historySize
	if d.historyIdx == 0 {
		d.historyFull = true
	}
}

func (d *EventDetector) getHistory() []StepStats {
	if d.historyFull {
		return d.history
	}
	return d.history[:d.historyIdx]
}

// checkContention fires once when the worst lock wait crosses the threshold
// and re-arms after a step below it.
func (d *EventDetector) checkContention(s StepStats) *Event {
	if d.contentionSpins <= 0 {
		return nil
	}
	hit := s.MaxLockSpins >= d.contentionSpins
	defer func() { d.contended = hit }()
	if !hit || d.contended {
		return nil
	}
	return &Event{
		Type:        EventLockContention,
		Step:        s.Step,
		Description: fmt.Sprintf("Node update waited %d spins (threshold %d), %d spins total", s.MaxLockSpins, d.contentionSpins, s.LockSpins),
	}
}

// checkPenetration fires on the rising edge of the inside fraction.
func (d *EventDetector) checkPenetration(s StepStats) *Event {
	if d.penetrationFraction <= 0 {
		return nil
	}
	frac := s.InsideFraction()
	above := frac >= d.penetrationFraction
	defer func() { d.penetrating = above }()
	if !above || d.penetrating {
		return nil
	}
	return &Event{
		Type:        EventPenetration,
		Step:        s.Step,
		Description: fmt.Sprintf("%.1f%% of particles inside colliders (%d of %d)", frac*100, s.ParticlesInside, s.Particles),
	}
}

// checkImpulseSpike compares the step impulse against the rolling average.
func (d *EventDetector) checkImpulseSpike(s StepStats) *Event {
	history := d.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.Impulse
	}
	avg := total / float64(len(history))
	if avg == 0 {
		return nil
	}

	if s.Impulse > avg*3.0 {
		return &Event{
			Type:        EventImpulseSpike,
			Step:        s.Step,
			Description: fmt.Sprintf("Contact impulse %.3g is %.1fx average (%.3g)", s.Impulse, s.Impulse/avg, avg),
		}
	}
	return nil
}
