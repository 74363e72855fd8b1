package telemetry

// Collector accumulates StepStats within windows and produces WindowStats.
type Collector struct {
	windowSteps int

	// Current window tracking
	windowStartStep int
	steps           int

	nodeUpdates  int
	lockSpins    int
	maxLockSpins int
	rasterErrors int
	inside       int
	contact      int
	distanceP50  float64
	impulse      float64
	peakImpulse  float64
	last         StepStats
}

// NewCollector creates a collector that flushes every windowSteps steps.
func NewCollector(windowSteps int) *Collector {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &Collector{windowSteps: windowSteps}
}

// Record adds one step to the current window.
func (c *Collector) Record(s StepStats) {
	c.steps++
	c.nodeUpdates += s.NodeUpdates
	c.lockSpins += s.LockSpins
	c.maxLockSpins = max(c.maxLockSpins, s.MaxLockSpins)
	c.rasterErrors += s.RasterErrors
	c.inside += s.ParticlesInside
	c.contact += s.ParticlesContact
	c.distanceP50 += s.DistanceP50
	c.impulse += s.Impulse
	c.peakImpulse = max(c.peakImpulse, s.Impulse)
	c.last = s
}

// ShouldFlush returns true if enough steps have passed to flush the window.
func (c *Collector) ShouldFlush(currentStep int) bool {
	return currentStep-c.windowStartStep >= c.windowSteps
}

// Flush produces the stats of the current window and starts a new one.
func (c *Collector) Flush(currentStep int) WindowStats {
	ws := WindowStats{
		WindowStartStep:  c.windowStartStep,
		WindowEndStep:    currentStep,
		SimTimeSec:       c.last.SimTimeSec,
		Steps:            c.steps,
		MaxLockSpins:     c.maxLockSpins,
		RasterErrors:     c.rasterErrors,
		PeakImpulse:      c.peakImpulse,
		ParticlesAtClose: c.last.Particles,
	}
	if c.steps > 0 {
		n := float64(c.steps)
		ws.MeanNodeUpdates = float64(c.nodeUpdates) / n
		ws.MeanLockSpins = float64(c.lockSpins) / n
		ws.MeanInside = float64(c.inside) / n
		ws.MeanContact = float64(c.contact) / n
		ws.MeanDistanceP50 = c.distanceP50 / n
		ws.MeanImpulse = c.impulse / n
	}

	*c = Collector{windowSteps: c.windowSteps, windowStartStep: currentStep}
	return ws
}
