// Package components defines ECS components for material particles.
package components

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sandmpm/cdf"
)

// Position represents a particle's world position.
type Position struct {
	r3.Vec
}

// Velocity represents a particle's velocity.
type Velocity struct {
	r3.Vec
}

// Material holds per-particle material properties.
type Material struct {
	Mass   float64
	Volume float64
	Block  int // index of the config block the particle was spawned from

	// Kinematic particles follow their velocity and ignore gravity and
	// contact. Their CDF is still gathered for telemetry.
	Kinematic bool
}

// Cdf holds the particle's CDF as resolved by the last gather.
type Cdf struct {
	cdf.ParticleCdf

	// Contact is set when the coupling law acted on the particle this step.
	Contact bool
}

// NewCdf returns an untouched CDF component.
func NewCdf() Cdf {
	return Cdf{ParticleCdf: cdf.ParticleCdf{Collider: cdf.NoCollider, SignedDistance: math.Inf(1), UnsignedDistance: math.Inf(1)}}
}
