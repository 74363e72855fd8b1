package rigid

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sandmpm/cdf"
)

// Particle is a sample point on a rigid collider's surface.
type Particle struct {
	Position      r3.Vec
	ColliderIndex uint32
	// SegmentIndex is the source triangle, used to recover the local surface
	// normal and to route reaction forces back onto the body.
	SegmentIndex uint32
	// ColorIndex caches the collider's affinity word.
	ColorIndex uint32
}

// NewParticle builds a sample and caches its color word.
func NewParticle(position r3.Vec, collider, segment uint32) Particle {
	return Particle{
		Position:      position,
		ColliderIndex: collider,
		SegmentIndex:  segment,
		ColorIndex:    cdf.NewColor(1, 0, collider).Affinities(),
	}
}

// SignedDistanceTo returns the distance from x to the tangent plane of the
// sample's triangle, positive on the outward side.
func (p Particle) SignedDistanceTo(x, normal r3.Vec) float64 {
	return r3.Dot(r3.Sub(x, p.Position), normal)
}
