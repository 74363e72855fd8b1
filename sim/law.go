package sim

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sandmpm/cdf"
	"github.com/pthm-cable/sandmpm/rigid"
)

// ContactState is the particle state handed to a coupling law.
type ContactState struct {
	Position r3.Vec
	Velocity r3.Vec
	Mass     float64
	Cdf      cdf.ParticleCdf
}

// CouplingLaw turns a resolved particle CDF into a velocity and position
// correction. Apply is called single-threaded, once per non-kinematic
// touched particle, after gravity has been applied to the velocity. It
// reports whether the particle was in contact and the impulse the particle
// exerts on the collider.
type CouplingLaw interface {
	Apply(p *ContactState, collider *rigid.Collider) (impulse r3.Vec, contact bool)
}

// ProjectionContact is a velocity projection contact with Coulomb friction.
//
// A particle whose signed distance is below Margin is pushed back out to
// the margin along the CDF normal. If it is also approaching the collider,
// the normal relative velocity is removed and the tangential relative
// velocity is reduced by Friction times the removed normal speed.
type ProjectionContact struct {
	Margin   float64
	Friction float64
}

// Apply implements CouplingLaw.
func (c ProjectionContact) Apply(p *ContactState, collider *rigid.Collider) (r3.Vec, bool) {
	if collider == nil || !p.Cdf.Touched() {
		return r3.Vec{}, false
	}
	sd := p.Cdf.SignedDistance
	n := p.Cdf.Normal
	if sd >= c.Margin || r3.Norm2(n) == 0 {
		return r3.Vec{}, false
	}

	var dv r3.Vec
	rel := r3.Sub(p.Velocity, collider.Velocity)
	if vn := r3.Dot(rel, n); vn < 0 {
		tangent := r3.Sub(rel, r3.Scale(vn, n))
		if vt := r3.Norm(tangent); vt > 0 {
			drop := -vn * c.Friction
			if drop >= vt {
				tangent = r3.Vec{}
			} else {
				tangent = r3.Scale((vt-drop)/vt, tangent)
			}
		}
		v := r3.Add(tangent, collider.Velocity)
		dv = r3.Sub(v, p.Velocity)
		p.Velocity = v
	}

	p.Position = r3.Add(p.Position, r3.Scale(c.Margin-sd, n))
	return r3.Scale(-p.Mass, dv), true
}
