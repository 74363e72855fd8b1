package rigid

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sandmpm/cdf"
)

// Collider is a kinematic rigid body with a triangle surface.
type Collider struct {
	Index       uint32
	Name        string
	Mesh        *Mesh
	Translation r3.Vec
	Velocity    r3.Vec

	// Impulse accumulates the reaction impulse applied by particles during
	// the current step.
	Impulse r3.Vec
}

// ToWorld maps a collider-local point to world space.
func (c *Collider) ToWorld(p r3.Vec) r3.Vec {
	return r3.Add(p, c.Translation)
}

// Set holds up to cdf.MaxColliders colliders indexed by their color bit.
type Set struct {
	colliders []*Collider
}

// NewSet creates an empty collider set.
func NewSet() *Set {
	return &Set{}
}

// Insert adds a collider and assigns its index.
func (s *Set) Insert(name string, mesh *Mesh, translation r3.Vec) (*Collider, error) {
	if len(s.colliders) >= cdf.MaxColliders {
		return nil, fmt.Errorf("collider %q: at most %d colliders are supported", name, cdf.MaxColliders)
	}
	if err := mesh.Validate(); err != nil {
		return nil, fmt.Errorf("collider %q: %w", name, err)
	}
	c := &Collider{
		Index:       uint32(len(s.colliders)),
		Name:        name,
		Mesh:        mesh,
		Translation: translation,
	}
	s.colliders = append(s.colliders, c)
	return c, nil
}

// Get returns the collider with the given index, or nil.
func (s *Set) Get(index uint32) *Collider {
	if int(index) >= len(s.colliders) {
		return nil
	}
	return s.colliders[index]
}

// Len returns the number of colliders.
func (s *Set) Len() int {
	return len(s.colliders)
}

// All returns the colliders in index order.
func (s *Set) All() []*Collider {
	return s.colliders
}

// Advance moves every collider by its velocity and clears impulses.
func (s *Set) Advance(dt float64) {
	for _, c := range s.colliders {
		c.Translation = r3.Add(c.Translation, r3.Scale(dt, c.Velocity))
		c.Impulse = r3.Vec{}
	}
}
