package rigid

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// localSample is a surface sample in collider-local space.
type localSample struct {
	position r3.Vec
	triangle uint32
}

// Sampler generates rigid particles over every collider surface. Local
// samples are computed once per collider; Sample only re-applies each
// collider's current translation.
type Sampler struct {
	spacing float64
	local   [][]localSample
	out     []Particle
}

// NewSampler creates a sampler that places samples at most spacing apart
// along triangle edges.
func NewSampler(spacing float64) *Sampler {
	return &Sampler{spacing: spacing}
}

// Spacing returns the maximum sample spacing.
func (s *Sampler) Spacing() float64 {
	return s.spacing
}

// Sample returns the world-space samples of all colliders in set. The
// returned slice is reused by the next call.
func (s *Sampler) Sample(set *Set) []Particle {
	for len(s.local) < set.Len() {
		c := set.Get(uint32(len(s.local)))
		s.local = append(s.local, sampleMesh(c.Mesh, s.spacing))
	}

	s.out = s.out[:0]
	for _, c := range set.All() {
		for _, ls := range s.local[c.Index] {
			s.out = append(s.out, NewParticle(c.ToWorld(ls.position), c.Index, ls.triangle))
		}
	}
	return s.out
}

// sampleMesh places samples on a barycentric lattice over each triangle,
// fine enough that neighbouring samples are no further apart than spacing.
func sampleMesh(m *Mesh, spacing float64) []localSample {
	var out []localSample
	for ti := range m.Triangles {
		a, b, c := m.Triangle(uint32(ti))
		longest := math.Max(r3.Norm(r3.Sub(b, a)), math.Max(r3.Norm(r3.Sub(c, b)), r3.Norm(r3.Sub(a, c))))
		n := max(1, int(math.Ceil(longest/spacing)))

		for i := 0; i <= n; i++ {
			for j := 0; j <= n-i; j++ {
				u := float64(i) / float64(n)
				v := float64(j) / float64(n)
				w := 1 - u - v
				p := r3.Add(r3.Add(r3.Scale(w, a), r3.Scale(u, b)), r3.Scale(v, c))
				out = append(out, localSample{position: p, triangle: uint32(ti)})
			}
		}
	}
	return out
}
