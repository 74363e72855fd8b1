// Package rigid describes rigid colliders as triangle meshes and samples
// their surfaces into rigid particles for grid rasterisation.
package rigid

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is a closed or open triangle surface in collider-local coordinates.
// Triangles are wound counter-clockwise when seen from outside, so their
// normals point out of the collider.
type Mesh struct {
	Vertices  []r3.Vec
	Triangles [][3]uint32
}

// Triangle returns the local-space corners of triangle i.
func (m *Mesh) Triangle(i uint32) (a, b, c r3.Vec) {
	t := m.Triangles[i]
	return m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
}

// TriangleNormal returns the unit outward normal of triangle i.
func (m *Mesh) TriangleNormal(i uint32) r3.Vec {
	a, b, c := m.Triangle(i)
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	if l := r3.Norm(n); l > 0 {
		return r3.Scale(1/l, n)
	}
	return r3.Vec{}
}

// Validate checks that every triangle references existing vertices.
func (m *Mesh) Validate() error {
	if len(m.Triangles) == 0 {
		return fmt.Errorf("mesh has no triangles")
	}
	for i, t := range m.Triangles {
		for _, v := range t {
			if int(v) >= len(m.Vertices) {
				return fmt.Errorf("triangle %d references vertex %d of %d", i, v, len(m.Vertices))
			}
		}
	}
	return nil
}

func (m *Mesh) addQuad(a, b, c, d uint32) {
	m.Triangles = append(m.Triangles, [3]uint32{a, b, c}, [3]uint32{a, c, d})
}

// Cuboid builds a box centred on the origin.
func Cuboid(halfExtents r3.Vec) *Mesh {
	hx, hy, hz := halfExtents.X, halfExtents.Y, halfExtents.Z
	m := &Mesh{Vertices: []r3.Vec{
		{X: -hx, Y: -hy, Z: -hz}, // 0
		{X: hx, Y: -hy, Z: -hz},  // 1
		{X: hx, Y: hy, Z: -hz},   // 2
		{X: -hx, Y: hy, Z: -hz},  // 3
		{X: -hx, Y: -hy, Z: hz},  // 4
		{X: hx, Y: -hy, Z: hz},   // 5
		{X: hx, Y: hy, Z: hz},    // 6
		{X: -hx, Y: hy, Z: hz},   // 7
	}}
	m.addQuad(0, 3, 2, 1) // -z
	m.addQuad(4, 5, 6, 7) // +z
	m.addQuad(0, 1, 5, 4) // -y
	m.addQuad(3, 7, 6, 2) // +y
	m.addQuad(0, 4, 7, 3) // -x
	m.addQuad(1, 2, 6, 5) // +x
	return m
}

// Plane builds a horizontal square patch at y = 0 facing +y.
func Plane(halfSize float64) *Mesh {
	m := &Mesh{Vertices: []r3.Vec{
		{X: -halfSize, Z: -halfSize},
		{X: halfSize, Z: -halfSize},
		{X: halfSize, Z: halfSize},
		{X: -halfSize, Z: halfSize},
	}}
	m.addQuad(0, 3, 2, 1)
	return m
}

// Heightfield builds a surface over an (nx+1)x(nz+1) height lattice spanning
// scale.X by scale.Z, centred on the origin. Heights are multiplied by
// scale.Y. The surface faces +y.
func Heightfield(heights [][]float64, scale r3.Vec) (*Mesh, error) {
	nx := len(heights) - 1
	if nx < 1 {
		return nil, fmt.Errorf("heightfield needs at least 2 rows, got %d", len(heights))
	}
	nz := len(heights[0]) - 1
	if nz < 1 {
		return nil, fmt.Errorf("heightfield needs at least 2 columns, got %d", len(heights[0]))
	}

	m := &Mesh{Vertices: make([]r3.Vec, 0, (nx+1)*(nz+1))}
	for i := 0; i <= nx; i++ {
		if len(heights[i]) != nz+1 {
			return nil, fmt.Errorf("heightfield row %d has %d columns, want %d", i, len(heights[i]), nz+1)
		}
		for j := 0; j <= nz; j++ {
			m.Vertices = append(m.Vertices, r3.Vec{
				X: (float64(i)/float64(nx) - 0.5) * scale.X,
				Y: heights[i][j] * scale.Y,
				Z: (float64(j)/float64(nz) - 0.5) * scale.Z,
			})
		}
	}

	idx := func(i, j int) uint32 { return uint32(i*(nz+1) + j) }
	for i := 0; i < nx; i++ {
		for j := 0; j < nz; j++ {
			m.addQuad(idx(i, j), idx(i, j+1), idx(i+1, j+1), idx(i+1, j))
		}
	}
	return m, nil
}
