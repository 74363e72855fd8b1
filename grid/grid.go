// Package grid holds the background grid of CDF cells and the two phases
// that use it each step: rasterising rigid samples onto nodes and gathering
// node data back onto particles.
package grid

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sandmpm/cdf"
	"github.com/pthm-cable/sandmpm/parallel"
)

// Grid is a uniform, axis-aligned lattice of CDF nodes.
type Grid struct {
	origin  r3.Vec
	spacing float64
	invD    float64
	dims    [3]int
	nodes   []cdf.GridData
}

// New creates a grid with dims nodes per axis, node (0,0,0) at origin.
func New(origin r3.Vec, spacing float64, dims [3]int) (*Grid, error) {
	if spacing <= 0 {
		return nil, fmt.Errorf("grid spacing must be positive, got %v", spacing)
	}
	for axis, n := range dims {
		if n < StencilWidth {
			return nil, fmt.Errorf("grid axis %d has %d nodes, need at least %d", axis, n, StencilWidth)
		}
	}

	g := &Grid{
		origin:  origin,
		spacing: spacing,
		invD:    1 / spacing,
		dims:    dims,
		nodes:   make([]cdf.GridData, dims[0]*dims[1]*dims[2]),
	}
	for i := range g.nodes {
		g.nodes[i].Reset()
	}
	return g, nil
}

// Spacing returns the node spacing.
func (g *Grid) Spacing() float64 { return g.spacing }

// InvD returns the inverse node spacing.
func (g *Grid) InvD() float64 { return g.invD }

// Dims returns the node count per axis.
func (g *Grid) Dims() [3]int { return g.dims }

// Len returns the total node count.
func (g *Grid) Len() int { return len(g.nodes) }

// Index returns the flat index of node (i, j, k) and whether it is in bounds.
func (g *Grid) Index(i, j, k int) (int, bool) {
	if i < 0 || j < 0 || k < 0 || i >= g.dims[0] || j >= g.dims[1] || k >= g.dims[2] {
		return 0, false
	}
	return (i*g.dims[1]+j)*g.dims[2] + k, true
}

// Node returns node (i, j, k), or nil when out of bounds.
func (g *Grid) Node(i, j, k int) *cdf.GridData {
	idx, ok := g.Index(i, j, k)
	if !ok {
		return nil
	}
	return &g.nodes[idx]
}

// NodeAt returns the node at a flat index.
func (g *Grid) NodeAt(idx int) *cdf.GridData {
	return &g.nodes[idx]
}

// NodePosition returns the world position of node (i, j, k).
func (g *Grid) NodePosition(i, j, k int) r3.Vec {
	return r3.Vec{
		X: g.origin.X + float64(i)*g.spacing,
		Y: g.origin.Y + float64(j)*g.spacing,
		Z: g.origin.Z + float64(k)*g.spacing,
	}
}

// StencilAt returns the kernel stencil of world position p.
func (g *Grid) StencilAt(p r3.Vec) Stencil {
	var s Stencil
	s.Base[0], s.Wx = quadratic((p.X - g.origin.X) * g.invD)
	s.Base[1], s.Wy = quadratic((p.Y - g.origin.Y) * g.invD)
	s.Base[2], s.Wz = quadratic((p.Z - g.origin.Z) * g.invD)
	return s
}

// ForEachNode calls fn for every in-bounds node of the stencil around p
// with the node's flat index, kernel weight and the offset node - p.
func (g *Grid) ForEachNode(p r3.Vec, fn func(idx int, weight float64, dpt r3.Vec)) {
	s := g.StencilAt(p)
	for i := 0; i < StencilWidth; i++ {
		for j := 0; j < StencilWidth; j++ {
			for k := 0; k < StencilWidth; k++ {
				ni, nj, nk := s.Base[0]+i, s.Base[1]+j, s.Base[2]+k
				idx, ok := g.Index(ni, nj, nk)
				if !ok {
					continue
				}
				fn(idx, s.Weight(i, j, k), r3.Sub(g.NodePosition(ni, nj, nk), p))
			}
		}
	}
}

// Reset clears every node. It must run while no rasterisation lane is active.
func (g *Grid) Reset(ctx context.Context, pool *parallel.Pool) error {
	return pool.Run(ctx, len(g.nodes), func(_, start, end int) error {
		for i := start; i < end; i++ {
			g.nodes[i].Reset()
		}
		return nil
	})
}

// Touched counts nodes written by at least one collider.
func (g *Grid) Touched() int {
	n := 0
	for i := range g.nodes {
		if g.nodes[i].Color().Affinities() != 0 {
			n++
		}
	}
	return n
}
