package grid

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sandmpm/cdf"
	"github.com/pthm-cable/sandmpm/parallel"
)

// Gather resolves the CDF of every particle position into out. It only
// reads the grid and takes no locks, so it must run after Rasterize has
// returned for the step.
func (g *Grid) Gather(ctx context.Context, pool *parallel.Pool, positions []r3.Vec, out []cdf.ParticleCdf) error {
	if len(out) < len(positions) {
		return fmt.Errorf("gather: output holds %d particles, need %d", len(out), len(positions))
	}
	return pool.Run(ctx, len(positions), func(_, start, end int) error {
		for lane := start; lane < end; lane++ {
			out[lane] = g.GatherOne(positions[lane])
		}
		return nil
	})
}

// GatherOne resolves the CDF at a single position.
func (g *Grid) GatherOne(p r3.Vec) cdf.ParticleCdf {
	var acc cdf.InterpolatedData

	g.ForEachNode(p, func(idx int, w float64, _ r3.Vec) {
		acc.InterpolateColor(g.nodes[idx].State(), w)
	})
	acc.ComputeTags()

	if acc.Dominant() != cdf.NoCollider {
		g.ForEachNode(p, func(idx int, w float64, dpt r3.Vec) {
			acc.InterpolateDistanceAndNormal(g.nodes[idx].State(), w, g.invD, dpt)
		})
	}
	return acc.Particle()
}
