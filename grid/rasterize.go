package grid

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
	"go.uber.org/multierr"

	"github.com/pthm-cable/sandmpm/cdf"
	"github.com/pthm-cable/sandmpm/parallel"
	"github.com/pthm-cable/sandmpm/rigid"
)

// RasterStats summarises one rasterisation pass.
type RasterStats struct {
	Samples     int
	NodeUpdates int
	Spins       int // failed lock attempts across all lanes
	MaxSpins    int // worst single update
}

func (s *RasterStats) merge(o RasterStats) {
	s.Samples += o.Samples
	s.NodeUpdates += o.NodeUpdates
	s.Spins += o.Spins
	s.MaxSpins = max(s.MaxSpins, o.MaxSpins)
}

// Rasterize writes every rigid sample onto the nodes of its kernel stencil.
// Each sample runs as its own lane; nodes shared between lanes are
// serialised by their spin locks. The grid must have been Reset for the
// step. When Rasterize returns, every write is complete and the grid can be
// gathered from.
func (g *Grid) Rasterize(ctx context.Context, pool *parallel.Pool, samples []rigid.Particle, set *rigid.Set, maxSpins int) (RasterStats, error) {
	// Sample indices double as lock lane ids.
	if uint64(len(samples)) > uint64(cdf.MaxLane)+1 {
		return RasterStats{}, fmt.Errorf("rasterize: %d samples exceed %d lock lanes", len(samples), uint64(cdf.MaxLane)+1)
	}
	perWorker := make([]RasterStats, pool.Workers())

	err := pool.Run(ctx, len(samples), func(worker, start, end int) error {
		stats := &perWorker[worker]
		var errs error
		for lane := start; lane < end; lane++ {
			if err := g.rasterizeSample(uint32(lane), samples[lane], set, maxSpins, stats); err != nil {
				errs = multierr.Append(errs, err)
				if ctx.Err() != nil {
					return multierr.Append(errs, ctx.Err())
				}
			}
		}
		return errs
	})

	var total RasterStats
	for _, s := range perWorker {
		total.merge(s)
	}
	return total, err
}

func (g *Grid) rasterizeSample(lane uint32, p rigid.Particle, set *rigid.Set, maxSpins int, stats *RasterStats) error {
	c := set.Get(p.ColliderIndex)
	if c == nil {
		return fmt.Errorf("rigid sample %d: unknown collider %d", lane, p.ColliderIndex)
	}
	if p.ColorIndex != 1<<p.ColliderIndex {
		return fmt.Errorf("rigid sample %d: color index %b does not match collider %d", lane, p.ColorIndex, p.ColliderIndex)
	}
	normal := c.Mesh.TriangleNormal(p.SegmentIndex)
	stats.Samples++

	var errs error
	g.ForEachNode(p.Position, func(idx int, _ float64, dpt r3.Vec) {
		nodePos := r3.Add(p.Position, dpt)
		sd := p.SignedDistanceTo(nodePos, normal)
		spins, err := g.nodes[idx].UpdateWithBudget(sd, p.ColliderIndex, lane, maxSpins)
		stats.Spins += spins
		stats.MaxSpins = max(stats.MaxSpins, spins)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rigid sample %d, node %d: %w", lane, idx, err))
			return
		}
		stats.NodeUpdates++
	})
	return errs
}
