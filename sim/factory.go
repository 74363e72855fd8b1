package sim

import (
	"fmt"
	"math"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sandmpm/components"
	"github.com/pthm-cable/sandmpm/config"
	"github.com/pthm-cable/sandmpm/rigid"
)

func vec(a [3]float64) r3.Vec {
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}
}

func arr(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// buildColliders creates the collider set described by cfg.
func buildColliders(cfg []config.ColliderConfig) (*rigid.Set, error) {
	set := rigid.NewSet()
	for _, cc := range cfg {
		mesh, err := buildMesh(cc)
		if err != nil {
			return nil, fmt.Errorf("collider %q: %w", cc.Name, err)
		}
		c, err := set.Insert(cc.Name, mesh, vec(cc.Translation))
		if err != nil {
			return nil, err
		}
		c.Velocity = vec(cc.Velocity)
	}
	return set, nil
}

func buildMesh(cc config.ColliderConfig) (*rigid.Mesh, error) {
	switch cc.Shape {
	case "cuboid":
		return rigid.Cuboid(vec(cc.HalfExtents)), nil
	case "plane":
		return rigid.Plane(cc.HalfExtents[0]), nil
	case "heightfield":
		hf := cc.Heightfield
		return rigid.Heightfield(sineHeights(hf.Rows, hf.Cols, hf.Amplitude), vec(hf.Scale))
	default:
		return nil, fmt.Errorf("unknown shape %q", cc.Shape)
	}
}

// sineHeights builds a (rows+1)x(cols+1) trough that dips by amplitude
// across the rows and is constant across the columns.
func sineHeights(rows, cols int, amplitude float64) [][]float64 {
	heights := make([][]float64, rows+1)
	for i := range heights {
		h := -amplitude * math.Sin(float64(i)*math.Pi/float64(rows))
		heights[i] = make([]float64, cols+1)
		for j := range heights[i] {
			heights[i][j] = h
		}
	}
	return heights
}

// spawnBlocks fills every configured block with particles on a regular
// lattice, offset half a spacing from the block corner.
func (w *World) spawnBlocks(blocks []config.BlockConfig) {
	for bi, b := range blocks {
		volume := b.Spacing * b.Spacing * b.Spacing
		mat := components.Material{
			Mass:      b.Density * volume,
			Volume:    volume,
			Block:     bi,
			Kinematic: b.Kinematic,
		}
		vel := vec(b.Velocity)
		half := b.Spacing / 2

		for i := 0; i < b.Counts[0]; i++ {
			for j := 0; j < b.Counts[1]; j++ {
				for k := 0; k < b.Counts[2]; k++ {
					pos := r3.Vec{
						X: b.Min[0] + half + float64(i)*b.Spacing,
						Y: b.Min[1] + half + float64(j)*b.Spacing,
						Z: b.Min[2] + half + float64(k)*b.Spacing,
					}
					w.SpawnParticle(pos, vel, mat)
				}
			}
		}
	}
}

// SpawnParticle adds a material particle to the world.
func (w *World) SpawnParticle(pos, vel r3.Vec, mat components.Material) ecs.Entity {
	p := components.Position{Vec: pos}
	v := components.Velocity{Vec: vel}
	c := components.NewCdf()
	entity := w.mapper.NewEntity(&p, &v, &mat, &c)
	w.particles++
	return entity
}
