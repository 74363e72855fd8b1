package cdf

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

const tolerance = 1e-9

func TestComputeTagsAllZeroIsInside(t *testing.T) {
	var d InterpolatedData
	d.ComputeTags()

	for i := uint32(0); i < MaxColliders; i++ {
		if d.Tags()&(1<<i) != 0 {
			t.Errorf("collider %d: tag bit set on empty accumulator", i)
		}
	}
	if d.Dominant() != NoCollider {
		t.Errorf("Dominant() = %d, want NoCollider", d.Dominant())
	}
}

func TestComputeTagsZeroWeightWithAffinityIsOutside(t *testing.T) {
	var d InterpolatedData
	d.InterpolateColor(NodeState{UnsignedDistance: 0.3, Color: NewColor(1, 0, 5)}, 0)
	d.ComputeTags()

	if d.WeightedTag(5) != 0 {
		t.Fatalf("WeightedTag(5) = %v, want 0", d.WeightedTag(5))
	}
	// >= 0 is outside once the collider has affinity.
	if d.Tags() != 1<<5 {
		t.Errorf("Tags() = %016b, want bit 5", d.Tags())
	}
}

func TestInterpolateColorWeightsSigns(t *testing.T) {
	outside := NodeState{UnsignedDistance: 2, Color: NewColor(1, 1, 0)}
	inside := NodeState{UnsignedDistance: 1, Color: NewColor(1, 0, 0)}
	other := NodeState{UnsignedDistance: 5, Color: NewColor(1, 0, 3)}

	var d InterpolatedData
	d.InterpolateColor(outside, 0.25)
	d.InterpolateColor(inside, 0.75)
	d.InterpolateColor(other, 0.5)

	if got := d.WeightedTag(0); math.Abs(got-(0.5-0.75)) > tolerance {
		t.Errorf("WeightedTag(0) = %v, want -0.25", got)
	}
	if got := d.WeightedTag(3); math.Abs(got-(-2.5)) > tolerance {
		t.Errorf("WeightedTag(3) = %v, want -2.5", got)
	}
	// collider 3 never reached the other nodes: no contribution from them
	if d.WeightedTag(1) != 0 {
		t.Errorf("WeightedTag(1) = %v, want 0", d.WeightedTag(1))
	}
	if d.Affinities() != 1|1<<3 {
		t.Errorf("Affinities() = %b", d.Affinities())
	}

	d.ComputeTags()
	if d.Tags() != 0 {
		t.Errorf("Tags() = %016b, want both colliders inside", d.Tags())
	}
	// collider 0 reaches every node at a smaller distance
	if d.Dominant() != 0 {
		t.Errorf("Dominant() = %d, want 0", d.Dominant())
	}
}

func TestComputeTagsPicksNearestCollider(t *testing.T) {
	// A particle on the surface of collider 0: its nodes on either side cancel
	// in the weighted sign. Collider 1 only reaches one edge node.
	below := NodeState{UnsignedDistance: 0.2, Color: NewColor(1, 0, 0)}
	on := NodeState{UnsignedDistance: 0, Color: NewColor(1, 1, 0)}
	above := NodeState{UnsignedDistance: 0.2, Color: NewColor(1, 1, 0)}
	edge := NodeState{UnsignedDistance: 0.12, Color: NewColor(1, 1, 0) | NewColor(1, 1, 1)}

	var d InterpolatedData
	d.InterpolateColor(below, 0.125)
	d.InterpolateColor(on, 0.75)
	d.InterpolateColor(above, 0.1)
	d.InterpolateColor(edge, 0.025)
	d.ComputeTags()

	if math.Abs(d.WeightedTag(0)) >= math.Abs(d.WeightedTag(1)) {
		t.Fatalf("weighted tags %v, %v: collider 0 should cancel", d.WeightedTag(0), d.WeightedTag(1))
	}
	if d.Dominant() != 0 {
		t.Errorf("Dominant() = %d, want 0", d.Dominant())
	}
	if e0, e1 := d.DistanceEstimate(0), d.DistanceEstimate(1); e0 >= e1 {
		t.Errorf("DistanceEstimate: collider 0 = %v, collider 1 = %v", e0, e1)
	}
	if !math.IsInf(d.DistanceEstimate(7), 1) {
		t.Errorf("DistanceEstimate(7) = %v, want +Inf without affinity", d.DistanceEstimate(7))
	}
}

func TestComputeTagsTieGoesToLowestIndex(t *testing.T) {
	shared := NodeState{UnsignedDistance: 0.3, Color: NewColor(1, 1, 4) | NewColor(1, 0, 9)}

	var d InterpolatedData
	d.InterpolateColor(shared, 1)
	d.ComputeTags()

	if d.Dominant() != 4 {
		t.Errorf("Dominant() = %d, want 4", d.Dominant())
	}
}

func TestInterpolateColorOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	nodes := make([]NodeState, 27)
	weights := make([]float64, len(nodes))
	for i := range nodes {
		var c Color
		for k := 0; k < 3; k++ {
			collider := uint32(rng.Intn(MaxColliders))
			c.SetAffinity(collider)
			c.ChangeTag(collider, uint32(rng.Intn(2)))
		}
		nodes[i] = NodeState{UnsignedDistance: rng.Float64() * 3, Color: c}
		weights[i] = rng.Float64()
	}

	accumulate := func(order []int) InterpolatedData {
		var d InterpolatedData
		for _, i := range order {
			d.InterpolateColor(nodes[i], weights[i])
		}
		return d
	}

	order := rng.Perm(len(nodes))
	ref := accumulate(order)
	for perm := 0; perm < 20; perm++ {
		order = rng.Perm(len(nodes))
		got := accumulate(order)

		if got.Affinities() != ref.Affinities() {
			t.Fatalf("affinities differ: %b vs %b", got.Affinities(), ref.Affinities())
		}
		for c := uint32(0); c < MaxColliders; c++ {
			if math.Abs(got.WeightedTag(c)-ref.WeightedTag(c)) > tolerance {
				t.Fatalf("weighted tag %d differs: %v vs %v", c, got.WeightedTag(c), ref.WeightedTag(c))
			}
			ge, re := got.DistanceEstimate(c), ref.DistanceEstimate(c)
			if !(math.IsInf(ge, 1) && math.IsInf(re, 1)) && math.Abs(ge-re) > tolerance {
				t.Fatalf("distance estimate %d differs: %v vs %v", c, ge, re)
			}
		}
	}
}

func TestInterpolateDistanceRequiresTags(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic before ComputeTags")
		}
	}()
	var d InterpolatedData
	d.InterpolateDistanceAndNormal(NodeState{}, 1, 1, r3.Vec{})
}

// quadraticWeights mirrors the grid kernel so the gradient law can be
// checked without importing the grid package.
func quadraticWeights(x float64) (int, [3]float64) {
	base := int(math.Floor(x - 0.5))
	fx := x - float64(base)
	return base, [3]float64{
		0.5 * (1.5 - fx) * (1.5 - fx),
		0.75 - (fx-1)*(fx-1),
		0.5 * (fx - 0.5) * (fx - 0.5),
	}
}

func TestInterpolateDistanceAndNormalLinearField(t *testing.T) {
	const dx = 0.2
	invD := 1 / dx
	n := r3.Unit(r3.Vec{X: 0.3, Y: 1, Z: -0.2})
	offset := -0.05
	phi := func(p r3.Vec) float64 { return r3.Dot(n, p) + offset }

	for _, p := range []r3.Vec{
		{X: 0.51, Y: 0.43, Z: 0.37},
		{X: 1.02, Y: 0.11, Z: 0.9},
		{X: 0.3, Y: 0.3, Z: 0.3},
	} {
		var nodes []NodeState
		var ws []float64
		var dpts []r3.Vec

		bx, wx := quadraticWeights(p.X * invD)
		by, wy := quadraticWeights(p.Y * invD)
		bz, wz := quadraticWeights(p.Z * invD)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				for k := 0; k < 3; k++ {
					xi := r3.Vec{X: float64(bx+i) * dx, Y: float64(by+j) * dx, Z: float64(bz+k) * dx}
					node := NewGridData()
					if err := node.Update(phi(xi), 2, 0); err != nil {
						t.Fatal(err)
					}
					nodes = append(nodes, node.State())
					ws = append(ws, wx[i]*wy[j]*wz[k])
					dpts = append(dpts, r3.Sub(xi, p))
				}
			}
		}

		var d InterpolatedData
		for i := range nodes {
			d.InterpolateColor(nodes[i], ws[i])
		}
		d.ComputeTags()
		for i := range nodes {
			d.InterpolateDistanceAndNormal(nodes[i], ws[i], invD, dpts[i])
		}
		res := d.Particle()

		if res.Collider != 2 {
			t.Fatalf("Collider = %d, want 2", res.Collider)
		}
		if math.Abs(res.SignedDistance-phi(p)) > 1e-9 {
			t.Errorf("p=%v: SignedDistance = %v, want %v", p, res.SignedDistance, phi(p))
		}
		if r3.Norm(r3.Sub(res.Gradient, n)) > 1e-9 {
			t.Errorf("p=%v: Gradient = %v, want %v", p, res.Gradient, n)
		}
		if r3.Norm(r3.Sub(res.Normal, n)) > 1e-9 {
			t.Errorf("p=%v: Normal = %v, want %v", p, res.Normal, n)
		}
		wantInside := phi(p) < 0
		if res.Inside(2) != (d.WeightedTag(2) < 0) || (d.WeightedTag(2) < 0) != wantInside {
			t.Errorf("p=%v: inside = %v, want %v", p, res.Inside(2), wantInside)
		}
	}
}

func TestParticleUntouched(t *testing.T) {
	var d InterpolatedData
	d.InterpolateColor(NodeState{UnsignedDistance: math.Inf(1)}, 0.5)
	res := d.Particle()

	if res.Touched() {
		t.Error("untouched particle reports Touched")
	}
	if !math.IsInf(res.SignedDistance, 1) {
		t.Errorf("SignedDistance = %v, want +Inf", res.SignedDistance)
	}
	if res.Color != 0 {
		t.Errorf("Color = %v, want 0", res.Color)
	}
}

func TestParticleRenormalisesPartialStencil(t *testing.T) {
	node := NodeState{UnsignedDistance: 0.4, Color: NewColor(1, 0, 1)}
	empty := NodeState{UnsignedDistance: math.Inf(1)}

	var d InterpolatedData
	d.InterpolateColor(node, 0.2)
	d.InterpolateColor(empty, 0.8)
	d.ComputeTags()
	d.InterpolateDistanceAndNormal(node, 0.2, 5, r3.Vec{X: 0.1})
	d.InterpolateDistanceAndNormal(empty, 0.8, 5, r3.Vec{X: -0.1})

	res := d.Particle()
	if math.Abs(res.SignedDistance-(-0.4)) > tolerance {
		t.Errorf("SignedDistance = %v, want -0.4", res.SignedDistance)
	}
	if !res.Inside(1) {
		t.Error("particle should be inside collider 1")
	}
}
