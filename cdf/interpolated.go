package cdf

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// NoCollider marks a particle that no collider has touched.
const NoCollider = -1

// InterpolatedData accumulates the CDF seen by one particle over its kernel
// stencil. The zero value is ready to use.
//
// Usage per particle and step:
//
//	var acc cdf.InterpolatedData
//	for each stencil node: acc.InterpolateColor(node, w)
//	acc.ComputeTags()
//	for each stencil node: acc.InterpolateDistanceAndNormal(node, w, invD, nodePos-particlePos)
//	result := acc.Particle()
type InterpolatedData struct {
	affinities   uint32
	tags         uint32
	weightedTags [MaxColliders]float64

	// Per-collider kernel weight of affine nodes and their weighted
	// unsigned distance, used to find the nearest collider.
	coverage [MaxColliders]float64
	nearness [MaxColliders]float64
	// Kernel weight of touched nodes and the largest distance among them.
	touchedWeight float64
	farthest      float64

	dominant int
	resolved bool

	signedDistance float64
	gradient       r3.Vec
	weightSum      float64
}

// InterpolateColor folds one stencil node into the per-collider weighted
// signs. Colliders the node has no affinity for are skipped since their tag
// bits carry no meaning.
func (d *InterpolatedData) InterpolateColor(node NodeState, weight float64) {
	affinities := node.Color.Affinities()
	d.affinities |= affinities
	if affinities == 0 {
		return
	}

	ud := node.UnsignedDistance
	d.touchedWeight += weight
	if weight > 0 {
		d.farthest = max(d.farthest, ud)
	}
	for collider := uint32(0); collider < MaxColliders; collider++ {
		if affinities&(1<<collider) == 0 {
			continue
		}
		sign := -1.0
		if node.Color.Tag(collider) == 1 {
			sign = 1.0
		}
		d.weightedTags[collider] += weight * ud * sign
		d.coverage[collider] += weight
		d.nearness[collider] += weight * ud
	}
}

// ComputeTags resolves the weighted signs into tag bits and picks the
// dominant collider. A collider is tagged outside (1) when it has affinity
// and its weighted sign is >= 0. Colliders without affinity stay 0.
//
// The dominant collider is the nearest one by DistanceEstimate. Ties go to
// the lowest index.
func (d *InterpolatedData) ComputeTags() {
	d.tags = 0
	d.dominant = NoCollider
	best := math.Inf(1)
	for collider := 0; collider < MaxColliders; collider++ {
		if d.affinities&(1<<collider) == 0 {
			continue
		}
		if d.weightedTags[collider] >= 0 {
			d.tags |= 1 << collider
		}
		if est := d.estimate(collider); est < best {
			best = est
			d.dominant = collider
		}
	}
	d.resolved = true
}

// DistanceEstimate returns the kernel-weighted unsigned distance from the
// particle to collider over every touched stencil node. Nodes the collider
// never reached count as the farthest touched distance. Nodes store the distance to the nearest collider of any
// index, so the estimate is a lower bound for colliders that share nodes.
func (d *InterpolatedData) DistanceEstimate(collider uint32) float64 {
	checkCollider(collider)
	if d.affinities&(1<<collider) == 0 {
		return math.Inf(1)
	}
	return d.estimate(int(collider))
}

func (d *InterpolatedData) estimate(collider int) float64 {
	return d.nearness[collider] + (d.touchedWeight-d.coverage[collider])*d.farthest
}

// InterpolateDistanceAndNormal accumulates the signed distance and its
// gradient for the dominant collider. dpt is the node position minus the
// particle position and invD the inverse grid spacing.
//
// The gradient uses the affine moment of the quadratic B-spline kernel,
// sum_i w_i phi_i D^-1 (x_i - x_p) with D^-1 = 4/dx^2, which is exact for
// linear distance fields over a full stencil.
func (d *InterpolatedData) InterpolateDistanceAndNormal(node NodeState, weight, invD float64, dpt r3.Vec) {
	if !d.resolved {
		panic("cdf: InterpolateDistanceAndNormal called before ComputeTags")
	}
	if d.dominant == NoCollider {
		return
	}
	c := uint32(d.dominant)
	if !node.Color.HasAffinity(c) {
		return
	}

	phi := node.UnsignedDistance
	if node.Color.Tag(c) == 0 {
		phi = -phi
	}
	d.signedDistance += weight * phi
	d.gradient = r3.Add(d.gradient, r3.Scale(weight*phi*4*invD*invD, dpt))
	d.weightSum += weight
}

// Particle finalises the accumulation. Contributions are renormalised by the
// kernel weight that actually reached affine nodes, so stencils that are only
// partly covered by the collider still report a distance, not a fraction of one.
func (d *InterpolatedData) Particle() ParticleCdf {
	if !d.resolved {
		d.ComputeTags()
	}
	color := Color(d.affinities | d.tags<<tagShift)
	if d.dominant == NoCollider || d.weightSum <= 0 {
		return ParticleCdf{
			Color:            color,
			Collider:         d.dominant,
			SignedDistance:   math.Inf(1),
			UnsignedDistance: math.Inf(1),
		}
	}

	inv := 1 / d.weightSum
	sd := d.signedDistance * inv
	grad := r3.Scale(inv, d.gradient)
	var normal r3.Vec
	if n := r3.Norm(grad); n > 0 {
		normal = r3.Scale(1/n, grad)
	}
	return ParticleCdf{
		Color:            color,
		Collider:         d.dominant,
		SignedDistance:   sd,
		UnsignedDistance: math.Abs(sd),
		Gradient:         grad,
		Normal:           normal,
	}
}

// Affinities returns the union of affinity bits seen so far.
func (d *InterpolatedData) Affinities() uint32 { return d.affinities }

// Tags returns the resolved tag bits. Zero until ComputeTags runs.
func (d *InterpolatedData) Tags() uint32 { return d.tags }

// WeightedTag returns the accumulated weighted sign for collider.
func (d *InterpolatedData) WeightedTag(collider uint32) float64 {
	checkCollider(collider)
	return d.weightedTags[collider]
}

// Dominant returns the collider selected by ComputeTags, or NoCollider.
func (d *InterpolatedData) Dominant() int { return d.dominant }

// Resolved reports whether ComputeTags has run.
func (d *InterpolatedData) Resolved() bool { return d.resolved }

// ParticleCdf is the resolved CDF of a particle, handed to the coupling law.
type ParticleCdf struct {
	// Color holds the particle's affinities and resolved tags.
	Color Color
	// Collider is the collider the distance refers to, or NoCollider.
	Collider         int
	SignedDistance   float64
	UnsignedDistance float64
	Gradient         r3.Vec
	// Normal is the unit gradient, pointing out of the collider.
	Normal r3.Vec
}

// Touched reports whether any collider influences the particle.
func (p ParticleCdf) Touched() bool {
	return p.Collider != NoCollider
}

// Inside reports whether the particle is classified inside collider.
func (p ParticleCdf) Inside(collider uint32) bool {
	return p.Color.IsInside(collider)
}
