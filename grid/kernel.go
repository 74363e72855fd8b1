package grid

import "math"

// StencilWidth is the number of nodes per axis touched by the quadratic
// B-spline kernel.
const StencilWidth = 3

// SupportRadius is the kernel support in units of grid spacing.
const SupportRadius = 1.5

// Stencil holds the base node and per-axis weights of a point's kernel
// neighbourhood. Node (Base + (i,j,k)) has weight Wx[i]*Wy[j]*Wz[k].
type Stencil struct {
	Base       [3]int
	Wx, Wy, Wz [StencilWidth]float64
}

// quadratic returns the base index and weights of the quadratic B-spline
// for a coordinate x expressed in grid units.
func quadratic(x float64) (int, [StencilWidth]float64) {
	base := int(math.Floor(x - 0.5))
	fx := x - float64(base)
	return base, [StencilWidth]float64{
		0.5 * (1.5 - fx) * (1.5 - fx),
		0.75 - (fx-1)*(fx-1),
		0.5 * (fx - 0.5) * (fx - 0.5),
	}
}

// Weight returns the weight of stencil node (i, j, k).
func (s *Stencil) Weight(i, j, k int) float64 {
	return s.Wx[i] * s.Wy[j] * s.Wz[k]
}
