package cdf

import "fmt"

// MaxColliders is the number of colliders a Color can describe. The bit layout
// of Color depends on it: affinities in the low half, tags in the high half.
const MaxColliders = 16

const (
	tagShift     = MaxColliders
	affinityMask = 1<<MaxColliders - 1
)

// Color packs per-collider affinity and tag bits into one word.
//
// Bit i of the low 16 bits is set when collider i touched the point. Bit
// 16+i is the inside(0)/outside(1) tag for collider i and only carries
// meaning while the matching affinity bit is set.
type Color uint32

// NewColor builds a color with a single collider's affinity and tag bits.
func NewColor(affinity, tag, collider uint32) Color {
	checkCollider(collider)
	checkBit(affinity)
	checkBit(tag)
	return Color(affinity<<collider | tag<<(collider+tagShift))
}

// Affinity returns 1 if collider has touched this color.
func (c Color) Affinity(collider uint32) uint32 {
	checkCollider(collider)
	return 1 & (uint32(c) >> collider)
}

// Tag returns the tag bit for collider. Check Affinity first.
func (c Color) Tag(collider uint32) uint32 {
	checkCollider(collider)
	return 1 & (uint32(c) >> (collider + tagShift))
}

// HasAffinity reports whether collider has touched this color.
func (c Color) HasAffinity(collider uint32) bool {
	return c.Affinity(collider) == 1
}

// IsInside reports whether the color is affine to collider and tagged inside.
func (c Color) IsInside(collider uint32) bool {
	return c.HasAffinity(collider) && c.Tag(collider) == 0
}

// SetAffinity marks collider as having touched this color.
func (c *Color) SetAffinity(collider uint32) {
	checkCollider(collider)
	*c |= 1 << collider
}

// ChangeTag sets the tag bit for collider to value (0 or 1).
func (c *Color) ChangeTag(collider, value uint32) {
	checkCollider(collider)
	checkBit(value)
	offset := collider + tagShift
	*c = *c&^(1<<offset) | Color(value<<offset)
}

// Affinities returns the affinity mask.
func (c Color) Affinities() uint32 {
	return uint32(c) & affinityMask
}

// Tags returns the tag mask shifted down to bits [0,16).
func (c Color) Tags() uint32 {
	return uint32(c) >> tagShift
}

func (c Color) String() string {
	return fmt.Sprintf("Color{affinity=%016b tag=%016b}", c.Affinities(), c.Tags())
}

func checkCollider(collider uint32) {
	if collider >= MaxColliders {
		panic(fmt.Sprintf("cdf: collider index %d out of range [0,%d)", collider, MaxColliders))
	}
}

func checkBit(v uint32) {
	if v > 1 {
		panic(fmt.Sprintf("cdf: bit value %d is not 0 or 1", v))
	}
}
