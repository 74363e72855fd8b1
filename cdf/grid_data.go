package cdf

import "math"

// GridData is the CDF cell stored at one background grid node.
//
// The distance and color only change through Update, which serialises
// writers on the node's spin lock so that a distance and the tag that came
// with it are always written together.
type GridData struct {
	unsignedDistance float64
	color            Color
	lock             SpinLock
}

// NodeState is a copy of a node's logical state.
type NodeState struct {
	UnsignedDistance float64
	Color            Color
}

// NewGridData returns a node that has not seen any rigid sample. Nodes
// allocated in bulk must be Reset before use since the zero value reads as
// distance 0.
func NewGridData() *GridData {
	n := &GridData{}
	n.Reset()
	return n
}

// Reset restores the untouched state. Must not race with Update.
func (n *GridData) Reset() {
	n.unsignedDistance = math.Inf(1)
	n.color = 0
}

// Update records a signed distance observed from a surface sample of
// collider. It waits at most DefaultSpinBudget attempts for the node lock.
func (n *GridData) Update(signedDistance float64, collider, lane uint32) error {
	_, err := n.UpdateWithBudget(signedDistance, collider, lane, DefaultSpinBudget)
	return err
}

// UpdateWithBudget is Update with an explicit spin budget. It returns the
// number of failed lock attempts, which callers use as a contention measure.
//
// The affinity for collider is always set. The tag and distance are replaced
// only when |signedDistance| is strictly smaller than the stored distance.
// Non-negative distances tag the node outside (1), negative ones inside (0).
func (n *GridData) UpdateWithBudget(signedDistance float64, collider, lane uint32, maxSpins int) (int, error) {
	checkCollider(collider)
	unsigned := math.Abs(signedDistance)
	var tag uint32
	if signedDistance >= 0 {
		tag = 1
	}

	spins, err := n.lock.Acquire(lane, maxSpins)
	if err != nil {
		return spins, err
	}

	n.color.SetAffinity(collider)
	if unsigned < n.unsignedDistance {
		n.color.ChangeTag(collider, tag)
		n.unsignedDistance = unsigned
	}

	n.lock.Release()
	return spins, nil
}

// UnsignedDistance returns the stored distance without locking. Only valid
// once every writer for the current step has finished.
func (n *GridData) UnsignedDistance() float64 {
	return n.unsignedDistance
}

// Color returns the stored color without locking. Only valid once every
// writer for the current step has finished.
func (n *GridData) Color() Color {
	return n.color
}

// State returns the node's state without locking, under the same rule as
// UnsignedDistance.
func (n *GridData) State() NodeState {
	return NodeState{UnsignedDistance: n.unsignedDistance, Color: n.color}
}

// Snapshot reads the distance/color pair under the node lock. It may be used
// while writers are active.
func (n *GridData) Snapshot(lane uint32) (NodeState, error) {
	if _, err := n.lock.Acquire(lane, DefaultSpinBudget); err != nil {
		return NodeState{}, err
	}
	s := NodeState{UnsignedDistance: n.unsignedDistance, Color: n.color}
	n.lock.Release()
	return s, nil
}

// Touched reports whether any collider has written this node.
func (s NodeState) Touched() bool {
	return s.Color.Affinities() != 0
}
