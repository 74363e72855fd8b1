// Package cdf implements the Continuum Distance Field used to couple rigid
// colliders with grid-based material: per-node distance/color cells guarded by
// a spin lock, the packed affinity/tag color word, and the per-particle
// interpolation that resolves which side of each collider a particle lies on.
package cdf

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
)

// Lock word states. Any non-zero value is LOCKED and encodes owner lane + 1.
const (
	lockFree uint32 = 0
)

// MaxLane is the largest lane id a SpinLock accepts. Lane MaxLane+1 would
// encode as FREE.
const MaxLane = math.MaxUint32 - 1

// spinsBeforeYield is how many pure CAS attempts are made before the waiter
// starts yielding the processor between attempts.
const spinsBeforeYield = 64

// DefaultSpinBudget bounds how long Update waits on a node before reporting a
// stuck lock. Zero or negative budgets wait forever.
var DefaultSpinBudget = 1 << 22

// ErrLockTimeout is returned when a spin budget is exhausted.
var ErrLockTimeout = errors.New("cdf: spin lock timeout")

// LockTimeoutError describes a lane that gave up waiting on a node lock.
type LockTimeoutError struct {
	Lane  uint32 // waiting lane
	Owner uint32 // lane holding the lock when the budget ran out
	Spins int
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("cdf: lane %d gave up after %d spins, lock held by lane %d", e.Lane, e.Spins, e.Owner)
}

func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }

// SpinLock is a busy-wait mutex built on a single atomic word. It has no
// fairness: waiters race on every attempt.
type SpinLock struct {
	state atomic.Uint32
}

// TryAcquire makes a single FREE→LOCKED transition attempt on behalf of lane.
func (l *SpinLock) TryAcquire(lane uint32) bool {
	checkLane(lane)
	return l.state.CompareAndSwap(lockFree, lane+1)
}

// Acquire spins until the lock is taken by lane. It returns the number of
// failed attempts. With maxSpins > 0 the wait is bounded and a
// *LockTimeoutError is returned when the budget runs out.
func (l *SpinLock) Acquire(lane uint32, maxSpins int) (int, error) {
	checkLane(lane)
	spins := 0
	for !l.state.CompareAndSwap(lockFree, lane+1) {
		spins++
		if maxSpins > 0 && spins >= maxSpins {
			owner, _ := l.Owner()
			return spins, &LockTimeoutError{Lane: lane, Owner: owner, Spins: spins}
		}
		if spins > spinsBeforeYield {
			// The owner may be a descheduled goroutine.
			runtime.Gosched()
		}
	}
	return spins, nil
}

// Release returns the lock to FREE. Releasing a lock that is not held panics.
func (l *SpinLock) Release() {
	if l.state.Swap(lockFree) == lockFree {
		panic("cdf: release of unlocked spin lock")
	}
}

// Owner reports the lane currently holding the lock.
func (l *SpinLock) Owner() (lane uint32, held bool) {
	v := l.state.Load()
	if v == lockFree {
		return 0, false
	}
	return v - 1, true
}

func checkLane(lane uint32) {
	if lane > MaxLane {
		panic(fmt.Sprintf("cdf: lane %d out of range [0,%d]", lane, uint32(MaxLane)))
	}
}
