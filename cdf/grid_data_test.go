package cdf

import (
	"math"
	"math/rand"
	"sync"
	"testing"
)

func TestGridDataSequentialScenario(t *testing.T) {
	n := NewGridData()

	for _, u := range []struct {
		sd       float64
		collider uint32
	}{
		{1.0, 0},
		{-0.5, 0},
		{2.0, 1},
	} {
		if err := n.Update(u.sd, u.collider, 0); err != nil {
			t.Fatalf("Update(%v, %d): %v", u.sd, u.collider, err)
		}
	}

	if got := n.UnsignedDistance(); got != 0.5 {
		t.Errorf("UnsignedDistance() = %v, want 0.5", got)
	}
	c := n.Color()
	if c.Affinities() != 0b11 {
		t.Errorf("Affinities() = %b, want 11", c.Affinities())
	}
	if c.Tag(0) != 0 {
		t.Errorf("Tag(0) = %d, want 0 (inside)", c.Tag(0))
	}
	if c.Tag(1) != 0 {
		t.Errorf("Tag(1) = %d, want untouched 0", c.Tag(1))
	}
}

func TestGridDataFreshNodeAcceptsFirstSample(t *testing.T) {
	n := NewGridData()
	if !math.IsInf(n.UnsignedDistance(), 1) {
		t.Fatalf("fresh node distance = %v, want +Inf", n.UnsignedDistance())
	}
	if n.State().Touched() {
		t.Fatal("fresh node reports touched")
	}

	if err := n.Update(3.5, 4, 0); err != nil {
		t.Fatal(err)
	}
	if n.UnsignedDistance() != 3.5 || n.Color().Tag(4) != 1 {
		t.Errorf("state after first update = %+v", n.State())
	}

	n.Reset()
	if !math.IsInf(n.UnsignedDistance(), 1) || n.Color() != 0 {
		t.Errorf("Reset left state %+v", n.State())
	}
}

func TestGridDataZeroDistanceIsOutside(t *testing.T) {
	n := NewGridData()
	if err := n.Update(0, 2, 0); err != nil {
		t.Fatal(err)
	}
	if n.Color().Tag(2) != 1 {
		t.Error("signed distance 0 should tag outside")
	}
}

func TestGridDataEqualDistanceDoesNotOverwrite(t *testing.T) {
	n := NewGridData()
	_ = n.Update(0.25, 0, 0)
	_ = n.Update(-0.25, 0, 0)

	if n.Color().Tag(0) != 1 {
		t.Error("equal distance must not replace the tag")
	}
}

func TestGridDataRejectsColliderOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for collider 16")
		}
	}()
	n := NewGridData()
	_ = n.Update(1, MaxColliders, 0)
}

func TestGridDataUpdateTimesOutOnStuckLock(t *testing.T) {
	n := NewGridData()
	n.lock.TryAcquire(42)

	_, err := n.UpdateWithBudget(1, 0, 1, 50)
	if err == nil {
		t.Fatal("expected timeout on stuck lock")
	}
	if n.Color().Affinities() != 0 {
		t.Error("timed out update must not modify the node")
	}
}

type update struct {
	sd       float64
	collider uint32
}

// minUpdate returns the update with the smallest |sd|.
func minUpdate(updates []update) update {
	best := updates[0]
	for _, u := range updates[1:] {
		if math.Abs(u.sd) < math.Abs(best.sd) {
			best = u
		}
	}
	return best
}

func tagOf(sd float64) uint32 {
	if sd >= 0 {
		return 1
	}
	return 0
}

func TestGridDataMinimumIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		updates := make([]update, 1+rng.Intn(40))
		used := map[float64]bool{}
		for i := range updates {
			// distinct magnitudes so the minimum is unique
			mag := float64(1+rng.Intn(10000)) / 100
			for used[mag] {
				mag += 0.001
			}
			used[mag] = true
			sd := mag
			if rng.Intn(2) == 0 {
				sd = -mag
			}
			updates[i] = update{sd: sd, collider: uint32(rng.Intn(MaxColliders))}
		}

		want := minUpdate(updates)
		var wantAffinities uint32
		for _, u := range updates {
			wantAffinities |= 1 << u.collider
		}

		for perm := 0; perm < 5; perm++ {
			rng.Shuffle(len(updates), func(i, j int) { updates[i], updates[j] = updates[j], updates[i] })

			n := NewGridData()
			for _, u := range updates {
				if err := n.Update(u.sd, u.collider, 0); err != nil {
					t.Fatal(err)
				}
			}

			if n.UnsignedDistance() != math.Abs(want.sd) {
				t.Fatalf("trial %d: distance = %v, want %v", trial, n.UnsignedDistance(), math.Abs(want.sd))
			}
			if n.Color().Tag(want.collider) != tagOf(want.sd) {
				t.Fatalf("trial %d: tag(%d) = %d, want %d", trial, want.collider, n.Color().Tag(want.collider), tagOf(want.sd))
			}
			if n.Color().Affinities() != wantAffinities {
				t.Fatalf("trial %d: affinities = %b, want %b", trial, n.Color().Affinities(), wantAffinities)
			}
		}
	}
}

func TestGridDataConcurrentStress(t *testing.T) {
	const writers = 256

	updates := make([]update, writers)
	for i := range updates {
		sd := float64(i+1) * 0.01
		if i%3 == 1 {
			sd = -sd
		}
		updates[i] = update{sd: sd, collider: uint32(i % MaxColliders)}
	}
	owner := make(map[float64]update, writers)
	for _, u := range updates {
		owner[math.Abs(u.sd)] = u
	}

	n := NewGridData()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	readerErrs := make(chan string, 16)

	// Readers check that every observed distance is paired with the tag of
	// the update that wrote it.
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(lane uint32) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s, err := n.Snapshot(lane)
				if err != nil {
					readerErrs <- err.Error()
					return
				}
				if math.IsInf(s.UnsignedDistance, 1) {
					continue
				}
				u, ok := owner[s.UnsignedDistance]
				if !ok {
					readerErrs <- "distance not produced by any writer"
					return
				}
				if !s.Color.HasAffinity(u.collider) || s.Color.Tag(u.collider) != tagOf(u.sd) {
					readerErrs <- "torn read: distance and tag mismatch"
					return
				}
			}
		}(uint32(writers + r))
	}

	var writersWG sync.WaitGroup
	for i, u := range updates {
		writersWG.Add(1)
		go func(lane uint32, u update) {
			defer writersWG.Done()
			if err := n.Update(u.sd, u.collider, lane); err != nil {
				t.Error(err)
			}
		}(uint32(i), u)
	}
	writersWG.Wait()
	close(stop)
	wg.Wait()
	close(readerErrs)

	for msg := range readerErrs {
		t.Error(msg)
	}

	want := minUpdate(updates)
	if n.UnsignedDistance() != math.Abs(want.sd) {
		t.Errorf("distance = %v, want %v", n.UnsignedDistance(), math.Abs(want.sd))
	}
	if n.Color().Tag(want.collider) != tagOf(want.sd) {
		t.Errorf("tag(%d) = %d, want %d", want.collider, n.Color().Tag(want.collider), tagOf(want.sd))
	}
	if n.Color().Affinities() != 0xFFFF {
		t.Errorf("lost affinity updates: %016b", n.Color().Affinities())
	}
	if _, held := n.lock.Owner(); held {
		t.Error("lock left held after all writers finished")
	}
}
