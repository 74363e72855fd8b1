package telemetry

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()

	snapshot := &Snapshot{
		Version:    SnapshotVersion,
		Step:       120,
		SimTimeSec: 2,
		CellWidth:  0.2,
		Colliders: []ColliderState{
			{Index: 0, Name: "ground", Translation: [3]float64{0, 1, 0}},
			{Index: 1, Name: "shelf", Velocity: [3]float64{1, 0, 0}, Impulse: [3]float64{0, 3.5, 0}},
		},
		Particles: []ParticleState{
			{
				Position:       [3]float64{1, 2, 3},
				Velocity:       [3]float64{0, -1, 0},
				Collider:       1,
				SignedDistance: -0.05,
				Normal:         [3]float64{0, 1, 0},
				Affinities:     0b10,
			},
			{
				Position:       [3]float64{4, 5, 6},
				Block:          1,
				Kinematic:      true,
				Collider:       -1,
				SignedDistance: math.Inf(1),
			},
		},
		Event: &Event{Type: EventPenetration, Step: 120, Description: "test event"},
	}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Snapshot file not created at %s", path)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	if loaded.Version != snapshot.Version || loaded.Step != snapshot.Step {
		t.Errorf("header mismatch: got %d/%d", loaded.Version, loaded.Step)
	}
	if len(loaded.Colliders) != 2 || loaded.Colliders[1].Impulse[1] != 3.5 {
		t.Errorf("colliders = %+v", loaded.Colliders)
	}
	if len(loaded.Particles) != 2 {
		t.Fatalf("particles count mismatch: got %d", len(loaded.Particles))
	}
	if p := loaded.Particles[0]; p.SignedDistance != -0.05 || p.Affinities != 0b10 || p.Position != [3]float64{1, 2, 3} {
		t.Errorf("touched particle = %+v", p)
	}
	if p := loaded.Particles[1]; !math.IsInf(p.SignedDistance, 1) || !p.Kinematic || p.Collider != -1 {
		t.Errorf("untouched particle = %+v", p)
	}
	if loaded.Event == nil || loaded.Event.Type != EventPenetration {
		t.Errorf("event = %+v", loaded.Event)
	}
}

func TestSnapshotFilename(t *testing.T) {
	tmpDir := t.TempDir()

	withEvent := &Snapshot{
		Version: SnapshotVersion,
		Step:    500,
		Event:   &Event{Type: EventLockContention, Step: 500},
	}
	path, err := SaveSnapshot(withEvent, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if expected := filepath.Join(tmpDir, "snapshot_500_lock_contention.json"); path != expected {
		t.Errorf("Path mismatch: got %s, want %s", path, expected)
	}

	plain := &Snapshot{Version: SnapshotVersion, Step: 300}
	path, err = SaveSnapshot(plain, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if expected := filepath.Join(tmpDir, "snapshot_300.json"); path != expected {
		t.Errorf("Path mismatch: got %s, want %s", path, expected)
	}
}
