package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the particle and collider state at one step.
type Snapshot struct {
	Version int `json:"version"`

	Step       int     `json:"step"`
	SimTimeSec float64 `json:"sim_time"`
	CellWidth  float64 `json:"cell_width"`

	Colliders []ColliderState `json:"colliders"`
	Particles []ParticleState `json:"particles"`

	Event *Event `json:"event,omitempty"`
}

// ColliderState holds one collider's pose and accumulated reaction.
type ColliderState struct {
	Index       uint32     `json:"index"`
	Name        string     `json:"name"`
	Translation [3]float64 `json:"translation"`
	Velocity    [3]float64 `json:"velocity"`
	Impulse     [3]float64 `json:"impulse"`
}

// ParticleState holds one material particle and its resolved CDF.
type ParticleState struct {
	Position  [3]float64 `json:"position"`
	Velocity  [3]float64 `json:"velocity"`
	Block     int        `json:"block"`
	Kinematic bool       `json:"kinematic,omitempty"`

	// CDF at the end of the gather phase
	Collider       int        `json:"collider"`
	SignedDistance float64    `json:"signed_distance"`
	Normal         [3]float64 `json:"normal"`
	Affinities     uint32     `json:"affinities"`
	Tags           uint32     `json:"tags"`
}

// MarshalJSON writes untouched particles with a null distance, since JSON
// has no representation for infinity.
func (p ParticleState) MarshalJSON() ([]byte, error) {
	type plain ParticleState
	var sd *float64
	if !math.IsInf(p.SignedDistance, 0) {
		sd = &p.SignedDistance
	}
	return json.Marshal(struct {
		plain
		SignedDistance *float64 `json:"signed_distance"`
	}{plain(p), sd})
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	// Build filename
	name := fmt.Sprintf("snapshot_%d", snapshot.Step)
	if snapshot.Event != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Event.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Step, sanitized)
	}
	name += ".json"

	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk. Particles saved without a
// distance load with +Inf.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}

// UnmarshalJSON restores a null distance as +Inf.
func (p *ParticleState) UnmarshalJSON(data []byte) error {
	type plain ParticleState
	aux := struct {
		*plain
		SignedDistance *float64 `json:"signed_distance"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.SignedDistance == nil {
		p.SignedDistance = math.Inf(1)
	} else {
		p.SignedDistance = *aux.SignedDistance
	}
	return nil
}
