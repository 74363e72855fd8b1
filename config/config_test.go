package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/multierr"

	"github.com/pthm-cable/sandmpm/cdf"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load defaults: %v", err)
	}

	if cfg.Grid.CellWidth != 0.2 {
		t.Errorf("cell_width = %v, want 0.2", cfg.Grid.CellWidth)
	}
	if math.Abs(cfg.Derived.InvD-5) > 1e-12 {
		t.Errorf("InvD = %v, want 5", cfg.Derived.InvD)
	}
	if cfg.Derived.Dims != [3]int{121, 31, 41} {
		t.Errorf("Dims = %v", cfg.Derived.Dims)
	}
	if cfg.Derived.SpinBudget != cdf.DefaultSpinBudget {
		t.Errorf("SpinBudget = %d, want package default", cfg.Derived.SpinBudget)
	}
	if len(cfg.Colliders) != 2 || len(cfg.Blocks) != 2 {
		t.Fatalf("got %d colliders, %d blocks", len(cfg.Colliders), len(cfg.Blocks))
	}
	for _, b := range cfg.Blocks {
		if b.Spacing != cfg.Grid.CellWidth/2 {
			t.Errorf("block %q spacing = %v, want half a cell", b.Name, b.Spacing)
		}
	}
	if !cfg.Blocks[1].Kinematic || cfg.Blocks[1].Velocity[0] != 10 {
		t.Errorf("pusher block = %+v", cfg.Blocks[1])
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	overlay := `
grid:
  cell_width: 0.1
contact:
  friction: 0.2
blocks:
  - name: only
    min: [0, 0, 0]
    counts: [2, 2, 2]
    density: 1000
`
	if err := os.WriteFile(path, []byte(overlay), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Grid.CellWidth != 0.1 {
		t.Errorf("cell_width = %v", cfg.Grid.CellWidth)
	}
	// untouched keys keep their defaults
	if cfg.Grid.Size != [3]float64{24, 6, 8} {
		t.Errorf("size = %v, want defaults", cfg.Grid.Size)
	}
	if cfg.Contact.Friction != 0.2 || cfg.Contact.Margin != 0.25 {
		t.Errorf("contact = %+v", cfg.Contact)
	}
	if len(cfg.Blocks) != 1 || cfg.Blocks[0].Spacing != 0.05 {
		t.Errorf("blocks = %+v", cfg.Blocks)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	cfg.Grid.CellWidth = 0
	cfg.Physics.DT = -1
	cfg.Colliders[0].Shape = "sphere"
	cfg.Blocks[0].Counts[1] = 0

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if got := len(multierr.Errors(err)); got != 4 {
		t.Errorf("got %d errors, want 4: %v", got, err)
	}
	if !strings.Contains(err.Error(), "sphere") {
		t.Errorf("error does not name the bad shape: %v", err)
	}
}

func TestValidateColliderLimit(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	for len(cfg.Colliders) <= cdf.MaxColliders {
		cfg.Colliders = append(cfg.Colliders, ColliderConfig{Name: "extra", Shape: "plane"})
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for too many colliders")
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load written config: %v", err)
	}
	if reloaded.Derived != cfg.Derived {
		t.Errorf("derived values differ: %+v vs %+v", reloaded.Derived, cfg.Derived)
	}
}

func TestCfgBeforeInitPanics(t *testing.T) {
	saved := global
	global = nil
	defer func() {
		global = saved
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Cfg()
}
