// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/sandmpm/cdf"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Grid      GridConfig       `yaml:"grid"`
	Physics   PhysicsConfig    `yaml:"physics"`
	CDF       CDFConfig        `yaml:"cdf"`
	Parallel  ParallelConfig   `yaml:"parallel"`
	Rigid     RigidConfig      `yaml:"rigid"`
	Contact   ContactConfig    `yaml:"contact"`
	Telemetry TelemetryConfig  `yaml:"telemetry"`
	Colliders []ColliderConfig `yaml:"colliders"`
	Blocks    []BlockConfig    `yaml:"blocks"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// GridConfig holds background grid dimensions.
type GridConfig struct {
	CellWidth float64    `yaml:"cell_width"` // Node spacing in world units
	Origin    [3]float64 `yaml:"origin"`     // World position of node (0,0,0)
	Size      [3]float64 `yaml:"size"`       // Extent covered by the grid per axis
}

// PhysicsConfig holds time stepping parameters.
type PhysicsConfig struct {
	DT      float64    `yaml:"dt"`
	Gravity [3]float64 `yaml:"gravity"`
}

// CDFConfig holds distance field parameters.
type CDFConfig struct {
	SpinBudget int `yaml:"spin_budget"` // Lock attempts before a node update fails (0 = package default)
}

// ParallelConfig holds lane scheduling parameters.
type ParallelConfig struct {
	Workers   int `yaml:"workers"`   // 0 = GOMAXPROCS
	Threshold int `yaml:"threshold"` // Minimum lanes before work is dispatched to workers
}

// RigidConfig holds surface sampling parameters.
type RigidConfig struct {
	SampleSpacing float64 `yaml:"sample_spacing"` // Fraction of cell width between surface samples
}

// ContactConfig holds coupling law parameters.
type ContactConfig struct {
	Margin   float64 `yaml:"margin"`   // Contact distance as a fraction of cell width
	Friction float64 `yaml:"friction"` // Coulomb friction coefficient
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         int     `yaml:"stats_window"`          // Steps per stats window
	PerfCollectorWindow int     `yaml:"perf_collector_window"` // Steps averaged by the perf collector
	ContentionSpins     int     `yaml:"contention_spins"`      // Max spins that flag a contention event
	PenetrationFraction float64 `yaml:"penetration_fraction"`  // Inside fraction that flags a penetration event
}

// ColliderConfig describes one rigid collider.
type ColliderConfig struct {
	Name        string          `yaml:"name"`
	Shape       string          `yaml:"shape"` // cuboid, plane, heightfield
	HalfExtents [3]float64      `yaml:"half_extents"`
	Translation [3]float64      `yaml:"translation"`
	Velocity    [3]float64      `yaml:"velocity"`
	Heightfield HeightfieldSpec `yaml:"heightfield"`
}

// HeightfieldSpec describes a sine-profile heightfield.
type HeightfieldSpec struct {
	Rows      int        `yaml:"rows"`
	Cols      int        `yaml:"cols"`
	Amplitude float64    `yaml:"amplitude"`
	Scale     [3]float64 `yaml:"scale"`
}

// BlockConfig describes a block of material particles.
type BlockConfig struct {
	Name     string     `yaml:"name"`
	Min      [3]float64 `yaml:"min"`      // Corner of the block
	Counts   [3]int     `yaml:"counts"`   // Particles per axis
	Spacing  float64    `yaml:"spacing"`  // Particle spacing (0 = cell_width / 2)
	Density  float64    `yaml:"density"`  // Material density
	Velocity [3]float64 `yaml:"velocity"` // Initial velocity
	// Kinematic blocks keep their velocity and ignore gravity and contact.
	Kinematic bool `yaml:"kinematic"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	InvD          float64 // 1 / Grid.CellWidth
	Dims          [3]int  // Grid nodes per axis
	SampleSpacing float64 // Rigid sample spacing in world units
	ContactMargin float64 // Contact distance in world units
	SpinBudget    int     // Lock attempts per node update
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Compute derived values
	cfg.computeDerived()

	return cfg, nil
}

// Parse overlays YAML data onto cfg. Fields absent from data keep their
// current values; lists present in data replace the existing ones.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs error
	if c.Grid.CellWidth <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("grid.cell_width must be positive, got %v", c.Grid.CellWidth))
	}
	for axis, s := range c.Grid.Size {
		if s <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("grid.size[%d] must be positive, got %v", axis, s))
		}
	}
	if c.Physics.DT <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("physics.dt must be positive, got %v", c.Physics.DT))
	}
	if c.Rigid.SampleSpacing <= 0 || c.Rigid.SampleSpacing > 1 {
		errs = multierr.Append(errs, fmt.Errorf("rigid.sample_spacing must be in (0, 1], got %v", c.Rigid.SampleSpacing))
	}
	if c.CDF.SpinBudget < 0 {
		errs = multierr.Append(errs, fmt.Errorf("cdf.spin_budget must be non-negative, got %d", c.CDF.SpinBudget))
	}
	if c.Contact.Friction < 0 {
		errs = multierr.Append(errs, fmt.Errorf("contact.friction must be non-negative, got %v", c.Contact.Friction))
	}
	if len(c.Colliders) > cdf.MaxColliders {
		errs = multierr.Append(errs, fmt.Errorf("at most %d colliders are supported, got %d", cdf.MaxColliders, len(c.Colliders)))
	}
	for i, col := range c.Colliders {
		switch col.Shape {
		case "cuboid", "plane":
		case "heightfield":
			if col.Heightfield.Rows < 1 || col.Heightfield.Cols < 1 {
				errs = multierr.Append(errs, fmt.Errorf("colliders[%d] %q: heightfield needs rows and cols >= 1", i, col.Name))
			}
		default:
			errs = multierr.Append(errs, fmt.Errorf("colliders[%d] %q: unknown shape %q", i, col.Name, col.Shape))
		}
	}
	for i, b := range c.Blocks {
		for axis, n := range b.Counts {
			if n < 1 {
				errs = multierr.Append(errs, fmt.Errorf("blocks[%d] %q: counts[%d] must be >= 1", i, b.Name, axis))
			}
		}
		if b.Density <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("blocks[%d] %q: density must be positive", i, b.Name))
		}
	}
	return errs
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.InvD = 1 / c.Grid.CellWidth
	for axis := range c.Derived.Dims {
		// +1 so the far face of the domain has nodes
		c.Derived.Dims[axis] = int(math.Ceil(c.Grid.Size[axis]/c.Grid.CellWidth-1e-9)) + 1
	}
	c.Derived.SampleSpacing = c.Rigid.SampleSpacing * c.Grid.CellWidth
	c.Derived.ContactMargin = c.Contact.Margin * c.Grid.CellWidth
	c.Derived.SpinBudget = c.CDF.SpinBudget
	if c.Derived.SpinBudget == 0 {
		c.Derived.SpinBudget = cdf.DefaultSpinBudget
	}

	for i := range c.Blocks {
		if c.Blocks[i].Spacing == 0 {
			c.Blocks[i].Spacing = c.Grid.CellWidth / 2
		}
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
