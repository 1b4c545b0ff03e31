// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/sph/systems"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// MaxKeyLimit caps the derived hash modulus.
const MaxKeyLimit = 1 << 22

// Particle layouts understood by the scene package.
const (
	LayoutBlock  = "block"
	LayoutDam    = "dam"
	LayoutRandom = "random"
)

// Config holds all simulation configuration parameters.
type Config struct {
	Domain    DomainConfig    `yaml:"domain"`
	Fluid     FluidConfig     `yaml:"fluid"`
	Physics   PhysicsConfig   `yaml:"physics"`
	Grid      GridConfig      `yaml:"grid"`
	Parallel  ParallelConfig  `yaml:"parallel"`
	Particles ParticlesConfig `yaml:"particles"`
	Color     ColorConfig     `yaml:"color"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// DomainConfig holds the extent of the simulation cube.
type DomainConfig struct {
	SimWidth float64 `yaml:"sim_width"`
}

// FluidConfig holds material and kernel parameters.
type FluidConfig struct {
	Spacing         float64 `yaml:"spacing"`
	SmoothingRadius float64 `yaml:"smoothing_radius"` // 0 derives 4 * spacing
	Mass            float64 `yaml:"mass"`
	RestDensity     float64 `yaml:"rest_density"`
	GasConstant     float64 `yaml:"gas_constant"`
	Viscosity       float64 `yaml:"viscosity"`
	DensityFloor    float64 `yaml:"density_floor"`
}

// PhysicsConfig holds integration parameters.
type PhysicsConfig struct {
	DT          float64 `yaml:"dt"`
	Gravity     float64 `yaml:"gravity"`
	Restitution float64 `yaml:"restitution"`
}

// GridConfig holds spatial hash parameters.
type GridConfig struct {
	MaxKey  int  `yaml:"max_key"`
	Reorder bool `yaml:"reorder"`
}

// ParallelConfig holds worker pool parameters.
type ParallelConfig struct {
	Workers   int `yaml:"workers"`
	Threshold int `yaml:"threshold"`
}

// ParticlesConfig holds initial seeding parameters.
type ParticlesConfig struct {
	Count   int     `yaml:"count"`
	Seed    int64   `yaml:"seed"`
	Layout  string  `yaml:"layout"`
	Spacing float64 `yaml:"spacing"` // Lattice spacing; 0 means h / 2
	Jitter  float64 `yaml:"jitter"`  // Fraction of lattice spacing
	Fill    float64 `yaml:"fill"`
}

// ColorConfig holds the speed colour ramp.
type ColorConfig struct {
	Slow     string  `yaml:"slow"`
	Fast     string  `yaml:"fast"`
	MaxSpeed float64 `yaml:"max_speed"`
}

// TelemetryConfig holds stats and perf output cadence.
type TelemetryConfig struct {
	PerfWindow    int `yaml:"perf_window"`
	StatsInterval int `yaml:"stats_interval"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32         float32 // Physics.DT as float32
	H32          float32 // Effective smoothing radius
	MaxKey       int32   // Effective hash modulus
	CellsPerAxis int     // ceil(sim_width / h)
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

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
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
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
// Call it again after editing fields programmatically.
func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.Physics.DT)

	h := c.Fluid.SmoothingRadius
	if h == 0 {
		h = 4 * c.Fluid.Spacing
	}
	c.Derived.H32 = float32(h)

	c.Derived.CellsPerAxis = 0
	if h > 0 && c.Domain.SimWidth > 0 {
		c.Derived.CellsPerAxis = int(math.Ceil(c.Domain.SimWidth / h))
	}

	maxKey := c.Grid.MaxKey
	if maxKey == 0 {
		n := c.Derived.CellsPerAxis
		cells := float64(n) * float64(n) * float64(n)
		maxKey = int(math.Min(cells, MaxKeyLimit))
	}
	c.Derived.MaxKey = int32(min(maxKey, math.MaxInt32))
}

// Refresh recomputes derived values and validates the result.
func (c *Config) Refresh() error {
	c.computeDerived()
	return c.Validate()
}

// Validate reports the first parameter that cannot produce a runnable simulation.
// Kernel-level problems wrap systems.ErrDegenerateConfig.
func (c *Config) Validate() error {
	if _, err := c.Coefficients(); err != nil {
		return err
	}

	switch {
	case !(c.Physics.DT > 0) || math.IsInf(c.Physics.DT, 0):
		return fmt.Errorf("%w: physics.dt must be positive and finite, got %v", systems.ErrDegenerateConfig, c.Physics.DT)
	case c.Grid.MaxKey < 0:
		return fmt.Errorf("%w: grid.max_key must be non-negative, got %d", systems.ErrDegenerateConfig, c.Grid.MaxKey)
	case c.Parallel.Workers < 0 || c.Parallel.Threshold < 0:
		return fmt.Errorf("parallel: workers and threshold must be non-negative")
	case c.Particles.Count < 0:
		return fmt.Errorf("particles.count must be non-negative, got %d", c.Particles.Count)
	case c.Particles.Fill <= 0 || c.Particles.Fill > 1:
		return fmt.Errorf("particles.fill must be in (0, 1], got %v", c.Particles.Fill)
	case c.Particles.Spacing < 0:
		return fmt.Errorf("particles.spacing must be non-negative, got %v", c.Particles.Spacing)
	case c.Particles.Jitter < 0:
		return fmt.Errorf("particles.jitter must be non-negative, got %v", c.Particles.Jitter)
	case c.Telemetry.PerfWindow < 0 || c.Telemetry.StatsInterval < 0:
		return fmt.Errorf("telemetry: perf_window and stats_interval must be non-negative")
	}

	switch c.Particles.Layout {
	case LayoutBlock, LayoutDam, LayoutRandom:
	default:
		return fmt.Errorf("particles.layout %q: want %s, %s or %s", c.Particles.Layout, LayoutBlock, LayoutDam, LayoutRandom)
	}

	if _, err := c.ColorRamp(); err != nil {
		return err
	}
	return nil
}

// Coefficients builds the kernel coefficients from the fluid, domain and grid sections.
func (c *Config) Coefficients() (systems.Coefficients, error) {
	return systems.NewCoefficients(systems.CoefficientParams{
		SimWidth:     float32(c.Domain.SimWidth),
		Spacing:      float32(c.Fluid.Spacing),
		H:            c.Derived.H32,
		Mass:         float32(c.Fluid.Mass),
		RestDensity:  float32(c.Fluid.RestDensity),
		GasConstant:  float32(c.Fluid.GasConstant),
		Viscosity:    float32(c.Fluid.Viscosity),
		MaxKey:       c.Derived.MaxKey,
		DensityFloor: float32(c.Fluid.DensityFloor),
		Gravity:      float32(c.Physics.Gravity),
		Restitution:  float32(c.Physics.Restitution),
	})
}

// ColorRamp builds the speed colour ramp.
func (c *Config) ColorRamp() (*systems.ColorRamp, error) {
	return systems.NewColorRamp(c.Color.Slow, c.Color.Fast, float32(c.Color.MaxSpeed))
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
