// Package sim runs the per-frame SPH pipeline over a particle store:
// build the spatial index, compute density and pressure, accumulate forces,
// then integrate. Each pass runs on a persistent worker pool and completes
// before the next one starts.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sph/components"
	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/systems"
	"github.com/pthm-cable/sph/telemetry"
)

var (
	// ErrInvalidTimeStep is returned by Step for dt that is not positive and finite.
	ErrInvalidTimeStep = errors.New("invalid time step")
	// ErrEmptyStore is returned by Step when there are no particles to advance.
	ErrEmptyStore = errors.New("empty particle store")
	// ErrInvalidParticles is returned by New when original indices are not a permutation of [0, n).
	ErrInvalidParticles = errors.New("invalid particle store")
)

// Options tune how the pipeline runs. The zero value is usable.
type Options struct {
	Workers   int                      // 0 means GOMAXPROCS
	Threshold int                      // Run serially below this many particles; 0 means 64
	Reorder   bool                     // Gather particles into key order after each sort
	Ramp      *systems.ColorRamp       // Speed colouring; nil leaves Color untouched
	Perf      *telemetry.PerfCollector // Optional per-phase timing
}

// Simulation owns the particle store and advances it one frame per Step.
// It is not safe for concurrent use; the host must not read particles while Step runs.
type Simulation struct {
	coeffs    systems.Coefficients
	particles []components.Particle
	scratch   []components.Particle

	index     *systems.KeyIndexTable
	neighbors *systems.NeighborTable
	query     *systems.KeyIndexTable // keyed on current positions, rebuilt lazily
	pool      *workerPool
	floored   []int

	reorder bool
	ramp    *systems.ColorRamp
	perf    *telemetry.PerfCollector

	frame        int64
	simTime      float64
	flooredFrame int
	queryFresh   bool
}

// New takes ownership of particles and prepares the pipeline.
// Particle positions are clamped into the domain.
// Degenerate coefficients are rejected with an error wrapping systems.ErrDegenerateConfig.
func New(coeffs systems.Coefficients, particles []components.Particle, opts Options) (*Simulation, error) {
	if err := coeffs.Validate(); err != nil {
		return nil, err
	}
	if err := checkIdentity(particles); err != nil {
		return nil, err
	}
	systems.Contain(particles, &coeffs)

	n := len(particles)
	pool := newWorkerPool(opts.Workers, opts.Threshold)
	s := &Simulation{
		coeffs:    coeffs,
		particles: particles,
		index:     systems.NewKeyIndexTable(n),
		neighbors: systems.NewNeighborTable(n),
		query:     systems.NewKeyIndexTable(n),
		pool:      pool,
		floored:   make([]int, pool.numWorkers),
		reorder:   opts.Reorder,
		ramp:      opts.Ramp,
		perf:      opts.Perf,
	}
	if s.reorder {
		s.scratch = make([]components.Particle, n)
	}

	slog.Info("simulation created",
		"particles", n,
		"workers", pool.numWorkers,
		"threshold", pool.threshold,
		"reorder", s.reorder,
		"h", coeffs.H,
		"max_key", coeffs.MaxKey,
		"cells_per_axis", coeffs.CellsPerAxis(),
	)
	return s, nil
}

// NewFromConfig builds coefficients, colour ramp and options from cfg.
func NewFromConfig(cfg *config.Config, particles []components.Particle, perf *telemetry.PerfCollector) (*Simulation, error) {
	coeffs, err := cfg.Coefficients()
	if err != nil {
		return nil, fmt.Errorf("building coefficients: %w", err)
	}
	ramp, err := cfg.ColorRamp()
	if err != nil {
		return nil, fmt.Errorf("building color ramp: %w", err)
	}
	return New(coeffs, particles, Options{
		Workers:   cfg.Parallel.Workers,
		Threshold: cfg.Parallel.Threshold,
		Reorder:   cfg.Grid.Reorder,
		Ramp:      ramp,
		Perf:      perf,
	})
}

func checkIdentity(particles []components.Particle) error {
	seen := make([]bool, len(particles))
	for i := range particles {
		oidx := particles[i].OIdx
		if oidx < 0 || int(oidx) >= len(particles) {
			return fmt.Errorf("%w: slot %d has original index %d outside [0, %d)", ErrInvalidParticles, i, oidx, len(particles))
		}
		if seen[oidx] {
			return fmt.Errorf("%w: original index %d used twice", ErrInvalidParticles, oidx)
		}
		seen[oidx] = true
	}
	return nil
}

// Step advances the simulation by dt.
// On error nothing is mutated and the frame counter does not advance.
func (s *Simulation) Step(dt float32) error {
	if !(dt > 0) || math.IsInf(float64(dt), 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTimeStep, dt)
	}
	n := len(s.particles)
	if n == 0 {
		return ErrEmptyStore
	}

	if s.perf != nil {
		s.perf.BeginStep()
	}

	s.startPhase(telemetry.PhaseBuildIndex)
	s.buildIndex()

	s.startPhase(telemetry.PhaseDensity)
	s.flooredFrame = s.computeDensity()

	s.startPhase(telemetry.PhaseForces)
	s.pool.run(n, func(start, end, _ int) {
		systems.ComputeForces(s.particles, s.index.Entries(), s.neighbors, &s.coeffs, start, end)
	})

	s.startPhase(telemetry.PhaseIntegrate)
	s.pool.run(n, func(start, end, _ int) {
		systems.Integrate(s.particles, &s.coeffs, s.ramp, dt, start, end)
	})

	if s.perf != nil {
		s.perf.EndStep()
	}

	s.frame++
	s.simTime += float64(dt)
	s.queryFresh = false

	if s.flooredFrame > 0 {
		slog.Warn("density floor applied",
			"frame", s.frame,
			"particles", s.flooredFrame,
			"floor", s.coeffs.DensityFloor,
		)
	}
	return nil
}

func (s *Simulation) startPhase(ph telemetry.Phase) {
	if s.perf != nil {
		s.perf.EnterPhase(ph)
	}
}

// buildIndex computes keys, sorts them and resolves each particle's neighbour ranges.
// When reordering, particles are gathered into key order first so entry i refers to slot i.
func (s *Simulation) buildIndex() {
	n := len(s.particles)
	s.index.Resize(n)
	s.neighbors.Resize(n)

	s.pool.run(n, func(start, end, _ int) {
		s.index.AssignRange(s.particles, &s.coeffs, start, end)
	})

	// The sort moves entries across the whole array, so it runs alone.
	s.index.Sort(s.coeffs.MaxKey)

	if s.reorder {
		entries := s.index.Entries()
		s.pool.run(n, func(start, end, _ int) {
			for i := start; i < end; i++ {
				s.scratch[i] = s.particles[entries[i].Index]
			}
		})
		s.particles, s.scratch = s.scratch, s.particles
		for i := range entries {
			entries[i].Index = int32(i)
		}
	}

	entries := s.index.Entries()
	s.pool.run(n, func(start, end, _ int) {
		s.neighbors.BuildRange(entries, s.particles, &s.coeffs, start, end)
	})
}

func (s *Simulation) computeDensity() int {
	for i := range s.floored {
		s.floored[i] = 0
	}
	s.pool.run(len(s.particles), func(start, end, worker int) {
		s.floored[worker] = systems.ComputeDensityPressure(s.particles, s.index.Entries(), s.neighbors, &s.coeffs, start, end)
	})

	total := 0
	for _, f := range s.floored {
		total += f
	}
	return total
}

// SetCoefficients replaces the kernel coefficients between frames.
// Degenerate coefficients are rejected and the current ones stay in place.
func (s *Simulation) SetCoefficients(c systems.Coefficients) error {
	if err := c.Validate(); err != nil {
		slog.Warn("coefficients rejected", "error", err)
		return err
	}
	s.coeffs = c
	s.queryFresh = false
	slog.Info("coefficients updated",
		"h", c.H,
		"mass", c.M,
		"rest_density", c.P0,
		"gas_constant", c.GasConstant,
		"viscosity", c.ViscosityConstant,
		"max_key", c.MaxKey,
	)
	return nil
}

// Coefficients returns the current kernel coefficients.
func (s *Simulation) Coefficients() systems.Coefficients {
	return s.coeffs
}

// Particles returns the live particle buffer in slot order.
// With reordering enabled slot order changes every frame; use Ordered for stable order.
// The slice is only valid until the next Step.
func (s *Simulation) Particles() []components.Particle {
	return s.particles
}

// Ordered copies particles into dst indexed by original index, growing dst as needed.
func (s *Simulation) Ordered(dst []components.Particle) []components.Particle {
	n := len(s.particles)
	if cap(dst) < n {
		dst = make([]components.Particle, n)
	}
	dst = dst[:n]
	for i := range s.particles {
		dst[s.particles[i].OIdx] = s.particles[i]
	}
	return dst
}

// Index returns the key-index entries sorted during the last Step, keyed on
// positions from before that Step's integration.
func (s *Simulation) Index() []components.KeyIndex {
	return s.index.Entries()
}

// Query appends the slots of particles within h of pos.
// The first Query after a Step or a coefficient change re-keys the current positions.
func (s *Simulation) Query(dst []int32, pos mgl32.Vec3) []int32 {
	if !s.queryFresh {
		s.query.Build(s.particles, &s.coeffs)
		s.queryFresh = true
	}
	return systems.QueryRadiusInto(dst, pos, s.query.Entries(), s.particles, &s.coeffs)
}

// Frame returns the number of completed steps.
func (s *Simulation) Frame() int64 {
	return s.frame
}

// SimTime returns the accumulated simulated time in seconds.
func (s *Simulation) SimTime() float64 {
	return s.simTime
}

// FlooredLastFrame returns how many particles had density below the floor in the last Step.
func (s *Simulation) FlooredLastFrame() int {
	return s.flooredFrame
}

// Close stops the worker pool.
func (s *Simulation) Close() {
	s.pool.stopWorkers()
}
