package telemetry

import (
	"log/slog"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/sph/components"
)

// FrameStats summarizes the fluid state after one step.
type FrameStats struct {
	Frame      int64   `csv:"frame" json:"frame"`
	SimTimeSec float64 `csv:"sim_time" json:"sim_time"`
	Particles  int     `csv:"particles" json:"particles"`

	// Density distribution
	DensityMean float64 `csv:"density_mean" json:"density_mean"`
	DensityStd  float64 `csv:"density_std" json:"density_std"`
	DensityMin  float64 `csv:"density_min" json:"density_min"`
	DensityP50  float64 `csv:"density_p50" json:"density_p50"`
	DensityMax  float64 `csv:"density_max" json:"density_max"`

	// Pressure
	PressureMean float64 `csv:"pressure_mean" json:"pressure_mean"`
	PressureMax  float64 `csv:"pressure_max" json:"pressure_max"`

	// Motion
	MaxSpeed      float64 `csv:"max_speed" json:"max_speed"`
	KineticEnergy float64 `csv:"kinetic_energy" json:"kinetic_energy"`
	Momentum      float64 `csv:"momentum" json:"momentum"` // |sum m v|

	// Particles whose density fell below the floor
	Floored int `csv:"floored" json:"floored"`
}

// FrameSampler computes FrameStats, reusing its buffers across frames.
type FrameSampler struct {
	density  []float64
	pressure []float64
	speed    []float64
}

// Sample summarizes particles. mass is the per-particle mass.
func (s *FrameSampler) Sample(frame int64, simTime float64, particles []components.Particle, mass float32, floored int) FrameStats {
	fs := FrameStats{
		Frame:      frame,
		SimTimeSec: simTime,
		Particles:  len(particles),
		Floored:    floored,
	}
	n := len(particles)
	if n == 0 {
		return fs
	}

	s.density = resize(s.density, n)
	s.pressure = resize(s.pressure, n)
	s.speed = resize(s.speed, n)

	var momentum mgl32.Vec3
	var kinetic float64
	m := float64(mass)
	for i := range particles {
		p := &particles[i]
		s.density[i] = float64(p.Density)
		s.pressure[i] = float64(p.Pressure)
		speed := float64(p.Speed())
		s.speed[i] = speed
		kinetic += 0.5 * m * speed * speed
		momentum = momentum.Add(p.Vel)
	}

	fs.DensityMean, fs.DensityStd = stat.MeanStdDev(s.density, nil)
	if n < 2 {
		fs.DensityStd = 0
	}
	fs.DensityMin = floats.Min(s.density)
	fs.DensityMax = floats.Max(s.density)
	sort.Float64s(s.density)
	fs.DensityP50 = stat.Quantile(0.5, stat.Empirical, s.density, nil)

	fs.PressureMean = stat.Mean(s.pressure, nil)
	fs.PressureMax = floats.Max(s.pressure)

	fs.MaxSpeed = floats.Max(s.speed)
	fs.KineticEnergy = kinetic
	fs.Momentum = m * float64(momentum.Len())

	return fs
}

// ComputeFrameStats is Sample with a throwaway sampler.
func ComputeFrameStats(frame int64, simTime float64, particles []components.Particle, mass float32, floored int) FrameStats {
	var s FrameSampler
	return s.Sample(frame, simTime, particles, mass, floored)
}

func resize(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}

// LogValue implements slog.LogValuer for structured logging.
func (fs FrameStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("frame", fs.Frame),
		slog.Float64("sim_time", fs.SimTimeSec),
		slog.Int("particles", fs.Particles),
		slog.Float64("density_mean", fs.DensityMean),
		slog.Float64("density_std", fs.DensityStd),
		slog.Float64("density_min", fs.DensityMin),
		slog.Float64("density_max", fs.DensityMax),
		slog.Float64("pressure_max", fs.PressureMax),
		slog.Float64("max_speed", fs.MaxSpeed),
		slog.Float64("kinetic_energy", fs.KineticEnergy),
		slog.Int("floored", fs.Floored),
	)
}

// LogStats logs the frame summary at Info.
func (fs FrameStats) LogStats() {
	slog.Info("frame", "stats", fs)
}
