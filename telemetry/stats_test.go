package telemetry

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sph/components"
)

func particlesWith(densities []float32, vels []mgl32.Vec3) []components.Particle {
	ps := make([]components.Particle, len(densities))
	for i := range ps {
		ps[i] = components.NewParticle(int32(i), mgl32.Vec3{})
		ps[i].Density = densities[i]
		ps[i].Pressure = densities[i] / 2
		ps[i].Vel = vels[i]
	}
	return ps
}

func TestComputeFrameStats(t *testing.T) {
	ps := particlesWith(
		[]float32{1, 2, 3, 4},
		[]mgl32.Vec3{{1, 0, 0}, {-1, 0, 0}, {0, 2, 0}, {0, 0, 0}},
	)

	fs := ComputeFrameStats(7, 0.25, ps, 2, 1)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"density mean", fs.DensityMean, 2.5},
		{"density std", fs.DensityStd, math.Sqrt(5.0 / 3.0)},
		{"density min", fs.DensityMin, 1},
		{"density max", fs.DensityMax, 4},
		{"density p50", fs.DensityP50, 2},
		{"pressure mean", fs.PressureMean, 1.25},
		{"pressure max", fs.PressureMax, 2},
		{"max speed", fs.MaxSpeed, 2},
		{"kinetic energy", fs.KineticEnergy, 0.5 * 2 * (1 + 1 + 4)},
		{"momentum", fs.Momentum, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(tt.got-tt.want) > 1e-9 {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	if fs.Frame != 7 || fs.SimTimeSec != 0.25 || fs.Particles != 4 || fs.Floored != 1 {
		t.Errorf("header fields not carried: %+v", fs)
	}
}

func TestComputeFrameStatsEmpty(t *testing.T) {
	fs := ComputeFrameStats(1, 0, nil, 1, 0)
	if fs.Particles != 0 || fs.DensityMean != 0 || fs.MaxSpeed != 0 {
		t.Errorf("expected zero stats for empty store, got %+v", fs)
	}
}

func TestComputeFrameStatsSingle(t *testing.T) {
	ps := particlesWith([]float32{3}, []mgl32.Vec3{{0, 0, 0}})
	fs := ComputeFrameStats(1, 0, ps, 1, 0)
	if fs.DensityStd != 0 {
		t.Errorf("single particle std = %v, want 0", fs.DensityStd)
	}
	if fs.DensityMean != 3 {
		t.Errorf("single particle mean = %v, want 3", fs.DensityMean)
	}
}

func TestFrameSamplerReusesBuffers(t *testing.T) {
	var s FrameSampler
	big := particlesWith([]float32{1, 2, 3}, []mgl32.Vec3{{}, {}, {}})
	small := particlesWith([]float32{5}, []mgl32.Vec3{{}})

	s.Sample(1, 0, big, 1, 0)
	fs := s.Sample(2, 0, small, 1, 0)
	if fs.DensityMax != 5 || fs.DensityMin != 5 {
		t.Errorf("stale buffer leaked into stats: %+v", fs)
	}
}
