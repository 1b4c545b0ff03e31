package scene

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/sph/components"
	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/systems"
)

func assertStore(t *testing.T, ps []components.Particle, n int, width float32) {
	t.Helper()
	require.Len(t, ps, n)
	seen := make(map[int32]bool, n)
	for _, p := range ps {
		assert.False(t, seen[p.OIdx], "duplicate original index %d", p.OIdx)
		seen[p.OIdx] = true
		assert.True(t, p.OIdx >= 0 && int(p.OIdx) < n)
		for axis := 0; axis < 3; axis++ {
			assert.True(t, p.Pos[axis] >= 0 && p.Pos[axis] <= width, "particle %d axis %d at %v", p.OIdx, axis, p.Pos[axis])
		}
		assert.Equal(t, mgl32.Vec3{}, p.Vel)
	}
}

func TestBlock(t *testing.T) {
	l := Layout{Count: 1000, Spacing: 0.1, SimWidth: 4, Fill: 0.5}
	ps, err := Block(l)
	require.NoError(t, err)
	assertStore(t, ps, 1000, 4)

	// A 10x10x10 cube centred in X and Z, resting on the floor.
	assert.InDelta(t, 0.05, float64(ps[0].Pos[1]), 1e-6)
	assert.InDelta(t, 2.0-0.45, float64(ps[0].Pos[0]), 1e-5)
	last := ps[len(ps)-1]
	assert.InDelta(t, 2.0+0.45, float64(last.Pos[0]), 1e-5)
	assert.InDelta(t, 0.95, float64(last.Pos[1]), 1e-5)
}

func TestBlock_FootprintLimitedByFill(t *testing.T) {
	l := Layout{Count: 200, Spacing: 0.1, SimWidth: 4, Fill: 0.1}
	ps, err := Block(l)
	require.NoError(t, err)
	assertStore(t, ps, 200, 4)

	for _, p := range ps {
		assert.InDelta(t, 2.0, float64(p.Pos[0]), 0.21)
		assert.InDelta(t, 2.0, float64(p.Pos[2]), 0.21)
	}
}

func TestBlock_Overflow(t *testing.T) {
	_, err := Block(Layout{Count: 100000, Spacing: 0.5, SimWidth: 2, Fill: 1})
	assert.Error(t, err)
}

func TestDamBreak(t *testing.T) {
	l := Layout{Count: 512, Spacing: 0.1, SimWidth: 4, Fill: 1}
	ps, err := DamBreak(l)
	require.NoError(t, err)
	assertStore(t, ps, 512, 4)

	var maxX, maxY float32
	for _, p := range ps {
		maxX = max(maxX, p.Pos[0])
		maxY = max(maxY, p.Pos[1])
	}
	assert.Less(t, maxX, maxY, "column is taller than it is deep")
	assert.InDelta(t, 0.05, float64(ps[0].Pos[0]), 1e-6)
}

func TestRandom_Deterministic(t *testing.T) {
	l := Layout{Count: 200, Spacing: 0.1, SimWidth: 4, Fill: 0.5}
	a, err := Random(l, 3)
	require.NoError(t, err)
	b, err := Random(l, 3)
	require.NoError(t, err)
	assertStore(t, a, 200, 4)
	assert.Equal(t, a, b)

	c, err := Random(l, 4)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestLayoutValidation(t *testing.T) {
	bad := []Layout{
		{Count: -1, Spacing: 0.1, SimWidth: 1, Fill: 1},
		{Count: 1, Spacing: 0, SimWidth: 1, Fill: 1},
		{Count: 1, Spacing: 0.1, SimWidth: 0, Fill: 1},
		{Count: 1, Spacing: 0.1, SimWidth: 1, Fill: 1.5},
	}
	for _, l := range bad {
		_, err := Block(l)
		assert.Error(t, err, "%+v", l)
	}

	ps, err := Block(Layout{Count: 0, Spacing: 0.1, SimWidth: 1, Fill: 1})
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestJitter(t *testing.T) {
	l := Layout{Count: 343, Spacing: 0.1, SimWidth: 4, Fill: 0.5}
	base, err := Block(l)
	require.NoError(t, err)

	a := append([]components.Particle(nil), base...)
	b := append([]components.Particle(nil), base...)
	Jitter(a, 0.02, 0.1, 4, 9)
	Jitter(b, 0.02, 0.1, 4, 9)
	assert.Equal(t, a, b, "same seed, same displacement")

	moved := 0
	for i := range a {
		d := a[i].Pos.Sub(base[i].Pos)
		for axis := 0; axis < 3; axis++ {
			assert.LessOrEqual(t, d[axis], float32(0.02+1e-6))
			assert.GreaterOrEqual(t, d[axis], float32(-0.02-1e-6))
		}
		if d.Len() > 0 {
			moved++
		}
	}
	assert.Greater(t, moved, len(a)/2)
}

func TestFromConfig(t *testing.T) {
	for _, layout := range []string{config.LayoutBlock, config.LayoutDam, config.LayoutRandom} {
		cfg := config.Default()
		cfg.Particles.Count = 500
		cfg.Particles.Layout = layout
		require.NoError(t, cfg.Refresh())

		ps, err := FromConfig(cfg)
		require.NoError(t, err, layout)
		assertStore(t, ps, 500, float32(cfg.Domain.SimWidth))
	}
}

func calibrationCoefficients(t *testing.T, mass float32) *systems.Coefficients {
	t.Helper()
	c, err := systems.NewCoefficients(systems.CoefficientParams{
		SimWidth:    10,
		Spacing:     0.25,
		H:           1,
		Mass:        mass,
		RestDensity: 10,
		GasConstant: 1,
		MaxKey:      4096,
	})
	require.NoError(t, err)
	return &c
}

func TestLatticeDensity_MatchesDensityPass(t *testing.T) {
	c := calibrationCoefficients(t, 1)
	spacing := float32(0.4)

	const side = 11
	ps := make([]components.Particle, 0, side*side*side)
	for z := 0; z < side; z++ {
		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				pos := mgl32.Vec3{2.1 + float32(x)*spacing, 2.1 + float32(y)*spacing, 2.1 + float32(z)*spacing}
				ps = append(ps, components.NewParticle(int32(len(ps)), pos))
			}
		}
	}
	table := systems.NewKeyIndexTable(len(ps))
	table.Build(ps, c)
	nt := systems.NewNeighborTable(len(ps))
	nt.BuildRange(table.Entries(), ps, c, 0, len(ps))
	systems.ComputeDensityPressure(ps, table.Entries(), nt, c, 0, len(ps))

	centre := ps[(side/2)*side*side+(side/2)*side+side/2]
	want := LatticeDensity(c, spacing)
	assert.InDelta(t, want, float64(centre.Density), 1e-4*want)
}

func TestCalibrateSpacing(t *testing.T) {
	c := calibrationCoefficients(t, 1)
	spacing, err := CalibrateSpacing(c)
	require.NoError(t, err)

	assert.Greater(t, spacing, 0.2*c.H)
	assert.Less(t, spacing, c.H)
	assert.InEpsilon(t, float64(c.P0), LatticeDensity(c, spacing), 1e-3)
}

func TestCalibrateSpacing_Unreachable(t *testing.T) {
	// Self density alone exceeds rest density.
	_, err := CalibrateSpacing(calibrationCoefficients(t, 100))
	assert.True(t, errors.Is(err, ErrUnreachable), "got %v", err)

	// Even the densest lattice is too light.
	_, err = CalibrateSpacing(calibrationCoefficients(t, 1e-4))
	assert.True(t, errors.Is(err, ErrUnreachable), "got %v", err)
}

func TestCalibrateMass(t *testing.T) {
	c := calibrationCoefficients(t, 1)
	m, err := CalibrateMass(c, 0.5)
	require.NoError(t, err)

	calibrated := *c
	calibrated.M = m
	assert.InEpsilon(t, float64(c.P0), LatticeDensity(&calibrated, 0.5), 1e-5)

	_, err = CalibrateMass(c, 0)
	assert.Error(t, err)
}
