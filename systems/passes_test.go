package systems

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/sph/components"
)

// lattice places side^3 particles at the given spacing starting at origin.
func lattice(side int, spacing float32, origin mgl32.Vec3) []components.Particle {
	ps := make([]components.Particle, 0, side*side*side)
	for z := 0; z < side; z++ {
		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				pos := origin.Add(mgl32.Vec3{float32(x), float32(y), float32(z)}.Mul(spacing))
				ps = append(ps, components.NewParticle(int32(len(ps)), pos))
			}
		}
	}
	return ps
}

type passFixture struct {
	c         *Coefficients
	particles []components.Particle
	table     *KeyIndexTable
	nt        *NeighborTable
}

func runDensity(t *testing.T, c *Coefficients, ps []components.Particle) (*passFixture, int) {
	t.Helper()
	table := NewKeyIndexTable(len(ps))
	table.Build(ps, c)
	nt := NewNeighborTable(len(ps))
	nt.BuildRange(table.Entries(), ps, c, 0, len(ps))
	floored := ComputeDensityPressure(ps, table.Entries(), nt, c, 0, len(ps))
	return &passFixture{c: c, particles: ps, table: table, nt: nt}, floored
}

func TestDensity_AtLeastSelfContribution(t *testing.T) {
	c := mustCoefficients(t, baseParams())
	rng := rand.New(rand.NewSource(6))
	ps := randomParticles(rng, 500, c.SimWidth)

	_, floored := runDensity(t, c, ps)
	assert.Zero(t, floored)

	self := c.SelfDensity()
	for i := range ps {
		assert.GreaterOrEqual(t, ps[i].Density, self*(1-1e-6), "particle %d", i)
		assert.GreaterOrEqual(t, ps[i].Pressure, float32(0))
	}
}

func TestDensity_MatchesBruteForce(t *testing.T) {
	p := baseParams()
	p.MaxKey = 31
	c := mustCoefficients(t, p)
	rng := rand.New(rand.NewSource(7))
	ps := randomParticles(rng, 300, 4)

	runDensity(t, c, ps)

	for i := range ps {
		var want float64
		for j := range ps {
			d := ps[i].Pos.Sub(ps[j].Pos)
			want += float64(c.M * c.Poly6Kernel(d.Dot(d)))
		}
		assert.InDelta(t, want, float64(ps[i].Density), 1e-4*want, "particle %d", i)
	}
}

func TestPressure_ClampedNonNegative(t *testing.T) {
	p := baseParams()
	p.RestDensity = 1000
	c := mustCoefficients(t, p)

	assert.Zero(t, Pressure(1, c))
	assert.InDelta(t, 500.0, float64(Pressure(1500, c)), 1e-3)
}

func TestDensity_FloorCounted(t *testing.T) {
	p := baseParams()
	p.Mass = 1e-9
	p.DensityFloor = 1
	c := mustCoefficients(t, p)
	ps := []components.Particle{components.NewParticle(0, mgl32.Vec3{1, 1, 1})}

	_, floored := runDensity(t, c, ps)
	assert.Equal(t, 1, floored)
}

func TestForces_RestLatticeBalanced(t *testing.T) {
	p := baseParams()
	p.SimWidth = 20
	p.Gravity = 0
	p.Viscosity = 0.5
	c := mustCoefficients(t, p)

	const side = 9
	spacing := c.H / 2
	ps := lattice(side, spacing, mgl32.Vec3{5.1, 5.1, 5.1})
	f, _ := runDensity(t, c, ps)
	ComputeForces(ps, f.table.Entries(), f.nt, c, 0, len(ps))

	// Scale of a single neighbour's pressure push at the lattice spacing.
	interior := ps[(side/2)*side*side+(side/2)*side+side/2]
	require.Greater(t, interior.Pressure, float32(0))
	pair := c.SpikyGradient(mgl32.Vec3{spacing, 0, 0}, spacing).Mul(c.M * interior.Pressure / interior.Density).Len()
	require.Greater(t, pair, float32(0))

	// Particles two or more layers from the surface see a symmetric neighbourhood.
	for z := 2; z < side-2; z++ {
		for y := 2; y < side-2; y++ {
			for x := 2; x < side-2; x++ {
				q := ps[z*side*side+y*side+x]
				assert.Less(t, q.Force.Len(), 1e-3*pair, "lattice (%d,%d,%d) force %v", x, y, z, q.Force)
			}
		}
	}

	// Surface particles are pushed outward.
	corner := ps[0]
	assert.Less(t, corner.Force[0], float32(0))
	assert.Less(t, corner.Force[1], float32(0))
	assert.Less(t, corner.Force[2], float32(0))
}

func TestForces_GravityOnly(t *testing.T) {
	c := mustCoefficients(t, baseParams())
	ps := []components.Particle{components.NewParticle(0, mgl32.Vec3{5, 5, 5})}
	f, _ := runDensity(t, c, ps)
	ComputeForces(ps, f.table.Entries(), f.nt, c, 0, 1)

	assert.Equal(t, mgl32.Vec3{0, c.Gravity * c.M, 0}, ps[0].Force)
}

func TestForces_CoincidentParticlesFinite(t *testing.T) {
	c := mustCoefficients(t, baseParams())
	ps := []components.Particle{
		components.NewParticle(0, mgl32.Vec3{5, 5, 5}),
		components.NewParticle(1, mgl32.Vec3{5, 5, 5}),
	}
	ps[1].Vel = mgl32.Vec3{1, 0, 0}
	f, _ := runDensity(t, c, ps)
	ComputeForces(ps, f.table.Entries(), f.nt, c, 0, 2)

	for i := range ps {
		for axis := 0; axis < 3; axis++ {
			v := float64(ps[i].Force[axis])
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "particle %d axis %d", i, axis)
		}
	}
	// Viscosity still couples them.
	assert.Greater(t, ps[0].Force[0], float32(0))
	assert.Less(t, ps[1].Force[0], float32(0))
}

func TestForces_PairIsAntisymmetric(t *testing.T) {
	p := baseParams()
	p.Gravity = 0
	c := mustCoefficients(t, p)
	ps := []components.Particle{
		components.NewParticle(0, mgl32.Vec3{5, 5, 5}),
		components.NewParticle(1, mgl32.Vec3{5.3, 5.2, 5.1}),
	}
	ps[0].Vel = mgl32.Vec3{0.5, 0, 0}
	f, _ := runDensity(t, c, ps)
	ComputeForces(ps, f.table.Entries(), f.nt, c, 0, 2)

	// Equal densities make the pair force exactly opposite.
	sum := ps[0].Force.Add(ps[1].Force)
	assert.InDelta(t, 0, float64(sum.Len()), 1e-4*float64(ps[0].Force.Len()))
	// Pressure pushes particle 0 away from particle 1.
	assert.Less(t, ps[0].Force[1], float32(0))
}
