package systems

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sph/components"
)

// ComputeForces rebuilds Force for slots [start, end) from gravity, the pressure
// gradient and viscosity of every neighbour within h.
// It reads positions, velocities, densities and pressures of all particles and
// writes only Force of the slots it owns, so density must be complete for every
// particle before it runs.
func ComputeForces(particles []components.Particle, entries []components.KeyIndex, nt *NeighborTable, c *Coefficients, start, end int) {
	gravity := mgl32.Vec3{0, c.Gravity * c.M, 0}

	for i := start; i < end; i++ {
		p := &particles[i]
		force := gravity

		for _, r := range nt.Ranges(i) {
			for k := r.First; k <= r.Last; k++ {
				j := entries[k].Index
				if int(j) == i {
					continue
				}
				q := &particles[j]

				rij := p.Pos.Sub(q.Pos)
				r2 := rij.Dot(rij)
				if r2 >= c.H2 {
					continue
				}
				dist := float32(math.Sqrt(float64(r2)))
				rhoJ := clampDensity(q.Density, c)

				// Pressure: -m (pi + pj) / (2 rhoj) * grad W_spiky, directed from q to p.
				pressure := -c.M * (p.Pressure + q.Pressure) / (2 * rhoJ)
				force = force.Add(c.SpikyGradient(rij, dist).Mul(pressure))

				// Viscosity: mu m (vj - vi) / rhoj * lap W_visc.
				visc := c.ViscosityConstant * c.M / rhoJ * c.ViscosityLaplacian(dist)
				force = force.Add(q.Vel.Sub(p.Vel).Mul(visc))
			}
		}

		p.Force = force
	}
}

// clampDensity keeps divisors away from zero.
func clampDensity(density float32, c *Coefficients) float32 {
	if density < c.DensityFloor {
		return c.DensityFloor
	}
	return density
}
