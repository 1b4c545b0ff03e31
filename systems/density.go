package systems

import (
	"github.com/pthm-cable/sph/components"
)

// ComputeDensityPressure sums the poly6 kernel over every neighbour of slots [start, end),
// including the particle itself, then derives pressure from the equation of state.
// It writes only Density and Pressure of the slots it owns and returns how many of
// them fell below the density floor.
func ComputeDensityPressure(particles []components.Particle, entries []components.KeyIndex, nt *NeighborTable, c *Coefficients, start, end int) int {
	floored := 0

	for i := start; i < end; i++ {
		p := &particles[i]
		density := float32(0)

		for _, r := range nt.Ranges(i) {
			for k := r.First; k <= r.Last; k++ {
				q := &particles[entries[k].Index]
				d := p.Pos.Sub(q.Pos)
				r2 := d.Dot(d)
				if r2 >= c.H2 {
					continue
				}
				density += c.M * c.Poly6Kernel(r2)
			}
		}

		if density < c.DensityFloor {
			floored++
		}
		p.Density = density
		p.Pressure = Pressure(density, c)
	}

	return floored
}

// Pressure applies the ideal-gas equation of state, clamped to be repulsive only.
func Pressure(density float32, c *Coefficients) float32 {
	p := c.GasConstant * (density - c.P0)
	if p < 0 {
		return 0
	}
	return p
}
