package systems

import (
	"github.com/pthm-cable/sph/components"
)

// Integrate advances slots [start, end) one semi-implicit Euler step:
// velocity first from force over density, then position from the new velocity.
// Particles leaving [0, SimWidth] on any axis are clamped to the wall and their
// velocity along that axis reflected and scaled by the restitution coefficient.
// ramp may be nil, in which case colours are left untouched.
func Integrate(particles []components.Particle, c *Coefficients, ramp *ColorRamp, dt float32, start, end int) {
	for i := start; i < end; i++ {
		p := &particles[i]

		accel := p.Force.Mul(1 / clampDensity(p.Density, c))
		p.Vel = p.Vel.Add(accel.Mul(dt))
		p.Pos = p.Pos.Add(p.Vel.Mul(dt))

		for axis := 0; axis < 3; axis++ {
			containAxis(p, axis, c)
		}

		if ramp != nil {
			p.Color = ramp.At(p.Speed())
		}
	}
}

// containAxis clamps one coordinate to the domain and bounces the velocity component.
// A non-finite coordinate is pinned to the wall it escaped through, or the origin when
// no direction can be told, and its velocity zeroed.
func containAxis(p *components.Particle, axis int, c *Coefficients) {
	x := p.Pos[axis]
	switch {
	case !isFinite(x):
		if x > 0 {
			p.Pos[axis] = c.SimWidth
		} else {
			p.Pos[axis] = 0
		}
		p.Vel[axis] = 0
	case !isFinite(p.Vel[axis]):
		p.Pos[axis] = clampFloat(x, 0, c.SimWidth)
		p.Vel[axis] = 0
	case x < 0:
		p.Pos[axis] = 0
		if p.Vel[axis] < 0 {
			p.Vel[axis] = -p.Vel[axis] * c.Restitution
		}
	case x > c.SimWidth:
		p.Pos[axis] = c.SimWidth
		if p.Vel[axis] > 0 {
			p.Vel[axis] = -p.Vel[axis] * c.Restitution
		}
	}
}

// Contain clamps every particle into the domain and zeroes non-finite velocity.
// Used on freshly seeded or externally edited stores.
func Contain(particles []components.Particle, c *Coefficients) {
	for i := range particles {
		p := &particles[i]
		for axis := 0; axis < 3; axis++ {
			if !isFinite(p.Pos[axis]) {
				p.Pos[axis] = 0
			}
			if !isFinite(p.Vel[axis]) {
				p.Vel[axis] = 0
			}
			p.Pos[axis] = clampFloat(p.Pos[axis], 0, c.SimWidth)
		}
	}
}
