// Package components defines the per-particle data the simulation operates on.
package components

import "github.com/go-gl/mathgl/mgl32"

// Particle is one fluid particle.
// The slice of particles is allocated once and only mutated by the frame pipeline.
type Particle struct {
	OIdx     int32      // Original index, stable across key-order reorders
	Pos      mgl32.Vec3 // Position in world units
	Vel      mgl32.Vec3 // Velocity in world units per second
	Force    mgl32.Vec3 // Accumulated force, rebuilt every frame
	Density  float32    // Kernel-summed density, >= 0
	Pressure float32    // Equation-of-state pressure, >= 0
	Color    mgl32.Vec4 // RGBA written for the renderer, never read by the simulation
}

// NewParticle creates a particle at rest at the given position.
func NewParticle(oidx int32, pos mgl32.Vec3) Particle {
	return Particle{
		OIdx:  oidx,
		Pos:   pos,
		Color: mgl32.Vec4{-1, -1, -1, -1},
	}
}

// Speed returns the magnitude of the particle velocity.
func (p *Particle) Speed() float32 {
	return p.Vel.Len()
}
