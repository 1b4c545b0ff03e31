// Package scene seeds particle stores for the host: lattice blocks, dam-break
// columns and random clouds, plus rest-state calibration of lattice spacing and mass.
package scene

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/sph/components"
	"github.com/pthm-cable/sph/config"
)

// Layout describes where particles are seeded.
type Layout struct {
	Count    int
	Spacing  float32 // Lattice spacing
	SimWidth float32
	Fill     float32 // Fraction of the domain the footprint may span along X and Z
}

// FromConfig seeds particles according to the particles section of cfg.
// The lattice spacing is particles.spacing, or h/2 when unset.
func FromConfig(cfg *config.Config) ([]components.Particle, error) {
	spacing := float32(cfg.Particles.Spacing)
	if spacing == 0 {
		spacing = cfg.Derived.H32 / 2
	}
	l := Layout{
		Count:    cfg.Particles.Count,
		Spacing:  spacing,
		SimWidth: float32(cfg.Domain.SimWidth),
		Fill:     float32(cfg.Particles.Fill),
	}

	var ps []components.Particle
	var err error
	switch cfg.Particles.Layout {
	case config.LayoutBlock:
		ps, err = Block(l)
	case config.LayoutDam:
		ps, err = DamBreak(l)
	case config.LayoutRandom:
		ps, err = Random(l, cfg.Particles.Seed)
	default:
		return nil, fmt.Errorf("unknown layout %q", cfg.Particles.Layout)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Particles.Jitter > 0 && cfg.Particles.Layout != config.LayoutRandom {
		Jitter(ps, float32(cfg.Particles.Jitter)*spacing, spacing, l.SimWidth, cfg.Particles.Seed)
	}
	return ps, nil
}

func (l Layout) validate() error {
	switch {
	case l.Count < 0:
		return fmt.Errorf("particle count must be non-negative, got %d", l.Count)
	case !(l.Spacing > 0):
		return fmt.Errorf("lattice spacing must be positive, got %v", l.Spacing)
	case !(l.SimWidth > 0):
		return fmt.Errorf("domain width must be positive, got %v", l.SimWidth)
	case !(l.Fill > 0 && l.Fill <= 1):
		return fmt.Errorf("fill must be in (0, 1], got %v", l.Fill)
	}
	return nil
}

// cubeSide returns the smallest k with k^3 >= n.
func cubeSide(n int) int {
	k := int(math.Cbrt(float64(n)))
	for k*k*k < n {
		k++
	}
	for k > 1 && (k-1)*(k-1)*(k-1) >= n {
		k--
	}
	return k
}

// perAxis returns how many lattice points fit along width.
func perAxis(width, spacing float32) int {
	return int(math.Floor(float64(width / spacing)))
}

// lattice stacks count particles in layers of kx by kz starting at origin.
// It fails if the stack would leave the domain.
func lattice(l Layout, kx, kz int, origin mgl32.Vec3) ([]components.Particle, error) {
	if l.Count == 0 {
		return nil, nil
	}
	kx = max(kx, 1)
	kz = max(kz, 1)
	layers := (l.Count + kx*kz - 1) / (kx * kz)
	if top := origin[1] + float32(layers-1)*l.Spacing; top > l.SimWidth {
		return nil, fmt.Errorf("%d particles at spacing %v need %d layers, domain holds %d", l.Count, l.Spacing, layers, perAxis(l.SimWidth, l.Spacing))
	}

	ps := make([]components.Particle, 0, l.Count)
	for y := 0; len(ps) < l.Count; y++ {
		for z := 0; z < kz && len(ps) < l.Count; z++ {
			for x := 0; x < kx && len(ps) < l.Count; x++ {
				pos := origin.Add(mgl32.Vec3{float32(x), float32(y), float32(z)}.Mul(l.Spacing))
				ps = append(ps, components.NewParticle(int32(len(ps)), pos))
			}
		}
	}
	return ps, nil
}

// Block seeds a roughly cubic lattice resting on the floor, centred in X and Z.
func Block(l Layout) ([]components.Particle, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	side := cubeSide(l.Count)
	k := min(side, perAxis(l.Fill*l.SimWidth, l.Spacing))
	k = max(k, 1)

	extent := float32(k-1) * l.Spacing
	offset := (l.SimWidth - extent) / 2
	return lattice(l, k, k, mgl32.Vec3{offset, l.Spacing / 2, offset})
}

// DamBreak seeds a tall column against the low X wall.
// Released, it collapses across the floor.
func DamBreak(l Layout) ([]components.Particle, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	side := cubeSide(l.Count)
	limit := perAxis(l.Fill*l.SimWidth, l.Spacing)
	kx := max(min((side+1)/2, limit), 1)
	kz := max(min(side, limit), 1)

	half := l.Spacing / 2
	return lattice(l, kx, kz, mgl32.Vec3{half, half, half})
}

// Random scatters particles uniformly over the block footprint, floor to fill height.
func Random(l Layout, seed int64) ([]components.Particle, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	extent := l.Fill * l.SimWidth
	offset := (l.SimWidth - extent) / 2

	ps := make([]components.Particle, l.Count)
	for i := range ps {
		ps[i] = components.NewParticle(int32(i), mgl32.Vec3{
			offset + rng.Float32()*extent,
			rng.Float32() * extent,
			offset + rng.Float32()*extent,
		})
	}
	return ps, nil
}

// Jitter displaces each particle by up to amplitude per axis using coherent noise,
// so nearby particles move together and the lattice loses its perfect symmetry.
// Results stay inside [0, simWidth].
func Jitter(ps []components.Particle, amplitude, spacing, simWidth float32, seed int64) {
	noise := opensimplex.New(seed)
	freq := 0.5 / float64(spacing)

	for i := range ps {
		p := &ps[i]
		x := float64(p.Pos[0]) * freq
		y := float64(p.Pos[1]) * freq
		z := float64(p.Pos[2]) * freq

		d := mgl32.Vec3{
			float32(noise.Eval3(x, y, z)),
			float32(noise.Eval3(x+31.7, y, z)),
			float32(noise.Eval3(x, y+57.3, z)),
		}
		p.Pos = p.Pos.Add(d.Mul(amplitude))
		for axis := 0; axis < 3; axis++ {
			p.Pos[axis] = mgl32.Clamp(p.Pos[axis], 0, simWidth)
		}
	}
}
