// Package systems implements the SPH core: kernel coefficients, the spatial
// hash index and the per-particle passes run by the simulation each frame.
package systems

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrDegenerateConfig is returned when simulation parameters cannot produce a valid kernel set.
var ErrDegenerateConfig = errors.New("degenerate configuration")

// CoefficientParams are the user-facing inputs the kernel coefficients are derived from.
type CoefficientParams struct {
	SimWidth     float32 // Domain extent along each axis
	Spacing      float32 // Cell size d
	H            float32 // Smoothing radius
	Mass         float32 // Particle mass
	RestDensity  float32 // p0
	GasConstant  float32 // EOS stiffness
	Viscosity    float32 // Viscosity constant
	MaxKey       int32   // Hash table modulus
	DensityFloor float32 // Minimum density used as a divisor
	Gravity      float32 // Acceleration along Y (negative is down)
	Restitution  float32 // Wall velocity retention in [0, 1)
}

// Coefficients is the immutable per-frame configuration read by every pass.
// Rebuild it with NewCoefficients whenever a parameter changes; never mutate it mid-frame.
type Coefficients struct {
	SimWidth          float32
	D                 float32
	H                 float32
	M                 float32
	P0                float32
	GasConstant       float32
	ViscosityConstant float32

	// Müller et al. kernel normalizations
	Poly6     float32 // 315 / (64 pi h^9)
	Poly6Grad float32 // -945 / (32 pi h^9)
	Poly6Lap  float32 // -945 / (32 pi h^9)
	SpikyGrad float32 // -45 / (pi h^6)
	ViscLap   float32 // 45 / (pi h^6)

	MaxKey int32

	H2           float32
	DensityFloor float32
	Gravity      float32
	Restitution  float32
}

// NewCoefficients validates params and precomputes the kernel constants.
// Constants are evaluated in float64 and narrowed once.
func NewCoefficients(p CoefficientParams) (Coefficients, error) {
	h := float64(p.H)
	h6 := math.Pow(h, 6)
	h9 := math.Pow(h, 9)

	floor := p.DensityFloor
	if floor == 0 {
		floor = DefaultDensityFloor
	}

	c := Coefficients{
		SimWidth:          p.SimWidth,
		D:                 p.Spacing,
		H:                 p.H,
		M:                 p.Mass,
		P0:                p.RestDensity,
		GasConstant:       p.GasConstant,
		ViscosityConstant: p.Viscosity,
		Poly6:             float32(315.0 / (64.0 * math.Pi * h9)),
		Poly6Grad:         float32(-945.0 / (32.0 * math.Pi * h9)),
		Poly6Lap:          float32(-945.0 / (32.0 * math.Pi * h9)),
		SpikyGrad:         float32(-45.0 / (math.Pi * h6)),
		ViscLap:           float32(45.0 / (math.Pi * h6)),
		MaxKey:            p.MaxKey,
		H2:                p.H * p.H,
		DensityFloor:      floor,
		Gravity:           p.Gravity,
		Restitution:       p.Restitution,
	}
	if err := c.Validate(); err != nil {
		return Coefficients{}, err
	}
	return c, nil
}

// Validate reports the first coefficient that cannot drive a frame.
// Errors wrap ErrDegenerateConfig. A zero Coefficients is invalid.
func (c *Coefficients) Validate() error {
	switch {
	case !(c.H > 0):
		return fmt.Errorf("%w: smoothing radius must be positive, got %v", ErrDegenerateConfig, c.H)
	case !(c.D > 0):
		return fmt.Errorf("%w: cell size must be positive, got %v", ErrDegenerateConfig, c.D)
	case !(c.SimWidth > 0) || !isFinite(c.SimWidth):
		return fmt.Errorf("%w: domain size must be positive, got %v", ErrDegenerateConfig, c.SimWidth)
	case c.MaxKey <= 0:
		return fmt.Errorf("%w: max key must be positive, got %d", ErrDegenerateConfig, c.MaxKey)
	case !(c.M > 0):
		return fmt.Errorf("%w: particle mass must be positive, got %v", ErrDegenerateConfig, c.M)
	case !(c.P0 > 0):
		return fmt.Errorf("%w: rest density must be positive, got %v", ErrDegenerateConfig, c.P0)
	case !(c.GasConstant >= 0) || !(c.ViscosityConstant >= 0):
		return fmt.Errorf("%w: gas and viscosity constants must be non-negative", ErrDegenerateConfig)
	case !(c.Restitution >= 0 && c.Restitution < 1):
		return fmt.Errorf("%w: restitution must be in [0, 1), got %v", ErrDegenerateConfig, c.Restitution)
	case !(c.DensityFloor > 0):
		return fmt.Errorf("%w: density floor must be positive, got %v", ErrDegenerateConfig, c.DensityFloor)
	case !isFinite(c.Gravity):
		return fmt.Errorf("%w: gravity must be finite, got %v", ErrDegenerateConfig, c.Gravity)
	case !(c.H2 > 0) || !(c.Poly6 > 0) || !isFinite(c.Poly6) || !isFinite(c.SpikyGrad) || !isFinite(c.ViscLap):
		return fmt.Errorf("%w: kernel constants not precomputed for h=%v", ErrDegenerateConfig, c.H)
	}
	return nil
}

// DefaultDensityFloor is used when no floor is configured.
const DefaultDensityFloor float32 = 1e-3

// Poly6Kernel evaluates the density kernel for a squared distance r2.
func (c *Coefficients) Poly6Kernel(r2 float32) float32 {
	if r2 >= c.H2 || r2 < 0 {
		return 0
	}
	diff := c.H2 - r2
	return c.Poly6 * diff * diff * diff
}

// SelfDensity is the density a lone particle contributes to itself.
func (c *Coefficients) SelfDensity() float32 {
	return c.M * c.Poly6Kernel(0)
}

// poly6Gradient returns the gradient of the density kernel for offset rij = xi - xj.
func (c *Coefficients) poly6Gradient(rij mgl32.Vec3, r2 float32) mgl32.Vec3 {
	if r2 >= c.H2 {
		return mgl32.Vec3{}
	}
	diff := c.H2 - r2
	return rij.Mul(c.Poly6Grad * diff * diff)
}

// poly6Laplacian returns the Laplacian of the density kernel.
func (c *Coefficients) poly6Laplacian(r2 float32) float32 {
	if r2 >= c.H2 {
		return 0
	}
	return c.Poly6Lap * (c.H2 - r2) * (3*c.H2 - 7*r2)
}

// SpikyGradient returns the spiky kernel gradient for offset rij at distance r.
// The gradient points from xi toward xj; callers negate it for repulsion.
// Coincident particles (r == 0) have no defined direction and yield zero.
func (c *Coefficients) SpikyGradient(rij mgl32.Vec3, r float32) mgl32.Vec3 {
	if r <= 0 || r >= c.H {
		return mgl32.Vec3{}
	}
	diff := c.H - r
	return rij.Mul(c.SpikyGrad * diff * diff / r)
}

// ViscosityLaplacian returns the Laplacian of the viscosity kernel at distance r.
func (c *Coefficients) ViscosityLaplacian(r float32) float32 {
	if r >= c.H {
		return 0
	}
	return c.ViscLap * (c.H - r)
}

// CellsPerAxis returns how many smoothing-radius cells span the domain.
func (c *Coefficients) CellsPerAxis() int {
	return int(math.Ceil(float64(c.SimWidth / c.H)))
}
