package scene

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/sph/systems"
)

// ErrUnreachable is returned when no lattice spacing yields the rest density.
var ErrUnreachable = errors.New("rest density unreachable")

// Bounds of the spacing search, as fractions of h.
const (
	minSpacingFrac = 0.2
	maxSpacingFrac = 1.0
)

// LatticeDensity returns the density of an interior particle of an infinite
// cubic lattice with the given spacing.
func LatticeDensity(c *systems.Coefficients, spacing float32) float64 {
	if !(spacing > 0) {
		return math.Inf(1)
	}
	s := float64(spacing)
	k := int(math.Ceil(float64(c.H) / s))
	h2 := float64(c.H2)

	var sum float64
	for z := -k; z <= k; z++ {
		for y := -k; y <= k; y++ {
			for x := -k; x <= k; x++ {
				r2 := float64(x*x+y*y+z*z) * s * s
				if r2 >= h2 {
					continue
				}
				diff := h2 - r2
				sum += float64(c.Poly6) * diff * diff * diff
			}
		}
	}
	return float64(c.M) * sum
}

// CalibrateMass returns the particle mass at which a lattice with the given
// spacing sits exactly at rest density.
func CalibrateMass(c *systems.Coefficients, spacing float32) (float32, error) {
	unit := *c
	unit.M = 1
	d := LatticeDensity(&unit, spacing)
	if !(d > 0) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("%w: spacing %v", ErrUnreachable, spacing)
	}
	return float32(float64(c.P0) / d), nil
}

// CalibrateSpacing finds the lattice spacing in [0.2h, h] at which interior
// density equals rest density for the configured mass.
// Lattice density falls monotonically with spacing, so the search is one-dimensional.
func CalibrateSpacing(c *systems.Coefficients) (float32, error) {
	lo := float64(c.H) * minSpacingFrac
	hi := float64(c.H) * maxSpacingFrac
	target := float64(c.P0)

	// At the upper bound only the particle itself contributes.
	if dHi := LatticeDensity(c, float32(hi)); dHi > target {
		return 0, fmt.Errorf("%w: self density %.4g exceeds rest density %.4g; lower the mass", ErrUnreachable, dHi, target)
	}
	if dLo := LatticeDensity(c, float32(lo)); dLo < target {
		return 0, fmt.Errorf("%w: density %.4g at spacing %.4g is below rest density %.4g; raise the mass", ErrUnreachable, dLo, lo, target)
	}

	// Map the unconstrained optimizer variable into (lo, hi).
	spacingAt := func(x float64) float64 {
		return lo + (hi-lo)/(1+math.Exp(-x))
	}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			rel := LatticeDensity(c, float32(spacingAt(x[0])))/target - 1
			return rel * rel
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: 2000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Iterations: 50,
		},
	}

	result, err := optimize.Minimize(problem, []float64{0}, settings, &optimize.NelderMead{})
	if err != nil && result == nil {
		return 0, fmt.Errorf("minimizing density error: %w", err)
	}

	spacing := float32(spacingAt(result.X[0]))
	if rel := math.Abs(LatticeDensity(c, spacing)/target - 1); rel > 1e-3 {
		return 0, fmt.Errorf("%w: best spacing %v misses rest density by %.2g%%", ErrUnreachable, spacing, rel*100)
	}
	return spacing, nil
}
