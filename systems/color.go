package systems

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
)

const colorRampSize = 256

// ColorRamp maps particle speed to an RGBA colour through a precomputed table.
type ColorRamp struct {
	table    [colorRampSize]mgl32.Vec4
	maxSpeed float32
}

// NewColorRamp blends from slow to fast (hex strings) in Lab space.
// Speeds at or above maxSpeed map to the fast colour.
func NewColorRamp(slow, fast string, maxSpeed float32) (*ColorRamp, error) {
	from, err := colorful.Hex(slow)
	if err != nil {
		return nil, fmt.Errorf("parsing slow color %q: %w", slow, err)
	}
	to, err := colorful.Hex(fast)
	if err != nil {
		return nil, fmt.Errorf("parsing fast color %q: %w", fast, err)
	}
	if !(maxSpeed > 0) {
		return nil, fmt.Errorf("color ramp max speed must be positive, got %v", maxSpeed)
	}

	r := &ColorRamp{maxSpeed: maxSpeed}
	for i := range r.table {
		t := float64(i) / float64(colorRampSize-1)
		col := from.BlendLab(to, t).Clamped()
		r.table[i] = mgl32.Vec4{float32(col.R), float32(col.G), float32(col.B), 1}
	}
	return r, nil
}

// At returns the colour for a speed.
func (r *ColorRamp) At(speed float32) mgl32.Vec4 {
	t := clamp01(speed / r.maxSpeed)
	if !isFinite(t) {
		t = 1
	}
	return r.table[int(t*(colorRampSize-1))]
}
