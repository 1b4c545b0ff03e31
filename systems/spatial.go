package systems

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sph/components"
)

// Hash primes from Teschner et al., "Optimized Spatial Hashing for Collision Detection".
const (
	hashPrimeX uint32 = 73856093
	hashPrimeY uint32 = 19349663
	hashPrimeZ uint32 = 83492791
)

// Cell holds integer cell coordinates on the smoothing-radius grid.
type Cell [3]int32

// CellOf maps a position to its cell by dividing each axis by h and flooring.
func CellOf(pos mgl32.Vec3, c *Coefficients) Cell {
	inv := 1 / c.H
	return Cell{
		floorCoord(pos[0] * inv),
		floorCoord(pos[1] * inv),
		floorCoord(pos[2] * inv),
	}
}

// floorCoord floors a scaled coordinate into int32 range. NaN maps to cell 0.
func floorCoord(v float32) int32 {
	f := math.Floor(float64(v))
	switch {
	case math.IsNaN(f):
		return 0
	case f > math.MaxInt32:
		return math.MaxInt32
	case f < math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

// HashCell folds cell coordinates into a key in [0, maxKey).
// It is a pure function of its inputs; adjacent cells land far apart to limit clustering.
func HashCell(x, y, z, maxKey int32) int32 {
	if maxKey <= 1 {
		return 0
	}
	h := uint32(x)*hashPrimeX ^ uint32(y)*hashPrimeY ^ uint32(z)*hashPrimeZ
	return int32(h % uint32(maxKey))
}

// Key returns the hash key of the cell.
func (cell Cell) Key(maxKey int32) int32 {
	return HashCell(cell[0], cell[1], cell[2], maxKey)
}

// KeyOf returns the hash key for a position.
func KeyOf(pos mgl32.Vec3, c *Coefficients) int32 {
	return CellOf(pos, c).Key(c.MaxKey)
}

// NeighborCells is the number of cells examined per query: the cell itself plus its 26 neighbours.
const NeighborCells = 27

// NeighborKeys writes the distinct keys of the 3x3x3 block around cell into dst and returns
// how many were written. Cells whose keys collide are reported once so no run is visited twice.
func NeighborKeys(cell Cell, maxKey int32, dst *[NeighborCells]int32) int {
	n := 0
	for dz := int32(-1); dz <= 1; dz++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dx := int32(-1); dx <= 1; dx++ {
				key := HashCell(cell[0]+dx, cell[1]+dy, cell[2]+dz, maxKey)
				dup := false
				for k := 0; k < n; k++ {
					if dst[k] == key {
						dup = true
						break
					}
				}
				if !dup {
					dst[n] = key
					n++
				}
			}
		}
	}
	return n
}

// QueryRadiusInto appends the slots of all particles within h of pos to dst.
// Hash candidates are filtered by true distance, so collisions with far cells never leak through.
// Reuse dst across calls to avoid allocations.
func QueryRadiusInto(dst []int32, pos mgl32.Vec3, entries []components.KeyIndex, particles []components.Particle, c *Coefficients) []int32 {
	var keys [NeighborCells]int32
	n := NeighborKeys(CellOf(pos, c), c.MaxKey, &keys)

	for _, key := range keys[:n] {
		r := FindRange(entries, key)
		if r.Empty() {
			continue
		}
		for k := r.First; k <= r.Last; k++ {
			slot := entries[k].Index
			d := pos.Sub(particles[slot].Pos)
			if d.Dot(d) < c.H2 {
				dst = append(dst, slot)
			}
		}
	}
	return dst
}
