package systems

import (
	"github.com/pthm-cable/sph/components"
)

// NeighborTable caches, per particle slot, the key ranges of its 27 surrounding cells.
// It is filled once per frame after the sort and read by both the density and force passes.
type NeighborTable struct {
	ranges []components.KeyRange // NeighborCells entries per slot
	counts []uint8
}

// NewNeighborTable allocates a table for n particles.
func NewNeighborTable(n int) *NeighborTable {
	return &NeighborTable{
		ranges: make([]components.KeyRange, n*NeighborCells),
		counts: make([]uint8, n),
	}
}

// Resize adjusts the table to hold n particles.
func (nt *NeighborTable) Resize(n int) {
	if cap(nt.counts) < n {
		nt.ranges = make([]components.KeyRange, n*NeighborCells)
		nt.counts = make([]uint8, n)
		return
	}
	nt.ranges = nt.ranges[:n*NeighborCells]
	nt.counts = nt.counts[:n]
}

// BuildRange resolves the neighbour ranges for slots [start, end).
// Empty runs are skipped, so Ranges only returns cells that hold candidates.
func (nt *NeighborTable) BuildRange(entries []components.KeyIndex, particles []components.Particle, c *Coefficients, start, end int) {
	var keys [NeighborCells]int32
	n := len(entries)

	for i := start; i < end; i++ {
		count := NeighborKeys(CellOf(particles[i].Pos, c), c.MaxKey, &keys)
		base := i * NeighborCells
		written := 0
		for _, key := range keys[:count] {
			first := FindFirstKey(entries, key, 0, n)
			if first < 0 {
				continue
			}
			last := FindLastKey(entries, key, first, n)
			nt.ranges[base+written] = components.KeyRange{First: int32(first), Last: int32(last)}
			written++
		}
		nt.counts[i] = uint8(written)
	}
}

// Ranges returns the non-empty candidate runs for slot i.
func (nt *NeighborTable) Ranges(i int) []components.KeyRange {
	base := i * NeighborCells
	return nt.ranges[base : base+int(nt.counts[i])]
}
