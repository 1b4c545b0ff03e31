package systems

import (
	"github.com/pthm-cable/sph/components"
)

// Radix sort digit width. Two passes cover keys below 2^22.
const (
	radixBits    = 11
	radixBuckets = 1 << radixBits
	radixMask    = radixBuckets - 1
)

// KeyIndexTable is the per-frame array of (key, slot) pairs, sorted ascending by key.
// It is rebuilt in full every frame and read-only while the density and force passes run.
type KeyIndexTable struct {
	entries []components.KeyIndex
	scratch []components.KeyIndex
	counts  [radixBuckets]int
}

// NewKeyIndexTable allocates a table for n particles.
func NewKeyIndexTable(n int) *KeyIndexTable {
	return &KeyIndexTable{
		entries: make([]components.KeyIndex, n),
		scratch: make([]components.KeyIndex, n),
	}
}

// Resize grows or shrinks the table to n entries, reusing storage when possible.
func (t *KeyIndexTable) Resize(n int) {
	if cap(t.entries) < n {
		t.entries = make([]components.KeyIndex, n)
		t.scratch = make([]components.KeyIndex, n)
		return
	}
	t.entries = t.entries[:n]
	t.scratch = t.scratch[:n]
}

// Len returns the number of entries.
func (t *KeyIndexTable) Len() int {
	return len(t.entries)
}

// Entries returns the sorted entries. Callers must not modify them.
func (t *KeyIndexTable) Entries() []components.KeyIndex {
	return t.entries
}

// AssignRange computes the key of every particle in slots [start, end).
// Ranges are disjoint, so workers may call it concurrently.
func (t *KeyIndexTable) AssignRange(particles []components.Particle, c *Coefficients, start, end int) {
	for i := start; i < end; i++ {
		t.entries[i] = components.KeyIndex{
			Key:   KeyOf(particles[i].Pos, c),
			Index: int32(i),
		}
	}
}

// Sort orders entries ascending by key with an LSD radix sort.
// Keys must lie in [0, maxKey). Relative order within a key run is preserved.
func (t *KeyIndexTable) Sort(maxKey int32) {
	src, dst := t.entries, t.scratch
	limit := uint32(0)
	if maxKey > 0 {
		limit = uint32(maxKey - 1)
	}

	for shift := uint(0); limit>>shift > 0; shift += radixBits {
		counts := &t.counts
		for i := range counts {
			counts[i] = 0
		}
		for _, e := range src {
			counts[(uint32(e.Key)>>shift)&radixMask]++
		}
		offset := 0
		for i, c := range counts {
			counts[i] = offset
			offset += c
		}
		for _, e := range src {
			b := (uint32(e.Key) >> shift) & radixMask
			dst[counts[b]] = e
			counts[b]++
		}
		src, dst = dst, src
	}

	t.entries, t.scratch = src, dst
}

// Build assigns keys for all particles and sorts them. Single-threaded.
func (t *KeyIndexTable) Build(particles []components.Particle, c *Coefficients) {
	t.Resize(len(particles))
	t.AssignRange(particles, c, 0, len(particles))
	t.Sort(c.MaxKey)
}

// FindFirstKey returns the smallest index in [low, high) whose entry has the given key, or -1.
// entries must be sorted by key. Runs in O(log n).
func FindFirstKey(entries []components.KeyIndex, key int32, low, high int) int {
	low, high = clampWindow(len(entries), low, high)
	lo, hi := low, high
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if entries[mid].Key < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < high && entries[lo].Key == key {
		return lo
	}
	return -1
}

// FindLastKey returns the largest index in [low, high) whose entry has the given key, or -1.
func FindLastKey(entries []components.KeyIndex, key int32, low, high int) int {
	low, high = clampWindow(len(entries), low, high)
	lo, hi := low, high
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if entries[mid].Key <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo > low && entries[lo-1].Key == key {
		return lo - 1
	}
	return -1
}

// FindRange returns the run of entries equal to key over the whole array.
func FindRange(entries []components.KeyIndex, key int32) components.KeyRange {
	first := FindFirstKey(entries, key, 0, len(entries))
	if first < 0 {
		return components.EmptyRange
	}
	last := FindLastKey(entries, key, first, len(entries))
	return components.KeyRange{First: int32(first), Last: int32(last)}
}

func clampWindow(n, low, high int) (int, int) {
	if low < 0 {
		low = 0
	}
	if high > n {
		high = n
	}
	if high < low {
		high = low
	}
	return low, high
}
