package components

// KeyIndex pairs a cell hash key with the slot of the particle that produced it.
// Index is the particle's current slot in the store, not its OIdx.
type KeyIndex struct {
	Key   int32
	Index int32
}

// KeyRange is the inclusive span [First, Last] of sorted KeyIndex entries sharing one key.
// A miss is represented by First == -1.
type KeyRange struct {
	First int32
	Last  int32
}

// EmptyRange is the range returned when a key has no entries.
var EmptyRange = KeyRange{First: -1, Last: -1}

// Empty reports whether the range holds no entries.
func (r KeyRange) Empty() bool {
	return r.First < 0 || r.Last < r.First
}

// Len returns the number of entries covered by the range.
func (r KeyRange) Len() int {
	if r.Empty() {
		return 0
	}
	return int(r.Last-r.First) + 1
}
