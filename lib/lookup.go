package lib

import (
	"fmt"
	"math"
)

// Sample is an unsigned integer pixel component that can index a lookup
// table directly.
type Sample interface {
	~uint8 | ~uint16
}

// LookupTable maps every quantized input level to an output level. It is
// immutable once built. A nil *LookupTable is the identity.
type LookupTable struct {
	entries []float64
	levels  []uint16
}

// NewLookupTable evaluates fn at every integer in [0, length) and clamps each
// result into [0, length-1]. A nil fn yields a nil table.
func NewLookupTable(fn CurveFunc, length int) *LookupTable {
	if fn == nil {
		return nil
	}
	if length <= 0 || length > math.MaxUint16+1 {
		panic(fmt.Sprintf("lookup table length %d out of range", length))
	}
	t := &LookupTable{
		entries: make([]float64, length),
		levels:  make([]uint16, length),
	}
	top := float64(length - 1)
	for i := range t.entries {
		v := fn(float64(i))
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Min(math.Max(v, 0), top)
		t.entries[i] = v
		t.levels[i] = uint16(v)
	}
	return t
}

func (t *LookupTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// At returns the stored (unquantized) entry for level i.
func (t *LookupTable) At(i int) float64 {
	if t == nil {
		return float64(i)
	}
	return t.entries[i]
}

// Entries returns a copy of the stored entries.
func (t *LookupTable) Entries() []float64 {
	if t == nil {
		return nil
	}
	out := make([]float64, len(t.entries))
	copy(out, t.entries)
	return out
}

// Levels returns the entries truncated to integer output levels, which is
// what ApplyLookup writes.
func (t *LookupTable) Levels() []uint16 {
	if t == nil {
		return nil
	}
	out := make([]uint16, len(t.levels))
	copy(out, t.levels)
	return out
}

// ApplyLookup writes t[v] into dst for every v in src. src and dst may be the
// same slice. A nil table copies src into dst. dst is left untouched when any
// sample is outside the table.
func ApplyLookup[T Sample](t *LookupTable, src []T, dst []T) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%w: src has %d samples, dst has %d", ErrShapeMismatch, len(src), len(dst))
	}
	if t == nil {
		copy(dst, src)
		return nil
	}
	levels := t.levels
	n := len(levels)
	for i, v := range src {
		if int(v) >= n {
			return fmt.Errorf("sample %d at %d exceeds %d-entry table", v, i, n)
		}
	}
	for i, v := range src {
		dst[i] = T(levels[v])
	}
	return nil
}
