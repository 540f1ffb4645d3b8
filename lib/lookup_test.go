package lib

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLookupTableClamps(t *testing.T) {
	tests := []struct {
		name   string
		fn     CurveFunc
		length int
	}{
		{"doubling", func(x float64) float64 { return 2 * x }, 256},
		{"negative", func(x float64) float64 { return x - 300 }, 256},
		{"nan", func(x float64) float64 { return math.NaN() }, 256},
		{"inf", func(x float64) float64 { return math.Inf(1) }, 16},
		{"ten bit", func(x float64) float64 { return x * x }, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewLookupTable(tt.fn, tt.length)
			require.NotNil(t, table)
			assert.Equal(t, tt.length, table.Len())
			for i, v := range table.Entries() {
				assert.GreaterOrEqual(t, v, 0.0, "entry %d", i)
				assert.LessOrEqual(t, v, float64(tt.length-1), "entry %d", i)
			}
		})
	}
}

func TestNewLookupTableValues(t *testing.T) {
	table := NewLookupTable(func(x float64) float64 { return 2 * x }, 256)
	assert.Equal(t, 0.0, table.At(0))
	assert.Equal(t, 200.0, table.At(100))
	assert.Equal(t, 254.0, table.At(127))
	assert.Equal(t, 255.0, table.At(128))
	assert.Equal(t, 255.0, table.At(255))

	frac := NewLookupTable(func(x float64) float64 { return x + 0.75 }, 256)
	assert.Equal(t, 10.75, frac.At(10))
	assert.Equal(t, uint16(10), frac.Levels()[10], "levels truncate")
}

func TestNewLookupTableNilFunc(t *testing.T) {
	assert.Nil(t, NewLookupTable(nil, 256))
	var table *LookupTable
	assert.Equal(t, 0, table.Len())
	assert.Nil(t, table.Entries())
	assert.Nil(t, table.Levels())
	assert.Equal(t, 0.0, table.At(0))
	assert.Equal(t, 200.0, table.At(200))
}

func TestNewLookupTableBadLength(t *testing.T) {
	identity := func(x float64) float64 { return x }
	assert.Panics(t, func() { NewLookupTable(identity, 0) })
	assert.Panics(t, func() { NewLookupTable(identity, 1<<17) })
}

func TestApplyLookupIsElementwise(t *testing.T) {
	table := NewLookupTable(func(x float64) float64 { return 255 - x/2 }, 256)
	levels := table.Levels()
	for v := 0; v < 256; v++ {
		dst := make([]uint8, 1)
		require.NoError(t, ApplyLookup(table, []uint8{uint8(v)}, dst))
		assert.Equal(t, uint8(levels[v]), dst[0])
	}
}

func TestApplyLookupEmpty(t *testing.T) {
	table := NewLookupTable(func(x float64) float64 { return x }, 256)
	dst := []uint8{}
	require.NoError(t, ApplyLookup(table, []uint8{}, dst))
	assert.Empty(t, dst)
}

func TestApplyLookupInPlace(t *testing.T) {
	table := NewLookupTable(func(x float64) float64 { return x*1.3 + 5 }, 256)
	src := createTestFrame(32, 32).Bytes

	distinct := make([]uint8, len(src))
	require.NoError(t, ApplyLookup(table, src, distinct))

	inPlace := make([]uint8, len(src))
	copy(inPlace, src)
	require.NoError(t, ApplyLookup(table, inPlace, inPlace))

	assert.Equal(t, distinct, inPlace)
}

func TestApplyLookupNilTableCopies(t *testing.T) {
	src := []uint8{1, 2, 3}
	dst := make([]uint8, 3)
	require.NoError(t, ApplyLookup(nil, src, dst))
	assert.Equal(t, src, dst)
}

func TestApplyLookupShapeMismatch(t *testing.T) {
	table := NewLookupTable(func(x float64) float64 { return x }, 256)
	err := ApplyLookup(table, make([]uint8, 4), make([]uint8, 3))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestApplyLookupUint16(t *testing.T) {
	table := NewLookupTable(func(x float64) float64 { return 1023 - x }, 1024)
	src := []uint16{0, 1, 512, 1023}
	dst := make([]uint16, len(src))
	require.NoError(t, ApplyLookup(table, src, dst))
	assert.Equal(t, []uint16{1023, 1022, 511, 0}, dst)

	err := ApplyLookup(table, []uint16{2000}, make([]uint16, 1))
	assert.Error(t, err)
}

func TestApplyLookupOutOfRangeLeavesDstUntouched(t *testing.T) {
	table := NewLookupTable(func(x float64) float64 { return 255 - x }, 256)
	src := []uint16{1, 2, 300, 4}
	dst := []uint16{9, 9, 9, 9}
	err := ApplyLookup(table, src, dst)
	require.Error(t, err)
	assert.Equal(t, []uint16{9, 9, 9, 9}, dst)

	require.Error(t, ApplyLookup(table, src, src))
	assert.Equal(t, []uint16{1, 2, 300, 4}, src)
}

func BenchmarkApplyLookup(b *testing.B) {
	table := NewLookupTable(func(x float64) float64 { return 255 - x }, 256)
	f := createTestFrame(640, 480)
	b.SetBytes(int64(len(f.Bytes)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ApplyLookup(table, f.Bytes, f.Bytes)
	}
}
