package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformFrame(width, height, channels int, v byte) *Frame {
	f := NewFrame(width, height, channels)
	for i := range f.Bytes {
		f.Bytes[i] = v
	}
	return f
}

func TestKernelSums(t *testing.T) {
	tests := []struct {
		name   string
		kernel [][]float64
		want   float64
	}{
		{"sharpen", SharpenKernel, 1},
		{"blur", BlurKernel, 1},
		{"emboss", EmbossKernel, 0},
		{"find edges", FindEdgesKernel, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, KernelSum(tt.kernel), 1e-9)
			assert.NoError(t, ValidateKernel(tt.kernel))
		})
	}
	assert.InDelta(t, 1, NewBlurFilter().Sum(), 1e-9)
	assert.Equal(t, 5, NewBlurFilter().Size())
}

func TestValidateKernel(t *testing.T) {
	assert.ErrorIs(t, ValidateKernel(nil), ErrInvalidKernel)
	assert.ErrorIs(t, ValidateKernel([][]float64{{1, 1}, {1, 1}}), ErrInvalidKernel)
	assert.ErrorIs(t, ValidateKernel([][]float64{{1, 1, 1}, {1, 1}, {1, 1, 1}}), ErrInvalidKernel)
	assert.NoError(t, ValidateKernel([][]float64{{1}}))

	assert.Panics(t, func() { NewConvolutionFilter([][]float64{{1, 1}, {1, 1}}) })
}

func TestConvolutionUniformFrames(t *testing.T) {
	tests := []struct {
		name  string
		build func() *ConvolutionFilter
		in    byte
		want  byte
		delta float64
	}{
		{"sharpen keeps flat areas", NewSharpenFilter, 90, 90, 0},
		{"blur keeps flat areas", NewBlurFilter, 90, 90, 1},
		{"edges are black on flat areas", NewFindEdgesFilter, 90, 0, 0},
		{"emboss lifts flat areas to gray", NewEmbossFilter, 90, 128, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := uniformFrame(9, 7, 3, tt.in)
			dst := NewFrame(9, 7, 3)
			require.NoError(t, tt.build().Apply(src, dst))
			for i, v := range dst.Bytes {
				require.InDelta(t, float64(tt.want), float64(v), tt.delta, "sample %d", i)
			}
		})
	}
}

func TestConvolutionReplicatesBorder(t *testing.T) {
	// every neighbour of a 1x1 frame is the pixel itself
	src, err := FrameFromBytes(1, 1, 3, []byte{10, 100, 200})
	require.NoError(t, err)
	require.NoError(t, NewSharpenFilter().Apply(src, src))
	assert.Equal(t, []byte{10, 100, 200}, src.Bytes)
}

func TestConvolutionIsCorrelation(t *testing.T) {
	// picks the left neighbour; a flipped convolution would pick the right one
	shiftRight := NewConvolutionFilter([][]float64{
		{0, 0, 0},
		{1, 0, 0},
		{0, 0, 0},
	})
	src, err := FrameFromBytes(3, 1, 1, []byte{10, 20, 30})
	require.NoError(t, err)
	dst := NewFrame(3, 1, 1)
	require.NoError(t, shiftRight.Apply(src, dst))
	assert.Equal(t, []byte{10, 10, 20}, dst.Bytes)
}

func TestConvolutionShapeMismatch(t *testing.T) {
	err := NewBlurFilter().Apply(NewFrame(4, 4, 3), NewFrame(4, 4, 1))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestStrokeEdges(t *testing.T) {
	t.Run("flat frame is unchanged", func(t *testing.T) {
		src := uniformFrame(12, 12, 3, 180)
		dst := NewFrame(12, 12, 3)
		require.NoError(t, NewStrokeEdgesFilter(7, 5).Apply(src, dst))
		assert.Equal(t, src.Bytes, dst.Bytes)
	})

	t.Run("edges are darkened", func(t *testing.T) {
		f := uniformFrame(10, 10, 3, 100)
		for y := 0; y < 10; y++ {
			for x := 5; x < 10; x++ {
				f.SetBGR(x, y, [3]uint8{200, 200, 200})
			}
		}
		out := f.Copy()
		require.NoError(t, NewStrokeEdgesFilter(0, 1).Apply(f, out))
		// the dark side of the step has a positive Laplacian; the bright
		// side's negative response clamps to 0 and is left alone
		assert.Equal(t, [3]uint8{100, 100, 100}, out.GetBGR(0, 5))
		assert.Equal(t, [3]uint8{200, 200, 200}, out.GetBGR(5, 5))
		assert.Equal(t, [3]uint8{60, 60, 60}, out.GetBGR(4, 5))
	})
}

func TestLaplacianKernel(t *testing.T) {
	assert.Equal(t, []float64{0, 1, 0, 1, -4, 1, 0, 1, 0}, laplacianKernel(1).Matrix)
	assert.Equal(t, []float64{2, 0, 2, 0, -8, 0, 2, 0, 2}, laplacianKernel(3).Matrix)
	for _, k := range []int{3, 5, 7} {
		assert.InDelta(t, 0, Sum(laplacianKernel(k).Matrix), 1e-9, "ksize %d", k)
	}
	assert.Panics(t, func() { laplacianKernel(4) })
}

func BenchmarkSharpenFilter(b *testing.B) {
	f := NewSharpenFilter()
	frame := createTestFrame(640, 480)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Apply(frame, frame)
	}
}
