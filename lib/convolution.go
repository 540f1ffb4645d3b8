package lib

import (
	"errors"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/effect"
)

var ErrInvalidKernel = errors.New("invalid kernel")

// Kernel presets, row major.
var (
	SharpenKernel = [][]float64{
		{-1, -1, -1},
		{-1, 9, -1},
		{-1, -1, -1},
	}
	FindEdgesKernel = [][]float64{
		{-1, -1, -1},
		{-1, 8, -1},
		{-1, -1, -1},
	}
	BlurKernel = [][]float64{
		{0.04, 0.04, 0.04, 0.04, 0.04},
		{0.04, 0.04, 0.04, 0.04, 0.04},
		{0.04, 0.04, 0.04, 0.04, 0.04},
		{0.04, 0.04, 0.04, 0.04, 0.04},
		{0.04, 0.04, 0.04, 0.04, 0.04},
	}
	EmbossKernel = [][]float64{
		{-2, -1, 0},
		{-1, 0, 1},
		{0, 1, 2},
	}
)

// embossBias lifts flat regions of an embossed frame to mid gray.
const embossBias = 128

// ValidateKernel checks that rows form a square matrix with an odd side.
func ValidateKernel(rows [][]float64) error {
	n := len(rows)
	if n == 0 || n%2 == 0 {
		return fmt.Errorf("%w: side must be odd, got %d", ErrInvalidKernel, n)
	}
	for i, row := range rows {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrInvalidKernel, i, len(row), n)
		}
	}
	return nil
}

// KernelSum returns the sum of all kernel weights.
func KernelSum(rows [][]float64) float64 {
	var sum float64
	for _, row := range rows {
		sum += Sum(row)
	}
	return sum
}

// ConvolutionFilter correlates a fixed kernel with every channel. Pixels
// beyond the frame edge replicate the nearest edge pixel.
type ConvolutionFilter struct {
	kernel *convolution.Kernel
	bias   float64
}

// NewConvolutionFilter panics if rows is not an odd-sized square matrix.
func NewConvolutionFilter(rows [][]float64) *ConvolutionFilter {
	return newBiasedConvolutionFilter(rows, 0)
}

func newBiasedConvolutionFilter(rows [][]float64, bias float64) *ConvolutionFilter {
	if err := ValidateKernel(rows); err != nil {
		panic(err)
	}
	n := len(rows)
	k := convolution.NewKernel(n, n)
	for y, row := range rows {
		copy(k.Matrix[y*n:(y+1)*n], row)
	}
	return &ConvolutionFilter{kernel: k, bias: bias}
}

func NewSharpenFilter() *ConvolutionFilter   { return NewConvolutionFilter(SharpenKernel) }
func NewFindEdgesFilter() *ConvolutionFilter { return NewConvolutionFilter(FindEdgesKernel) }
func NewBlurFilter() *ConvolutionFilter      { return NewConvolutionFilter(BlurKernel) }
func NewEmbossFilter() *ConvolutionFilter {
	return newBiasedConvolutionFilter(EmbossKernel, embossBias)
}

func (f *ConvolutionFilter) Size() int {
	return f.kernel.Width
}

func (f *ConvolutionFilter) Sum() float64 {
	return Sum(f.kernel.Matrix)
}

func (f *ConvolutionFilter) Apply(src *Frame, dst *Frame) error {
	if err := checkFrames(src, dst); err != nil {
		return err
	}
	if len(src.Bytes) == 0 {
		return nil
	}
	out := convolution.Convolve(src.ToNRGBA(), f.kernel, &convolution.Options{
		Bias:      f.bias,
		Wrap:      false,
		KeepAlpha: true,
	})
	return FrameFromImage(out, src.Channels).CopyInto(dst)
}

// StrokeEdgesFilter darkens the frame along edges: the Laplacian of a
// (median blurred) gray copy is inverted and used to scale every channel.
type StrokeEdgesFilter struct {
	BlurKsize int
	EdgeKsize int
	laplacian *convolution.Kernel
}

// NewStrokeEdgesFilter takes the median window side (no blur below 3) and the
// Laplacian aperture (1, 3, 5 or 7).
func NewStrokeEdgesFilter(blurKsize int, edgeKsize int) *StrokeEdgesFilter {
	return &StrokeEdgesFilter{
		BlurKsize: blurKsize,
		EdgeKsize: edgeKsize,
		laplacian: laplacianKernel(edgeKsize),
	}
}

func (f *StrokeEdgesFilter) Apply(src *Frame, dst *Frame) error {
	if err := checkFrames(src, dst); err != nil {
		return err
	}
	if len(src.Bytes) == 0 {
		return nil
	}

	var img image.Image = src.ToNRGBA()
	if f.BlurKsize >= 3 {
		img = effect.Median(img, float64((f.BlurKsize-1)/2))
	}
	gray := effect.Grayscale(img)
	edges := convolution.Convolve(gray, f.laplacian, &convolution.Options{KeepAlpha: true})

	n := src.Width * src.Height
	for i := 0; i < n; i++ {
		alpha := float64(255-edges.Pix[i*4]) / 255
		for c := 0; c < src.Channels; c++ {
			idx := i*src.Channels + c
			dst.Bytes[idx] = uint8(float64(src.Bytes[idx]) * alpha)
		}
	}
	return nil
}

// laplacianKernel builds the same apertures OpenCV uses: the 4-neighbour
// stencil for size 1, otherwise d2/dx2 + d2/dy2 of binomial-smoothed
// derivative kernels.
func laplacianKernel(ksize int) *convolution.Kernel {
	if ksize <= 1 {
		k := convolution.NewKernel(3, 3)
		copy(k.Matrix, []float64{0, 1, 0, 1, -4, 1, 0, 1, 0})
		return k
	}
	if ksize%2 == 0 || ksize > 7 {
		panic(fmt.Errorf("%w: laplacian aperture must be 1, 3, 5 or 7, got %d", ErrInvalidKernel, ksize))
	}
	smooth := binomial(ksize - 1)
	deriv := convolve1D(binomial(ksize-3), []float64{1, -2, 1})

	k := convolution.NewKernel(ksize, ksize)
	for y := 0; y < ksize; y++ {
		for x := 0; x < ksize; x++ {
			k.Matrix[y*ksize+x] = deriv[x]*smooth[y] + smooth[x]*deriv[y]
		}
	}
	return k
}

// binomial returns row n of Pascal's triangle.
func binomial(n int) []float64 {
	row := []float64{1}
	for i := 0; i < n; i++ {
		row = convolve1D(row, []float64{1, 1})
	}
	return row
}

func convolve1D(a []float64, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}
