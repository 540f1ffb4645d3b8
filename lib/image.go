package lib

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
)

// ErrShapeMismatch is returned when a source and a destination buffer do not
// describe the same raster.
var ErrShapeMismatch = errors.New("shape mismatch")

// Frame is a packed 8-bit raster. Color frames hold three interleaved
// channels in B, G, R order; gray frames hold one.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Bytes    []byte
}

func NewFrame(width int, height int, channels int) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Bytes:    make([]byte, channels*width*height),
	}
}

func FrameFromBytes(width int, height int, channels int, bytes []byte) (*Frame, error) {
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	if len(bytes) != width*height*channels {
		return nil, fmt.Errorf("%w: %dx%dx%d frame needs %d bytes, got %d",
			ErrShapeMismatch, width, height, channels, width*height*channels, len(bytes))
	}
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Bytes:    bytes,
	}, nil
}

// FrameFromImage converts any image into a BGR (channels=3) or gray
// (channels=1) frame. Samples are the alpha-premultiplied values that
// color.Color.RGBA reports. Any other channel count panics.
func FrameFromImage(img image.Image, channels int) *Frame {
	if channels != 1 && channels != 3 {
		panic(fmt.Sprintf("lib: cannot convert image to %d channels", channels))
	}
	rect := img.Bounds()
	width := rect.Dx()
	height := rect.Dy()
	f := NewFrame(width, height, channels)

	switch src := img.(type) {
	case *image.NRGBA:
		framePix(f, src.Pix, src.PixOffset(rect.Min.X, rect.Min.Y), src.Stride, true)
		return f
	case *image.RGBA:
		framePix(f, src.Pix, src.PixOffset(rect.Min.X, rect.Min.Y), src.Stride, false)
		return f
	}

	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+rect.Min.X, y+rect.Min.Y).RGBA()
			idx = putRGB(f, idx, uint8(r>>8), uint8(g>>8), uint8(b>>8))
		}
	}
	return f
}

// framePix fills f from 4-byte RGBA rows starting at offset. Straight alpha
// rows are premultiplied the way color.NRGBA.RGBA does it.
func framePix(f *Frame, pix []uint8, offset int, stride int, straight bool) {
	idx := 0
	for y := 0; y < f.Height; y++ {
		row := pix[offset+y*stride : offset+y*stride+f.Width*4]
		for x := 0; x < len(row); x += 4 {
			r, g, b, a := row[x], row[x+1], row[x+2], row[x+3]
			if straight && a != 0xff {
				r = premultiply(r, a)
				g = premultiply(g, a)
				b = premultiply(b, a)
			}
			idx = putRGB(f, idx, r, g, b)
		}
	}
}

func premultiply(v uint8, a uint8) uint8 {
	return uint8(uint32(v) * 0x101 * uint32(a) / 0xff >> 8)
}

func putRGB(f *Frame, idx int, r, g, b uint8) int {
	if f.Channels == 1 {
		f.Bytes[idx] = luma(r, g, b)
		return idx + 1
	}
	f.Bytes[idx] = b
	f.Bytes[idx+1] = g
	f.Bytes[idx+2] = r
	return idx + 3
}

func (f *Frame) Size() [2]int {
	return [2]int{f.Width, f.Height}
}

// SameShape reports whether o has the same dimensions and channel count.
func (f *Frame) SameShape(o *Frame) bool {
	return f.Width == o.Width && f.Height == o.Height && f.Channels == o.Channels &&
		len(f.Bytes) == len(o.Bytes)
}

func (f *Frame) Copy() *Frame {
	bytes := make([]byte, len(f.Bytes))
	copy(bytes, f.Bytes)
	return &Frame{
		Width:    f.Width,
		Height:   f.Height,
		Channels: f.Channels,
		Bytes:    bytes,
	}
}

// CopyInto copies f into dst, which must have the same shape.
func (f *Frame) CopyInto(dst *Frame) error {
	if !f.SameShape(dst) {
		return shapeError(f, dst)
	}
	if len(f.Bytes) > 0 && &f.Bytes[0] != &dst.Bytes[0] {
		copy(dst.Bytes, f.Bytes)
	}
	return nil
}

func (f *Frame) GetBGR(x int, y int) [3]uint8 {
	offset := (y*f.Width + x) * f.Channels
	if f.Channels == 1 {
		v := f.Bytes[offset]
		return [3]uint8{v, v, v}
	}
	return [3]uint8{f.Bytes[offset], f.Bytes[offset+1], f.Bytes[offset+2]}
}

func (f *Frame) SetBGR(x int, y int, bgr [3]uint8) {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return
	}
	offset := (y*f.Width + x) * f.Channels
	if f.Channels == 1 {
		f.Bytes[offset] = luma(bgr[2], bgr[1], bgr[0])
		return
	}
	f.Bytes[offset] = bgr[0]
	f.Bytes[offset+1] = bgr[1]
	f.Bytes[offset+2] = bgr[2]
}

// Split copies each channel into its own plane.
func (f *Frame) Split() [][]byte {
	planes := make([][]byte, f.Channels)
	n := f.Width * f.Height
	for c := range planes {
		planes[c] = make([]byte, n)
	}
	for i := 0; i < n; i++ {
		for c := 0; c < f.Channels; c++ {
			planes[c][i] = f.Bytes[i*f.Channels+c]
		}
	}
	return planes
}

// Merge interleaves planes back into f. Every plane must hold Width*Height
// samples and there must be one plane per channel.
func (f *Frame) Merge(planes [][]byte) error {
	n := f.Width * f.Height
	if len(planes) != f.Channels {
		return fmt.Errorf("%w: %d planes for %d channels", ErrShapeMismatch, len(planes), f.Channels)
	}
	for c, plane := range planes {
		if len(plane) != n {
			return fmt.Errorf("%w: plane %d has %d samples, want %d", ErrShapeMismatch, c, len(plane), n)
		}
	}
	for i := 0; i < n; i++ {
		for c := 0; c < f.Channels; c++ {
			f.Bytes[i*f.Channels+c] = planes[c][i]
		}
	}
	return nil
}

// Mirrored returns a horizontally flipped copy of f.
func (f *Frame) Mirrored() *Frame {
	return FrameFromImage(imaging.FlipH(f.ToNRGBA()), f.Channels)
}

func (f *Frame) ToNRGBA() *image.NRGBA {
	nrgba := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))

	idx := 0
	for i := 0; i < f.Width*f.Height; i++ {
		bgr := [3]uint8{f.Bytes[idx], f.Bytes[idx], f.Bytes[idx]}
		if f.Channels == 3 {
			bgr[1] = f.Bytes[idx+1]
			bgr[2] = f.Bytes[idx+2]
		}
		nrgba.Pix[i*4] = bgr[2]
		nrgba.Pix[i*4+1] = bgr[1]
		nrgba.Pix[i*4+2] = bgr[0]
		nrgba.Pix[i*4+3] = 255
		idx += f.Channels
	}
	return nrgba
}

func (f *Frame) EncodeJPEG(w io.Writer, quality int) error {
	return imaging.Encode(w, f.ToNRGBA(), imaging.JPEG, imaging.JPEGQuality(quality))
}

// for image.Image

func (f *Frame) Set(x int, y int, c color.Color) {
	r, g, b, _ := c.RGBA()
	f.SetBGR(x, y, [3]uint8{uint8(b >> 8), uint8(g >> 8), uint8(r >> 8)})
}

func (f *Frame) At(x int, y int) color.Color {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return color.RGBA{}
	}
	c := f.GetBGR(x, y)
	return color.RGBA{c[2], c[1], c[0], 255}
}

func (f *Frame) ColorModel() color.Model {
	return color.RGBAModel
}

func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// luma uses the BT.601 weights, matching what OpenCV does for BGR2GRAY.
func luma(r, g, b uint8) uint8 {
	return uint8(clamp(int(0.299*float64(r)+0.587*float64(g)+0.114*float64(b)+0.5), 0, 255))
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	} else if value > max {
		return max
	} else {
		return value
	}
}

// checkFrames accepts a source and destination of the same shape holding
// one or three channels.
func checkFrames(src, dst *Frame) error {
	if !src.SameShape(dst) {
		return shapeError(src, dst)
	}
	if src.Channels != 1 && src.Channels != 3 {
		return fmt.Errorf("%w: %d channels, want 1 or 3", ErrShapeMismatch, src.Channels)
	}
	return nil
}

func shapeError(src, dst *Frame) error {
	return fmt.Errorf("%w: src %dx%dx%d, dst %dx%dx%d", ErrShapeMismatch,
		src.Width, src.Height, src.Channels, dst.Width, dst.Height, dst.Channels)
}
