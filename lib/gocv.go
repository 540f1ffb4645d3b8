//go:build gocv

package lib

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// GocvCapture is a CaptureSource backed by an OpenCV VideoCapture. OpenCV
// decodes on read, so Grab reads the frame and Retrieve converts it.
type GocvCapture struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	gray    gocv.Mat
	closed  bool
}

// OpenGocvCapture opens a device index ("0") or a file path.
func OpenGocvCapture(cfg CaptureConfig) (*GocvCapture, error) {
	capture, err := gocv.OpenVideoCapture(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Source, err)
	}
	if cfg.Size != "" {
		dims, err := ParseDims(cfg.Size)
		if err != nil {
			capture.Close()
			return nil, err
		}
		capture.Set(gocv.VideoCaptureFrameWidth, float64(dims[0]))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(dims[1]))
	}
	if cfg.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, cfg.FPS)
	}
	return &GocvCapture{
		capture: capture,
		mat:     gocv.NewMat(),
		gray:    gocv.NewMat(),
	}, nil
}

func (c *GocvCapture) Grab() bool {
	if c.closed {
		return false
	}
	return c.capture.Read(&c.mat) && !c.mat.Empty()
}

func (c *GocvCapture) Retrieve(channel int) (*Frame, bool) {
	if c.closed || c.mat.Empty() {
		return nil, false
	}
	switch channel {
	case 0:
		return matToFrame(c.mat)
	case 1:
		gocv.CvtColor(c.mat, &c.gray, gocv.ColorBGRToGray)
		return matToFrame(c.gray)
	}
	return nil, false
}

func (c *GocvCapture) Property(prop CaptureProperty) float64 {
	switch prop {
	case PropFrameWidth:
		return c.capture.Get(gocv.VideoCaptureFrameWidth)
	case PropFrameHeight:
		return c.capture.Get(gocv.VideoCaptureFrameHeight)
	case PropFPS:
		return c.capture.Get(gocv.VideoCaptureFPS)
	case PropFrameCount:
		return c.capture.Get(gocv.VideoCaptureFrameCount)
	}
	return math.NaN()
}

func (c *GocvCapture) Release() error {
	if c.closed {
		return ErrSourceClosed
	}
	c.closed = true
	c.mat.Close()
	c.gray.Close()
	return c.capture.Close()
}

func matToFrame(m gocv.Mat) (*Frame, bool) {
	f, err := FrameFromBytes(m.Cols(), m.Rows(), m.Channels(), m.ToBytes())
	if err != nil {
		return nil, false
	}
	return f, true
}

func frameToMat(f *Frame) (gocv.Mat, error) {
	mt := gocv.MatTypeCV8UC3
	if f.Channels == 1 {
		mt = gocv.MatTypeCV8UC1
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Bytes)
}

// GocvEncoderOpener opens OpenCV VideoWriters.
type GocvEncoderOpener struct{}

func (GocvEncoderOpener) OpenEncoder(path string, codec FourCC, fps float64, size [2]int) (VideoEncoder, error) {
	writer, err := gocv.VideoWriterFile(path, string(codec), fps, size[0], size[1], true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCodec, err)
	}
	return &GocvEncoder{writer: writer}, nil
}

type GocvEncoder struct {
	writer *gocv.VideoWriter
}

func (e *GocvEncoder) Append(f *Frame) error {
	m, err := frameToMat(f)
	if err != nil {
		return err
	}
	defer m.Close()
	if f.Channels == 1 {
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(m, &bgr, gocv.ColorGrayToBGR)
		return e.writer.Write(bgr)
	}
	return e.writer.Write(m)
}

func (e *GocvEncoder) Close() error {
	return e.writer.Close()
}

// GocvWindow is a HighGUI window.
type GocvWindow struct {
	title  string
	onKey  KeyFunc
	window *gocv.Window
	log    *logrus.Logger
}

func NewGocvWindow(title string, onKey KeyFunc, logger *logrus.Logger) *GocvWindow {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GocvWindow{title: title, onKey: onKey, log: logger}
}

func (w *GocvWindow) CreateWindow() error {
	if w.window == nil {
		w.window = gocv.NewWindow(w.title)
	}
	return nil
}

func (w *GocvWindow) IsWindowCreated() bool {
	return w.window != nil
}

func (w *GocvWindow) Show(f *Frame) {
	if w.window == nil {
		return
	}
	m, err := frameToMat(f)
	if err != nil {
		w.log.WithFields(logrus.Fields{
			"function": "GocvWindow.Show",
		}).WithError(err).Warn("Failed to convert frame")
		return
	}
	defer m.Close()
	w.window.IMShow(m)
}

func (w *GocvWindow) ProcessEvents() {
	if w.window == nil {
		return
	}
	key := w.window.WaitKey(1)
	if key == -1 || w.onKey == nil {
		return
	}
	// drop the GTK modifier bits
	if key != 0xff {
		key &= 0xff
	}
	w.onKey(key)
}

func (w *GocvWindow) DestroyWindow() {
	if w.window != nil {
		w.window.Close()
		w.window = nil
	}
}
