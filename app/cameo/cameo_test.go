package main

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"cameo/lib"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clipCapture plays n uniform gray frames and then runs dry.
type clipCapture struct {
	n, pos   int
	value    byte
	released bool
}

func (c *clipCapture) Grab() bool {
	if c.pos >= c.n {
		return false
	}
	c.pos++
	return true
}

func (c *clipCapture) Retrieve(channel int) (*lib.Frame, bool) {
	ch := 3
	if channel == 1 {
		ch = 1
	}
	f := lib.NewFrame(4, 4, ch)
	for i := range f.Bytes {
		f.Bytes[i] = c.value
	}
	return f, true
}

func (c *clipCapture) Property(prop lib.CaptureProperty) float64 {
	if prop == lib.PropFPS {
		return 10
	}
	return math.NaN()
}

func (c *clipCapture) Release() error {
	c.released = true
	return nil
}

// sinkStub accepts or rejects every image and encoder request.
type sinkStub struct {
	err error
}

func (s sinkStub) WriteImage(path string, frame *lib.Frame) error {
	return s.err
}

func (s sinkStub) OpenEncoder(path string, codec lib.FourCC, fps float64, size [2]int) (lib.VideoEncoder, error) {
	if s.err != nil {
		return nil, s.err
	}
	return encoderStub{}, nil
}

type encoderStub struct{}

func (encoderStub) Append(frame *lib.Frame) error { return nil }
func (encoderStub) Close() error                  { return nil }

func newTestCameo(capture lib.CaptureSource, preview lib.PreviewSink) *Cameo {
	return newTestCameoWith(capture, lib.SessionOptions{Preview: preview})
}

// newTestCameoWith wires the session outputs into the run report the same
// way run does.
func newTestCameoWith(capture lib.CaptureSource, opts lib.SessionOptions) *Cameo {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	report := lib.NewRunReport(time.Now())
	opts.Logger = logger
	opts.OnImageWritten = report.AddScreenshot
	opts.OnVideoOpened = report.AddRecording
	return &Cameo{
		cfg:     lib.DefaultConfig(),
		window:  &lib.HeadlessWindow{},
		report:  report,
		log:     logger,
		clock:   time.Now,
		session: lib.NewFrameSession(capture, opts),
	}
}

func TestRunStopsAtEndOfClip(t *testing.T) {
	c := newTestCameo(&clipCapture{n: 5}, nil)
	c.stopOnEnd = true

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 5, c.report.Frames)
	assert.Equal(t, 1, c.report.Dropped)
	assert.False(t, c.window.IsWindowCreated())
	assert.False(t, c.report.Finished.IsZero())
}

func TestRunStopsAfterMaxFrames(t *testing.T) {
	capture := &clipCapture{n: 100}
	c := newTestCameo(capture, nil)
	c.maxFrames = 7

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 7, c.report.Frames)
	assert.Equal(t, 7, capture.pos)
}

func TestRunStopsOnCancel(t *testing.T) {
	c := newTestCameo(&clipCapture{n: 100}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, c.Run(ctx))
	assert.Equal(t, 0, c.report.Frames)
}

func TestRunAppliesFilters(t *testing.T) {
	var shown []*lib.Frame
	preview := lib.PreviewFunc(func(f *lib.Frame) { shown = append(shown, f.Copy()) })
	c := newTestCameo(&clipCapture{n: 2, value: 40}, preview)
	c.stopOnEnd = true
	c.filters = lib.FilterChain{lib.NewCurveFilter([]lib.CurvePoint{{X: 0, Y: 255}, {X: 255, Y: 0}})}

	require.NoError(t, c.Run(context.Background()))
	require.Len(t, shown, 2)
	for _, f := range shown {
		assert.Equal(t, byte(215), f.Bytes[0])
	}
}

func TestStartFixedRecording(t *testing.T) {
	c := newTestCameoWith(&clipCapture{n: 100}, lib.SessionOptions{Encoders: sinkStub{}})
	c.cfg.Output.Screencast = "clip.avi"
	c.startFixedRecording(2, &clipCapture{})

	assert.Equal(t, 20, c.maxFrames)
	assert.True(t, c.session.IsWritingVideo())
	assert.Empty(t, c.report.Recordings, "recorded only once the encoder opens")

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 20, c.report.Frames)
	assert.Equal(t, []string{"clip.avi"}, c.report.Recordings)
}

func TestRunReportsOnlyProducedOutputs(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantScreenshots []string
		wantRecordings  []string
	}{
		{"written", nil, []string{"screenshot.png"}, []string{"screencast.avi"}},
		{"failed", errors.New("disk full"), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := sinkStub{err: tt.err}
			c := newTestCameoWith(&clipCapture{n: 100}, lib.SessionOptions{Images: stub, Encoders: stub})
			c.maxFrames = 3
			c.onKeypress(lib.KeySpace)
			c.onKeypress(lib.KeyTab)
			assert.Empty(t, c.report.Screenshots)
			assert.Empty(t, c.report.Recordings)

			require.NoError(t, c.Run(context.Background()))
			assert.Equal(t, tt.wantScreenshots, c.report.Screenshots)
			assert.Equal(t, tt.wantRecordings, c.report.Recordings)
		})
	}
}

func TestKeypress(t *testing.T) {
	c := newTestCameo(&clipCapture{n: 100}, nil)
	require.NoError(t, c.window.CreateWindow())

	c.onKeypress(lib.KeySpace)
	assert.True(t, c.session.IsWritingImage())
	assert.Empty(t, c.report.Screenshots, "a request is not an output")

	c.onKeypress(lib.KeyTab)
	assert.True(t, c.session.IsWritingVideo())
	c.onKeypress(lib.KeyTab)
	assert.False(t, c.session.IsWritingVideo())
	assert.Empty(t, c.report.Recordings)

	c.onKeypress('c')
	assert.Equal(t, 1, c.session.Channel())
	c.onKeypress('c')
	assert.Equal(t, 0, c.session.Channel())

	c.onKeypress('x')
	assert.True(t, c.window.IsWindowCreated())
	c.onKeypress(lib.KeyEscape)
	assert.False(t, c.window.IsWindowCreated())
}

func TestInitLogger(t *testing.T) {
	logger, err := initLogger("debug", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger, err = initLogger("warn", "text")
	require.NoError(t, err)
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	_, err = initLogger("loud", "text")
	assert.Error(t, err)
}
