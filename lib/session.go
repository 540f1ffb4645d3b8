package lib

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrUnsupportedCodec = errors.New("unsupported codec")

// ErrSourceClosed is returned by capture sources after Release.
var ErrSourceClosed = errors.New("capture source closed")

type CaptureProperty int

const (
	PropFrameWidth CaptureProperty = iota
	PropFrameHeight
	PropFPS
	PropFrameCount
)

func (p CaptureProperty) String() string {
	switch p {
	case PropFrameWidth:
		return "frame_width"
	case PropFrameHeight:
		return "frame_height"
	case PropFPS:
		return "fps"
	case PropFrameCount:
		return "frame_count"
	}
	return fmt.Sprintf("property(%d)", int(p))
}

// CaptureSource is a camera or a video file. Grab advances to the next frame
// without decoding it; Retrieve decodes the grabbed frame.
type CaptureSource interface {
	Grab() bool
	Retrieve(channel int) (*Frame, bool)
	// Property returns NaN or 0 when the value is unknown.
	Property(prop CaptureProperty) float64
	Release() error
}

type VideoEncoder interface {
	Append(frame *Frame) error
	Close() error
}

// EncoderOpener opens a video file. Codec, fps and size are fixed for the
// life of the returned encoder.
type EncoderOpener interface {
	OpenEncoder(path string, codec FourCC, fps float64, size [2]int) (VideoEncoder, error)
}

type ImageSink interface {
	WriteImage(path string, frame *Frame) error
}

type PreviewSink interface {
	Show(frame *Frame)
}

// FourCC is a four character video codec tag such as MJPG or XVID.
type FourCC string

const DefaultCodec FourCC = "MJPG"

func ParseFourCC(s string) (FourCC, error) {
	if s == "" {
		return DefaultCodec, nil
	}
	if len(s) != 4 {
		return "", fmt.Errorf("%w: fourcc %q must be 4 characters", ErrUnsupportedCodec, s)
	}
	return FourCC(s), nil
}

// minFramesForEstimate is how many frames must be seen before the measured
// rate is trusted for a source that reports no fps of its own.
const minFramesForEstimate = 20

type SessionOptions struct {
	// Preview receives every frame, mirrored if MirrorPreview is set.
	Preview       PreviewSink
	MirrorPreview bool
	Images        ImageSink
	Encoders      EncoderOpener
	// Channel is passed to CaptureSource.Retrieve.
	Channel int
	Clock   func() time.Time
	Logger  *logrus.Logger

	// OnImageWritten is called after the image sink accepted an export.
	OnImageWritten func(path string)
	// OnVideoOpened is called once the encoder for a recording is open.
	OnVideoOpened func(path string)
}

// SessionStats is a snapshot of a FrameSession's counters.
type SessionStats struct {
	FramesElapsed int64
	FPSEstimate   float64
	EncoderFPS    float64
	VideoPath     string
	Recording     bool
}

// FrameSession drives one capture source through enter/exit cycles. Between
// EnterFrame and ExitFrame the grabbed frame is decoded only if Frame is
// called. ExitFrame previews the frame, fulfils a pending image export and
// appends to the video being recorded.
//
// A FrameSession is not safe for concurrent use.
type FrameSession struct {
	capture  CaptureSource
	preview  PreviewSink
	mirror   bool
	images   ImageSink
	encoders EncoderOpener
	clock    func() time.Time
	log      *logrus.Logger

	onImageWritten func(path string)
	onVideoOpened  func(path string)

	channel int
	entered bool
	grabbed bool
	frame   *Frame

	imagePath  string
	videoPath  string
	videoCodec FourCC
	encoder    VideoEncoder
	encoderFPS float64

	start         time.Time
	framesElapsed int64
	fpsEstimate   float64
}

func NewFrameSession(capture CaptureSource, opts SessionOptions) *FrameSession {
	s := &FrameSession{
		capture:  capture,
		preview:  opts.Preview,
		mirror:   opts.MirrorPreview,
		images:   opts.Images,
		encoders: opts.Encoders,
		clock:    opts.Clock,
		log:      opts.Logger,
		channel:  opts.Channel,

		onImageWritten: opts.OnImageWritten,
		onVideoOpened:  opts.OnVideoOpened,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s
}

func (s *FrameSession) Channel() int {
	return s.channel
}

// SetChannel changes the channel used for decoding. A frame already decoded
// in this cycle is dropped and decoded again on the next call to Frame.
func (s *FrameSession) SetChannel(channel int) {
	if s.channel != channel {
		s.channel = channel
		s.frame = nil
	}
}

// Frame returns the current frame, decoding it on first access within a
// cycle. It returns nil outside a cycle or when the grab or decode failed.
func (s *FrameSession) Frame() *Frame {
	if !s.entered || !s.grabbed {
		return nil
	}
	if s.frame == nil {
		frame, ok := s.capture.Retrieve(s.channel)
		if !ok || frame == nil {
			s.log.WithFields(logrus.Fields{
				"function": "FrameSession.Frame",
				"channel":  s.channel,
			}).Debug("Failed to retrieve grabbed frame")
			s.grabbed = false
			return nil
		}
		s.frame = frame
	}
	return s.frame
}

// Entered reports whether a cycle is in progress.
func (s *FrameSession) Entered() bool {
	return s.entered
}

// EnterFrame grabs the next frame. It panics if the previous cycle was not
// closed with ExitFrame.
func (s *FrameSession) EnterFrame() {
	if s.entered {
		panic("lib: EnterFrame called twice without ExitFrame")
	}
	s.entered = true
	s.grabbed = s.capture != nil && s.capture.Grab()
}

// ExitFrame finishes the cycle. Without a frame it only returns to idle;
// calling it while idle does nothing.
func (s *FrameSession) ExitFrame() {
	if !s.entered {
		return
	}
	defer func() {
		s.frame = nil
		s.grabbed = false
		s.entered = false
	}()

	frame := s.Frame()
	if frame == nil {
		return
	}

	now := s.clock()
	if s.framesElapsed == 0 {
		s.start = now
	} else {
		elapsed := now.Sub(s.start).Seconds()
		s.fpsEstimate = float64(s.framesElapsed) / elapsed
	}
	s.framesElapsed++

	if s.preview != nil {
		if s.mirror {
			s.preview.Show(frame.Mirrored())
		} else {
			s.preview.Show(frame)
		}
	}

	if s.imagePath != "" {
		s.writeImage(frame)
		s.imagePath = ""
	}

	s.writeVideoFrame(frame)
}

func (s *FrameSession) writeImage(frame *Frame) {
	logger := s.log.WithFields(logrus.Fields{
		"function": "FrameSession.ExitFrame",
		"path":     s.imagePath,
	})
	if s.images == nil {
		logger.Warn("No image sink configured, dropping image export")
		return
	}
	if err := s.images.WriteImage(s.imagePath, frame); err != nil {
		logger.WithError(err).Error("Failed to write image")
		return
	}
	logger.Info("Wrote image")
	if s.onImageWritten != nil {
		s.onImageWritten(s.imagePath)
	}
}

func (s *FrameSession) writeVideoFrame(frame *Frame) {
	if !s.IsWritingVideo() {
		return
	}
	logger := s.log.WithFields(logrus.Fields{
		"function": "FrameSession.writeVideoFrame",
		"path":     s.videoPath,
	})

	if s.encoder == nil {
		fps := math.NaN()
		if s.capture != nil {
			fps = s.capture.Property(PropFPS)
		}
		if math.IsNaN(fps) || fps <= 0 {
			if s.framesElapsed < minFramesForEstimate {
				return
			}
			fps = s.fpsEstimate
		}
		if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
			logger.WithField("fps", fps).Warn("No usable frame rate yet, skipping frame")
			return
		}
		if s.encoders == nil {
			logger.Error("No encoder configured, dropping video export")
			s.clearVideo()
			return
		}

		size := s.captureSize(frame)
		encoder, err := s.encoders.OpenEncoder(s.videoPath, s.videoCodec, fps, size)
		if err != nil {
			logger.WithError(err).Error("Failed to open video encoder")
			s.clearVideo()
			return
		}
		s.encoder = encoder
		s.encoderFPS = fps
		logger.WithFields(logrus.Fields{
			"codec":  string(s.videoCodec),
			"fps":    fps,
			"width":  size[0],
			"height": size[1],
		}).Info("Opened video encoder")
		if s.onVideoOpened != nil {
			s.onVideoOpened(s.videoPath)
		}
	}

	if err := s.encoder.Append(frame); err != nil {
		logger.WithError(err).Warn("Failed to append frame")
	}
}

// captureSize prefers the dimensions reported by the source and falls back
// to the frame's own.
func (s *FrameSession) captureSize(frame *Frame) [2]int {
	size := frame.Size()
	if s.capture == nil {
		return size
	}
	if w := s.capture.Property(PropFrameWidth); w > 0 && !math.IsNaN(w) {
		size[0] = int(w)
	}
	if h := s.capture.Property(PropFrameHeight); h > 0 && !math.IsNaN(h) {
		size[1] = int(h)
	}
	return size
}

// WriteImage asks for the next frame to be written to path.
func (s *FrameSession) WriteImage(path string) {
	s.imagePath = path
}

func (s *FrameSession) IsWritingImage() bool {
	return s.imagePath != ""
}

// StartWritingVideo asks for every following frame to be appended to path.
// The encoder is opened once a frame rate is known.
func (s *FrameSession) StartWritingVideo(path string, codec FourCC) {
	if codec == "" {
		codec = DefaultCodec
	}
	s.videoPath = path
	s.videoCodec = codec
}

// StopWritingVideo closes the open encoder, if any.
func (s *FrameSession) StopWritingVideo() error {
	var err error
	if s.encoder != nil {
		err = s.encoder.Close()
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"function": "FrameSession.StopWritingVideo",
				"path":     s.videoPath,
			}).WithError(err).Error("Failed to close video encoder")
		}
	}
	s.clearVideo()
	return err
}

func (s *FrameSession) clearVideo() {
	s.videoPath = ""
	s.videoCodec = ""
	s.encoder = nil
	s.encoderFPS = 0
}

func (s *FrameSession) IsWritingVideo() bool {
	return s.videoPath != ""
}

func (s *FrameSession) Stats() SessionStats {
	return SessionStats{
		FramesElapsed: s.framesElapsed,
		FPSEstimate:   s.fpsEstimate,
		EncoderFPS:    s.encoderFPS,
		VideoPath:     s.videoPath,
		Recording:     s.encoder != nil,
	}
}

// Close stops recording and releases the capture source. An unfinished
// cycle is abandoned.
func (s *FrameSession) Close() error {
	s.frame = nil
	s.entered = false
	s.grabbed = false
	videoErr := s.StopWritingVideo()
	if s.capture == nil {
		return videoErr
	}
	if err := s.capture.Release(); err != nil {
		return fmt.Errorf("release capture: %w", err)
	}
	return videoErr
}
