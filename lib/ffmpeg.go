package lib

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// CaptureConfig describes an ffmpeg input: a file path or URL, or a device
// together with its demuxer (e.g. Format "v4l2", Source "/dev/video0").
type CaptureConfig struct {
	Source     string  `yaml:"source"`
	Format     string  `yaml:"format"`
	Size       string  `yaml:"size"`
	FPS        float64 `yaml:"fps"`
	BufferSize int     `yaml:"buffer_size"`
	Channel    int     `yaml:"channel"`
}

// ProbeResult holds the stream properties reported by ffprobe. Unknown
// values are NaN.
type ProbeResult struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount float64
}

type probeOutput struct {
	Streams []struct {
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		NbFrames   string `json:"nb_frames"`
	} `json:"streams"`
}

// ParseFrameRate parses ffprobe rates like "30000/1001" or "25". "0/0" and
// anything unparsable give NaN.
func ParseFrameRate(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return math.NaN()
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return math.NaN()
	}
	return n / d
}

func parseProbe(data []byte) (ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return ProbeResult{}, fmt.Errorf("ffprobe found no video stream")
	}
	st := out.Streams[0]
	res := ProbeResult{
		Width:      st.Width,
		Height:     st.Height,
		FPS:        ParseFrameRate(st.RFrameRate),
		FrameCount: math.NaN(),
	}
	if n, err := strconv.ParseFloat(st.NbFrames, 64); err == nil && n > 0 {
		res.FrameCount = n
	}
	return res, nil
}

func inputArgs(cfg CaptureConfig) []string {
	var args []string
	if cfg.Format != "" {
		args = append(args, "-f", cfg.Format)
		// device inputs take the requested mode as demuxer options
		if cfg.Size != "" {
			args = append(args, "-video_size", cfg.Size)
		}
		if cfg.FPS > 0 {
			args = append(args, "-framerate", strconv.FormatFloat(cfg.FPS, 'f', -1, 64))
		}
	}
	return append(args, "-i", cfg.Source)
}

func ProbeFfmpeg(cfg CaptureConfig) (ProbeResult, error) {
	args := []string{"-v", "error"}
	args = append(args, inputArgs(cfg)...)
	args = append(args,
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames",
		"-of", "json",
	)
	out, err := exec.Command("ffprobe", args...).Output()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe %s: %w", cfg.Source, err)
	}
	return parseProbe(out)
}

func captureArgs(cfg CaptureConfig, width int, height int) []string {
	args := []string{"-loglevel", "error"}
	args = append(args, inputArgs(cfg)...)
	args = append(args,
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-",
	)
	return args
}

// FfmpegReader decodes a video into raw BGR frames through an ffmpeg
// subprocess.
type FfmpegReader struct {
	Width  int
	Height int
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.Closer
}

func ReadFfmpeg(cfg CaptureConfig, width int, height int, logger *logrus.Logger) (*FfmpegReader, error) {
	cmd := exec.Command("ffmpeg", captureArgs(cfg, width, height)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr := logger.WriterLevel(logrus.DebugLevel)
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		stderr.Close()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return &FfmpegReader{
		Width:  width,
		Height: height,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// ReadInto fills f, which must be a width x height BGR frame. It returns
// io.EOF at the end of the stream.
func (r *FfmpegReader) ReadInto(f *Frame) error {
	if f.Width != r.Width || f.Height != r.Height || f.Channels != 3 {
		return fmt.Errorf("%w: reader is %dx%d, frame is %dx%dx%d",
			ErrShapeMismatch, r.Width, r.Height, f.Width, f.Height, f.Channels)
	}
	_, err := io.ReadFull(r.stdout, f.Bytes)
	if err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}

func (r *FfmpegReader) Close() error {
	r.stdout.Close()
	if r.cmd.Process != nil {
		r.cmd.Process.Kill()
	}
	r.cmd.Wait()
	return r.stderr.Close()
}

// BufferedReader reads frames ahead of the consumer into a bounded pool of
// reusable frames.
type BufferedReader struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buffer []*Frame
	extras []*Frame
	done   bool
	closed bool
	err    error
}

type frameReader interface {
	ReadInto(f *Frame) error
}

func NewBufferedReader(reader frameReader, width int, height int, size int) *BufferedReader {
	br := &BufferedReader{}
	br.cond = sync.NewCond(&br.mu)
	if size < 1 {
		size = 1
	}
	for i := 0; i < size; i++ {
		br.extras = append(br.extras, NewFrame(width, height, 3))
	}

	go func() {
		br.mu.Lock()
		for {
			for len(br.extras) == 0 && !br.closed {
				br.cond.Wait()
			}
			if br.closed {
				br.mu.Unlock()
				return
			}
			f := br.extras[len(br.extras)-1]
			br.extras = br.extras[0 : len(br.extras)-1]
			br.mu.Unlock()

			err := reader.ReadInto(f)

			br.mu.Lock()
			if err != nil {
				if err != io.EOF {
					br.err = err
				}
				br.done = true
				br.cond.Broadcast()
				br.mu.Unlock()
				return
			}
			br.buffer = append(br.buffer, f)
			br.cond.Broadcast()
		}
	}()

	return br
}

// Next blocks until a frame is available and returns it, or returns false
// at the end of the stream. The frame stays valid until it is handed back
// with Recycle.
func (br *BufferedReader) Next() (*Frame, bool) {
	br.mu.Lock()
	defer br.mu.Unlock()

	for !br.done && !br.closed && len(br.buffer) == 0 {
		br.cond.Wait()
	}
	if len(br.buffer) == 0 {
		return nil, false
	}
	f := br.buffer[0]
	n := copy(br.buffer, br.buffer[1:])
	br.buffer = br.buffer[:n]
	return f, true
}

func (br *BufferedReader) Recycle(f *Frame) {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.extras = append(br.extras, f)
	br.cond.Broadcast()
}

// Err returns the read error that ended the stream, if it was not EOF.
func (br *BufferedReader) Err() error {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.err
}

func (br *BufferedReader) Close() {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.closed = true
	br.cond.Broadcast()
}

// FfmpegCapture is a CaptureSource backed by ffmpeg. Channel 0 retrieves BGR
// frames and channel 1 single-channel luma.
type FfmpegCapture struct {
	probe   ProbeResult
	reader  *FfmpegReader
	buffer  *BufferedReader
	current *Frame
	closed  bool
	log     *logrus.Logger
}

func OpenFfmpegCapture(cfg CaptureConfig, logger *logrus.Logger) (*FfmpegCapture, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	probe, err := ProbeFfmpeg(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Size != "" {
		dims, err := ParseDims(cfg.Size)
		if err != nil {
			return nil, err
		}
		probe.Width, probe.Height = dims[0], dims[1]
	}
	if probe.Width <= 0 || probe.Height <= 0 {
		return nil, fmt.Errorf("ffprobe %s: unknown frame size", cfg.Source)
	}

	reader, err := ReadFfmpeg(cfg, probe.Width, probe.Height, logger)
	if err != nil {
		return nil, err
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 4
	}
	logger.WithFields(logrus.Fields{
		"function": "OpenFfmpegCapture",
		"source":   cfg.Source,
		"width":    probe.Width,
		"height":   probe.Height,
		"fps":      probe.FPS,
	}).Info("Opened capture")
	return &FfmpegCapture{
		probe:  probe,
		reader: reader,
		buffer: NewBufferedReader(reader, probe.Width, probe.Height, size),
		log:    logger,
	}, nil
}

func (c *FfmpegCapture) Grab() bool {
	if c.closed {
		return false
	}
	if c.current != nil {
		c.buffer.Recycle(c.current)
		c.current = nil
	}
	f, ok := c.buffer.Next()
	if !ok {
		if err := c.buffer.Err(); err != nil {
			c.log.WithFields(logrus.Fields{
				"function": "FfmpegCapture.Grab",
			}).WithError(err).Warn("Capture stream failed")
		}
		return false
	}
	c.current = f
	return true
}

func (c *FfmpegCapture) Retrieve(channel int) (*Frame, bool) {
	if c.current == nil {
		return nil, false
	}
	switch channel {
	case 0:
		return c.current.Copy(), true
	case 1:
		gray := NewFrame(c.current.Width, c.current.Height, 1)
		for i := range gray.Bytes {
			gray.Bytes[i] = luma(c.current.Bytes[i*3+2], c.current.Bytes[i*3+1], c.current.Bytes[i*3])
		}
		return gray, true
	}
	return nil, false
}

func (c *FfmpegCapture) Property(prop CaptureProperty) float64 {
	switch prop {
	case PropFrameWidth:
		return float64(c.probe.Width)
	case PropFrameHeight:
		return float64(c.probe.Height)
	case PropFPS:
		return c.probe.FPS
	case PropFrameCount:
		return c.probe.FrameCount
	}
	return math.NaN()
}

func (c *FfmpegCapture) Release() error {
	if c.closed {
		return ErrSourceClosed
	}
	c.closed = true
	c.buffer.Close()
	return c.reader.Close()
}

var ffmpegCodecs = map[FourCC][]string{
	"MJPG": {"-c:v", "mjpeg", "-q:v", "3"},
	"I420": {"-c:v", "rawvideo", "-pix_fmt", "yuv420p"},
	"MP4V": {"-c:v", "mpeg4"},
	"XVID": {"-c:v", "mpeg4", "-vtag", "xvid"},
	"H264": {"-c:v", "libx264", "-pix_fmt", "yuv420p"},
	"AVC1": {"-c:v", "libx264", "-pix_fmt", "yuv420p"},
	"VP80": {"-c:v", "libvpx"},
	"THEO": {"-c:v", "libtheora"},
	"FLV1": {"-c:v", "flv"},
}

func encoderArgs(path string, codec FourCC, fps float64, size [2]int) ([]string, error) {
	codecArgs, ok := ffmpegCodecs[FourCC(strings.ToUpper(string(codec)))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, codec)
	}
	args := []string{
		"-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", size[0], size[1]),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
	}
	args = append(args, codecArgs...)
	return append(args, path), nil
}

// FfmpegEncoderOpener opens FfmpegEncoders.
type FfmpegEncoderOpener struct {
	Logger *logrus.Logger
}

func (o FfmpegEncoderOpener) OpenEncoder(path string, codec FourCC, fps float64, size [2]int) (VideoEncoder, error) {
	return NewFfmpegEncoder(path, codec, fps, size, o.Logger)
}

// FfmpegEncoder pipes raw BGR frames into an ffmpeg subprocess.
type FfmpegEncoder struct {
	size   [2]int
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr io.Closer
	buf    []byte
}

func NewFfmpegEncoder(path string, codec FourCC, fps float64, size [2]int, logger *logrus.Logger) (*FfmpegEncoder, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	args, err := encoderArgs(path, codec, fps, size)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stderr := logger.WriterLevel(logrus.WarnLevel)
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		stderr.Close()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return &FfmpegEncoder{
		size:   size,
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		buf:    make([]byte, size[0]*size[1]*3),
	}, nil
}

// Append writes one frame. Gray frames are expanded to BGR.
func (e *FfmpegEncoder) Append(f *Frame) error {
	if f.Width != e.size[0] || f.Height != e.size[1] {
		return fmt.Errorf("%w: encoder is %dx%d, frame is %dx%d",
			ErrShapeMismatch, e.size[0], e.size[1], f.Width, f.Height)
	}
	data := f.Bytes
	if f.Channels == 1 {
		for i, v := range f.Bytes {
			e.buf[i*3], e.buf[i*3+1], e.buf[i*3+2] = v, v, v
		}
		data = e.buf
	}
	_, err := e.stdin.Write(data)
	return err
}

func (e *FfmpegEncoder) Close() error {
	e.stdin.Close()
	err := e.cmd.Wait()
	e.stderr.Close()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}
