package main

import (
	"context"
	"math"
	"time"

	"cameo/lib"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// Cameo wires a FrameSession to a window and a filter chain and runs the
// capture loop.
type Cameo struct {
	cfg     lib.Config
	session *lib.FrameSession
	window  lib.WindowManager
	filters lib.FilterChain
	report  *lib.RunReport
	log     *logrus.Logger

	// stopOnEnd ends the loop at the first missing frame, for file sources.
	stopOnEnd bool
	// maxFrames ends the loop after that many frames when positive.
	maxFrames int
	bar       *progressbar.ProgressBar
	clock     func() time.Time
}

func (c *Cameo) onKeypress(key int) {
	switch key {
	case lib.KeySpace:
		c.session.WriteImage(c.cfg.Output.Screenshot)
	case lib.KeyTab:
		if c.session.IsWritingVideo() {
			c.session.StopWritingVideo()
			return
		}
		codec, _ := lib.ParseFourCC(c.cfg.Output.Codec)
		c.session.StartWritingVideo(c.cfg.Output.Screencast, codec)
	case 'c':
		c.session.SetChannel(1 - c.session.Channel())
	case lib.KeyEscape, 'q':
		c.window.DestroyWindow()
	}
}

// startFixedRecording records the next seconds of capture and then stops
// the loop.
func (c *Cameo) startFixedRecording(seconds float64, capture lib.CaptureSource) {
	fps := capture.Property(lib.PropFPS)
	if math.IsNaN(fps) || fps <= 0 {
		fps = 30
	}
	c.maxFrames = int(seconds * fps)
	codec, _ := lib.ParseFourCC(c.cfg.Output.Codec)
	c.session.StartWritingVideo(c.cfg.Output.Screencast, codec)
	c.bar = lib.NewRecordingBar(c.maxFrames, c.cfg.Output.Screencast)
}

func (c *Cameo) Run(ctx context.Context) error {
	if err := c.window.CreateWindow(); err != nil {
		return err
	}
	defer c.window.DestroyWindow()

	if tw, ok := c.window.(*lib.TerminalWindow); ok && tw.Raw() {
		c.log.SetOutput(lib.CRLFWriter{W: c.log.Out})
	}

	for c.window.IsWindowCreated() && ctx.Err() == nil {
		start := c.clock()
		c.session.EnterFrame()
		frame := c.session.Frame()
		if frame != nil && len(c.filters) > 0 {
			if err := c.filters.Apply(frame, frame); err != nil {
				c.log.WithFields(logrus.Fields{
					"function": "Cameo.Run",
				}).WithError(err).Warn("Filter failed")
			}
		}
		c.session.ExitFrame()
		c.report.Observe(c.clock().Sub(start), frame != nil)

		if frame == nil && c.stopOnEnd {
			break
		}
		if frame != nil && c.bar != nil {
			c.bar.Add(1)
		}
		if c.maxFrames > 0 && c.report.Frames >= c.maxFrames {
			break
		}
		c.window.ProcessEvents()
	}
	if c.bar != nil {
		c.bar.Finish()
	}
	c.report.Finish(c.clock())
	return nil
}
