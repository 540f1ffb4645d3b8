//go:build !gocv

package main

import (
	"fmt"
	"os"

	"cameo/lib"

	"github.com/sirupsen/logrus"
)

func openBackend(cfg lib.Config, onKey lib.KeyFunc, logger *logrus.Logger) (lib.CaptureSource, lib.EncoderOpener, lib.WindowManager, error) {
	var window lib.WindowManager
	switch cfg.Preview.Window {
	case "gocv":
		return nil, nil, nil, fmt.Errorf("window %q needs a build with -tags gocv", cfg.Preview.Window)
	case "none":
		window = &lib.HeadlessWindow{}
	default:
		window = lib.NewTerminalWindow(os.Stdin, onKey)
	}

	capture, err := lib.OpenFfmpegCapture(cfg.Capture, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return capture, lib.FfmpegEncoderOpener{Logger: logger}, window, nil
}
