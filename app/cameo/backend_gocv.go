//go:build gocv

package main

import (
	"os"

	"cameo/lib"

	"github.com/sirupsen/logrus"
)

func openBackend(cfg lib.Config, onKey lib.KeyFunc, logger *logrus.Logger) (lib.CaptureSource, lib.EncoderOpener, lib.WindowManager, error) {
	var window lib.WindowManager
	switch cfg.Preview.Window {
	case "none":
		window = &lib.HeadlessWindow{}
	case "terminal":
		window = lib.NewTerminalWindow(os.Stdin, onKey)
	default:
		window = lib.NewGocvWindow(cfg.Preview.Title, onKey, logger)
	}

	capture, err := lib.OpenGocvCapture(cfg.Capture)
	if err != nil {
		return nil, nil, nil, err
	}
	return capture, lib.GocvEncoderOpener{}, window, nil
}
