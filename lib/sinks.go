package lib

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// FileImageSink writes still images with the format picked from the file
// extension.
type FileImageSink struct {
	JPEGQuality int
}

func (s FileImageSink) WriteImage(path string, frame *Frame) error {
	if _, err := imaging.FormatFromFilename(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	quality := s.JPEGQuality
	if quality <= 0 {
		quality = 95
	}
	return imaging.Save(frame.ToNRGBA(), path, imaging.JPEGQuality(quality))
}

// LoadFrame decodes an image file into a BGR frame.
func LoadFrame(path string) (*Frame, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	return FrameFromImage(img, 3), nil
}

// PreviewFunc adapts a function to PreviewSink.
type PreviewFunc func(frame *Frame)

func (f PreviewFunc) Show(frame *Frame) {
	f(frame)
}

// MultiPreview shows every frame on each of its sinks in order.
type MultiPreview []PreviewSink

func (m MultiPreview) Show(frame *Frame) {
	for _, p := range m {
		p.Show(frame)
	}
}
