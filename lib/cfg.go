package lib

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

func ParseDims(dims string) ([2]int, error) {
	parts := strings.Split(strings.ToLower(dims), "x")
	if len(parts) != 2 {
		return [2]int{}, fmt.Errorf("bad dims %v", dims)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return [2]int{}, fmt.Errorf("bad dims %v: %w", dims, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return [2]int{}, fmt.Errorf("bad dims %v: %w", dims, err)
	}
	if w <= 0 || h <= 0 {
		return [2]int{}, fmt.Errorf("bad dims %v", dims)
	}
	return [2]int{w, h}, nil
}

type Config struct {
	Capture CaptureConfig `yaml:"capture"`
	Preview struct {
		Mirror bool `yaml:"mirror"`
		// Window is "terminal", "gocv" or "none".
		Window        string `yaml:"window"`
		Title         string `yaml:"title"`
		StreamAddr    string `yaml:"streamaddr"`
		StreamQuality int    `yaml:"streamquality"`
	} `yaml:"preview"`
	Output struct {
		Screenshot  string `yaml:"screenshot"`
		Screencast  string `yaml:"screencast"`
		Codec       string `yaml:"codec"`
		JPEGQuality int    `yaml:"jpegquality"`
	} `yaml:"output"`
	Filters []FilterConfig `yaml:"filters"`
	Log     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// FilterConfig names a preset filter, or defines one inline when Name is
// "curve" or "kernel".
type FilterConfig struct {
	Name      string        `yaml:"name"`
	Curves    ChannelCurves `yaml:"curves,omitempty"`
	Kernel    [][]float64   `yaml:"kernel,omitempty"`
	BlurKsize int           `yaml:"blurksize,omitempty"`
	EdgeKsize int           `yaml:"edgeksize,omitempty"`
}

func DefaultConfig() Config {
	var cfg Config
	cfg.Capture.Source = "/dev/video0"
	cfg.Capture.Format = "v4l2"
	cfg.Capture.BufferSize = 4
	cfg.Preview.Mirror = true
	cfg.Preview.Window = "terminal"
	cfg.Preview.Title = "Cameo"
	cfg.Preview.StreamQuality = 80
	cfg.Output.Screenshot = "screenshot.png"
	cfg.Output.Screencast = "screencast.avi"
	cfg.Output.Codec = string(DefaultCodec)
	cfg.Output.JPEGQuality = 95
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// GetConfig reads a YAML config on top of DefaultConfig.
func GetConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse %s: %w", configPath, err)
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("%s: %w", configPath, err)
	}
	return config, nil
}

func (cfg Config) Validate() error {
	if cfg.Capture.Source == "" {
		return fmt.Errorf("capture.source is empty")
	}
	if cfg.Capture.Size != "" {
		if _, err := ParseDims(cfg.Capture.Size); err != nil {
			return fmt.Errorf("capture.size: %w", err)
		}
	}
	switch cfg.Preview.Window {
	case "", "terminal", "gocv", "none":
	default:
		return fmt.Errorf("preview.window: unknown window %q", cfg.Preview.Window)
	}
	if _, err := ParseFourCC(cfg.Output.Codec); err != nil {
		return fmt.Errorf("output.codec: %w", err)
	}
	for i, fc := range cfg.Filters {
		if err := fc.Validate(); err != nil {
			return fmt.Errorf("filters[%d]: %w", i, err)
		}
	}
	return nil
}

func (fc FilterConfig) Validate() error {
	switch strings.ToLower(fc.Name) {
	case "curve":
		return fc.Curves.Validate()
	case "kernel":
		return ValidateKernel(fc.Kernel)
	case "strokeedges":
		if fc.EdgeKsize > 7 || (fc.EdgeKsize > 1 && fc.EdgeKsize%2 == 0) {
			return fmt.Errorf("%w: laplacian aperture must be 1, 3, 5 or 7, got %d", ErrInvalidKernel, fc.EdgeKsize)
		}
		return nil
	}
	if _, ok := namedFilters[strings.ToLower(fc.Name)]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, fc.Name)
	}
	return nil
}

func (fc FilterConfig) Build() (Filter, error) {
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(fc.Name) {
	case "curve":
		return NewChannelFilter(fc.Curves), nil
	case "kernel":
		return NewConvolutionFilter(fc.Kernel), nil
	case "strokeedges":
		blur, edge := fc.BlurKsize, fc.EdgeKsize
		if blur == 0 {
			blur = 7
		}
		if edge == 0 {
			edge = 5
		}
		return NewStrokeEdgesFilter(blur, edge), nil
	}
	return NewNamedFilter(fc.Name)
}

// BuildFilters returns the configured filters in order.
func (cfg Config) BuildFilters() (FilterChain, error) {
	var chain FilterChain
	for i, fc := range cfg.Filters {
		f, err := fc.Build()
		if err != nil {
			return nil, fmt.Errorf("filters[%d]: %w", i, err)
		}
		chain = append(chain, f)
	}
	return chain, nil
}
