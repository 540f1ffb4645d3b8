package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cameo/lib"

	"github.com/sirupsen/logrus"
)

func initLogger(level string, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return logger, nil
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	source := flag.String("source", "", "capture source (file, URL or device)")
	format := flag.String("format", "", "ffmpeg input format for devices, e.g. v4l2")
	size := flag.String("size", "", "capture size, e.g. 640x480")
	window := flag.String("window", "", "terminal, gocv or none")
	stream := flag.String("stream", "", "serve the preview on this address, e.g. :8080")
	filters := flag.String("filters", "", "comma separated filter names, e.g. portra,sharpen")
	mirror := flag.Bool("mirror", true, "mirror the preview")
	recordSeconds := flag.Float64("record-seconds", 0, "record this many seconds to the screencast path and quit")
	debug := flag.Bool("debug", false, "debug logging")
	saveConfig := flag.String("save-config", "", "write the effective config to this path and quit")
	flag.Parse()

	cfg := lib.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = lib.GetConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			cfg.Capture.Source = *source
			cfg.Capture.Format = *format
		case "format":
			cfg.Capture.Format = *format
		case "size":
			cfg.Capture.Size = *size
		case "window":
			cfg.Preview.Window = *window
		case "stream":
			cfg.Preview.StreamAddr = *stream
		case "mirror":
			cfg.Preview.Mirror = *mirror
		case "filters":
			cfg.Filters = nil
			for _, name := range strings.Split(*filters, ",") {
				if name = strings.TrimSpace(name); name != "" {
					cfg.Filters = append(cfg.Filters, lib.FilterConfig{Name: name})
				}
			}
		}
	})
	if *debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if *saveConfig != "" {
		if err := lib.SaveYaml(cfg, *saveConfig); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	logger, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if err := run(cfg, *recordSeconds, logger); err != nil {
		logger.WithError(err).Error("cameo failed")
		os.Exit(1)
	}
}

func run(cfg lib.Config, recordSeconds float64, logger *logrus.Logger) error {
	chain, err := cfg.BuildFilters()
	if err != nil {
		return err
	}

	c := &Cameo{
		cfg:       cfg,
		filters:   chain,
		report:    lib.NewRunReport(time.Now()),
		log:       logger,
		stopOnEnd: cfg.Capture.Format == "",
		clock:     time.Now,
	}

	capture, encoders, window, err := openBackend(cfg, c.onKeypress, logger)
	if err != nil {
		return err
	}
	c.window = window

	var preview lib.PreviewSink = window
	var server *lib.StreamServer
	if cfg.Preview.StreamAddr != "" {
		b := lib.NewBroadcaster(cfg.Preview.StreamQuality, logger)
		server = lib.NewStreamServer(b, logger)
		if _, err := server.Start(cfg.Preview.StreamAddr); err != nil {
			capture.Release()
			return err
		}
		preview = lib.MultiPreview{window, b}
	}

	c.session = lib.NewFrameSession(capture, lib.SessionOptions{
		Preview:       preview,
		MirrorPreview: cfg.Preview.Mirror,
		Images:        lib.FileImageSink{JPEGQuality: cfg.Output.JPEGQuality},
		Encoders:      encoders,
		Channel:       cfg.Capture.Channel,
		Logger:        logger,

		OnImageWritten: c.report.AddScreenshot,
		OnVideoOpened:  c.report.AddRecording,
	})
	defer func() {
		if err := c.session.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close session")
		}
	}()
	if server != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		}()
	}

	if recordSeconds > 0 {
		c.startFixedRecording(recordSeconds, capture)
	} else if _, ok := window.(*lib.HeadlessWindow); !ok {
		lib.PrintKeyHelp()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := c.Run(ctx); err != nil {
		return err
	}
	c.report.Print()
	return nil
}
