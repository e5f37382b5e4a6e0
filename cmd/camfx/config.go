package main

import (
	"flag"
	"fmt"
	"image/color"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// Segmentation models selectable with -model.
const (
	modelChromaKey = "chromakey"
	modelOtsu      = "otsu"
)

// greenScreen is the backdrop keyed out by the chromakey model. It matches
// the backdrop of capture.Pattern.
var greenScreen = color.NRGBA{G: 255, A: 255}

func noClose() error { return nil }

// config holds the camfx settings. Environment variables provide the
// defaults and command-line flags override them.
type config struct {
	FPS         int     `env:"CAMFX_FPS"          envDefault:"30"`
	Width       int     `env:"CAMFX_WIDTH"        envDefault:"640"`
	Height      int     `env:"CAMFX_HEIGHT"       envDefault:"480"`
	Frames      int     `env:"CAMFX_FRAMES"       envDefault:"90"`
	Camera      string  `env:"CAMFX_CAMERA"`
	Model       string  `env:"CAMFX_MODEL"        envDefault:"chromakey"`
	Background  string  `env:"CAMFX_BACKGROUND"`
	Mixture     float64 `env:"CAMFX_MIXTURE"      envDefault:"1"`
	Audio       bool    `env:"CAMFX_AUDIO"        envDefault:"true"`
	OutputDir   string  `env:"CAMFX_OUTPUT_DIR"   envDefault:"camfx-out"`
	MetricsAddr string  `env:"CAMFX_METRICS_ADDR"`
	LogLevel    string  `env:"CAMFX_LOG_LEVEL"    envDefault:"info"`
}

func loadConfig(args []string) (*config, error) {
	cfg := &config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("camfx", flag.ContinueOnError)
	fs.IntVar(&cfg.FPS, "fps", cfg.FPS, "camera frame rate")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "camera and video width")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "camera and video height")
	fs.IntVar(&cfg.Frames, "frames", cfg.Frames, "number of frames to capture, 0 runs until interrupted")
	fs.StringVar(&cfg.Camera, "camera", cfg.Camera, "OpenCV camera index, video or image path; empty uses a test pattern")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "segmentation model (chromakey, otsu)")
	fs.StringVar(&cfg.Background, "background", cfg.Background, "background image (png, jpeg, gif, bmp, tiff, webp)")
	fs.Float64Var(&cfg.Mixture, "mixture", cfg.Mixture, "background mixture in [0, 1]")
	fs.BoolVar(&cfg.Audio, "audio", cfg.Audio, "record the test tone")
	fs.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "output directory")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "address of the Prometheus endpoint, empty disables it")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("invalid frame rate %d", cfg.FPS)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Model != modelChromaKey && cfg.Model != modelOtsu {
		return nil, fmt.Errorf("unknown model %q", cfg.Model)
	}
	if cfg.Mixture < 0 || cfg.Mixture > 1 {
		return nil, fmt.Errorf("mixture %v out of [0, 1]", cfg.Mixture)
	}
	return cfg, nil
}

func (c *config) level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
