// Command camfx demonstrates the operation chain: a synthetic green-screen
// camera is segmented with a chroma key, composited over a background
// image and recorded to a PNG sequence with its audio track.
package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/opchain"
	"github.com/gogpu/opchain/capture"
	"github.com/gogpu/opchain/compositor"
	"github.com/gogpu/opchain/imageload"
	"github.com/gogpu/opchain/inference"
	"github.com/gogpu/opchain/metrics"
	"github.com/gogpu/opchain/render"
	"github.com/gogpu/opchain/sink"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "camfx: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.level()}))
	opchain.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		srv := metrics.StartServer(cfg.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	rc := render.NewSoftwareContext()
	defer rc.Destroy()

	chain := opchain.NewChain(rc)
	defer func() {
		if err := chain.Close(); err != nil {
			logger.Warn("close chain", "err", err)
		}
	}()

	provider, closeProvider, err := openCamera(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeProvider(); err != nil {
			logger.Warn("close camera", "err", err)
		}
	}()
	camera, err := capture.NewSource(rc, limitFrames(provider, cfg.Frames),
		capture.WithFrameRate(cfg.FPS),
		capture.WithAudio(capture.NewTone()))
	if err != nil {
		return err
	}

	model, err := openModel(cfg.Model, rc)
	if err != nil {
		return err
	}
	segment, err := inference.New(model,
		inference.WithName(cfg.Model),
		inference.WithTimeout(time.Second),
		inference.WithMetrics(m))
	if err != nil {
		return err
	}

	comp, err := compositor.New(chain.Context(), camera.Key(),
		compositor.WithBlendMode(compositor.BlendReplaceBackground),
		compositor.WithMixture(float32(cfg.Mixture)),
		compositor.WithMetrics(m))
	if err != nil {
		return err
	}
	if err := setBackground(comp, rc, cfg); err != nil {
		logger.Warn("camfx: background unavailable, compositor bypassed", "err", err)
	}

	preview := sink.NewPreview(nil)
	enc, err := sink.NewImageSequence(filepath.Join(cfg.OutputDir, "frames"))
	if err != nil {
		return err
	}
	rec, err := sink.NewRecorder(rc, enc,
		sink.WithVideoSize(cfg.Width, cfg.Height),
		sink.WithAudio(cfg.Audio),
		sink.WithRecorderMetrics(m))
	if err != nil {
		return errors.Join(err, enc.Close())
	}

	if err := chain.Connect(camera, segment); err != nil {
		return err
	}
	if err := chain.Link(segment, comp, preview, rec); err != nil {
		return err
	}
	if err := chain.ConnectAudio(camera, rec); err != nil {
		return err
	}

	if err := rec.StartRecording(); err != nil {
		return err
	}
	logger.Info("camfx: running", "session", rec.Session(), "fps", cfg.FPS,
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), "output", cfg.OutputDir)

	runErr := camera.Run(ctx)

	done := make(chan error, 1)
	rec.FinishRecording(func(err error) { done <- err })
	recErr := <-done

	if err := writeSnapshot(preview, rc, filepath.Join(cfg.OutputDir, "last.png")); err != nil {
		logger.Warn("camfx: no snapshot written", "err", err)
	}
	logger.Info("camfx: finished", "frames", camera.Frames(), "dropped", camera.Dropped(),
		"recorded", rec.Frames(), "composited", rc.Submissions())
	return errors.Join(runErr, recErr)
}

// limited ends a provider with io.EOF after n images; n <= 0 is unlimited.
type limited struct {
	capture.Provider
	n, max int
}

func limitFrames(p capture.Provider, n int) capture.Provider {
	if n <= 0 {
		return p
	}
	return &limited{Provider: p, max: n}
}

func (l *limited) NextImage(ctx context.Context) (image.Image, error) {
	if l.n >= l.max {
		return nil, io.EOF
	}
	img, err := l.Provider.NextImage(ctx)
	if err == nil {
		l.n++
	}
	return img, err
}

// setBackground loads the configured background, or a generated gradient
// when none is configured.
func setBackground(comp *compositor.Compositor, rc render.Context, cfg *config) error {
	if cfg.Background == "" {
		return comp.SetCompositeImageFrom(gradient(cfg.Width, cfg.Height))
	}
	loader := imageload.New(imageload.WithMaxSize(2 * max(cfg.Width, cfg.Height)))
	tex, err := loader.Load(rc, cfg.Background)
	if err != nil {
		return fmt.Errorf("background: %w", err)
	}
	comp.SetCompositeImage(tex)
	return nil
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		t := float64(y) / float64(h)
		c := color.NRGBA{
			R: uint8(25 + t*100),
			G: uint8(50 + t*75),
			B: uint8(100 + t*50),
			A: 255,
		}
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writeSnapshot(p *sink.Preview, r render.ImageReader, path string) (err error) {
	img, err := p.Snapshot(r)
	if err != nil {
		return err
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}
