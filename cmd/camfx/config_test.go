package main

import (
	"context"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/opchain/capture"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.FPS != 30 || cfg.Width != 640 || cfg.Height != 480 || cfg.Frames != 90 {
		t.Errorf("defaults = %+v", cfg)
	}
	if !cfg.Audio || cfg.Mixture != 1 || cfg.level() != slog.LevelInfo {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadConfigEnvAndFlags(t *testing.T) {
	t.Setenv("CAMFX_FPS", "15")
	t.Setenv("CAMFX_WIDTH", "320")
	t.Setenv("CAMFX_LOG_LEVEL", "debug")

	cfg, err := loadConfig([]string{"-width", "160", "-audio=false"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.FPS != 15 {
		t.Errorf("FPS = %d, want 15 from env", cfg.FPS)
	}
	if cfg.Width != 160 {
		t.Errorf("Width = %d, want 160 from flag", cfg.Width)
	}
	if cfg.Audio {
		t.Error("Audio should be disabled by flag")
	}
	if cfg.level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", cfg.level())
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"fps", []string{"-fps", "0"}},
		{"size", []string{"-width", "-1"}},
		{"mixture", []string{"-mixture", "1.5"}},
		{"model", []string{"-model", "unet"}},
		{"flag", []string{"-unknown"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(tt.args); err == nil {
				t.Error("loadConfig should fail")
			}
		})
	}
}

func TestLoadConfigBadEnv(t *testing.T) {
	t.Setenv("CAMFX_FPS", "fast")
	if _, err := loadConfig(nil); err == nil {
		t.Error("loadConfig should reject a non-numeric CAMFX_FPS")
	}
}

func TestRunRecordsFrames(t *testing.T) {
	dir := t.TempDir()
	err := run([]string{"-frames", "3", "-fps", "200", "-width", "32", "-height", "24",
		"-output", dir, "-log-level", "error"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, name := range []string{"last.png", "frames/frame_000002.png", "frames/audio.wav"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing output: %v", err)
		}
	}
}

func TestRunWithoutBackgroundBypasses(t *testing.T) {
	dir := t.TempDir()
	err := run([]string{"-frames", "2", "-fps", "200", "-width", "32", "-height", "24",
		"-output", dir, "-log-level", "error", "-background", filepath.Join(dir, "missing.png")})
	if err != nil {
		t.Fatalf("run with a missing background: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "last.png"))
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer func() { _ = f.Close() }()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	// The keyed backdrop is not replaced, so it stays transparent.
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Errorf("backdrop alpha = %d, want 0", a)
	}
}

func TestLimitFrames(t *testing.T) {
	p := limitFrames(capture.NewPattern(4, 4), 2)
	for i := 0; i < 2; i++ {
		if _, err := p.NextImage(context.Background()); err != nil {
			t.Fatalf("NextImage %d: %v", i, err)
		}
	}
	if _, err := p.NextImage(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("NextImage past limit = %v, want io.EOF", err)
	}

	pattern := capture.NewPattern(4, 4)
	if limitFrames(pattern, 0) != capture.Provider(pattern) {
		t.Error("a zero limit should return the provider unchanged")
	}
}
