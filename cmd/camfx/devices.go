//go:build !gocv

package main

import (
	"errors"
	"fmt"

	"github.com/gogpu/opchain/capture"
	"github.com/gogpu/opchain/inference"
	"github.com/gogpu/opchain/render"
)

var errNoOpenCV = errors.New("camfx was built without OpenCV support (build with -tags gocv)")

// openCamera returns the synthetic green-screen pattern. Real cameras need
// the gocv build.
func openCamera(cfg *config) (capture.Provider, func() error, error) {
	if cfg.Camera != "" {
		return nil, nil, fmt.Errorf("camera %q: %w", cfg.Camera, errNoOpenCV)
	}
	return capture.NewPattern(cfg.Width, cfg.Height), noClose, nil
}

func openModel(name string, rc render.Context) (inference.Model, error) {
	switch name {
	case modelChromaKey:
		return inference.NewChromaKey(rc, greenScreen)
	case modelOtsu:
		return nil, fmt.Errorf("model %q: %w", name, errNoOpenCV)
	default:
		return nil, fmt.Errorf("unknown model %q", name)
	}
}
