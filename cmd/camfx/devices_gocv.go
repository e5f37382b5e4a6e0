//go:build gocv

package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gogpu/opchain/capture"
	"github.com/gogpu/opchain/inference"
	"github.com/gogpu/opchain/render"
)

// openCamera opens the configured camera with OpenCV: a still image file,
// a camera index or a video path or URL. Without a camera the synthetic
// pattern is used.
func openCamera(cfg *config) (capture.Provider, func() error, error) {
	switch {
	case cfg.Camera == "":
		return capture.NewPattern(cfg.Width, cfg.Height), noClose, nil
	case isStillImage(cfg.Camera):
		f, err := capture.ReadImageFile(cfg.Camera)
		if err != nil {
			return nil, nil, err
		}
		return f, noClose, nil
	}

	var device any = cfg.Camera
	if idx, err := strconv.Atoi(cfg.Camera); err == nil {
		device = idx
	}
	cam, err := capture.OpenOpenCV(device)
	if err != nil {
		return nil, nil, err
	}
	return cam, cam.Close, nil
}

func isStillImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

func openModel(name string, rc render.Context) (inference.Model, error) {
	switch name {
	case modelChromaKey:
		return inference.NewChromaKey(rc, greenScreen)
	case modelOtsu:
		return inference.NewOtsu(rc)
	default:
		return nil, fmt.Errorf("unknown model %q", name)
	}
}
