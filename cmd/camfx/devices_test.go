//go:build !gocv

package main

import (
	"errors"
	"testing"

	"github.com/gogpu/opchain/inference"
	"github.com/gogpu/opchain/render"
)

func TestOpenCameraWithoutOpenCV(t *testing.T) {
	if _, _, err := openCamera(&config{Camera: "0"}); !errors.Is(err, errNoOpenCV) {
		t.Errorf("openCamera(0) = %v, want errNoOpenCV", err)
	}
	p, closeFn, err := openCamera(&config{Width: 8, Height: 8})
	if err != nil || p == nil {
		t.Fatalf("openCamera(pattern) = %v, %v", p, err)
	}
	if err := closeFn(); err != nil {
		t.Errorf("close = %v", err)
	}
}

func TestOpenModelWithoutOpenCV(t *testing.T) {
	rc := render.NewSoftwareContext()
	defer rc.Destroy()

	m, err := openModel(modelChromaKey, rc)
	if err != nil {
		t.Fatalf("openModel(chromakey): %v", err)
	}
	if _, ok := m.(*inference.ChromaKey); !ok {
		t.Errorf("openModel(chromakey) = %T", m)
	}
	if _, err := openModel(modelOtsu, rc); !errors.Is(err, errNoOpenCV) {
		t.Errorf("openModel(otsu) = %v, want errNoOpenCV", err)
	}
	if err := run([]string{"-model", "otsu", "-output", t.TempDir()}); !errors.Is(err, errNoOpenCV) {
		t.Errorf("run -model otsu = %v, want errNoOpenCV", err)
	}
}
