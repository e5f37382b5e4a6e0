//go:build gocv

package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// OpenCV is a Provider reading from an OpenCV video capture: a camera
// index, a video file or a stream URL.
type OpenCV struct {
	mu  sync.Mutex
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// OpenOpenCV opens device, which is either an int camera index or a
// string path or URL.
func OpenOpenCV(device any) (*OpenCV, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("capture: open %v: %w", device, err)
	}
	return &OpenCV{vc: vc, mat: gocv.NewMat()}, nil
}

// NextImage reads the next frame. A read failure is reported as io.EOF.
func (o *OpenCV) NextImage(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.vc == nil {
		return nil, errors.New("capture: OpenCV source closed")
	}
	if ok := o.vc.Read(&o.mat); !ok || o.mat.Empty() {
		return nil, io.EOF
	}
	img, err := o.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("capture: convert frame: %w", err)
	}
	return img, nil
}

// Close releases the capture device.
func (o *OpenCV) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.vc == nil {
		return nil
	}
	err := o.vc.Close()
	_ = o.mat.Close()
	o.vc = nil
	return err
}

// ImageFile is a Provider repeating one still image read with OpenCV.
type ImageFile struct {
	img image.Image
}

// ReadImageFile loads path with gocv.IMRead.
func ReadImageFile(path string) (*ImageFile, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer func() { _ = mat.Close() }()
	if mat.Empty() {
		return nil, fmt.Errorf("capture: cannot read %s", path)
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("capture: convert %s: %w", path, err)
	}
	return &ImageFile{img: img}, nil
}

// NextImage returns the still image.
func (f *ImageFile) NextImage(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.img, nil
}

var (
	_ Provider = (*OpenCV)(nil)
	_ Provider = (*ImageFile)(nil)
)
