// Package webcam reads frames from a local camera through OpenCV.
package webcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/menta2k/plastic-detector/pkg/capture"
)

// Device is a V4L/AVFoundation camera addressed by index
type Device struct {
	ID int
}

// New creates a webcam device
func New(id int) *Device {
	return &Device{ID: id}
}

// Open starts the camera and asks for the requested resolution. OpenCV has
// no notion of facing mode, so the device index selects the camera.
func (d *Device) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cam, err := gocv.OpenVideoCapture(d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", d.ID, err)
	}
	if !cam.IsOpened() {
		cam.Close()
		return nil, fmt.Errorf("camera %d is not available", d.ID)
	}

	if c.Width > 0 {
		cam.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	}
	if c.Height > 0 {
		cam.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}

	return &stream{cam: cam, mat: gocv.NewMat()}, nil
}

var errClosed = errors.New("camera closed")

// stream reads from one VideoCapture. mu is never held across cam.Read,
// so Close does not wait on a camera that stopped delivering frames; a
// close requested mid-read is finished by the reader.
type stream struct {
	mu      sync.Mutex
	cam     *gocv.VideoCapture
	mat     gocv.Mat
	reading bool
	closed  bool
}

func (s *stream) Read() (image.Image, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errClosed
	}
	if s.reading {
		s.mu.Unlock()
		return nil, errors.New("concurrent read")
	}
	s.reading = true
	s.mu.Unlock()

	ok := s.cam.Read(&s.mat)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = false
	if s.closed {
		s.release()
		return nil, errClosed
	}
	if !ok || s.mat.Empty() {
		return nil, errors.New("no frame from camera")
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.reading {
		return nil
	}
	return s.release()
}

func (s *stream) release() error {
	err := s.cam.Close()
	s.mat.Close()
	return err
}
