package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/menta2k/plastic-detector/internal/utils"
	"github.com/menta2k/plastic-detector/pkg/codec"
)

// FileDevice replays still images as a camera feed. Path may name a single
// image or a directory, whose images are cycled in path order.
type FileDevice struct {
	Path string
}

// NewFileDevice creates a device backed by an image file or directory
func NewFileDevice(path string) *FileDevice {
	return &FileDevice{Path: path}
}

// Open loads every frame up front so reads never touch the disk
func (d *FileDevice) Open(ctx context.Context, _ Constraints) (Stream, error) {
	info, err := os.Stat(d.Path)
	if err != nil {
		return nil, fmt.Errorf("camera source: %w", err)
	}

	paths := []string{d.Path}
	if info.IsDir() {
		paths, err = utils.ListImageFiles(d.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to list images in %s: %w", d.Path, err)
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("no images found in %s", d.Path)
		}
	}

	frames := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := codec.LoadFile(p)
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}

	return &frameStream{frames: frames}, nil
}

// NewStaticStream serves the given frames in a loop
func NewStaticStream(frames ...image.Image) Stream {
	return &frameStream{frames: frames}
}

var errStreamClosed = errors.New("stream closed")

type frameStream struct {
	mu     sync.Mutex
	frames []image.Image
	next   int
	closed bool
}

func (s *frameStream) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errStreamClosed
	}
	if len(s.frames) == 0 {
		return nil, errors.New("no frames")
	}

	frame := s.frames[s.next%len(s.frames)]
	s.next++
	return frame, nil
}

func (s *frameStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
