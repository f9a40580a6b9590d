// Package capture owns the live camera feed and turns a user action into
// exactly one still image.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/plastic-detector/pkg/annotate"
	"github.com/menta2k/plastic-detector/pkg/codec"
)

var (
	// ErrNotReady is returned when capturing before the first frame arrived
	ErrNotReady = errors.New("capture: camera not ready")

	// ErrClosed is returned when using a session after Close
	ErrClosed = errors.New("capture: session closed")
)

// Status is the lifecycle state of a session
type Status int

const (
	Initializing Status = iota
	Ready
)

func (s Status) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Guide proportions, relative to the frame
const (
	GuideWidthRatio  = 0.70
	GuideHeightRatio = 0.50
)

// GuideRect returns the centered framing guide for a frame size
func GuideRect(width, height int) image.Rectangle {
	w := int(math.Round(float64(width) * GuideWidthRatio))
	h := int(math.Round(float64(height) * GuideHeightRatio))
	x0 := (width - w) / 2
	y0 := (height - h) / 2
	return image.Rect(x0, y0, x0+w, y0+h)
}

// Options configures a session
type Options struct {
	Constraints Constraints

	// Quality is the JPEG quality of snapshots and preview frames
	Quality int

	// FrameInterval paces preview frames; zero means 15 fps
	FrameInterval time.Duration

	// OnFrame receives JPEG preview frames with the guide drawn on them
	OnFrame func(jpeg []byte)

	// OnReady is called once, when the first frame arrives
	OnReady func()

	Logger logrus.FieldLogger
}

// Session is one acquisition of a camera stream. The stream is released
// exactly once, by Close.
type Session struct {
	stream Stream
	opts   Options
	proc   *codec.Processor
	log    logrus.FieldLogger

	readMu sync.Mutex

	mu     sync.RWMutex
	status Status
	size   image.Point

	ready     chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open acquires a stream from the device and starts pumping frames
func Open(ctx context.Context, dev Device, opts Options) (*Session, error) {
	if opts.Constraints == (Constraints{}) {
		opts.Constraints = DefaultConstraints()
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = time.Second / 15
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	stream, err := dev.Open(ctx, opts.Constraints)
	if err != nil {
		return nil, fmt.Errorf("capture: open camera: %w", err)
	}

	s := &Session{
		stream: stream,
		opts:   opts,
		proc:   codec.NewProcessor(opts.Quality),
		log:    opts.Logger,
		ready:  make(chan struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	go s.pump()
	return s, nil
}

// Status reports whether the first frame has arrived
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Ready is closed when the session becomes ready
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Guide returns the framing guide, hidden while initializing
func (s *Session) Guide() (image.Rectangle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != Ready {
		return image.Rectangle{}, false
	}
	return GuideRect(s.size.X, s.size.Y), true
}

// Capture samples the live stream once and returns a JPEG data URL
func (s *Session) Capture() (string, error) {
	select {
	case <-s.stop:
		return "", ErrClosed
	default:
	}
	if s.Status() != Ready {
		return "", ErrNotReady
	}

	frame, err := s.read()
	if err != nil {
		return "", fmt.Errorf("capture: read frame: %w", err)
	}

	dataURL, err := s.proc.EncodeDataURL(frame, codec.MIMEJPEG)
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"width":  frame.Bounds().Dx(),
		"height": frame.Bounds().Dy(),
	}).Info("Snapshot captured")
	return dataURL, nil
}

// Close stops the frame pump and releases the stream. The stream is
// closed before waiting for the pump so a Read blocked on a camera that
// never delivered a frame returns.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.closeErr = s.stream.Close()
		<-s.done
		s.log.Debug("Camera stream released")
	})
	return s.closeErr
}

func (s *Session) read() (image.Image, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	return s.stream.Read()
}

func (s *Session) pump() {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		frame, err := s.read()
		if err != nil {
			s.log.WithError(err).Debug("Frame read failed")
		} else {
			s.markReady(frame.Bounds().Size())
			s.publish(frame)
		}

		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) markReady(size image.Point) {
	s.mu.Lock()
	first := s.status == Initializing
	s.status = Ready
	s.size = size
	s.mu.Unlock()

	if first {
		close(s.ready)
		s.log.WithField("size", size).Info("Camera ready")
		if s.opts.OnReady != nil {
			s.opts.OnReady()
		}
	}
}

// publish sends a preview frame with the dashed framing guide drawn on it
func (s *Session) publish(frame image.Image) {
	if s.opts.OnFrame == nil {
		return
	}

	preview := imaging.Clone(frame)
	b := preview.Bounds()
	annotate.DrawDashedRect(preview, GuideRect(b.Dx(), b.Dy()),
		color.NRGBA{R: 0x22, G: 0xC5, B: 0x5E, A: 0xFF}, 4, 16)

	data, err := s.proc.EncodeJPEG(preview)
	if err != nil {
		s.log.WithError(err).Warn("Preview frame encode failed")
		return
	}
	s.opts.OnFrame(data)
}
