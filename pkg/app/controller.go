package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/plastic-detector/pkg/capture"
	"github.com/menta2k/plastic-detector/pkg/client"
	"github.com/menta2k/plastic-detector/pkg/codec"
	"github.com/menta2k/plastic-detector/pkg/preview"
	"github.com/menta2k/plastic-detector/pkg/types"
)

// Notifier shows blocking notices to the user
type Notifier interface {
	Notify(alert string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(alert string)

// Notify calls f
func (f NotifierFunc) Notify(alert string) { f(alert) }

// View is a State plus the ephemeral bits of the camera and preview screens
type View struct {
	State
	CameraReady bool             `json:"camera_ready"`
	Guide       *image.Rectangle `json:"guide,omitempty"`
	SmartCrop   bool             `json:"smart_crop"`
}

// Options configures a controller
type Options struct {
	Detector client.Detector
	Device   capture.Device

	// Capture configures camera sessions; callbacks are set by the controller
	Capture capture.Options

	// CropPercentage is the center region kept by smart crop
	CropPercentage float64

	// Quality is the JPEG quality of cropped uploads
	Quality int

	Notifier Notifier
	Logger   logrus.FieldLogger
}

// Controller owns the application state and every resource behind it
type Controller struct {
	detector client.Detector
	device   capture.Device
	capOpts  capture.Options
	proc     *codec.Processor
	crop     float64
	notifier Notifier
	log      logrus.FieldLogger

	healthOnce sync.Once

	// opMu serializes user actions, mu guards state
	opMu sync.Mutex
	mu   sync.Mutex

	state   State
	session *capture.Session
	preview *preview.Preview

	opCtx    context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	startErr error

	subs   map[int]chan View
	nextID int

	frameMu   sync.RWMutex
	frameSink func([]byte)
}

// NewController creates a controller on the home screen
func NewController(opts Options) (*Controller, error) {
	if opts.Detector == nil {
		return nil, errors.New("detector is required")
	}
	if opts.Device == nil {
		return nil, errors.New("capture device is required")
	}
	if opts.CropPercentage == 0 {
		opts.CropPercentage = codec.DefaultCropPercentage
	}
	if opts.CropPercentage < 0 || opts.CropPercentage > 100 {
		return nil, fmt.Errorf("%w: got %v", codec.ErrInvalidPercentage, opts.CropPercentage)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	c := &Controller{
		detector: opts.Detector,
		device:   opts.Device,
		capOpts:  opts.Capture,
		proc:     codec.NewProcessor(opts.Quality),
		crop:     opts.CropPercentage,
		notifier: opts.Notifier,
		log:      opts.Logger,
		state:    Initial(),
		subs:     make(map[int]chan View),
	}
	c.capOpts.Logger = opts.Logger
	c.capOpts.OnFrame = c.forwardFrame
	// the frame pump must never wait on the controller lock
	c.capOpts.OnReady = func() { go c.publishReady() }

	return c, nil
}

// Init probes the backend once. A failed probe leaves the backend status
// nil and start disabled; it is never retried.
func (c *Controller) Init(ctx context.Context) {
	c.healthOnce.Do(func() {
		status := c.detector.CheckHealth(ctx)
		if status == nil {
			c.log.Warn("Backend not connected")
		} else {
			c.log.WithFields(logrus.Fields{
				"status":       status.Status,
				"model_loaded": status.ModelLoaded,
			}).Info("Backend connected")
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		c.dispatchLocked(HealthChecked{Status: status})
	})
}

// Snapshot returns the current view
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Subscribe streams views, keeping only the latest one for slow readers
func (c *Controller) Subscribe() (<-chan View, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	ch := make(chan View, 1)
	ch <- c.viewLocked()
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// SetFrameSink receives live camera frames while the camera screen is open
func (c *Controller) SetFrameSink(fn func(jpeg []byte)) {
	c.frameMu.Lock()
	c.frameSink = fn
	c.frameMu.Unlock()
}

// Start opens the camera from the home screen
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dispatchLocked(Start{}); err != nil {
		return err
	}
	return c.openCameraLocked(ctx)
}

// Capture takes one snapshot and shows it in the preview
func (c *Controller) Capture() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Screen != ScreenCamera || c.session == nil {
		return c.rejectLocked(Capture{})
	}

	img, err := c.session.Capture()
	if err != nil {
		return err
	}
	if err := c.dispatchLocked(Capture{Image: img}); err != nil {
		return err
	}

	c.closeCameraLocked()
	c.preview = preview.New(img, c.beginAnalysisLocked, c.retakeLocked)
	c.publishLocked()
	return nil
}

// Close leaves the camera screen without capturing
func (c *Controller) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dispatchLocked(Close{}); err != nil {
		return err
	}
	c.closeCameraLocked()
	return nil
}

// SetSmartCrop flips the preview toggle
func (c *Controller) SetSmartCrop(on bool) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Screen != ScreenPreview || c.preview == nil {
		return fmt.Errorf("%w: smart crop on %s", ErrInvalidTransition, c.state.Screen)
	}
	c.preview.SetSmartCrop(on)
	c.publishLocked()
	return nil
}

// Retake discards the snapshot and reopens the camera
func (c *Controller) Retake(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Screen != ScreenPreview || c.preview == nil {
		return c.rejectLocked(Retake{})
	}

	c.opCtx = ctx
	c.startErr = nil
	c.preview.Retake()
	return c.startErr
}

// Analyze submits the previewed image. The returned channel is closed when
// the analysis has left the loading screen.
func (c *Controller) Analyze(ctx context.Context) (<-chan struct{}, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Screen != ScreenPreview || c.preview == nil {
		return nil, c.rejectLocked(Analyze{})
	}

	c.opCtx = ctx
	c.startErr = nil
	c.preview.Analyze()
	if c.startErr != nil {
		return nil, c.startErr
	}
	return c.done, nil
}

// ScanAgain returns home from the results screen
func (c *Controller) ScanAgain() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dispatchLocked(ScanAgain{}); err != nil {
		return err
	}
	c.preview = nil
	return nil
}

// DismissAlert clears the blocking notice
func (c *Controller) DismissAlert() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchLocked(DismissAlert{})
}

// Shutdown cancels a running analysis, releases the camera and closes
// all subscriptions
func (c *Controller) Shutdown() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCameraLocked()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// beginAnalysisLocked is the preview's analyze callback
func (c *Controller) beginAnalysisLocked(smartCrop bool) {
	if err := c.dispatchLocked(Analyze{SmartCrop: smartCrop}); err != nil {
		c.startErr = err
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.opCtx))
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go c.runAnalysis(ctx, c.preview.Image(), smartCrop, done)
}

// retakeLocked is the preview's retake callback
func (c *Controller) retakeLocked() {
	if err := c.dispatchLocked(Retake{}); err != nil {
		c.startErr = err
		return
	}
	c.preview = nil
	c.startErr = c.openCameraLocked(c.opCtx)
}

// runAnalysis crops, uploads and reports back through the reducer
func (c *Controller) runAnalysis(ctx context.Context, captured string, smartCrop bool, done chan struct{}) {
	defer close(done)

	logger := c.log.WithField("smart_crop", smartCrop)
	processed, dets, err := c.analyze(ctx, captured, smartCrop)

	var ev Event = AnalysisSucceeded{Processed: processed, Detections: dets}
	if err != nil {
		logger.WithError(err).Error("Analysis failed")
		ev = AnalysisFailed{Err: err}
	} else {
		logger.WithField("detections", len(dets)).Info("Analysis completed")
	}

	c.mu.Lock()
	c.cancel = nil
	c.dispatchLocked(ev)
	alert := c.state.Alert
	c.mu.Unlock()

	if alert != "" && c.notifier != nil {
		c.notifier.Notify(alert)
	}
}

func (c *Controller) analyze(ctx context.Context, captured string, smartCrop bool) (string, []types.Detection, error) {
	processed := captured
	if smartCrop {
		cropped, err := c.proc.CropCenterRegion(captured, c.crop)
		if err != nil {
			return "", nil, fmt.Errorf("smart crop: %w", err)
		}
		processed = cropped
	}

	c.mu.Lock()
	c.dispatchLocked(Cropped{Image: processed})
	c.mu.Unlock()

	blob, err := codec.ToBlob(processed)
	if err != nil {
		return "", nil, err
	}

	resp, err := c.detector.Detect(ctx, blob)
	if err != nil {
		return "", nil, err
	}
	if !resp.Success {
		c.log.WithField("message", resp.Message).Warn("Backend reported no success")
		return processed, nil, nil
	}
	return processed, resp.Detections, nil
}

func (c *Controller) openCameraLocked(ctx context.Context) error {
	session, err := capture.Open(ctx, c.device, c.capOpts)
	if err != nil {
		c.log.WithError(err).Error("Camera unavailable")
		c.dispatchLocked(CameraFailed{Err: err})
		// callers hold mu
		if alert := c.state.Alert; alert != "" && c.notifier != nil {
			go c.notifier.Notify(alert)
		}
		return err
	}
	c.session = session
	c.publishLocked()
	return nil
}

func (c *Controller) closeCameraLocked() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		c.log.WithError(err).Warn("Failed to release camera")
	}
	c.session = nil
}

// dispatchLocked runs the reducer and publishes the new view
func (c *Controller) dispatchLocked(ev Event) error {
	next, err := Reduce(c.state, ev)
	if err != nil {
		c.log.WithError(err).WithField("event", ev.name()).Debug("Event rejected")
		return err
	}

	if next.Screen != c.state.Screen {
		c.log.WithFields(logrus.Fields{
			"from":  c.state.Screen,
			"to":    next.Screen,
			"event": ev.name(),
		}).Info("Screen changed")
	}
	c.state = next
	c.publishLocked()
	return nil
}

func (c *Controller) rejectLocked(ev Event) error {
	_, err := Reduce(c.state, ev)
	if err == nil {
		err = fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev.name(), c.state.Screen)
	}
	return err
}

func (c *Controller) viewLocked() View {
	v := View{State: c.state}
	v.Detections = append([]types.Detection(nil), c.state.Detections...)
	if v.Detections == nil {
		v.Detections = []types.Detection{}
	}

	if c.session != nil {
		v.CameraReady = c.session.Status() == capture.Ready
		if guide, ok := c.session.Guide(); ok {
			v.Guide = &guide
		}
	}
	if c.preview != nil {
		v.SmartCrop = c.preview.SmartCrop()
	}
	return v
}

func (c *Controller) publishLocked() {
	v := c.viewLocked()
	for _, ch := range c.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

func (c *Controller) publishReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked()
}

func (c *Controller) forwardFrame(data []byte) {
	c.frameMu.RLock()
	sink := c.frameSink
	c.frameMu.RUnlock()
	if sink != nil {
		sink(data)
	}
}
