// Package web serves the plastic detector screens: a JSON API driving the
// controller, websocket pushes of state and camera frames, and one page.
package web

import (
	"context"
	_ "embed"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/plastic-detector/pkg/annotate"
	"github.com/menta2k/plastic-detector/pkg/app"
	"github.com/menta2k/plastic-detector/pkg/codec"
)

//go:embed static/index.html
var indexHTML []byte

// DefaultAddr is where the server listens when no address is configured
const DefaultAddr = ":3000"

// Server is the web surface of one controller
type Server struct {
	app      *fiber.App
	addr     string
	ctrl     *app.Controller
	renderer *annotate.Renderer
	proc     *codec.Processor
	log      logrus.FieldLogger

	stateHub  *Hub
	cameraHub *Hub
}

// NewServer wires routes for the controller
func NewServer(ctrl *app.Controller, renderer *annotate.Renderer, addr string, logger logrus.FieldLogger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		addr:      addr,
		ctrl:      ctrl,
		renderer:  renderer,
		proc:      codec.NewProcessor(codec.DefaultQuality),
		log:       logger,
		stateHub:  NewHub("state", logger),
		cameraHub: NewHub("camera", logger),
	}
	ctrl.SetFrameSink(s.cameraHub.BroadcastBinary)

	a := fiber.New(fiber.Config{
		AppName:               "Plastic Detector",
		DisableStartupMessage: true,
		BodyLimit:             16 * 1024 * 1024,
	})
	a.Use(cors.New())

	a.Get("/", s.handleIndex)

	api := a.Group("/api")
	api.Get("/state", s.handleState)
	api.Post("/start", s.handleStart)
	api.Post("/capture", s.handleCapture)
	api.Post("/close", s.handleClose)
	api.Post("/retake", s.handleRetake)
	api.Post("/analyze", s.handleAnalyze)
	api.Post("/preview/smart-crop", s.handleSmartCrop)
	api.Post("/scan-again", s.handleScanAgain)
	api.Post("/alert/dismiss", s.handleDismissAlert)
	api.Get("/image/captured", s.handleCapturedImage)
	api.Get("/image/results", s.handleResultsImage)
	api.Get("/plastics", s.handlePlastics)

	a.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	a.Get("/ws/state", websocket.New(s.handleStateWS))
	a.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = a
	return s
}

// App exposes the fiber application, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is done, then shuts the listener down
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.stateHub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.cameraHub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.forwardState(ctx)
		return nil
	})
	g.Go(func() error {
		s.log.WithField("addr", s.addr).Info("Web server listening")
		return s.app.Listen(s.addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		return s.app.Shutdown()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// forwardState pushes every controller view to state websocket clients
func (s *Server) forwardState(ctx context.Context) {
	views, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-views:
			if !ok {
				return
			}
			if err := s.stateHub.BroadcastJSON(newStateResponse(v)); err != nil {
				s.log.WithError(err).Warn("Failed to encode state")
			}
		}
	}
}
