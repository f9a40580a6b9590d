package web

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/menta2k/plastic-detector/pkg/annotate"
	"github.com/menta2k/plastic-detector/pkg/app"
	"github.com/menta2k/plastic-detector/pkg/capture"
	"github.com/menta2k/plastic-detector/pkg/codec"
	"github.com/menta2k/plastic-detector/pkg/types"
)

// analyzeWaitLimit bounds how long ?wait=true holds the request open
const analyzeWaitLimit = 5 * time.Minute

type guideResponse struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type resultEntry struct {
	types.Detection
	Label   string             `json:"label"`
	Plastic *types.PlasticInfo `json:"plastic,omitempty"`
	Advice  string             `json:"advice,omitempty"`
}

// stateResponse is a view without the image payloads, which are served
// by the image endpoints
type stateResponse struct {
	Screen      app.Screen          `json:"screen"`
	Backend     *types.HealthStatus `json:"backend"`
	Alert       string              `json:"alert,omitempty"`
	CameraReady bool                `json:"camera_ready"`
	Guide       *guideResponse      `json:"guide,omitempty"`
	SmartCrop   bool                `json:"smart_crop"`
	HasCaptured bool                `json:"has_captured"`
	Results     []resultEntry       `json:"results"`
}

func newStateResponse(v app.View) stateResponse {
	resp := stateResponse{
		Screen:      v.Screen,
		Backend:     v.Backend,
		Alert:       v.Alert,
		CameraReady: v.CameraReady,
		SmartCrop:   v.SmartCrop,
		HasCaptured: v.Captured != "",
		Results:     make([]resultEntry, 0, len(v.Detections)),
	}
	if v.Guide != nil {
		resp.Guide = &guideResponse{
			X:      v.Guide.Min.X,
			Y:      v.Guide.Min.Y,
			Width:  v.Guide.Dx(),
			Height: v.Guide.Dy(),
		}
	}

	for _, det := range v.Detections {
		entry := resultEntry{Detection: det, Label: annotate.Label(det)}
		if info, ok := types.LookupPlastic(det.ClassName); ok {
			entry.Plastic = &info
			entry.Advice = info.Advice()
		}
		resp.Results = append(resp.Results, entry)
	}
	return resp
}

// fail maps controller errors to HTTP statuses
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrInvalidTransition), errors.Is(err, capture.ErrNotReady):
		status = fiber.StatusConflict
	case errors.Is(err, app.ErrBackendUnavailable):
		status = fiber.StatusServiceUnavailable
	}

	if status == fiber.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.Path()).Error("Request failed")
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) state(c *fiber.Ctx) error {
	return c.JSON(newStateResponse(s.ctrl.Snapshot()))
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(indexHTML)
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return s.state(c)
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if err := s.ctrl.Start(c.UserContext()); err != nil {
		return s.fail(c, err)
	}
	return s.state(c)
}

func (s *Server) handleCapture(c *fiber.Ctx) error {
	if err := s.ctrl.Capture(); err != nil {
		return s.fail(c, err)
	}
	return s.state(c)
}

func (s *Server) handleClose(c *fiber.Ctx) error {
	if err := s.ctrl.Close(); err != nil {
		return s.fail(c, err)
	}
	return s.state(c)
}

func (s *Server) handleRetake(c *fiber.Ctx) error {
	if err := s.ctrl.Retake(c.UserContext()); err != nil {
		return s.fail(c, err)
	}
	return s.state(c)
}

// AnalyzeRequest optionally overrides the preview toggle
type AnalyzeRequest struct {
	SmartCrop *bool `json:"smart_crop"`
}

// handleAnalyze starts an analysis. With ?wait=true it answers once the
// analysis left the loading screen, otherwise immediately with 202.
func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	var req AnalyzeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	if req.SmartCrop != nil {
		if err := s.ctrl.SetSmartCrop(*req.SmartCrop); err != nil {
			return s.fail(c, err)
		}
	}

	done, err := s.ctrl.Analyze(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}

	if !c.QueryBool("wait") {
		c.Status(fiber.StatusAccepted)
		return s.state(c)
	}

	select {
	case <-done:
	case <-time.After(analyzeWaitLimit):
		c.Status(fiber.StatusAccepted)
	}
	return s.state(c)
}

// SmartCropRequest sets the preview toggle
type SmartCropRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSmartCrop(c *fiber.Ctx) error {
	var req SmartCropRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := s.ctrl.SetSmartCrop(req.Enabled); err != nil {
		return s.fail(c, err)
	}
	return s.state(c)
}

func (s *Server) handleScanAgain(c *fiber.Ctx) error {
	if err := s.ctrl.ScanAgain(); err != nil {
		return s.fail(c, err)
	}
	return s.state(c)
}

func (s *Server) handleDismissAlert(c *fiber.Ctx) error {
	s.ctrl.DismissAlert()
	return s.state(c)
}

func (s *Server) handleCapturedImage(c *fiber.Ctx) error {
	v := s.ctrl.Snapshot()
	if v.Captured == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no captured image"})
	}

	mime, data, err := codec.ParseDataURL(v.Captured)
	if err != nil {
		return s.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, mime)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}

// handleResultsImage renders the detections over the submitted image.
// ?format=jpeg trades the lossless PNG for a smaller response.
func (s *Server) handleResultsImage(c *fiber.Ctx) error {
	v := s.ctrl.Snapshot()
	if v.Screen != app.ScreenResults {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no results"})
	}

	result, err := s.renderer.Render(v.Processed, v.Detections)
	if err != nil {
		return s.fail(c, err)
	}

	mime := codec.MIMEPNG
	if c.Query("format") == "jpeg" {
		mime = codec.MIMEJPEG
	}
	data, err := s.proc.Encode(result.Image, mime)
	if err != nil {
		return s.fail(c, err)
	}

	c.Set(fiber.HeaderContentType, mime)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}

func (s *Server) handlePlastics(c *fiber.Ctx) error {
	return c.JSON(types.PlasticCatalog())
}

func (s *Server) handleStateWS(conn *websocket.Conn) {
	first, err := json.Marshal(newStateResponse(s.ctrl.Snapshot()))
	if err != nil {
		s.log.WithError(err).Warn("Failed to encode state")
		return
	}
	s.stateHub.serve(conn, first)
}

func (s *Server) handleCameraWS(conn *websocket.Conn) {
	s.cameraHub.serve(conn, nil)
}
