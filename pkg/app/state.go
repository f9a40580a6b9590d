// Package app holds the screen state machine and the controller that drives
// capture, preview, analysis and results.
package app

import (
	"errors"
	"fmt"

	"github.com/menta2k/plastic-detector/pkg/types"
)

// Screen is the currently displayed view
type Screen string

const (
	ScreenHome    Screen = "home"
	ScreenCamera  Screen = "camera"
	ScreenPreview Screen = "preview"
	ScreenLoading Screen = "loading"
	ScreenResults Screen = "results"
)

// Blocking notices shown when an analysis does not reach results
const (
	AlertNoPlastic     = "No plastic detected. Please try again with better lighting."
	AlertAnalysisError = "Error analyzing image. Make sure your backend is running!"
	AlertCameraError   = "Could not start the camera. Check that it is connected and not in use."
)

var (
	// ErrInvalidTransition is returned for events the current screen does not accept
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrBackendUnavailable is returned when starting without a healthy backend
	ErrBackendUnavailable = errors.New("backend not connected")
)

// State is everything the screens render from
type State struct {
	Screen     Screen              `json:"screen"`
	Captured   string              `json:"captured_image,omitempty"`
	Processed  string              `json:"processed_image,omitempty"`
	Detections []types.Detection   `json:"detections"`
	Backend    *types.HealthStatus `json:"backend"`
	Alert      string              `json:"alert,omitempty"`
}

// Initial is the state before anything happened
func Initial() State {
	return State{Screen: ScreenHome, Detections: []types.Detection{}}
}

// Event is an input to the state machine
type Event interface {
	name() string
}

type (
	// Start opens the camera from home
	Start struct{}

	// Capture stores a snapshot and shows the preview
	Capture struct{ Image string }

	// Close leaves the camera without capturing
	Close struct{}

	// CameraFailed reports that the stream could not be acquired
	CameraFailed struct{ Err error }

	// Retake discards the snapshot and reopens the camera
	Retake struct{}

	// Analyze confirms the snapshot for submission
	Analyze struct{ SmartCrop bool }

	// Cropped records the image chosen for submission while loading
	Cropped struct{ Image string }

	// AnalysisSucceeded carries the backend's detections
	AnalysisSucceeded struct {
		Processed  string
		Detections []types.Detection
	}

	// AnalysisFailed carries the crop, encode or upload error
	AnalysisFailed struct{ Err error }

	// ScanAgain resets everything from results
	ScanAgain struct{}

	// HealthChecked stores a probe result; nil means unreachable
	HealthChecked struct{ Status *types.HealthStatus }

	// DismissAlert acknowledges the blocking notice
	DismissAlert struct{}
)

func (Start) name() string             { return "start" }
func (Capture) name() string           { return "capture" }
func (Close) name() string             { return "close" }
func (CameraFailed) name() string      { return "camera_failed" }
func (Retake) name() string            { return "retake" }
func (Analyze) name() string           { return "analyze" }
func (Cropped) name() string           { return "cropped" }
func (AnalysisSucceeded) name() string { return "analysis_succeeded" }
func (AnalysisFailed) name() string    { return "analysis_failed" }
func (ScanAgain) name() string         { return "scan_again" }
func (HealthChecked) name() string     { return "health_checked" }
func (DismissAlert) name() string      { return "dismiss_alert" }

// EventName returns the log name of an event
func EventName(ev Event) string {
	return ev.name()
}

// Reduce applies one event. The returned state is unchanged on error.
func Reduce(s State, ev Event) (State, error) {
	switch e := ev.(type) {
	case HealthChecked:
		s.Backend = e.Status
		return s, nil
	case DismissAlert:
		s.Alert = ""
		return s, nil
	}

	switch s.Screen {
	case ScreenHome:
		if _, ok := ev.(Start); ok {
			if s.Backend == nil {
				return s, ErrBackendUnavailable
			}
			s.Screen = ScreenCamera
			s.Alert = ""
			return s, nil
		}

	case ScreenCamera:
		switch e := ev.(type) {
		case Capture:
			if e.Image == "" {
				return s, fmt.Errorf("%w: empty capture", ErrInvalidTransition)
			}
			s.Captured = e.Image
			s.Screen = ScreenPreview
			return s, nil
		case Close:
			s.Screen = ScreenHome
			return s, nil
		case CameraFailed:
			s.Screen = ScreenHome
			s.Alert = AlertCameraError
			return s, nil
		}

	case ScreenPreview:
		switch ev.(type) {
		case Retake:
			s.Captured = ""
			s.Alert = ""
			s.Screen = ScreenCamera
			return s, nil
		case Analyze:
			s.Alert = ""
			s.Screen = ScreenLoading
			return s, nil
		}

	case ScreenLoading:
		switch e := ev.(type) {
		case Cropped:
			s.Processed = e.Image
			return s, nil
		case AnalysisSucceeded:
			if len(e.Detections) == 0 {
				return backToPreview(s, AlertNoPlastic), nil
			}
			if e.Processed != "" {
				s.Processed = e.Processed
			}
			s.Detections = e.Detections
			s.Screen = ScreenResults
			return s, nil
		case AnalysisFailed:
			return backToPreview(s, AlertAnalysisError), nil
		}

	case ScreenResults:
		if _, ok := ev.(ScanAgain); ok {
			s.Captured = ""
			s.Processed = ""
			s.Detections = []types.Detection{}
			s.Screen = ScreenHome
			return s, nil
		}
	}

	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev.name(), s.Screen)
}

// backToPreview keeps the captured image and drops the attempt
func backToPreview(s State, alert string) State {
	s.Processed = ""
	s.Detections = []types.Detection{}
	s.Alert = alert
	s.Screen = ScreenPreview
	return s
}
