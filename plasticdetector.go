// Package plasticdetector identifies plastic items by resin code in a
// photograph and draws the detections over it.
//
// The camera workflow lives in pkg/app and is served by pkg/web. This
// package is the one-call entry point for images that are already on
// disk:
//
//	detector := inference.NewClient("http://localhost:8000")
//	scanner, err := plasticdetector.New(detector)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	scan, err := scanner.AnalyzeFile(ctx, "bottle.jpg", true)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, det := range scan.Detections {
//		fmt.Println(annotate.Label(det))
//	}
//	_, _, err = scanner.Save(scan, "./output")
//
// The pipeline mirrors the camera flow: the image is re-encoded as JPEG,
// optionally cropped to its center region, uploaded to the detector and
// the returned boxes are drawn in the processed image's coordinates.
package plasticdetector

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/plastic-detector/internal/utils"
	"github.com/menta2k/plastic-detector/pkg/annotate"
	"github.com/menta2k/plastic-detector/pkg/client"
	"github.com/menta2k/plastic-detector/pkg/codec"
	"github.com/menta2k/plastic-detector/pkg/types"
)

// Version of the plastic detector
const Version = "1.0.0"

// Scanner runs the crop, detect and annotate pipeline on single images
type Scanner struct {
	detector client.Detector
	proc     *codec.Processor
	renderer *annotate.Renderer
	crop     float64
	log      logrus.FieldLogger
}

// Option configures a Scanner
type Option func(*Scanner)

// WithCropPercentage sets the center region kept when smart crop is on
func WithCropPercentage(p float64) Option {
	return func(s *Scanner) { s.crop = p }
}

// WithQuality sets the JPEG quality of uploaded images
func WithQuality(q int) Option {
	return func(s *Scanner) { s.proc = codec.NewProcessor(q) }
}

// WithLogger routes pipeline logging through logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Scanner) { s.log = logger }
}

// Scan is the outcome of one analyzed image
type Scan struct {
	ID         string            `json:"id"`
	Source     string            `json:"source"`
	SmartCrop  bool              `json:"smart_crop"`
	Detections []types.Detection `json:"detections"`
	Message    string            `json:"message,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`

	// Processed is the data URL that was uploaded
	Processed string `json:"-"`
	// Annotated is Processed with the detections drawn over it
	Annotated *image.NRGBA `json:"-"`
}

// Found reports whether any plastic was detected
func (s *Scan) Found() bool {
	return len(s.Detections) > 0
}

// New creates a scanner submitting images to detector
func New(detector client.Detector, opts ...Option) (*Scanner, error) {
	if detector == nil {
		return nil, fmt.Errorf("plasticdetector: detector is required")
	}

	renderer, err := annotate.New()
	if err != nil {
		return nil, err
	}

	s := &Scanner{
		detector: detector,
		proc:     codec.NewProcessor(codec.DefaultQuality),
		renderer: renderer,
		crop:     codec.DefaultCropPercentage,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.crop <= 0 || s.crop > 100 {
		return nil, fmt.Errorf("plasticdetector: %w: got %v", codec.ErrInvalidPercentage, s.crop)
	}
	return s, nil
}

// AnalyzeFile loads the image at path and runs the full pipeline on it
func (s *Scanner) AnalyzeFile(ctx context.Context, path string, smartCrop bool) (*Scan, error) {
	img, err := codec.LoadFile(path)
	if err != nil {
		return nil, err
	}

	scan, err := s.AnalyzeImage(ctx, img, smartCrop)
	if err != nil {
		return nil, err
	}
	scan.Source = path
	return scan, nil
}

// AnalyzeImage runs the pipeline on a decoded image
func (s *Scanner) AnalyzeImage(ctx context.Context, img image.Image, smartCrop bool) (*Scan, error) {
	processed, err := s.proc.EncodeDataURL(img, codec.MIMEJPEG)
	if err != nil {
		return nil, err
	}
	if smartCrop {
		processed, err = s.proc.CropCenterRegion(processed, s.crop)
		if err != nil {
			return nil, fmt.Errorf("smart crop: %w", err)
		}
	}

	blob, err := codec.ToBlob(processed)
	if err != nil {
		return nil, err
	}

	resp, err := s.detector.Detect(ctx, blob)
	if err != nil {
		s.log.WithError(err).Error("Detection failed")
		return nil, err
	}

	var detections []types.Detection
	if resp.Success {
		detections = resp.Detections
	}

	scan, err := s.Annotate(processed, detections, smartCrop)
	if err != nil {
		return nil, err
	}
	scan.Message = resp.Message

	s.log.WithFields(logrus.Fields{
		"scan":       scan.ID,
		"detections": len(scan.Detections),
		"bytes":      blob.Size(),
	}).Info("Scan complete")
	return scan, nil
}

// Annotate draws detections over an already processed image and wraps
// the outcome in a new Scan
func (s *Scanner) Annotate(processed string, detections []types.Detection, smartCrop bool) (*Scan, error) {
	result, err := s.renderer.Render(processed, detections)
	if err != nil {
		return nil, err
	}

	return &Scan{
		ID:         uuid.NewString(),
		SmartCrop:  smartCrop,
		Detections: detections,
		CreatedAt:  time.Now(),
		Processed:  processed,
		Annotated:  result.Image,
	}, nil
}

// Save writes the annotated PNG and the detections JSON into dir and
// returns both paths
func (s *Scanner) Save(scan *Scan, dir string) (string, string, error) {
	if scan.Annotated == nil {
		return "", "", fmt.Errorf("plasticdetector: scan %s has no annotated image", scan.ID)
	}
	if err := utils.EnsureDir(dir); err != nil {
		return "", "", err
	}

	imgPath := utils.ResultFilename(dir, scan.ID, "_annotated", "png")
	data, err := s.proc.Encode(scan.Annotated, codec.MIMEPNG)
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(imgPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", imgPath, err)
	}

	jsonPath := utils.ResultFilename(dir, scan.ID, "", "json")
	report, err := json.MarshalIndent(scan, "", "  ")
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(jsonPath, report, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", jsonPath, err)
	}

	return imgPath, jsonPath, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
