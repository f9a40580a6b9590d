// Package detection turns a general vision chat model into a plastic
// detector: it prompts for resin-coded boxes and validates the answer.
package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/plastic-detector/pkg/client"
	"github.com/menta2k/plastic-detector/pkg/codec"
	"github.com/menta2k/plastic-detector/pkg/types"
)

// ErrNonJSON is returned when the model answers with prose
var ErrNonJSON = errors.New("model returned non-JSON response")

// DefaultPrompt asks for resin-coded boxes in pixel coordinates; it is
// formatted with the image width and height
const DefaultPrompt = `You are a plastic waste classifier.

The image is %d pixels wide and %d pixels high.
Find every plastic item and classify it by resin code.

Return JSON only:
{
  "detections": [
    {
      "class_name": "PETE",
      "confidence": 0.0,
      "bounding_box": {"x1": 0, "y1": 0, "x2": 0, "y2": 0}
    }
  ]
}

HARD RULES
- class_name must be one of: HDPE, LDPE, PETE, PP, PS, PVC.
- Coordinates are PIXELS, with x1 < x2 and y1 < y2, inside the image.
- confidence is between 0 and 1.
- If no plastic is visible return {"detections": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Detector implements client.Detector on top of a vision model
type Detector struct {
	client client.VisionClient
	log    logrus.FieldLogger
}

// NewDetector creates a new detector with a vision client
func NewDetector(c client.VisionClient, logger logrus.FieldLogger) *Detector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Detector{client: c, log: logger}
}

// Prompt returns the detection prompt for an image size
func Prompt(width, height int) string {
	return fmt.Sprintf(DefaultPrompt, width, height)
}

// Detect asks the model to locate plastics in the image
func (d *Detector) Detect(ctx context.Context, image types.Blob) (*types.PredictResponse, error) {
	img, err := codec.Decode(image.Data)
	if err != nil {
		return nil, err
	}
	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	answer, err := d.client.Query(ctx, Prompt(width, height), image)
	if err != nil {
		return nil, err
	}

	detections, err := Parse(answer, width, height)
	if err != nil {
		return nil, err
	}

	d.log.WithField("detections", len(detections)).Debug("Vision model answered")

	return &types.PredictResponse{
		Success:    true,
		Message:    fmt.Sprintf("Found %d plastic item(s)", len(detections)),
		Detections: detections,
		ImageSize:  &types.ImageSize{Width: width, Height: height},
	}, nil
}

// CheckHealth delegates to the vision client
func (d *Detector) CheckHealth(ctx context.Context) *types.HealthStatus {
	return d.client.CheckHealth(ctx)
}

// Parse decodes a model answer, keeping only resin-coded boxes inside the image
func Parse(raw string, width, height int) ([]types.Detection, error) {
	raw = Sanitize(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, ErrNonJSON
	}

	var payload struct {
		Detections []types.Detection `json:"detections"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	out := make([]types.Detection, 0, len(payload.Detections))
	for _, det := range payload.Detections {
		code, ok := types.ParseResinCode(det.ClassName)
		if !ok {
			continue
		}

		box, ok := normalizeBox(det.BoundingBox, width, height)
		if !ok {
			continue
		}

		out = append(out, types.Detection{
			ClassName:   string(code),
			ClassID:     classID(code),
			Confidence:  clamp(det.Confidence, 0, 1),
			BoundingBox: box,
		})
	}
	return out, nil
}

// normalizeBox clamps to the image, orders the corners and drops boxes
// thinner than a pixel
func normalizeBox(b types.BoundingBox, width, height int) (types.BoundingBox, bool) {
	b.X1 = clamp(b.X1, 0, float64(width))
	b.X2 = clamp(b.X2, 0, float64(width))
	b.Y1 = clamp(b.Y1, 0, float64(height))
	b.Y2 = clamp(b.Y2, 0, float64(height))
	if b.X2 < b.X1 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y2 < b.Y1 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	if b.X2-b.X1 < 1 || b.Y2-b.Y1 < 1 {
		return b, false
	}
	b.Width = b.X2 - b.X1
	b.Height = b.Y2 - b.Y1
	return b, true
}

func classID(code types.ResinCode) int {
	for i, c := range types.ResinCodes() {
		if c == code {
			return i
		}
	}
	return -1
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// Sanitize removes code fences, comments, and trailing commas from a model answer
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
