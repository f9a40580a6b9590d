package detection

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/menta2k/plastic-detector/pkg/codec"
	"github.com/menta2k/plastic-detector/pkg/types"
)

type fakeVision struct {
	answer string
	err    error
	prompt string
}

func (f *fakeVision) Query(_ context.Context, prompt string, _ types.Blob) (string, error) {
	f.prompt = prompt
	return f.answer, f.err
}

func (f *fakeVision) CheckHealth(context.Context) *types.HealthStatus {
	return &types.HealthStatus{Status: "healthy", ModelLoaded: true}
}

func pngBlob(t *testing.T, width, height int) types.Blob {
	t.Helper()
	data, err := codec.NewProcessor(90).Encode(image.NewRGBA(image.Rect(0, 0, width, height)), codec.MIMEPNG)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return types.Blob{MIME: codec.MIMEPNG, Data: data}
}

func TestSanitize(t *testing.T) {
	raw := "```json\n{\n  // detections\n  \"detections\": [ /* one */ {\"class_name\": \"PP\",},\n ],\n}\n```"
	got := Sanitize(raw)

	var payload map[string]any
	if err := json.Unmarshal([]byte(got), &payload); err != nil {
		t.Fatalf("Sanitized JSON does not parse: %v\n%s", err, got)
	}
}

func TestParseFiltersAndClamps(t *testing.T) {
	raw := `{"detections": [
		{"class_name": "pete", "confidence": 0.9, "bounding_box": {"x1": -5, "y1": 10, "x2": 120, "y2": 60}},
		{"class_name": "glass", "confidence": 0.8, "bounding_box": {"x1": 1, "y1": 1, "x2": 20, "y2": 20}},
		{"class_name": "PS", "confidence": 1.4, "bounding_box": {"x1": 50, "y1": 40, "x2": 10, "y2": 5}},
		{"class_name": "PP", "confidence": 0.5, "bounding_box": {"x1": 30, "y1": 30, "x2": 30, "y2": 50}}
	]}`

	dets, err := Parse(raw, 100, 80)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("Expected 2 detections, got %d: %+v", len(dets), dets)
	}

	if dets[0].ClassName != "PETE" || dets[0].ClassID != 2 {
		t.Errorf("Unexpected first detection: %+v", dets[0])
	}
	if b := dets[0].BoundingBox; b.X1 != 0 || b.X2 != 100 || b.Width != 100 || b.Height != 50 {
		t.Errorf("Expected box clamped to image, got %+v", b)
	}

	if dets[1].Confidence != 1 {
		t.Errorf("Expected confidence clamped to 1, got %v", dets[1].Confidence)
	}
	if b := dets[1].BoundingBox; b.X1 != 10 || b.Y1 != 5 || b.X2 != 50 || b.Y2 != 40 {
		t.Errorf("Expected swapped corners, got %+v", b)
	}
}

func TestParseRejectsProse(t *testing.T) {
	if _, err := Parse("I see a bottle.", 10, 10); !errors.Is(err, ErrNonJSON) {
		t.Errorf("Expected ErrNonJSON, got %v", err)
	}
}

func TestDetectorPromptsWithImageSize(t *testing.T) {
	vision := &fakeVision{answer: `{"detections":[{"class_name":"HDPE","confidence":0.7,"bounding_box":{"x1":2,"y1":2,"x2":30,"y2":20}}]}`}
	d := NewDetector(vision, nil)

	resp, err := d.Detect(context.Background(), pngBlob(t, 40, 30))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !strings.Contains(vision.prompt, "40 pixels wide and 30 pixels high") {
		t.Errorf("Prompt must carry the image size, got %q", vision.prompt)
	}
	if !resp.Success || len(resp.Detections) != 1 || resp.Detections[0].ClassName != "HDPE" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if resp.ImageSize == nil || resp.ImageSize.Width != 40 || resp.ImageSize.Height != 30 {
		t.Errorf("Unexpected image size: %+v", resp.ImageSize)
	}
	if h := d.CheckHealth(context.Background()); h == nil || !h.ModelLoaded {
		t.Errorf("Expected delegated health, got %+v", h)
	}
}

func TestDetectorErrors(t *testing.T) {
	d := NewDetector(&fakeVision{}, nil)
	if _, err := d.Detect(context.Background(), types.Blob{MIME: codec.MIMEJPEG, Data: []byte("nope")}); !errors.Is(err, codec.ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}

	down := errors.New("connection refused")
	d = NewDetector(&fakeVision{err: down}, nil)
	if _, err := d.Detect(context.Background(), pngBlob(t, 4, 4)); !errors.Is(err, down) {
		t.Errorf("Expected client error, got %v", err)
	}
}
