package types

import "strings"

// ResinCode is one of the plastic resin identification codes the model is trained on
type ResinCode string

const (
	HDPE ResinCode = "HDPE"
	LDPE ResinCode = "LDPE"
	PETE ResinCode = "PETE"
	PP   ResinCode = "PP"
	PS   ResinCode = "PS"
	PVC  ResinCode = "PVC"
)

// ResinCodes lists the closed set of labels in model class-id order
func ResinCodes() []ResinCode {
	return []ResinCode{HDPE, LDPE, PETE, PP, PS, PVC}
}

// ParseResinCode normalizes a label and reports whether it belongs to the closed set
func ParseResinCode(label string) (ResinCode, bool) {
	code := ResinCode(strings.ToUpper(strings.TrimSpace(label)))
	for _, c := range ResinCodes() {
		if c == code {
			return code, true
		}
	}
	return code, false
}

// BoundingBox is an axis-aligned box in source image pixel coordinates
type BoundingBox struct {
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// Detection is one recognized plastic item
type Detection struct {
	ClassName   string      `json:"class_name"`
	ClassID     int         `json:"class_id,omitempty"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

// ImageSize is the size of the image as seen by the backend
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PredictResponse is the body returned by the prediction endpoint
type PredictResponse struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Detections []Detection `json:"detections"`
	ImageSize  *ImageSize  `json:"image_size,omitempty"`
}

// HealthStatus is the body returned by the health endpoint
type HealthStatus struct {
	Status      string `json:"status,omitempty"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelPath   string `json:"model_path,omitempty"`
}

// Blob is a binary payload tagged with its MIME type
type Blob struct {
	MIME string
	Data []byte
}

// Size returns the payload length in bytes
func (b Blob) Size() int {
	return len(b.Data)
}
