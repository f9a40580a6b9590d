package client

import (
	"context"

	"github.com/menta2k/plastic-detector/pkg/types"
)

// Detector submits an image to a plastic classification backend.
//
// Detect propagates transport and backend errors to the caller.
// CheckHealth never fails: an unreachable backend is reported as nil.
type Detector interface {
	Detect(ctx context.Context, image types.Blob) (*types.PredictResponse, error)
	CheckHealth(ctx context.Context) *types.HealthStatus
}

// VisionClient asks a multimodal chat model one question about one image
type VisionClient interface {
	Query(ctx context.Context, prompt string, image types.Blob) (string, error)
	CheckHealth(ctx context.Context) *types.HealthStatus
}
