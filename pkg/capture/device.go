package capture

import (
	"context"
	"image"
)

// Facing modes understood by devices that can pick a camera
const (
	FacingEnvironment = "environment"
	FacingUser        = "user"
)

// Constraints is what the caller asks of the camera
type Constraints struct {
	FacingMode string `json:"facing_mode" yaml:"facing_mode"`
	Width      int    `json:"width" yaml:"width"`
	Height     int    `json:"height" yaml:"height"`
}

// DefaultConstraints prefers the rear camera at 1080p
func DefaultConstraints() Constraints {
	return Constraints{
		FacingMode: FacingEnvironment,
		Width:      1920,
		Height:     1080,
	}
}

// Stream is an open camera feed. Read blocks until the next frame; Close
// may be called while a Read is pending and makes it return.
type Stream interface {
	Read() (image.Image, error)
	Close() error
}

// Device opens camera streams
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}
