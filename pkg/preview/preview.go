// Package preview shows a captured still and lets the user decide how it is
// submitted.
package preview

import "sync"

// Preview holds one captured image read-only plus the smart-crop toggle
type Preview struct {
	image     string
	onAnalyze func(smartCrop bool)
	onRetake  func()

	mu        sync.Mutex
	smartCrop bool
}

// New creates a preview with smart crop enabled
func New(image string, onAnalyze func(smartCrop bool), onRetake func()) *Preview {
	return &Preview{
		image:     image,
		onAnalyze: onAnalyze,
		onRetake:  onRetake,
		smartCrop: true,
	}
}

// Image returns the captured image
func (p *Preview) Image() string {
	return p.image
}

// SmartCrop reports the toggle state
func (p *Preview) SmartCrop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.smartCrop
}

// SetSmartCrop changes the toggle
func (p *Preview) SetSmartCrop(on bool) {
	p.mu.Lock()
	p.smartCrop = on
	p.mu.Unlock()
}

// Analyze confirms the image with the current toggle
func (p *Preview) Analyze() {
	crop := p.SmartCrop()
	if p.onAnalyze != nil {
		p.onAnalyze(crop)
	}
}

// Retake discards the image
func (p *Preview) Retake() {
	if p.onRetake != nil {
		p.onRetake()
	}
}
