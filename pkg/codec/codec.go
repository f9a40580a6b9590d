// Package codec converts captured images between data URLs, blobs and
// decoded rasters, and implements the center crop applied before upload.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEWebP = "image/webp"

	// DefaultQuality is the JPEG quality used when re-encoding crops
	DefaultQuality = 90

	// DefaultCropPercentage keeps the center 70% of each axis
	DefaultCropPercentage = 70
)

var (
	// ErrDecode is returned when image bytes cannot be decoded
	ErrDecode = errors.New("codec: cannot decode image")

	// ErrInvalidPercentage is returned for crop percentages outside (0,100]
	ErrInvalidPercentage = errors.New("codec: crop percentage must be in (0,100]")
)

// Processor handles image encoding and cropping
type Processor struct {
	quality int
}

// NewProcessor creates a processor encoding JPEG at the given quality
func NewProcessor(quality int) *Processor {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Processor{quality: quality}
}

// Quality returns the JPEG quality used by the processor
func (p *Processor) Quality() int {
	return p.quality
}

// Decode decodes image bytes, honoring EXIF orientation, with WebP support
func Decode(data []byte) (image.Image, error) {
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("%w: unknown or unsupported format", ErrDecode)
}

// DecodeDataURL decodes the image carried by a data URL
func DecodeDataURL(dataURL string) (image.Image, error) {
	_, data, err := ParseDataURL(dataURL)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// LoadFile reads and decodes an image file
func LoadFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Encode encodes an image in the format named by mime
func (p *Processor) Encode(img image.Image, mime string) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch strings.ToLower(mime) {
	case MIMEPNG:
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed))
	case MIMEWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(p.quality)})
	case MIMEJPEG, "image/jpg":
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.quality))
	default:
		return nil, fmt.Errorf("codec: unsupported output format %q", mime)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", mime, err)
	}

	return buf.Bytes(), nil
}

// EncodeJPEG encodes an image as JPEG
func (p *Processor) EncodeJPEG(img image.Image) ([]byte, error) {
	return p.Encode(img, MIMEJPEG)
}

// EncodeDataURL encodes an image and wraps it in a data URL
func (p *Processor) EncodeDataURL(img image.Image, mime string) (string, error) {
	data, err := p.Encode(img, mime)
	if err != nil {
		return "", err
	}
	return EncodeDataURL(mime, data), nil
}

// CenterRect computes the centered rectangle covering percentage% of each axis
func CenterRect(width, height int, percentage float64) (image.Rectangle, error) {
	if percentage <= 0 || percentage > 100 || math.IsNaN(percentage) {
		return image.Rectangle{}, fmt.Errorf("%w: got %v", ErrInvalidPercentage, percentage)
	}

	cropWidth := int(math.Round(float64(width) * percentage / 100))
	cropHeight := int(math.Round(float64(height) * percentage / 100))

	x0 := (width - cropWidth) / 2
	y0 := (height - cropHeight) / 2

	return image.Rect(x0, y0, x0+cropWidth, y0+cropHeight), nil
}

// CropCenter crops a decoded image to its centered percentage region
func CropCenter(img image.Image, percentage float64) (image.Image, error) {
	bounds := img.Bounds()
	rect, err := CenterRect(bounds.Dx(), bounds.Dy(), percentage)
	if err != nil {
		return nil, err
	}

	rect = rect.Add(bounds.Min)
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop rectangle for %dx%d", bounds.Dx(), bounds.Dy())
	}

	return imaging.Crop(img, rect), nil
}

// CropCenterRegion crops an encoded image to its center region and
// re-encodes the result as a JPEG data URL
func (p *Processor) CropCenterRegion(dataURL string, percentage float64) (string, error) {
	if percentage <= 0 || percentage > 100 {
		return "", fmt.Errorf("%w: got %v", ErrInvalidPercentage, percentage)
	}

	img, err := DecodeDataURL(dataURL)
	if err != nil {
		return "", fmt.Errorf("crop source: %w", err)
	}

	cropped, err := CropCenter(img, percentage)
	if err != nil {
		return "", err
	}

	return p.EncodeDataURL(cropped, MIMEJPEG)
}
