// Package annotate draws detection boxes and label tags over an image.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/plastic-detector/pkg/codec"
	"github.com/menta2k/plastic-detector/pkg/types"
)

// Style holds the fixed look of the overlay
type Style struct {
	Color        color.NRGBA
	TextColor    color.NRGBA
	LineWidth    int
	FontSize     float64
	TagHeight    int
	TagPadding   int
	TextInsetX   int
	TextBaseline int
}

// DefaultStyle is an emerald 4px box with a 35px tag above it
func DefaultStyle() Style {
	return Style{
		Color:        color.NRGBA{R: 0x10, G: 0xB9, B: 0x81, A: 0xFF},
		TextColor:    color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
		LineWidth:    4,
		FontSize:     20,
		TagHeight:    35,
		TagPadding:   20,
		TextInsetX:   10,
		TextBaseline: 10,
	}
}

// Overlay records what was drawn for one detection
type Overlay struct {
	Box  image.Rectangle
	Tag  image.Rectangle
	Text string
}

// Result is an annotated canvas at the source image's native size
type Result struct {
	Image    *image.NRGBA
	Overlays []Overlay
}

// Renderer draws detections onto images
type Renderer struct {
	style Style
	face  font.Face
}

// New creates a renderer using the default style
func New() (*Renderer, error) {
	return NewWithStyle(DefaultStyle())
}

// NewWithStyle creates a renderer with a custom style
func NewWithStyle(style Style) (*Renderer, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse label font: %w", err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    style.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create label face: %w", err)
	}

	return &Renderer{style: style, face: face}, nil
}

// Label formats the tag text for a detection
func Label(det types.Detection) string {
	return fmt.Sprintf("%s %d%%", det.ClassName, int(math.Round(det.Confidence*100)))
}

// Render decodes an encoded image and draws every detection over it
func (r *Renderer) Render(dataURL string, detections []types.Detection) (*Result, error) {
	img, err := codec.DecodeDataURL(dataURL)
	if err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}
	return r.RenderImage(img, detections), nil
}

// RenderImage draws detections in order, later ones on top of earlier ones
func (r *Renderer) RenderImage(img image.Image, detections []types.Detection) *Result {
	canvas := imaging.Clone(img)
	fill := image.NewUniform(r.style.Color)

	overlays := make([]Overlay, 0, len(detections))
	for _, det := range detections {
		box := image.Rect(
			roundInt(det.BoundingBox.X1), roundInt(det.BoundingBox.Y1),
			roundInt(det.BoundingBox.X2), roundInt(det.BoundingBox.Y2),
		)
		r.strokeRect(canvas, box, fill)

		text := Label(det)
		textWidth := font.MeasureString(r.face, text).Ceil()
		tag := image.Rect(
			box.Min.X, box.Min.Y-r.style.TagHeight,
			box.Min.X+textWidth+r.style.TagPadding, box.Min.Y,
		)
		// Tags near the top edge are clipped by the canvas bounds
		draw.Draw(canvas, tag.Intersect(canvas.Bounds()), fill, image.Point{}, draw.Over)

		d := &font.Drawer{
			Dst:  canvas,
			Src:  image.NewUniform(r.style.TextColor),
			Face: r.face,
			Dot:  fixed.P(box.Min.X+r.style.TextInsetX, box.Min.Y-r.style.TextBaseline),
		}
		d.DrawString(text)

		overlays = append(overlays, Overlay{Box: box, Tag: tag, Text: text})
	}

	return &Result{Image: canvas, Overlays: overlays}
}

// strokeRect draws a rectangle outline centered on the box edges
func (r *Renderer) strokeRect(dst draw.Image, box image.Rectangle, src image.Image) {
	half := r.style.LineWidth / 2
	outer := image.Rect(box.Min.X-half, box.Min.Y-half, box.Max.X+half, box.Max.Y+half)
	bounds := dst.Bounds()

	if box.Dx() <= r.style.LineWidth || box.Dy() <= r.style.LineWidth {
		draw.Draw(dst, outer.Intersect(bounds), src, image.Point{}, draw.Over)
		return
	}
	inner := image.Rect(box.Min.X+half, box.Min.Y+half, box.Max.X-half, box.Max.Y-half)

	edges := []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, inner.Min.Y),
		image.Rect(outer.Min.X, inner.Max.Y, outer.Max.X, outer.Max.Y),
		image.Rect(outer.Min.X, inner.Min.Y, inner.Min.X, inner.Max.Y),
		image.Rect(inner.Max.X, inner.Min.Y, outer.Max.X, inner.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(bounds), src, image.Point{}, draw.Over)
	}
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
