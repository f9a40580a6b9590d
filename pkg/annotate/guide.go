package annotate

import (
	"image"
	"image/color"
	"image/draw"
)

// DrawDashedRect outlines rect with dashes of the given length and stroke width
func DrawDashedRect(dst draw.Image, rect image.Rectangle, c color.Color, width, dash int) {
	if width < 1 {
		width = 1
	}
	if dash < 1 {
		dash = 1
	}
	src := image.NewUniform(c)
	bounds := dst.Bounds()

	paint := func(r image.Rectangle) {
		draw.Draw(dst, r.Intersect(bounds), src, image.Point{}, draw.Over)
	}

	for x := rect.Min.X; x < rect.Max.X; x += 2 * dash {
		end := min(x+dash, rect.Max.X)
		paint(image.Rect(x, rect.Min.Y, end, rect.Min.Y+width))
		paint(image.Rect(x, rect.Max.Y-width, end, rect.Max.Y))
	}
	for y := rect.Min.Y; y < rect.Max.Y; y += 2 * dash {
		end := min(y+dash, rect.Max.Y)
		paint(image.Rect(rect.Min.X, y, rect.Min.X+width, end))
		paint(image.Rect(rect.Max.X-width, y, rect.Max.X, end))
	}
}
