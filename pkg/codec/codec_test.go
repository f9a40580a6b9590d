package codec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
)

// createTestImage paints the rectangle inner green and everything else red
func createTestImage(width, height int, inner image.Rectangle) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if image.Pt(x, y).In(inner) {
				img.Set(x, y, color.RGBA{0, 255, 0, 255})
			} else {
				img.Set(x, y, color.RGBA{255, 0, 0, 255})
			}
		}
	}
	return img
}

func isGreenish(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return g>>8 > 200 && r>>8 < 60 && b>>8 < 60
}

func TestCenterRect(t *testing.T) {
	tests := []struct {
		w, h int
		pct  float64
		want image.Rectangle
	}{
		{1000, 1000, 70, image.Rect(150, 150, 850, 850)},
		{1920, 1080, 70, image.Rect(288, 162, 1632, 918)},
		{400, 300, 100, image.Rect(0, 0, 400, 300)},
		{101, 51, 50, image.Rect(25, 12, 76, 38)},
	}

	for _, tt := range tests {
		got, err := CenterRect(tt.w, tt.h, tt.pct)
		if err != nil {
			t.Fatalf("CenterRect(%d, %d, %v) failed: %v", tt.w, tt.h, tt.pct, err)
		}
		if got != tt.want {
			t.Errorf("CenterRect(%d, %d, %v) = %v, want %v", tt.w, tt.h, tt.pct, got, tt.want)
		}
	}
}

func TestCenterRectInvalidPercentage(t *testing.T) {
	for _, pct := range []float64{0, -10, 100.5} {
		if _, err := CenterRect(100, 100, pct); !errors.Is(err, ErrInvalidPercentage) {
			t.Errorf("Expected ErrInvalidPercentage for %v, got %v", pct, err)
		}
	}
}

func TestCropCenterDimensions(t *testing.T) {
	for _, pct := range []float64{10, 33.3, 50, 70, 99, 100} {
		img := createTestImage(640, 480, image.Rectangle{})
		cropped, err := CropCenter(img, pct)
		if err != nil {
			t.Fatalf("CropCenter(%v) failed: %v", pct, err)
		}

		want, _ := CenterRect(640, 480, pct)
		if cropped.Bounds().Dx() != want.Dx() || cropped.Bounds().Dy() != want.Dy() {
			t.Errorf("CropCenter(%v): got %dx%d, want %dx%d",
				pct, cropped.Bounds().Dx(), cropped.Bounds().Dy(), want.Dx(), want.Dy())
		}
	}
}

func TestCropCenterRegionSamplesCenter(t *testing.T) {
	p := NewProcessor(DefaultQuality)
	inner := image.Rect(150, 150, 850, 850)
	src := createTestImage(1000, 1000, inner)

	srcURL, err := p.EncodeDataURL(src, MIMEPNG)
	if err != nil {
		t.Fatalf("EncodeDataURL failed: %v", err)
	}

	croppedURL, err := p.CropCenterRegion(srcURL, 70)
	if err != nil {
		t.Fatalf("CropCenterRegion failed: %v", err)
	}

	mime, data, err := ParseDataURL(croppedURL)
	if err != nil {
		t.Fatalf("ParseDataURL failed: %v", err)
	}
	if mime != MIMEJPEG {
		t.Errorf("Expected %s output, got %s", MIMEJPEG, mime)
	}

	cropped, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if cropped.Bounds().Dx() != 700 || cropped.Bounds().Dy() != 700 {
		t.Fatalf("Expected 700x700 crop, got %dx%d", cropped.Bounds().Dx(), cropped.Bounds().Dy())
	}

	// The crop is exactly the green square, so every sampled point is green.
	for _, pt := range []image.Point{{5, 5}, {694, 5}, {5, 694}, {694, 694}, {350, 350}} {
		if c := cropped.At(pt.X, pt.Y); !isGreenish(c) {
			t.Errorf("Pixel %v outside the source center region: %v", pt, c)
		}
	}
}

func TestCropCenterRegionDecodeFailure(t *testing.T) {
	p := NewProcessor(DefaultQuality)

	_, err := p.CropCenterRegion(EncodeDataURL(MIMEJPEG, []byte("not an image")), 70)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}

	_, err = p.CropCenterRegion("garbage", 70)
	if !errors.Is(err, ErrMalformedDataURL) {
		t.Errorf("Expected ErrMalformedDataURL, got %v", err)
	}
}

func TestEncodeFormats(t *testing.T) {
	p := NewProcessor(80)
	img := createTestImage(32, 24, image.Rect(8, 8, 24, 16))

	for _, mime := range []string{MIMEJPEG, MIMEPNG, MIMEWebP} {
		data, err := p.Encode(img, mime)
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", mime, err)
		}

		decoded, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", mime, err)
		}
		if decoded.Bounds().Dx() != 32 || decoded.Bounds().Dy() != 24 {
			t.Errorf("%s: got %dx%d", mime, decoded.Bounds().Dx(), decoded.Bounds().Dy())
		}
	}

	if _, err := p.Encode(img, "image/tiff"); err == nil {
		t.Error("Expected unsupported format error")
	}
}

func TestNewProcessorQuality(t *testing.T) {
	if q := NewProcessor(0).Quality(); q != DefaultQuality {
		t.Errorf("Expected default quality %d, got %d", DefaultQuality, q)
	}
	if q := NewProcessor(75).Quality(); q != 75 {
		t.Errorf("Expected quality 75, got %d", q)
	}
}

func TestToBlobRoundTrip(t *testing.T) {
	payloads := []struct {
		mime string
		data []byte
	}{
		{MIMEJPEG, []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}},
		{MIMEPNG, []byte("\x89PNG\r\n\x1a\n")},
		{"application/octet-stream", []byte{}},
		{MIMEWebP, bytes.Repeat([]byte{0, 1, 2, 253, 254, 255}, 100)},
	}

	for _, tt := range payloads {
		blob, err := ToBlob(EncodeDataURL(tt.mime, tt.data))
		if err != nil {
			t.Fatalf("ToBlob(%s) failed: %v", tt.mime, err)
		}
		if blob.MIME != tt.mime {
			t.Errorf("Expected MIME %s, got %s", tt.mime, blob.MIME)
		}
		if !bytes.Equal(blob.Data, tt.data) {
			t.Errorf("%s: payload mismatch", tt.mime)
		}
	}
}

func TestToBlobMalformed(t *testing.T) {
	inputs := []string{
		"",
		"no comma here",
		"image/jpeg;base64,AAAA",
		"data:;base64,AAAA",
		"data:image/jpeg,AAAA",
		"data:image/jpeg;base64,***",
	}

	for _, in := range inputs {
		if _, err := ToBlob(in); !errors.Is(err, ErrMalformedDataURL) {
			t.Errorf("ToBlob(%q): expected ErrMalformedDataURL, got %v", in, err)
		}
	}
}
