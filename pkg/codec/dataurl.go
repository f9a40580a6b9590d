package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/menta2k/plastic-detector/pkg/types"
)

// ErrMalformedDataURL is returned when a string is not a base64 data URL
var ErrMalformedDataURL = errors.New("codec: malformed data URL")

// EncodeDataURL wraps raw bytes into a base64 data URL
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL extracts the MIME type and payload of a base64 data URL
func ParseDataURL(dataURL string) (string, []byte, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrMalformedDataURL)
	}

	meta, found := strings.CutPrefix(header, "data:")
	if !found {
		return "", nil, fmt.Errorf("%w: missing data: scheme", ErrMalformedDataURL)
	}

	mime, encoding, ok := strings.Cut(meta, ";")
	if !ok || mime == "" {
		return "", nil, fmt.Errorf("%w: missing MIME type", ErrMalformedDataURL)
	}
	if encoding != "base64" {
		return "", nil, fmt.Errorf("%w: unsupported encoding %q", ErrMalformedDataURL, encoding)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedDataURL, err)
	}

	return mime, data, nil
}

// ToBlob converts an encoded image into a binary blob tagged with its MIME type
func ToBlob(dataURL string) (types.Blob, error) {
	mime, data, err := ParseDataURL(dataURL)
	if err != nil {
		return types.Blob{}, err
	}
	return types.Blob{MIME: mime, Data: data}, nil
}
