// Package imageutil validates uploaded images before any model call.
package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"net/http"

	"github.com/54b3r/toonify-go/internal/descriptor"
)

// MaxBytes is the largest accepted upload.
const MaxBytes = 10 << 20

// ErrUnsupported is returned for content that is not an accepted image type
// or does not decode.
var ErrUnsupported = errors.New("imageutil: unsupported image")

// accepted maps sniffed MIME types to whether a stdlib decoder can verify
// them. WebP is accepted on signature alone.
var accepted = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": false,
}

// Load validates data and returns it tagged with its MIME type. Empty input
// yields descriptor.ErrEmptyImage; anything else unusable yields
// ErrUnsupported.
func Load(data []byte) (descriptor.Image, error) {
	if len(data) == 0 {
		return descriptor.Image{}, descriptor.ErrEmptyImage
	}
	if len(data) > MaxBytes {
		return descriptor.Image{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrUnsupported, len(data), MaxBytes)
	}
	mime := http.DetectContentType(data)
	decodable, ok := accepted[mime]
	if !ok {
		return descriptor.Image{}, fmt.Errorf("%w: content type %s", ErrUnsupported, mime)
	}
	if decodable {
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return descriptor.Image{}, fmt.Errorf("%w: %s does not decode: %v", ErrUnsupported, mime, err)
		}
	}
	return descriptor.Image{Data: data, MIMEType: mime}, nil
}
