package imageutil

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/54b3r/toonify-go/internal/descriptor"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestLoad(t *testing.T) {
	t.Parallel()

	valid := pngBytes(t)
	truncated := valid[:20]
	webp := append([]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), make([]byte, 16)...)

	tests := []struct {
		name     string
		in       []byte
		wantMIME string
		wantErr  error
	}{
		{name: "png", in: valid, wantMIME: "image/png"},
		{name: "webp signature", in: webp, wantMIME: "image/webp"},
		{name: "empty", in: nil, wantErr: descriptor.ErrEmptyImage},
		{name: "text", in: []byte("hello, this is not an image"), wantErr: ErrUnsupported},
		{name: "truncated png", in: truncated, wantErr: ErrUnsupported},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Load(tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Load() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.MIMEType != tc.wantMIME {
				t.Errorf("MIMEType = %q, want %q", got.MIMEType, tc.wantMIME)
			}
			if len(got.Data) != len(tc.in) {
				t.Errorf("Data length = %d, want %d", len(got.Data), len(tc.in))
			}
		})
	}
}
