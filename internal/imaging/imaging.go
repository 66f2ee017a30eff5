// Package imaging decodes uploaded and captured images and normalizes them
// to opaque 8-bit RGB before they reach the face extractor.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	// ErrUnsupportedFormat is returned for bytes no registered decoder understands
	// and for filenames with an extension outside the enrollment allow-list.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrMalformedPayload is returned for captures that are not valid base64.
	ErrMalformedPayload = errors.New("malformed image payload")
)

// enrollExtensions are accepted for reference images.
var enrollExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// EnrollExtension returns the lower-cased extension of filename when it is
// acceptable for a reference image.
func EnrollExtension(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := enrollExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}
	return ext, nil
}

// MimeType maps a stored reference image name to its content type.
func MimeType(name string) string {
	if strings.ToLower(filepath.Ext(name)) == ".png" {
		return "image/png"
	}
	return "image/jpeg"
}

// Decode parses image bytes with any registered decoder.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrUnsupportedFormat
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return img, format, nil
}

// Normalize converts img to opaque RGB anchored at the origin.
// Grayscale is replicated into all three channels and any alpha is dropped
// without compositing, so the color under a transparent pixel is kept.
func Normalize(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}

// NormalizeBytes decodes data, normalizes it and re-encodes it losslessly as PNG.
func NormalizeBytes(data []byte) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, Normalize(img)); err != nil {
		return nil, fmt.Errorf("encode normalized image: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDataURI decodes a base64 capture, stripping an optional
// "data:<mime>;base64," prefix first.
func DecodeDataURI(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		idx := strings.IndexByte(payload, ',')
		if idx < 0 {
			return nil, fmt.Errorf("%w: missing data separator", ErrMalformedPayload)
		}
		payload = payload[idx+1:]
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if raw, rawErr := base64.RawStdEncoding.DecodeString(payload); rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return data, nil
}
