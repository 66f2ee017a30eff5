// Package facetest provides a deterministic extractor and image helpers for tests.
package facetest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync/atomic"

	"faceattend/internal/face"
)

// Blank is the color the Extractor treats as "no face".
var Blank = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// PNG returns a small solid-color PNG.
func PNG(c color.Color) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(c)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG returns a small solid-color JPEG at maximum quality.
func JPEG(c color.Color) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(c), &jpeg.Options{Quality: 100}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// Extractor derives the embedding from the top-left pixel: each channel
// scaled to [0,1]. A Blank pixel yields face.ErrNoFace. Err, when set, is
// returned for every call.
type Extractor struct {
	Err   error
	calls atomic.Int64
}

func (e *Extractor) Extract(_ context.Context, data []byte) (face.Embedding, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	r, g, b, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(b>>8)
	if r8 == Blank.R && g8 == Blank.G && b8 == Blank.B {
		return nil, face.ErrNoFace
	}
	return face.Embedding{float64(r8) / 255, float64(g8) / 255, float64(b8) / 255}, nil
}

// Calls reports how many extractions were made.
func (e *Extractor) Calls() int64 { return e.calls.Load() }
