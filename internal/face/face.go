// Package face holds the embedding type and the extractor seam shared by
// enrollment and verification.
package face

import (
	"context"
	"errors"
	"math"
)

// ErrNoFace is returned by an Extractor when the image contains no usable face.
// It is an expected outcome, not a fault.
var ErrNoFace = errors.New("no face detected in image")

// ErrDimensionMismatch is returned when two embeddings cannot be compared.
var ErrDimensionMismatch = errors.New("embedding dimensions differ")

// Embedding is a fixed-length vector summarizing a face.
type Embedding []float64

// Extractor maps image bytes to a single face embedding.
// When several faces are present the extractor's own choice is accepted.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (Embedding, error)
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, image []byte) (Embedding, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, image []byte) (Embedding, error) {
	return f(ctx, image)
}

// Distance returns the Euclidean distance between two embeddings.
func Distance(a, b Embedding) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, ErrDimensionMismatch
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
