// Package verification decides whether a live capture shows the enrolled person.
package verification

import (
	"context"
	"errors"
	"fmt"
	"math"

	"faceattend/internal/face"
	"faceattend/internal/identity"
	"faceattend/internal/imaging"
	"faceattend/internal/metrics"
	"faceattend/internal/storage"
)

// DefaultTolerance is the largest distance still counted as the same person.
const DefaultTolerance = 0.55

var (
	ErrInvalidTolerance = errors.New("tolerance must be a non-negative number")
	// ErrReferenceUnreadable means the stored reference image exists but cannot be decoded.
	ErrReferenceUnreadable = errors.New("reference image unreadable")
)

// Outcome classifies a verification attempt.
type Outcome int

const (
	NoMatch Outcome = iota
	Match
	NotEnrolled
)

func (o Outcome) String() string {
	switch o {
	case Match:
		return "match"
	case NotEnrolled:
		return "not_enrolled"
	default:
		return "no_match"
	}
}

// Decision is the result of one comparison. Distance is only meaningful when
// both embeddings were found; otherwise it is +Inf.
type Decision struct {
	Outcome  Outcome
	Distance float64
}

// Matched reports whether the capture was accepted.
func (d Decision) Matched() bool { return d.Outcome == Match }

// Engine compares captures against one reference embedding.
type Engine struct {
	extractor face.Extractor
	images    storage.Store
	tolerance float64
	metrics   *metrics.Metrics
}

// New builds an engine. images may be nil when only Verify is used.
func New(extractor face.Extractor, images storage.Store, tolerance float64, m *metrics.Metrics) (*Engine, error) {
	if math.IsNaN(tolerance) || math.IsInf(tolerance, 0) || tolerance < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTolerance, tolerance)
	}
	return &Engine{extractor: extractor, images: images, tolerance: tolerance, metrics: m}, nil
}

// Tolerance returns the configured threshold.
func (e *Engine) Tolerance() float64 { return e.tolerance }

// Verify compares captured image bytes with reference. A nil reference is a
// NoMatch whatever the capture holds, as is a capture without a face.
// Otherwise undecodable captures return an error
// wrapping imaging.ErrUnsupportedFormat; other extractor failures are returned
// as-is so callers can tell them from a rejection.
func (e *Engine) Verify(ctx context.Context, reference face.Embedding, captured []byte) (Decision, error) {
	d, err := e.verify(ctx, reference, captured)
	if err == nil {
		e.metrics.Verification(d.Outcome.String())
	}
	return d, err
}

func (e *Engine) verify(ctx context.Context, reference face.Embedding, captured []byte) (Decision, error) {
	reject := Decision{Outcome: NoMatch, Distance: math.Inf(1)}
	if reference == nil {
		return reject, nil
	}

	normalized, err := imaging.NormalizeBytes(captured)
	if err != nil {
		return reject, err
	}

	live, err := e.extractor.Extract(ctx, normalized)
	if errors.Is(err, face.ErrNoFace) {
		return reject, nil
	}
	if err != nil {
		return reject, fmt.Errorf("extract capture embedding: %w", err)
	}

	dist, err := face.Distance(reference, live)
	if err != nil {
		return reject, fmt.Errorf("compare embeddings: %w", err)
	}
	if dist <= e.tolerance {
		return Decision{Outcome: Match, Distance: dist}, nil
	}
	return Decision{Outcome: NoMatch, Distance: dist}, nil
}

// Reference recomputes the embedding of the identity's stored image.
// It returns (nil, false, nil) when the identity is not enrolled or the image
// is gone, and (nil, true, nil) when the stored image has no face.
func (e *Engine) Reference(ctx context.Context, id identity.Identity) (face.Embedding, bool, error) {
	if id.Role != identity.RoleStudent || !id.Enrolled() || e.images == nil {
		return nil, false, nil
	}
	data, err := e.images.Open(ctx, *id.FaceImage)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, fmt.Errorf("load reference image: %w", err)
	}

	normalized, err := imaging.NormalizeBytes(data)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrReferenceUnreadable, err)
	}
	emb, err := e.extractor.Extract(ctx, normalized)
	if errors.Is(err, face.ErrNoFace) {
		return nil, true, nil
	}
	if err != nil {
		return nil, true, fmt.Errorf("extract reference embedding: %w", err)
	}
	return emb, true, nil
}

// VerifyIdentity loads id's reference and verifies captured against it.
// Identities without a stored reference yield NotEnrolled.
func (e *Engine) VerifyIdentity(ctx context.Context, id identity.Identity, captured []byte) (Decision, error) {
	reference, enrolled, err := e.Reference(ctx, id)
	if err != nil {
		return Decision{Outcome: NoMatch, Distance: math.Inf(1)}, err
	}
	if !enrolled {
		e.metrics.Verification(NotEnrolled.String())
		return Decision{Outcome: NotEnrolled, Distance: math.Inf(1)}, nil
	}
	return e.Verify(ctx, reference, captured)
}
