// Package enrollment validates and stores a student's reference image.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"faceattend/internal/face"
	"faceattend/internal/identity"
	"faceattend/internal/imaging"
	"faceattend/internal/metrics"
	"faceattend/internal/storage"
)

// DefaultMaxBytes bounds reference image uploads.
const DefaultMaxBytes = 16 << 20

var (
	ErrNotEnrollable  = errors.New("only students can be enrolled")
	ErrNoFaceDetected = errors.New("no face detected in reference image")
	ErrImageTooLarge  = errors.New("image exceeds size limit")
)

// Enroller turns an uploaded image into a committed reference image.
type Enroller struct {
	extractor face.Extractor
	images    storage.Store
	maxBytes  int64
	now       func() time.Time
	metrics   *metrics.Metrics
}

// Option configures an Enroller.
type Option func(*Enroller)

// WithClock overrides the time used to name stored images.
func WithClock(now func() time.Time) Option {
	return func(e *Enroller) { e.now = now }
}

// New creates an enroller. maxBytes <= 0 selects DefaultMaxBytes.
func New(extractor face.Extractor, images storage.Store, maxBytes int64, m *metrics.Metrics, opts ...Option) *Enroller {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	e := &Enroller{extractor: extractor, images: images, maxBytes: maxBytes, now: time.Now, metrics: m}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FileName is the stored name of a reference image: <user_id>_<unix seconds><ext>.
func FileName(userID string, at time.Time, ext string) string {
	return fmt.Sprintf("%s_%d%s", userID, at.Unix(), ext)
}

// Enroll validates image and returns the committed storage handle. Nothing
// stays in the image store when an error is returned.
func (e *Enroller) Enroll(ctx context.Context, id identity.Identity, filename string, image []byte) (string, error) {
	handle, err := e.enroll(ctx, id, filename, image)
	switch {
	case err == nil:
		e.metrics.Enrollment("ok")
	case errors.Is(err, ErrNoFaceDetected):
		e.metrics.Enrollment("no_face")
	case errors.Is(err, imaging.ErrUnsupportedFormat), errors.Is(err, ErrImageTooLarge), errors.Is(err, ErrNotEnrollable):
		e.metrics.Enrollment("rejected")
	default:
		e.metrics.Enrollment("error")
	}
	return handle, err
}

func (e *Enroller) enroll(ctx context.Context, id identity.Identity, filename string, image []byte) (string, error) {
	if id.Role != identity.RoleStudent {
		return "", ErrNotEnrollable
	}
	ext, err := imaging.EnrollExtension(filename)
	if err != nil {
		return "", err
	}
	if int64(len(image)) > e.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(image))
	}
	normalized, err := imaging.NormalizeBytes(image)
	if err != nil {
		return "", err
	}

	staged, err := e.images.Stage(ctx, FileName(id.UserID, e.now(), ext), image)
	if err != nil {
		return "", err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": id.UserID, "image": staged.Handle()})

	_, err = e.extractor.Extract(ctx, normalized)
	if err != nil {
		if derr := staged.Discard(ctx); derr != nil {
			log.WithError(derr).Error("discard staged reference image")
		}
		if errors.Is(err, face.ErrNoFace) {
			return "", ErrNoFaceDetected
		}
		return "", fmt.Errorf("extract reference embedding: %w", err)
	}

	if err := staged.Commit(ctx); err != nil {
		if derr := staged.Discard(ctx); derr != nil {
			log.WithError(derr).Error("discard staged reference image")
		}
		return "", err
	}
	log.Info("reference image enrolled")
	return staged.Handle(), nil
}

// Remove deletes a committed reference image, used when the identity record
// could not be written after Enroll succeeded.
func (e *Enroller) Remove(ctx context.Context, handle string) error {
	return e.images.Delete(ctx, handle)
}
