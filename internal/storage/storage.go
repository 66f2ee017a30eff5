// Package storage keeps reference face images. Writes go through a staging
// step so an image becomes visible only once enrollment commits it.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a handle has no stored image.
var ErrNotFound = errors.New("image not found")

// ErrInvalidName is returned for names that could escape the store.
var ErrInvalidName = errors.New("invalid image name")

// ErrExists is returned by Commit when another image already holds the name.
var ErrExists = errors.New("image already exists")

// Store persists reference images addressed by opaque handles.
type Store interface {
	// Stage writes data provisionally. Nothing is readable under the returned
	// handle until Commit succeeds.
	Stage(ctx context.Context, name string, data []byte) (Staged, error)
	Open(ctx context.Context, handle string) ([]byte, error)
	Delete(ctx context.Context, handle string) error
}

// Staged is a provisional write awaiting Commit or Discard. Commit never
// replaces an existing image.
type Staged interface {
	Handle() string
	Commit(ctx context.Context) error
	Discard(ctx context.Context) error
}
