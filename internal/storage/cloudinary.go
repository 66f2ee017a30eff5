package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"faceattend/internal/cloudinary"
)

// Cloudinary keeps reference images in a Cloudinary folder. Handles take the
// form "<public id>.<format>" so the delivery URL and MIME type follow from them.
type Cloudinary struct {
	client *cloudinary.Client
}

// NewCloudinary wraps a configured client.
func NewCloudinary(client *cloudinary.Client) *Cloudinary {
	return &Cloudinary{client: client}
}

// Stage uploads immediately; Discard destroys the upload again. The handle is
// not recorded anywhere until enrollment commits, so readers never see it early.
// When the public id is already taken nothing is uploaded and Commit fails
// with ErrExists.
func (c *Cloudinary) Stage(ctx context.Context, name string, data []byte) (Staged, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	id := strings.TrimSuffix(name, path.Ext(name))
	res, err := c.client.UploadBytes(ctx, data, id, name)
	if err != nil {
		return nil, fmt.Errorf("stage image: %w", err)
	}
	return &cloudinaryStaged{
		store:    c,
		publicID: res.PublicID,
		handle:   res.PublicID + "." + res.Format,
		existing: res.Existing,
	}, nil
}

func (c *Cloudinary) Open(ctx context.Context, handle string) ([]byte, error) {
	data, err := c.client.Fetch(ctx, handle)
	if errors.Is(err, cloudinary.ErrNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

func (c *Cloudinary) Delete(ctx context.Context, handle string) error {
	err := c.client.Destroy(ctx, strings.TrimSuffix(handle, path.Ext(handle)))
	if errors.Is(err, cloudinary.ErrNotFound) {
		return nil
	}
	return err
}

type cloudinaryStaged struct {
	store    *Cloudinary
	publicID string
	handle   string
	existing bool
}

func (s *cloudinaryStaged) Handle() string { return s.handle }

func (s *cloudinaryStaged) Commit(context.Context) error {
	if s.existing {
		return fmt.Errorf("%w: %q", ErrExists, s.handle)
	}
	return nil
}

func (s *cloudinaryStaged) Discard(ctx context.Context) error {
	if s.existing {
		return nil
	}
	err := s.store.client.Destroy(ctx, s.publicID)
	if err != nil && !errors.Is(err, cloudinary.ErrNotFound) {
		return fmt.Errorf("discard image: %w", err)
	}
	return nil
}
