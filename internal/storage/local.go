package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const stagingDir = ".staging"

// Local stores images as files in a directory.
type Local struct {
	dir string
}

// NewLocal creates the directory layout if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(filepath.Join(dir, stagingDir), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

func validName(name string) bool {
	return name != "" && name == filepath.Base(name) && !strings.HasPrefix(name, ".")
}

// Stage writes data into the staging area.
func (l *Local) Stage(_ context.Context, name string, data []byte) (Staged, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	f, err := os.CreateTemp(filepath.Join(l.dir, stagingDir), name+".*")
	if err != nil {
		return nil, fmt.Errorf("stage image: %w", err)
	}
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("stage image: %w", err)
	}
	return &localStaged{store: l, name: name, tmp: f.Name()}, nil
}

// Open reads a committed image.
func (l *Local) Open(_ context.Context, handle string) ([]byte, error) {
	if !validName(handle) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, handle)
	}
	data, err := os.ReadFile(filepath.Join(l.dir, handle))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

// Delete removes a committed image. Missing files are not an error.
func (l *Local) Delete(_ context.Context, handle string) error {
	if !validName(handle) {
		return fmt.Errorf("%w: %q", ErrInvalidName, handle)
	}
	if err := os.Remove(filepath.Join(l.dir, handle)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

type localStaged struct {
	store *Local
	name  string
	tmp   string
}

func (s *localStaged) Handle() string { return s.name }

// Commit publishes the staged file with a hard link, which fails instead of
// replacing an image already stored under the same name.
func (s *localStaged) Commit(context.Context) error {
	err := os.Link(s.tmp, filepath.Join(s.store.dir, s.name))
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %q", ErrExists, s.name)
	}
	if err != nil {
		return fmt.Errorf("commit image: %w", err)
	}
	_ = os.Remove(s.tmp)
	return nil
}

func (s *localStaged) Discard(context.Context) error {
	if err := os.Remove(s.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard image: %w", err)
	}
	return nil
}
