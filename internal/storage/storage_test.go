package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/cloudinary"
)

func TestLocalCommit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	staged, err := store.Stage(ctx, "s1_1700000000.jpg", []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "s1_1700000000.jpg", staged.Handle())

	_, err = store.Open(ctx, staged.Handle())
	assert.ErrorIs(t, err, ErrNotFound, "staged image must not be readable before commit")

	require.NoError(t, staged.Commit(ctx))
	data, err := store.Open(ctx, staged.Handle())
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	require.NoError(t, store.Delete(ctx, staged.Handle()))
	_, err = store.Open(ctx, staged.Handle())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Delete(ctx, staged.Handle()))
}

func TestLocalConcurrentStagesOfOneName(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	a, err := store.Stage(ctx, "s1_1700000000.png", []byte("a"))
	require.NoError(t, err)
	b, err := store.Stage(ctx, "s1_1700000000.png", []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, a.Handle(), b.Handle())

	require.NoError(t, a.Commit(ctx))
	assert.ErrorIs(t, b.Commit(ctx), ErrExists)
	require.NoError(t, b.Discard(ctx))

	data, err := store.Open(ctx, a.Handle())
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data, "the first commit is kept")

	staged, err := os.ReadDir(filepath.Join(dir, stagingDir))
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestLocalDiscardLeavesNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocal(dir)
	require.NoError(t, err)

	staged, err := store.Stage(ctx, "s2_1700000000.png", []byte("png"))
	require.NoError(t, err)
	require.NoError(t, staged.Discard(ctx))
	require.NoError(t, staged.Discard(ctx))

	var files []string
	require.NoError(t, filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, p)
		}
		return err
	}))
	assert.Empty(t, files)
}

func TestLocalRejectsEscapingNames(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../x.jpg", "a/b.jpg", ".staging", ".hidden.png"} {
		_, err := store.Stage(ctx, name, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidName, name)
		_, err = store.Open(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

type fakeCloudinary struct {
	mu     sync.Mutex
	assets map[string][]byte
}

func (f *fakeCloudinary) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1_1/demo/image/upload", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		file, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(file)
		assert.NotEmpty(t, r.FormValue("signature"))
		assert.Equal(t, "false", r.FormValue("overwrite"))
		id := r.FormValue("folder") + "/" + r.FormValue("public_id")
		f.mu.Lock()
		_, existing := f.assets[id+".jpg"]
		if !existing {
			f.assets[id+".jpg"] = data
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"public_id": id, "format": "jpg", "bytes": len(data), "existing": existing})
	})
	mux.HandleFunc("/v1_1/demo/image/destroy", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		key := r.FormValue("public_id") + ".jpg"
		f.mu.Lock()
		_, ok := f.assets[key]
		delete(f.assets, key)
		f.mu.Unlock()
		result := "ok"
		if !ok {
			result = "not found"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"result": result})
	})
	mux.HandleFunc("/demo/image/upload/", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/demo/image/upload/")
		f.mu.Lock()
		data, ok := f.assets[key]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})
	return mux
}

func TestCloudinaryLifecycle(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCloudinary{assets: map[string][]byte{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := cloudinary.New("demo", "key", "secret", "faces")
	client.APIBase = srv.URL
	client.DeliveryBase = srv.URL
	store := NewCloudinary(client)

	staged, err := store.Stage(ctx, "s1_1700000000.jpg", []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "faces/s1_1700000000.jpg", staged.Handle())
	require.NoError(t, staged.Commit(ctx))

	data, err := store.Open(ctx, staged.Handle())
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	require.NoError(t, store.Delete(ctx, staged.Handle()))
	_, err = store.Open(ctx, staged.Handle())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Delete(ctx, staged.Handle()))
}

func TestCloudinaryDiscard(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCloudinary{assets: map[string][]byte{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := cloudinary.New("demo", "key", "secret", "faces")
	client.APIBase = srv.URL
	client.DeliveryBase = srv.URL
	store := NewCloudinary(client)

	staged, err := store.Stage(ctx, "s2_1700000000.jpg", []byte("blank"))
	require.NoError(t, err)
	require.NoError(t, staged.Discard(ctx))
	assert.Empty(t, fake.assets)
}

func TestCloudinaryNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCloudinary{assets: map[string][]byte{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := cloudinary.New("demo", "key", "secret", "faces")
	client.APIBase = srv.URL
	client.DeliveryBase = srv.URL
	store := NewCloudinary(client)

	first, err := store.Stage(ctx, "s1_1700000000.jpg", []byte("first"))
	require.NoError(t, err)
	require.NoError(t, first.Commit(ctx))

	second, err := store.Stage(ctx, "s1_1700000000.jpg", []byte("second"))
	require.NoError(t, err)
	assert.ErrorIs(t, second.Commit(ctx), ErrExists)
	require.NoError(t, second.Discard(ctx))

	data, err := store.Open(ctx, first.Handle())
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
}
