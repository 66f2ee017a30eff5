package faceclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/face"
)

func newFaceServer(t *testing.T, handler func(w http.ResponseWriter, image []byte)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/embed":
			var req struct {
				Image string `json:"image_base64"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			img, err := base64.StdEncoding.DecodeString(req.Image)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			handler(w, img)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtract(t *testing.T) {
	srv := newFaceServer(t, func(w http.ResponseWriter, image []byte) {
		assert.Equal(t, "pixels", string(image))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding":      []float64{0.5, -0.25},
			"score":          0.97,
			"faces_detected": 1,
		})
	})

	c := New(srv.URL, false)
	emb, err := c.Extract(context.Background(), []byte("pixels"))
	require.NoError(t, err)
	assert.Equal(t, face.Embedding{0.5, -0.25}, emb)
}

func TestExtractNoFace(t *testing.T) {
	empty := newFaceServer(t, func(w http.ResponseWriter, _ []byte) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{}, "faces_detected": 0})
	})
	unprocessable := newFaceServer(t, func(w http.ResponseWriter, _ []byte) {
		http.Error(w, "no face", http.StatusUnprocessableEntity)
	})

	for _, srv := range []*httptest.Server{empty, unprocessable} {
		_, err := New(srv.URL, false).Extract(context.Background(), []byte("blank"))
		assert.ErrorIs(t, err, face.ErrNoFace)
	}
}

func TestExtractServiceError(t *testing.T) {
	srv := newFaceServer(t, func(w http.ResponseWriter, _ []byte) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := New(srv.URL, false).Extract(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, face.ErrNoFace)
}

func TestSkipModeDerivesFromBytes(t *testing.T) {
	c := New("http://127.0.0.1:1", true)
	a, err := c.Extract(context.Background(), []byte("one"))
	require.NoError(t, err)
	again, err := c.Extract(context.Background(), []byte("one"))
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.Len(t, a, 16)

	b, err := c.Extract(context.Background(), []byte("two"))
	require.NoError(t, err)
	dist, err := face.Distance(a, b)
	require.NoError(t, err)
	assert.Greater(t, dist, 1.0, "different images must not match in skip mode")

	assert.NoError(t, c.Health(context.Background()))
}

func TestExtractWarnsOnSeveralFaces(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	srv := newFaceServer(t, func(w http.ResponseWriter, _ []byte) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding":      []float64{0.1, 0.2},
			"score":          0.9,
			"faces_detected": 2,
			"quality":        map[string]any{"score": 0.7, "is_frontal": false},
		})
	})
	_, err := New(srv.URL, false).Extract(context.Background(), []byte("group photo"))
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, 2, entry.Data["faces"])
	assert.Equal(t, 0.7, entry.Data["quality"])
}

func TestHealth(t *testing.T) {
	srv := newFaceServer(t, func(http.ResponseWriter, []byte) {})
	assert.NoError(t, New(srv.URL, false).Health(context.Background()))

	srv.Close()
	assert.Error(t, New(srv.URL, false).Health(context.Background()))
}
