package faceclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"faceattend/internal/face"
)

// FaceQuality contains face quality metrics reported by the service.
type FaceQuality struct {
	Score     float64 `json:"score"`
	Blur      float64 `json:"blur"`
	IsFrontal bool    `json:"is_frontal"`
}

// EmbedResult contains the face embedding and detection confidence.
type EmbedResult struct {
	Embedding     face.Embedding
	Score         float64
	FacesDetected int
	Quality       *FaceQuality
}

// skipEmbedding derives a 16-dimensional embedding from a SHA-256 of image.
// Identical bytes match; different images land far beyond any sane tolerance.
func skipEmbedding(image []byte) face.Embedding {
	sum := sha256.Sum256(image)
	out := make(face.Embedding, len(sum)/2)
	for i := range out {
		out[i] = float64(binary.BigEndian.Uint16(sum[2*i:])) / math.MaxUint16
	}
	return out
}

// Client calls the face embedding microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // Face processing can take time
		},
	}
}

// Extract implements face.Extractor. A reply without an embedding maps to face.ErrNoFace.
func (c *Client) Extract(ctx context.Context, image []byte) (face.Embedding, error) {
	result, err := c.EmbedWithScore(ctx, image)
	if err != nil {
		return nil, err
	}
	fields := logrus.Fields{"score": result.Score, "faces": result.FacesDetected}
	if result.Quality != nil {
		fields["quality"] = result.Quality.Score
		fields["frontal"] = result.Quality.IsFrontal
	}
	log := logrus.WithFields(fields)
	if result.FacesDetected > 1 {
		log.Warn("several faces detected, using the most confident")
	} else {
		log.Debug("face embedded")
	}
	return result.Embedding, nil
}

// EmbedWithScore requests an embedding and returns full result including score.
func (c *Client) EmbedWithScore(ctx context.Context, image []byte) (*EmbedResult, error) {
	if c.Skip {
		return &EmbedResult{
			Embedding:     skipEmbedding(image),
			Score:         0.95,
			FacesDetected: 1,
			Quality:       &FaceQuality{Score: 0.85, Blur: 0.1, IsFrontal: true},
		}, nil
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("image bytes required")
	}

	body, err := json.Marshal(map[string]string{"image_base64": base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, face.ErrNoFace
	}
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Embedding     []float64    `json:"embedding"`
		Score         float64      `json:"score"`
		FacesDetected int          `json:"faces_detected"`
		Quality       *FaceQuality `json:"quality"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, face.ErrNoFace
	}

	return &EmbedResult{
		Embedding:     out.Embedding,
		Score:         out.Score,
		FacesDetected: out.FacesDetected,
		Quality:       out.Quality,
	}, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}
