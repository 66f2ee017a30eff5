package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when Cloudinary has no asset for a public id.
var ErrNotFound = errors.New("cloudinary: asset not found")

// Client uploads, fetches and destroys images using the Cloudinary REST API.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	// APIBase and DeliveryBase default to the public Cloudinary endpoints.
	APIBase      string
	DeliveryBase string
	HTTP         *http.Client
	now          func() time.Time
}

// New creates a Cloudinary client.
func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName:    cloudName,
		APIKey:       apiKey,
		APISecret:    apiSecret,
		Folder:       folder,
		APIBase:      "https://api.cloudinary.com",
		DeliveryBase: "https://res.cloudinary.com",
		HTTP:         &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
}

// UploadResult holds the response from Cloudinary after a successful upload.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
	// Existing is set when the public id was taken and nothing was written.
	Existing bool `json:"existing"`
}

// UploadBytes uploads raw image bytes under publicID inside the configured
// folder. An existing asset with that id is left untouched.
func (c *Client) UploadBytes(ctx context.Context, data []byte, publicID, filename string) (*UploadResult, error) {
	params := c.baseParams()
	params["public_id"] = publicID
	params["overwrite"] = "false"
	if c.Folder != "" {
		params["folder"] = c.Folder
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create form file failed: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("cloudinary: write file failed: %w", err)
	}
	w.Close()

	body, err := c.post(ctx, "upload", w.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	return &result, nil
}

// Destroy deletes the asset with the given full public id.
func (c *Client) Destroy(ctx context.Context, publicID string) error {
	params := c.baseParams()
	params["public_id"] = publicID
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	w.Close()

	body, err := c.post(ctx, "destroy", w.FormDataContentType(), &buf)
	if err != nil {
		return err
	}
	var out struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	switch out.Result {
	case "ok":
		return nil
	case "not found":
		return ErrNotFound
	default:
		return fmt.Errorf("cloudinary: destroy returned %q", out.Result)
	}
}

// Fetch downloads a delivered asset, e.g. "faces/s1_1700000000.jpg".
func (c *Client) Fetch(ctx context.Context, asset string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/image/upload/%s", c.DeliveryBase, c.CloudName, asset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: read body failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloudinary: fetch failed (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) baseParams() map[string]string {
	now := c.now
	if now == nil {
		now = time.Now
	}
	return map[string]string{
		"timestamp": strconv.FormatInt(now().Unix(), 10),
		"api_key":   c.APIKey,
	}
}

func (c *Client) post(ctx context.Context, action, contentType string, body io.Reader) ([]byte, error) {
	url := fmt.Sprintf("%s/v1_1/%s/image/%s", c.APIBase, c.CloudName, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloudinary: %s failed (%d): %s", action, resp.StatusCode, string(out))
	}
	return out, nil
}

// sign computes the Cloudinary API signature from the given params.
// api_key, file and resource_type are never signed.
func (c *Client) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	payload := strings.Join(pairs, "&") + c.APISecret
	h := sha1.New()
	h.Write([]byte(payload))
	return fmt.Sprintf("%x", h.Sum(nil))
}
