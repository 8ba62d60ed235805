package scene

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultRequestTimeout is the default HTTP timeout per attempt. Inference
	// over a large pair graph is slow, so this is generous.
	DefaultRequestTimeout = 10 * time.Minute

	// DefaultMaxRetries is the default number of attempts for transient
	// failures.
	DefaultMaxRetries = 3

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 2 * time.Second

	// maxResponseBytes caps a response body at 1 GB. Dense point maps for a
	// handful of views fit comfortably; anything bigger is a broken server.
	maxResponseBytes = 1 << 30
)

// ClientOption configures an InferenceClient.
type ClientOption func(*InferenceClient)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *InferenceClient) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *InferenceClient) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between
// attempts.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(c *InferenceClient) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *InferenceClient) {
		c.client = client
	}
}

// InferenceClient talks to a reconstruction serving endpoint over HTTP.
// It implements both Reconstructor and Aligner: the same service hosts the
// network and the global-alignment solver. Transient transport failures are
// retried with exponential backoff; malformed responses are not.
type InferenceClient struct {
	baseURL     string
	client      *http.Client
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
}

// NewInferenceClient creates a client for the service rooted at baseURL,
// e.g. "http://localhost:8090".
func NewInferenceClient(baseURL string, opts ...ClientOption) *InferenceClient {
	c := &InferenceClient{
		baseURL:     baseURL,
		timeout:     DefaultRequestTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: c.timeout}
	}
	return c
}

type inferRequest struct {
	Views   []View       `json:"views"`
	Pairs   []ViewPair   `json:"pairs"`
	Options InferOptions `json:"options"`
}

type inferResponse struct {
	Predictions []PairPrediction `json:"predictions"`
}

// Infer submits the views and pairing to the reconstruction endpoint and
// returns the raw per-pair predictions.
func (c *InferenceClient) Infer(ctx context.Context, views []View, pairs []ViewPair, opts InferOptions) ([]PairPrediction, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("inference service URL is empty")
	}

	var resp inferResponse
	if err := c.post(ctx, "/v1/infer", inferRequest{Views: views, Pairs: pairs, Options: opts}, &resp); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	if len(resp.Predictions) == 0 {
		return nil, fmt.Errorf("inference: service returned no predictions")
	}
	return resp.Predictions, nil
}

type alignRequest struct {
	Predictions []PairPrediction `json:"predictions"`
	Options     AlignOptions     `json:"options"`
}

// wireView is the per-view alignment payload on the wire. Points are a flat
// row-major array of length width*height*3; the mask is row-major booleans.
type wireView struct {
	View   View      `json:"view"`
	Pose   []float64 `json:"pose"`
	Focal  float64   `json:"focal"`
	Points []float64 `json:"points"`
	Mask   []bool    `json:"mask"`
}

type alignResponse struct {
	Views []wireView `json:"views"`
	Loss  float64    `json:"loss"`
}

// Align submits the raw predictions to the global-alignment endpoint and
// decodes the per-view results, validating that every point map and mask
// matches its view's dimensions.
func (c *InferenceClient) Align(ctx context.Context, preds []PairPrediction, opts AlignOptions) (*AlignmentResult, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("inference service URL is empty")
	}

	var resp alignResponse
	if err := c.post(ctx, "/v1/align", alignRequest{Predictions: preds, Options: opts}, &resp); err != nil {
		return nil, fmt.Errorf("alignment: %w", err)
	}

	result := &AlignmentResult{
		Views: make(map[int]ViewRecord, len(resp.Views)),
		Loss:  resp.Loss,
	}
	for _, wv := range resp.Views {
		rec, err := decodeWireView(wv)
		if err != nil {
			return nil, fmt.Errorf("alignment: %w", err)
		}
		if _, dup := result.Views[rec.View.ID]; dup {
			return nil, fmt.Errorf("alignment: duplicate view id %d", rec.View.ID)
		}
		result.Views[rec.View.ID] = rec
	}
	if len(result.Views) == 0 {
		return nil, fmt.Errorf("alignment: service returned no views")
	}
	return result, nil
}

// decodeWireView converts one wire view into a ViewRecord, enforcing the
// dimension invariant between view, point map, and mask.
func decodeWireView(wv wireView) (ViewRecord, error) {
	w, h := wv.View.Width, wv.View.Height
	if w <= 0 || h <= 0 {
		return ViewRecord{}, fmt.Errorf("view %d has invalid shape %dx%d", wv.View.ID, w, h)
	}
	if len(wv.Pose) != 16 {
		return ViewRecord{}, fmt.Errorf("view %d: pose has %d values, want 16", wv.View.ID, len(wv.Pose))
	}
	if len(wv.Points) != w*h*3 {
		return ViewRecord{}, fmt.Errorf("view %d: point map has %d values, want %d", wv.View.ID, len(wv.Points), w*h*3)
	}
	if len(wv.Mask) != w*h {
		return ViewRecord{}, fmt.Errorf("view %d: mask has %d values, want %d", wv.View.ID, len(wv.Mask), w*h)
	}

	var pose Pose
	copy(pose.M[:], wv.Pose)

	pm := NewPointMap(w, h)
	for i := range pm.Points {
		pm.Points[i] = r3.Vec{
			X: wv.Points[i*3],
			Y: wv.Points[i*3+1],
			Z: wv.Points[i*3+2],
		}
	}

	mask := &ConfidenceMask{Width: w, Height: h, Bits: wv.Mask}

	return ViewRecord{
		View:   wv.View,
		Pose:   pose,
		Focal:  wv.Focal,
		Points: pm,
		Mask:   mask,
	}, nil
}

// post performs a JSON POST with retries. Only transport-level failures and
// non-200 statuses are retried; a body that fails to decode is returned
// immediately since it will not improve on retry.
func (c *InferenceClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	url := c.baseURL + path

	var lastErr error
	for attempt := range c.maxRetries {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		respBody, err := c.doPost(ctx, url, payload)
		if err != nil {
			lastErr = err
			continue
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response from %s: %w", url, err)
		}
		return nil
	}

	return fmt.Errorf("all %d attempts failed: %w", c.maxRetries, lastErr)
}

// doPost performs a single HTTP POST and returns the response body bytes.
func (c *InferenceClient) doPost(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP POST %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP POST %s: status %d", url, resp.StatusCode)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return respBody, nil
}
