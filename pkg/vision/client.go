// pkg/vision/client.go

// Package vision talks to the element-detection and OCR service over HTTP.
// The service receives the raw screenshot and returns geometry; all
// interpretation of that geometry happens in pkg/observe.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/glimpse-cli/internal/config"
	"github.com/xkilldash9x/glimpse-cli/pkg/observe"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DetectResult carries the detected elements plus the service's annotated
// screenshot (index labels burned in) when it produced one.
type DetectResult struct {
	Elements     []observe.Detection
	AnnotatedPNG []byte
}

// Client is the vision service surface the agent depends on.
type Client interface {
	Detect(ctx context.Context, png []byte) (DetectResult, error)
	RecognizeText(ctx context.Context, png []byte) ([]observe.Text, error)
}

// HTTPClient implements Client against the OmniParser-style HTTP service.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *zap.Logger
}

// NewHTTPClient builds a client from the vision config. RateLimit is requests
// per second across both endpoints; zero disables limiting.
func NewHTTPClient(cfg config.VisionConfig, logger *zap.Logger) *HTTPClient {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: cfg.MaxRetries,
		logger:     logger.Named("vision"),
	}
}

// -- Wire structures --

type imageRequest struct {
	Image string `json:"image"`
}

type wireBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type detectResponse struct {
	Detections []struct {
		Kind       string  `json:"kind"`
		Box        wireBox `json:"box"`
		Confidence float64 `json:"confidence"`
	} `json:"detections"`
	AnnotatedImage string `json:"annotated_image,omitempty"`
}

type ocrResponse struct {
	Texts []struct {
		Box        wireBox `json:"box"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"texts"`
}

// Detect submits the screenshot for element detection.
func (c *HTTPClient) Detect(ctx context.Context, png []byte) (DetectResult, error) {
	var decoded detectResponse
	if err := c.post(ctx, "/detect", png, &decoded); err != nil {
		return DetectResult{}, err
	}

	result := DetectResult{Elements: make([]observe.Detection, 0, len(decoded.Detections))}
	for _, d := range decoded.Detections {
		result.Elements = append(result.Elements, observe.Detection{
			Kind:       d.Kind,
			Box:        observe.Box{X: d.Box.X, Y: d.Box.Y, W: d.Box.W, H: d.Box.H},
			Confidence: d.Confidence,
		})
	}
	if decoded.AnnotatedImage != "" {
		annotated, err := base64.StdEncoding.DecodeString(decoded.AnnotatedImage)
		if err != nil {
			return DetectResult{}, fmt.Errorf("decoding annotated screenshot: %w", err)
		}
		result.AnnotatedPNG = annotated
	}
	return result, nil
}

// RecognizeText submits the screenshot for OCR.
func (c *HTTPClient) RecognizeText(ctx context.Context, png []byte) ([]observe.Text, error) {
	var decoded ocrResponse
	if err := c.post(ctx, "/ocr", png, &decoded); err != nil {
		return nil, err
	}

	texts := make([]observe.Text, 0, len(decoded.Texts))
	for _, t := range decoded.Texts {
		texts = append(texts, observe.Text{
			Box:        observe.Box{X: t.Box.X, Y: t.Box.Y, W: t.Box.W, H: t.Box.H},
			Value:      t.Text,
			Confidence: t.Confidence,
		})
	}
	return texts, nil
}

// post sends the screenshot to one endpoint and decodes the reply into out.
// Transient failures (network errors, 5xx, 429) retry with exponential backoff
// up to maxRetries additional attempts; other statuses fail immediately.
func (c *HTTPClient) post(ctx context.Context, path string, png []byte, out any) error {
	body, err := json.Marshal(imageRequest{Image: base64.StdEncoding.EncodeToString(png)})
	if err != nil {
		return fmt.Errorf("marshaling vision request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("building vision request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("Vision request failed, retrying...", zap.String("path", path), zap.Error(err))
			return fmt.Errorf("executing vision request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading vision response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.statusError(path, resp.StatusCode, respBody)
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding vision response: %w", err))
		}

		c.logger.Debug("Vision request complete",
			zap.String("path", path),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx))
}

func (c *HTTPClient) statusError(path string, statusCode int, body []byte) error {
	err := fmt.Errorf("vision service %s: status %d, body: %s", path, statusCode, string(body))
	switch {
	case statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError:
		c.logger.Warn("Vision service returned transient error", zap.String("path", path), zap.Int("status", statusCode))
		return err
	default:
		c.logger.Error("Vision service rejected request", zap.String("path", path), zap.Int("status", statusCode))
		return backoff.Permanent(err)
	}
}
