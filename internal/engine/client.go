package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"pureskin-gateway/internal/config"

	"go.uber.org/zap"
)

// Normalized failure taxonomy. Callers never see transport-level detail;
// every engine call fails with exactly one of these.
var (
	// ErrUnavailable covers connection failures and engine-side internal errors.
	ErrUnavailable = errors.New("analysis engine unavailable")

	// ErrBusy means the engine reported temporary overload (503/429).
	ErrBusy = errors.New("analysis engine busy")

	// ErrTimeout means the fixed request deadline elapsed. The transport is
	// closed at the deadline and no retry is attempted here.
	ErrTimeout = errors.New("analysis engine timed out")

	// ErrPayloadTooLarge is returned before any upstream call when an image
	// exceeds the configured upload limit.
	ErrPayloadTooLarge = errors.New("image payload exceeds upload limit")
)

// RejectedError means the engine rejected the request as bad input. The
// engine's own message is carried verbatim for user display.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("analysis engine rejected request (%d): %s", e.StatusCode, e.Message)
}

// Client talks to the external PureSkin analysis engine over HTTP. All four
// analysis operations share one request core so transport handling, the
// request deadline, and failure normalization live in exactly one place.
type Client struct {
	baseURL        string
	timeout        time.Duration
	maxUploadBytes int64
	httpClient     *http.Client
	logger         *zap.Logger
}

// NewClient creates an engine client from configuration.
func NewClient(cfg config.EngineConfig, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 * 1024 * 1024
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		timeout:        timeout,
		maxUploadBytes: maxUpload,
		httpClient: &http.Client{
			// Backstop; per-request contexts carry the same deadline.
			Timeout: timeout,
		},
		logger: logger,
	}
}

// MaxUploadBytes returns the configured image upload limit.
func (c *Client) MaxUploadBytes() int64 {
	return c.maxUploadBytes
}

// FindDupes asks the engine for cheaper near-identical products.
func (c *Client) FindDupes(ctx context.Context, req DupeRequest) (*DupeResponse, error) {
	if req.TopN <= 0 {
		req.TopN = 20
	}

	result := &DupeResponse{}
	if err := c.postJSON(ctx, "/analyze/find_dupes", req, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AnalyzeReview runs sentiment analysis on a review text.
func (c *Client) AnalyzeReview(ctx context.Context, req ReviewRequest) (*ReviewResult, error) {
	if req.SkinType == "" {
		req.SkinType = "all"
	}

	result := &ReviewResult{}
	if err := c.postJSON(ctx, "/analyze/review", req, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AnalyzeQuality fetches the engine's full product quality report. The
// report structure belongs to the engine and is relayed untouched.
func (c *Client) AnalyzeQuality(ctx context.Context, req QualityRequest) (RawResult, error) {
	var result json.RawMessage
	if err := c.postJSON(ctx, "/analyze/quality", req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ScanImage forwards an image to the engine's OCR scan endpoint as a
// multipart body. Oversized payloads fail locally with ErrPayloadTooLarge;
// the engine is never contacted for them.
func (c *Client) ScanImage(ctx context.Context, payload []byte, filename string) (RawResult, error) {
	if int64(len(payload)) > c.maxUploadBytes {
		return nil, ErrPayloadTooLarge
	}
	if filename == "" {
		filename = "upload.jpg"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to write multipart payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze/scan", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result json.RawMessage
	if err := c.execute(req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Recommend fetches product recommendations for a skin type.
func (c *Client) Recommend(ctx context.Context, req RecommendRequest) (RawResult, error) {
	var result json.RawMessage
	if err := c.postJSON(ctx, "/analyze/recommend", req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Filters fetches the category/brand/type lists the engine has indexed.
func (c *Client) Filters(ctx context.Context) (RawResult, error) {
	var result json.RawMessage
	if err := c.getJSON(ctx, "/analyze/filters", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Health checks the engine's own health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{}
	if err := c.getJSON(ctx, "/health", status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode engine request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.execute(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create engine request: %w", err)
	}

	return c.execute(req, out)
}

// execute sends the request and normalizes every failure mode into the
// client's error taxonomy.
func (c *Client) execute(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.normalizeTransportError(req, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.normalizeStatusError(req, resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Error("Engine returned malformed JSON",
			zap.String("path", req.URL.Path),
			zap.Error(err),
		)
		return ErrUnavailable
	}

	return nil
}

func (c *Client) normalizeTransportError(req *http.Request, err error) error {
	var netErr net.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())

	if timedOut {
		c.logger.Warn("Engine call timed out",
			zap.String("path", req.URL.Path),
			zap.Duration("timeout", c.timeout),
		)
		return ErrTimeout
	}

	c.logger.Warn("Engine unreachable",
		zap.String("path", req.URL.Path),
		zap.Error(err),
	)
	return ErrUnavailable
}

func (c *Client) normalizeStatusError(req *http.Request, resp *http.Response) error {
	detail := readDetail(resp.Body)

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("Engine reported overload",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail),
		)
		return ErrBusy
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		if detail == "" {
			detail = "request rejected by analysis engine"
		}
		return &RejectedError{StatusCode: resp.StatusCode, Message: detail}
	default:
		c.logger.Error("Engine returned server error",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail),
		)
		return ErrUnavailable
	}
}

// readDetail extracts the FastAPI-style {"detail": "..."} message, if any.
func readDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil {
		return ""
	}

	var envelope struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ""
	}
	return envelope.Detail
}
