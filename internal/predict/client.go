// Package predict exchanges landmark windows with the remote sign inference service.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/signlearn/internal/window"
)

// Client defaults.
const (
	DefaultEndpoint = "http://localhost:8000/predict"
	DefaultTimeout  = 5 * time.Second

	maxResponseBody = 1 << 20
	maxErrorText    = 256
)

// Config holds the inference client configuration.
type Config struct {
	// Endpoint is the full URL of the predict route.
	Endpoint string
	// Timeout bounds one exchange, including reading the response.
	Timeout time.Duration
	// WindowSize is the number of frames every submitted window must hold.
	// Zero disables the check.
	WindowSize int
	// HTTPClient overrides the transport. Its own Timeout is left untouched.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Result is a successful prediction.
type Result struct {
	Label      string   `json:"prediction,omitempty"`
	Labels     []string `json:"predictions,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Top returns the single label, or the first of Labels when only a sequence was returned.
func (r *Result) Top() string {
	if r == nil {
		return ""
	}
	if r.Label != "" || len(r.Labels) == 0 {
		return r.Label
	}
	return r.Labels[0]
}

// Client submits full windows to the inference endpoint. It never retries.
type Client struct {
	endpoint   string
	timeout    time.Duration
	windowSize int
	http       *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client, filling zero fields of cfg with defaults.
func NewClient(cfg Config) *Client {
	c := &Client{
		endpoint:   cfg.Endpoint,
		timeout:    cfg.Timeout,
		windowSize: cfg.WindowSize,
		http:       cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Endpoint returns the configured predict URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type predictRequest struct {
	Sequence window.Window `json:"sequence"`
}

type predictResponse struct {
	Prediction  *string         `json:"prediction"`
	Predictions []string        `json:"predictions"`
	Confidence  *float64        `json:"confidence"`
	Error       json.RawMessage `json:"error"`
}

// Predict posts w as {"sequence": [[...], ...]} and returns the endpoint's label(s).
// Every failure is an *Error matching ErrUnavailable, except a window of the
// wrong size, which fails with ErrWindowSize before any I/O.
func (c *Client) Predict(ctx context.Context, w window.Window) (*Result, error) {
	if c.windowSize > 0 && w.Len() != c.windowSize {
		return nil, fmt.Errorf("%w: got %d frames, want %d", ErrWindowSize, w.Len(), c.windowSize)
	}

	body, err := json.Marshal(predictRequest{Sequence: w})
	if err != nil {
		return nil, fmt.Errorf("marshal window: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Class: ClassTransport, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &Error{Class: ClassTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Class: ClassRejected, StatusCode: resp.StatusCode, Message: truncate(string(data))}
	}

	var payload predictResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &Error{Class: ClassMalformed, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	if msg, ok := serviceError(payload.Error); ok {
		return nil, &Error{Class: ClassRejected, StatusCode: resp.StatusCode, Message: msg}
	}

	if payload.Prediction == nil && len(payload.Predictions) == 0 {
		return nil, &Error{Class: ClassMalformed, StatusCode: resp.StatusCode, Message: "response has no prediction"}
	}

	result := &Result{
		Labels:     payload.Predictions,
		Confidence: payload.Confidence,
	}
	if payload.Prediction != nil {
		result.Label = *payload.Prediction
	}

	c.logger.Debug("prediction received",
		"label", result.Top(),
		"frames", w.Len(),
		"latency", time.Since(start))

	return result, nil
}

// serviceError reports whether raw carries an application error and returns its text.
func serviceError(raw json.RawMessage) (string, bool) {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false":
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", false
		}
		return truncate(s), true
	}
	return truncate(string(raw)), true
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorText {
		return s[:maxErrorText] + "..."
	}
	return s
}
