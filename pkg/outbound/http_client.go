package outbound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/loyalflow/pkg/protocol"
)

const (
	DefaultTimeout = 30 * time.Second
	maxBodySize    = 10 << 20
)

// ErrServerError is returned once every attempt answered with a 5xx status.
var ErrServerError = errors.New("server error during HTTP request")

// RetryConfig controls how server errors and transport failures are retried.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// HTTPClient performs node HTTP calls, retrying transport failures and 5xx
// answers. Any other status is returned to the caller as is.
type HTTPClient struct {
	client *http.Client
	retry  RetryConfig
	logger *slog.Logger
}

type HTTPClientOption func(*HTTPClient)

func WithRetry(retry RetryConfig) HTTPClientOption {
	return func(c *HTTPClient) {
		if retry.Attempts < 1 {
			retry.Attempts = 1
		}

		c.retry = retry
	}
}

func WithTransport(transport http.RoundTripper) HTTPClientOption {
	return func(c *HTTPClient) {
		c.client.Transport = transport
	}
}

func NewHTTPClient(logger *slog.Logger, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		client: &http.Client{},
		retry:  RetryConfig{Attempts: 1},
		logger: logger.With("module", "http_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *HTTPClient) Do(ctx context.Context, req protocol.OutboundRequest) (*protocol.OutboundResponse, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var lastErr error

	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		if attempt > 1 {
			c.logger.InfoContext(ctx, fmt.Sprintf("HTTP retry attempt %d/%d", attempt, c.retry.Attempts), "url", req.URL)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retry.Delay):
			}
		}

		resp, err := c.attempt(ctx, req, timeout)
		if err != nil {
			lastErr = err

			continue
		}

		if resp.StatusCode >= 500 && attempt < c.retry.Attempts {
			lastErr = fmt.Errorf("status %d: %w", resp.StatusCode, ErrServerError)

			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
}

func (c *HTTPClient) attempt(ctx context.Context, req protocol.OutboundRequest, timeout time.Duration) (*protocol.OutboundResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	c.logger.DebugContext(ctx, "Sending HTTP request", "method", method, "url", req.URL)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(httpResp.Body, maxBodySize)); err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	headers := make(map[string]string, len(httpResp.Header))
	for key := range httpResp.Header {
		headers[key] = httpResp.Header.Get(key)
	}

	return &protocol.OutboundResponse{
		StatusCode: httpResp.StatusCode,
		Headers:    headers,
		Body:       buf.Bytes(),
	}, nil
}
