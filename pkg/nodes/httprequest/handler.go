// Package httprequest implements the http_request node.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/dukex/loyalflow/pkg/expression"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/template"
)

const (
	defaultTimeout  = 30 * time.Second
	maxCapturedBody = 4096
)

// ErrMalformedResponse indicates a response body that could not be mapped.
var ErrMalformedResponse = errors.New("malformed response")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

// Handler performs outbound HTTP calls through an HTTPClient and maps the
// response into session variables with jq queries.
type Handler struct {
	client protocol.HTTPClient
	jq     *expression.JQEngine
}

// NewHandler creates an http_request handler.
func NewHandler(client protocol.HTTPClient, jq *expression.JQEngine) (*Handler, error) {
	if client == nil {
		return nil, errors.New("http_request handler requires an HTTP client")
	}

	if jq == nil {
		jq = expression.NewJQEngine()
	}

	return &Handler{client: client, jq: jq}, nil
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeHTTPRequest
}

func (h *Handler) Execute(ctx context.Context, node *models.Node, sc protocol.StepContext) (protocol.Result, error) {
	config, ok := node.Config.(*models.HTTPRequestConfig)
	if !ok {
		return protocol.Result{}, fmt.Errorf("unexpected config %T", node.Config)
	}

	data := template.StepData(sc)

	url, err := template.RenderString(config.URL, data)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("failed to render URL template: %w", err)
	}

	body, err := template.RenderString(config.Body, data)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("failed to render body template: %w", err)
	}

	headers := make(map[string]string, len(config.Headers))
	for key, value := range config.Headers {
		rendered, err := template.RenderString(value, data)
		if err != nil {
			return protocol.Result{}, fmt.Errorf("failed to render header %s: %w", key, err)
		}

		headers[key] = rendered
	}

	timeout := defaultTimeout
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}

	result := protocol.Next("")
	result.Input = map[string]any{"method": config.Method, "url": url}
	result.HTTPReq = &models.HTTPCapture{Method: config.Method, URL: url, Headers: headers, Body: truncate(body)}

	resp, err := h.client.Do(ctx, protocol.OutboundRequest{
		Method:  config.Method,
		URL:     url,
		Headers: headers,
		Body:    body,
		Timeout: timeout,
	})
	if err != nil {
		return result, fmt.Errorf("request failed: %w", err)
	}

	result.HTTPResp = &models.HTTPCapture{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       truncate(string(resp.Body)),
	}
	result.Output = map[string]any{"status_code": resp.StatusCode}

	vars := sc.Variables()
	if config.StatusVariable != "" {
		vars.Set(config.StatusVariable, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, &StatusError{StatusCode: resp.StatusCode}
	}

	if len(config.ResponseMapping) == 0 {
		return result, nil
	}

	var doc any
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return result, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	names := make([]string, 0, len(config.ResponseMapping))
	for name := range config.ResponseMapping {
		names = append(names, name)
	}

	sort.Strings(names)

	mapped := make(map[string]any, len(names))

	for _, name := range names {
		value, err := h.jq.Evaluate(ctx, config.ResponseMapping[name], doc)
		if err != nil {
			return result, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}

		vars.Set(name, value)
		mapped[name] = value
	}

	result.Output["mapped"] = mapped

	return result, nil
}

// Validate compiles the response mapping queries.
func (h *Handler) Validate(node *models.Node) error {
	config, ok := node.Config.(*models.HTTPRequestConfig)
	if !ok {
		return fmt.Errorf("unexpected config %T", node.Config)
	}

	for name, query := range config.ResponseMapping {
		if err := h.jq.Compile(query); err != nil {
			return fmt.Errorf("response mapping %s: %w", name, err)
		}
	}

	return nil
}

func truncate(s string) string {
	if len(s) <= maxCapturedBody {
		return s
	}

	cut := maxCapturedBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}
