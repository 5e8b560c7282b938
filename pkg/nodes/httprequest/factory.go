package httprequest

import (
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
)

// Factory creates http_request handlers.
type Factory struct{}

// NewFactory creates a new HTTP request handler factory.
func NewFactory() protocol.HandlerFactory {
	return &Factory{}
}

func (f *Factory) Create(deps protocol.Dependencies) (protocol.Handler, error) {
	return NewHandler(deps.HTTPClient, deps.JQ)
}

func (f *Factory) ID() models.NodeType {
	return models.NodeTypeHTTPRequest
}

func (f *Factory) Name() string {
	return "HTTP Request"
}

func (f *Factory) Description() string {
	return "Calls an external HTTP endpoint and maps fields of the JSON response into session variables"
}

// Schema returns the JSON schema for HTTP request node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "HTTP URL to request. Supports templating",
				"examples": []string{
					"https://api.example.com/members/{{.vars.member_id}}",
				},
			},
			"method": map[string]any{
				"type":    "string",
				"default": "GET",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Supports templating",
			},
			"timeout_seconds": map[string]any{
				"type":    "integer",
				"minimum": 0,
				"maximum": 300,
				"default": 30,
			},
			"response_mapping": map[string]any{
				"type":                 "object",
				"description":          "Session variable name to jq query over the JSON response",
				"additionalProperties": map[string]any{"type": "string"},
				"examples": []map[string]any{
					{"balance": ".data.balance"},
				},
			},
			"status_variable": map[string]any{"type": "string"},
		},
		"required": []string{"url", "method"},
	}
}
