// Package template renders node text against execution variables.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/variables"
)

// Execution identifies the execution a template is rendered for.
type Execution struct {
	ID         string
	WorkflowID string
	SessionID  string
	UserID     string
	ChatID     string
}

// Data builds the template data for a variable view. Scopes are available as
// .session, .user, .project and .global; .vars merges them following the read
// precedence so that session values win.
func Data(view variables.View, exec Execution) map[string]any {
	scopes := view.Scopes()

	merged := map[string]any{}

	for i := len(models.ScopeFallbackChain) - 1; i >= 0; i-- {
		if values, ok := scopes[string(models.ScopeFallbackChain[i])].(map[string]any); ok {
			for k, v := range values {
				merged[k] = v
			}
		}
	}

	data := map[string]any{
		"vars": merged,
		"execution": map[string]any{
			"id":          exec.ID,
			"workflow_id": exec.WorkflowID,
			"session_id":  exec.SessionID,
			"user_id":     exec.UserID,
			"chat_id":     exec.ChatID,
		},
	}

	for name, values := range scopes {
		data[name] = values
	}

	return data
}

// NeedsTemplating reports whether the input contains template actions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// RenderString executes the template and returns the raw text.
func RenderString(templateStr string, data any) (string, error) {
	if !NeedsTemplating(templateStr) {
		return templateStr, nil
	}

	tmpl, err := template.
		New("node").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
			"default": func(fallback, value any) any {
				if value == nil || value == "" {
					return fallback
				}

				return value
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// Render executes the template and converts JSON, numeric and boolean output
// into typed values.
func Render(templateStr string, data any) (any, error) {
	result, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderValue renders strings and recurses into maps and slices.
func RenderValue(value any, data any) (any, error) {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			rendered, err := RenderValue(item, data)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}

		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			rendered, err := RenderValue(item, data)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}

// StepData builds the template data for a handler step.
func StepData(sc protocol.StepContext) map[string]any {
	return Data(sc.Variables(), Execution{
		ID:         sc.ExecutionID(),
		WorkflowID: sc.WorkflowID(),
		SessionID:  sc.SessionID(),
		UserID:     sc.UserID(),
		ChatID:     sc.ChatID(),
	})
}
