// Package sessionop implements the session_op node: reads and writes of
// session-scoped variables.
package sessionop

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/loyalflow/pkg/condition"
	"github.com/dukex/loyalflow/pkg/expression"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/template"
	"github.com/dukex/loyalflow/pkg/variables"
)

var errMergeValue = errors.New("merge value must be an object")

// Handler applies session operations.
type Handler struct {
	expr *expression.ExprEngine
}

// NewHandler creates a session_op handler. A nil engine gets a private one.
func NewHandler(engine *expression.ExprEngine) *Handler {
	if engine == nil {
		engine = expression.NewExprEngine()
	}

	return &Handler{expr: engine}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeSessionOp
}

func (h *Handler) Execute(ctx context.Context, node *models.Node, sc protocol.StepContext) (protocol.Result, error) {
	config, ok := node.Config.(*models.SessionOpConfig)
	if !ok {
		return protocol.Result{}, fmt.Errorf("unexpected config %T", node.Config)
	}

	vars := sc.Variables()
	input := map[string]any{"operation": string(config.Operation)}

	if config.Key != "" {
		input["key"] = config.Key
	}

	if config.Condition != nil {
		pass, err := condition.Evaluate(*config.Condition, vars)
		if err != nil {
			return protocol.Result{Input: input}, fmt.Errorf("failed to evaluate gate condition: %w", err)
		}

		if !pass {
			return skipped(input, "condition not met"), nil
		}
	}

	result := protocol.Next("")
	result.Input = input
	result.Output = map[string]any{}

	switch config.Operation {
	case models.SessionOpGet, models.SessionOpExists:
		value, found := read(vars, config.Key)
		result.Output["exists"] = found

		if config.Operation == models.SessionOpGet {
			result.Output["value"] = value
		}

		if config.ResultVariable != "" {
			switch {
			case config.Operation == models.SessionOpExists:
				vars.Set(config.ResultVariable, found)
			case found:
				vars.Set(config.ResultVariable, value)
			default:
				vars.Delete(config.ResultVariable)
			}
		}
	case models.SessionOpSet:
		value, err := template.RenderValue(config.Value, template.StepData(sc))
		if err != nil {
			return result, fmt.Errorf("failed to render value: %w", err)
		}

		vars.Set(config.Key, value)
		result.Output["value"] = value
	case models.SessionOpDelete:
		vars.Delete(config.Key)
	case models.SessionOpIncrement, models.SessionOpDecrement:
		amount := 1.0
		if config.Amount != nil {
			amount = *config.Amount
		}

		if config.Operation == models.SessionOpDecrement {
			amount = -amount
		}

		current, found := vars.Get(config.Key)

		base := 0.0
		if found && current != nil {
			n, numeric := number(current)
			if !numeric {
				sc.Logger().WarnContext(ctx, "Skipping arithmetic on non-numeric session value",
					"node_id", node.ID, "key", config.Key)

				return skipped(input, "non-numeric value"), nil
			}

			base = n
		}

		vars.Set(config.Key, base+amount)
		result.Output["value"] = base + amount
	case models.SessionOpMerge:
		value, err := template.RenderValue(config.Value, template.StepData(sc))
		if err != nil {
			return result, fmt.Errorf("failed to render value: %w", err)
		}

		patch, isMap := value.(map[string]any)
		if !isMap {
			return result, errMergeValue
		}

		existing, _ := vars.Get(config.Key)

		base, isMap := existing.(map[string]any)
		if !isMap {
			base = map[string]any{}
		}

		merged := Merge(base, patch, config.DeepMerge)
		vars.Set(config.Key, merged)
		result.Output["value"] = merged
	case models.SessionOpClear:
		vars.Clear()
	case models.SessionOpCustom:
		value, err := h.expr.Evaluate(ctx, config.Expression, env(sc))
		if err != nil {
			return result, err
		}

		vars.Set(config.Key, value)
		result.Output["value"] = value
	default:
		return result, fmt.Errorf("unknown session operation %q", config.Operation)
	}

	return result, nil
}

// Validate checks the gate condition and custom expression.
func (h *Handler) Validate(node *models.Node) error {
	config, ok := node.Config.(*models.SessionOpConfig)
	if !ok {
		return fmt.Errorf("unexpected config %T", node.Config)
	}

	if config.Condition != nil {
		if err := condition.Validate(*config.Condition); err != nil {
			return err
		}
	}

	switch config.Operation {
	case models.SessionOpCustom:
		return h.expr.Compile(config.Expression)
	case models.SessionOpMerge:
		switch config.Value.(type) {
		case map[string]any, string:
			return nil
		default:
			return errMergeValue
		}
	default:
		return nil
	}
}

func skipped(input map[string]any, reason string) protocol.Result {
	result := protocol.Next("")
	result.Skipped = true
	result.Input = input
	result.Output = map[string]any{"skipped": true, "reason": reason}

	return result
}

func read(vars variables.View, key string) (any, bool) {
	if _, _, qualified := variables.SplitScope(key); qualified {
		return vars.Lookup(key)
	}

	return vars.Get(key)
}

// number accepts stored numeric values only; numeric strings are not numbers.
func number(v any) (float64, bool) {
	switch v.(type) {
	case string:
		return 0, false
	default:
		return condition.ToNumber(v)
	}
}

func env(sc protocol.StepContext) map[string]any {
	data := template.StepData(sc)

	out := map[string]any{}
	if merged, ok := data["vars"].(map[string]any); ok {
		for k, v := range merged {
			out[k] = v
		}
	}

	for _, scope := range models.ScopeFallbackChain {
		out[string(scope)] = data[string(scope)]
	}

	out["execution"] = data["execution"]

	return out
}

// Merge combines patch into base. A deep merge recurses into nested objects;
// a shallow merge replaces top-level keys.
func Merge(base, patch map[string]any, deep bool) map[string]any {
	out := models.CloneMap(base)
	if out == nil {
		out = map[string]any{}
	}

	for k, v := range patch {
		if deep {
			existing, baseIsMap := out[k].(map[string]any)
			incoming, patchIsMap := v.(map[string]any)

			if baseIsMap && patchIsMap {
				out[k] = Merge(existing, incoming, true)
				continue
			}
		}

		out[k] = v
	}

	return out
}
