// Package conditionnode implements the condition node.
package conditionnode

import (
	"context"
	"fmt"

	"github.com/dukex/loyalflow/pkg/condition"
	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
)

// Handler evaluates a condition tree and selects the true or false branch.
type Handler struct{}

// NewHandler creates a condition handler.
func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeCondition
}

func (h *Handler) Execute(_ context.Context, node *models.Node, sc protocol.StepContext) (protocol.Result, error) {
	config, ok := node.Config.(*models.ConditionConfig)
	if !ok {
		return protocol.Result{}, fmt.Errorf("unexpected config %T", node.Config)
	}

	matched, err := condition.Evaluate(config.Expression, sc.Variables())
	if err != nil {
		return protocol.Result{}, err
	}

	branch := models.BranchFalse
	if matched {
		branch = models.BranchTrue
	}

	result := protocol.Next(branch)
	result.Output = map[string]any{"result": matched}

	return result, nil
}

// Validate checks the expression tree.
func (h *Handler) Validate(node *models.Node) error {
	config, ok := node.Config.(*models.ConditionConfig)
	if !ok {
		return fmt.Errorf("unexpected config %T", node.Config)
	}

	return condition.Validate(config.Expression)
}
