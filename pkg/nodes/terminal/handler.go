// Package terminal implements the terminal node.
package terminal

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
)

// Handler ends the execution.
type Handler struct{}

// NewHandler creates a terminal handler.
func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeTerminal
}

func (h *Handler) Execute(_ context.Context, node *models.Node, _ protocol.StepContext) (protocol.Result, error) {
	config, ok := node.Config.(*models.TerminalConfig)
	if !ok {
		return protocol.Result{}, fmt.Errorf("unexpected config %T", node.Config)
	}

	if config.Outcome == models.TerminalFailed {
		reason := config.Error
		if reason == "" {
			reason = "flow ended with failure"
		}

		return protocol.Fail(errors.New(reason)), nil
	}

	return protocol.Done(), nil
}
