// Package waitinput implements the wait_input node, the only node that
// suspends an execution.
package waitinput

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
)

// Handler suspends on Execute and routes the incoming event on Resume.
type Handler struct {
	now func() time.Time
}

// NewHandler creates a wait_input handler.
func NewHandler() *Handler {
	return &Handler{now: time.Now}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeWaitInput
}

func (h *Handler) Execute(_ context.Context, node *models.Node, _ protocol.StepContext) (protocol.Result, error) {
	config, ok := node.Config.(*models.WaitInputConfig)
	if !ok {
		return protocol.Result{}, fmt.Errorf("unexpected config %T", node.Config)
	}

	wait := models.WaitState{
		Type:    config.WaitType,
		Payload: map[string]any{"node_id": node.ID},
	}

	if config.Variable != "" {
		wait.Payload["variable"] = config.Variable
	}

	if config.TimeoutSeconds > 0 {
		deadline := h.now().UTC().Add(time.Duration(config.TimeoutSeconds) * time.Second)
		wait.Deadline = &deadline
	}

	result := protocol.Suspend(wait)
	result.Output = map[string]any{"wait_type": string(config.WaitType)}

	return result, nil
}

func (h *Handler) Resume(
	_ context.Context,
	node *models.Node,
	sc protocol.StepContext,
	_ models.WaitState,
	event models.ResumeEvent,
) (protocol.Result, error) {
	config, ok := node.Config.(*models.WaitInputConfig)
	if !ok {
		return protocol.Result{}, fmt.Errorf("unexpected config %T", node.Config)
	}

	vars := sc.Variables()
	for key, value := range event.Variables {
		vars.Set(key, value)
	}

	input := map[string]any{"event": string(event.Type)}

	var result protocol.Result

	switch event.Type {
	case models.ResumeEventTimeout:
		if config.TimeoutNodeID != "" {
			result = protocol.Goto(config.TimeoutNodeID)
		} else {
			result = protocol.Next("")
		}
	case models.ResumeEventCallback:
		input["callback_data"] = event.CallbackData
		if config.Variable != "" {
			vars.Set(config.Variable, event.CallbackData)
		}

		result = protocol.Next(event.CallbackData)
	default:
		input["text"] = event.Text
		if config.Variable != "" {
			vars.Set(config.Variable, event.Text)
		}

		result = protocol.Next("")
	}

	result.Input = input

	return result, nil
}
