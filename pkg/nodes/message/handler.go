// Package message implements the message node: render text and hand it to
// the delivery layer.
package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/template"
	"github.com/google/uuid"
)

// Handler renders message nodes and sends them through a Messenger.
type Handler struct {
	messenger protocol.Messenger
}

// NewHandler creates a message handler.
func NewHandler(messenger protocol.Messenger) (*Handler, error) {
	if messenger == nil {
		return nil, errors.New("message handler requires a messenger")
	}

	return &Handler{messenger: messenger}, nil
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeMessage
}

func (h *Handler) Execute(ctx context.Context, node *models.Node, sc protocol.StepContext) (protocol.Result, error) {
	config, ok := node.Config.(*models.MessageConfig)
	if !ok {
		return protocol.Result{}, fmt.Errorf("unexpected config %T", node.Config)
	}

	data := template.StepData(sc)

	text, err := template.RenderString(config.Text, data)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("failed to render message text: %w", err)
	}

	buttons := make([]models.Button, 0, len(config.Buttons))
	for _, b := range config.Buttons {
		label, err := template.RenderString(b.Text, data)
		if err != nil {
			return protocol.Result{}, fmt.Errorf("failed to render button %q: %w", b.Text, err)
		}

		buttons = append(buttons, models.Button{Text: label, CallbackData: b.CallbackData})
	}

	msg := protocol.OutboundMessage{
		ID:          uuid.NewString(),
		ExecutionID: sc.ExecutionID(),
		WorkflowID:  sc.WorkflowID(),
		NodeID:      node.ID,
		SessionID:   sc.SessionID(),
		UserID:      sc.UserID(),
		ChatID:      sc.ChatID(),
		Text:        text,
		ParseMode:   config.ParseMode,
		Buttons:     buttons,
	}

	result := protocol.Next("")
	result.Output = map[string]any{
		"message_id": msg.ID,
		"text":       text,
		"buttons":    len(buttons),
	}

	if err := h.messenger.Send(ctx, msg); err != nil {
		return result, fmt.Errorf("failed to send message: %w", err)
	}

	return result, nil
}
