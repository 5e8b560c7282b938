package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/loyalflow/pkg/expression"
	"github.com/dukex/loyalflow/pkg/models"
)

// Dependencies contains the collaborators handlers are built with.
type Dependencies struct {
	Logger     *slog.Logger
	Messenger  Messenger
	HTTPClient HTTPClient
	Versions   VersionSource
	Expr       *expression.ExprEngine
	JQ         *expression.JQEngine
}

// VersionSource is the read side of the workflow definition store.
type VersionSource interface {
	GetVersion(ctx context.Context, workflowID string, ref models.VersionRef) (*models.WorkflowVersion, error)
}

// OutboundMessage is a message the engine asks the delivery layer to send.
type OutboundMessage struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"execution_id"`
	WorkflowID  string          `json:"workflow_id"`
	NodeID      string          `json:"node_id"`
	SessionID   string          `json:"session_id"`
	UserID      string          `json:"user_id,omitempty"`
	ChatID      string          `json:"chat_id,omitempty"`
	Text        string          `json:"text"`
	ParseMode   string          `json:"parse_mode,omitempty"`
	Buttons     []models.Button `json:"buttons,omitempty"`
}

// Messenger hands messages over to the delivery layer. Delivery retries are
// the delivery layer's concern.
type Messenger interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// OutboundRequest is an HTTP call requested by a node.
type OutboundRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

// OutboundResponse is the raw answer to an OutboundRequest.
type OutboundResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// HTTPClient performs outbound HTTP calls.
type HTTPClient interface {
	Do(ctx context.Context, req OutboundRequest) (*OutboundResponse, error)
}
