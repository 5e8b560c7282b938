package testutil

import (
	"context"
	"log/slog"

	"github.com/dukex/loyalflow/pkg/expression"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/registry"
	"github.com/dukex/loyalflow/pkg/workflow"
)

// OKClient answers every request with 200 and an empty JSON object.
var OKClient = HTTPClientFunc(func(context.Context, protocol.OutboundRequest) (*protocol.OutboundResponse, error) {
	return &protocol.OutboundResponse{StatusCode: 200, Body: []byte(`{}`)}, nil
})

// NewProcessor builds a processor with every default node registered.
func NewProcessor(
	logger *slog.Logger,
	versions protocol.VersionSource,
	messenger protocol.Messenger,
	client protocol.HTTPClient,
) (*workflow.Processor, error) {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	err := reg.Build(protocol.Dependencies{
		Logger:     logger,
		Messenger:  messenger,
		HTTPClient: client,
		Versions:   versions,
		Expr:       expression.NewExprEngine(),
		JQ:         expression.NewJQEngine(),
	})
	if err != nil {
		return nil, err
	}

	return workflow.NewProcessor(reg, versions, workflow.WithLogger(logger)), nil
}
