package mocks

import (
	"context"

	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockMessenger is a mock implementation of protocol.Messenger interface.
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) Send(ctx context.Context, msg protocol.OutboundMessage) error {
	args := m.Called(ctx, msg)

	return args.Error(0)
}

// MockHTTPClient is a mock implementation of protocol.HTTPClient interface.
type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Do(ctx context.Context, req protocol.OutboundRequest) (*protocol.OutboundResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.OutboundResponse), args.Error(1)
}
