package mocks

import (
	"context"

	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) Executions() persistence.ExecutionRepository {
	args := m.Called()

	return args.Get(0).(persistence.ExecutionRepository)
}

func (m *MockPersistence) Logs() persistence.LogRepository {
	args := m.Called()

	return args.Get(0).(persistence.LogRepository)
}

func (m *MockPersistence) Variables() persistence.VariableRepository {
	args := m.Called()

	return args.Get(0).(persistence.VariableRepository)
}

func (m *MockPersistence) Versions() persistence.VersionRepository {
	args := m.Called()

	return args.Get(0).(persistence.VersionRepository)
}

func (m *MockPersistence) Commit(ctx context.Context, commit *persistence.Commit) error {
	args := m.Called(ctx, commit)

	return args.Error(0)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
