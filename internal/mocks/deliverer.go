package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shield4u/pagescope/internal/callback"
)

// MockDeliverer is a mock implementation of the tasks.Deliverer interface
type MockDeliverer struct {
	mock.Mock
}

// Deliver mocks the Deliver method
func (m *MockDeliverer) Deliver(ctx context.Context, result *callback.Result) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}
