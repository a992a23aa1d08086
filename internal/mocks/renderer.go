// Package mocks provides shared test doubles for the service's interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shield4u/pagescope/internal/render"
)

// MockRenderer is a mock implementation of render.Renderer
type MockRenderer struct {
	mock.Mock
}

// Render mocks the Render method
func (m *MockRenderer) Render(ctx context.Context, targetURL string, cookies map[string]string) (*render.RenderedPage, error) {
	args := m.Called(ctx, targetURL, cookies)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*render.RenderedPage), args.Error(1)
}
