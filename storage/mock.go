package storage

import (
	"context"

	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockBackend mocks the interfaces.ArtifactBackend interface.
type MockBackend struct {
	mock.Mock
}

// Fetch mocks the Fetch method.
func (m *MockBackend) Fetch(ctx context.Context, id interfaces.ArtifactID) ([]byte, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Store mocks the Store method.
func (m *MockBackend) Store(ctx context.Context, data []byte) (interfaces.ArtifactID, error) {
	args := m.Called(ctx, data)
	return args.Get(0).(interfaces.ArtifactID), args.Error(1)
}

// Available mocks the Available method.
func (m *MockBackend) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

// Name mocks the Name method.
func (m *MockBackend) Name() string {
	args := m.Called()
	return args.String(0)
}

// LocationURI mocks the LocationURI method.
func (m *MockBackend) LocationURI() string {
	args := m.Called()
	return args.String(0)
}
