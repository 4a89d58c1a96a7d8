package registry

import (
	"context"

	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockResolver mocks the interfaces.ComponentResolver interface.
type MockResolver struct {
	mock.Mock
}

// Resolve mocks the Resolve method.
func (m *MockResolver) Resolve(ctx context.Context, id interfaces.ComponentID) *interfaces.ComponentRecord {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*interfaces.ComponentRecord)
}

// StaticResolver resolves from a fixed map. Simpler than MockResolver for
// tests that don't assert on calls.
type StaticResolver struct {
	Components map[interfaces.ComponentID]*interfaces.ComponentRecord
}

// Resolve returns the record for id, or nil. Per the ComponentResolver
// contract, inactive components resolve to nil.
func (s *StaticResolver) Resolve(_ context.Context, id interfaces.ComponentID) *interfaces.ComponentRecord {
	record := s.Components[id]
	if record == nil || !record.Active {
		return nil
	}
	return record
}
