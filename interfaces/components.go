package interfaces

import "context"

// ComponentResolver resolves registered component identifiers to their
// records. Resolve is the integrity gate every dependent goes through before
// using a pluggable component.
type ComponentResolver interface {
	// Resolve returns the component record iff the id is registered, the
	// component is active, and the live identity digest of its artifact
	// still matches the digest captured at registration. Returns nil in
	// every other case, never an error: callers decide locally whether
	// unavailability is fatal, skippable, or handled via a fallback id.
	Resolve(ctx context.Context, id ComponentID) *ComponentRecord
}

// ComponentRegistry is the full component lifecycle surface. The resolver
// subset is split out so dependents that only read do not see mutation
// methods.
type ComponentRegistry interface {
	ComponentResolver

	// Register stores a component record, capturing its identity digest at
	// this instant. Fails with ErrAlreadyRegistered or ErrNotExecutable.
	Register(ctx context.Context, id ComponentID, ref ComponentRef, typ ComponentType, description string) (*ComponentRecord, error)

	// Deactivate marks a component inactive with an audited reason.
	Deactivate(ctx context.Context, id ComponentID, reason string) error

	// Reactivate re-verifies the identity digest before marking the
	// component active again. Fails with ErrIdentityChanged on mismatch.
	Reactivate(ctx context.Context, id ComponentID) error

	// Count returns the number of registered components.
	Count(ctx context.Context) int

	// ListByType returns all components of the given type.
	ListByType(ctx context.Context, typ ComponentType) []*ComponentRecord

	// List returns a page of components ordered by registration.
	List(ctx context.Context, offset, limit int) ([]*ComponentRecord, error)
}
