// Package registry implements the component registry, an integrity-checked
// store of pluggable infrastructure components. Every resolution re-verifies
// the component's identity digest against its stored artifact, so any
// post-registration substitution of the artifact surfaces as a digest
// mismatch and makes the component unresolvable.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/ruteri/docbind-trust-core/events"
	"github.com/ruteri/docbind-trust-core/interfaces"
)

// DefaultMaxPageSize bounds paginated listing requests.
const DefaultMaxPageSize = 256

// Registry is the in-process component registry. All methods are safe for
// concurrent use; reads never block each other.
type Registry struct {
	mu         sync.RWMutex
	components map[interfaces.ComponentID]*interfaces.ComponentRecord
	order      []interfaces.ComponentID

	artifacts   interfaces.ArtifactBackendFactory
	sink        events.Sink
	log         *slog.Logger
	now         func() time.Time
	maxPageSize int
}

// New creates a component registry backed by the given artifact factory.
func New(artifacts interfaces.ArtifactBackendFactory, sink events.Sink, log *slog.Logger) *Registry {
	return &Registry{
		components:  make(map[interfaces.ComponentID]*interfaces.ComponentRecord),
		artifacts:   artifacts,
		sink:        sink,
		log:         log,
		now:         time.Now,
		maxPageSize: DefaultMaxPageSize,
	}
}

// SetClock overrides the registry clock. Intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// IdentityDigest computes the identity digest of artifact bytes. The digest
// is SHA3-256, deliberately distinct from the SHA-256 storage address so a
// storage backend cannot satisfy the integrity check by construction.
func IdentityDigest(artifact []byte) interfaces.Digest {
	return interfaces.Digest(sha3.Sum256(artifact))
}

// Register stores a component record, computing and capturing its identity
// digest at this instant. The digest is never implicitly updated afterwards.
// Fails with ErrAlreadyRegistered if the id is in use, ErrNotExecutable if
// the ref does not resolve to loadable code.
func (r *Registry) Register(ctx context.Context, id interfaces.ComponentID, ref interfaces.ComponentRef, typ interfaces.ComponentType, description string) (*interfaces.ComponentRecord, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("%w: null component id", interfaces.ErrInvalidID)
	}

	artifact, err := r.fetchArtifact(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrNotExecutable, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[id]; exists {
		return nil, interfaces.ErrAlreadyRegistered
	}

	record := &interfaces.ComponentRecord{
		ID:             id,
		Ref:            ref,
		IdentityDigest: IdentityDigest(artifact),
		Active:         true,
		RegisteredAt:   r.now(),
		Type:           typ,
		Description:    description,
	}
	r.components[id] = record
	r.order = append(r.order, id)

	r.log.Info("Component registered",
		slog.String("component_id", id.String()),
		slog.String("type", typ.String()),
		slog.String("identity_digest", record.IdentityDigest.String()))
	r.emit(ctx, events.ComponentRegistered, "registerComponent", id, map[string]string{
		"type":            typ.String(),
		"identity_digest": record.IdentityDigest.String(),
	})

	cp := *record
	return &cp, nil
}

// Resolve returns the component record iff the id is registered, the
// component is active, and the live identity digest of its artifact still
// matches the digest captured at registration. Returns nil in every other
// case, never an error.
func (r *Registry) Resolve(ctx context.Context, id interfaces.ComponentID) *interfaces.ComponentRecord {
	r.mu.RLock()
	record, exists := r.components[id]
	if !exists || !record.Active {
		r.mu.RUnlock()
		return nil
	}
	cp := *record
	r.mu.RUnlock()

	// Integrity gate: re-fetch the artifact and compare digests outside the
	// lock so a slow backend never stalls other registry users.
	artifact, err := r.fetchArtifact(ctx, cp.Ref)
	if err != nil {
		r.log.Warn("Component artifact unavailable",
			slog.String("component_id", id.String()),
			"err", err)
		return nil
	}

	if live := IdentityDigest(artifact); !live.Equal(cp.IdentityDigest) {
		r.log.Warn("Component identity digest mismatch",
			slog.String("component_id", id.String()),
			slog.String("registered", cp.IdentityDigest.String()),
			slog.String("live", live.String()))
		return nil
	}

	return &cp
}

// Deactivate marks a component inactive with an audited reason.
func (r *Registry) Deactivate(ctx context.Context, id interfaces.ComponentID, reason string) error {
	r.mu.Lock()
	record, exists := r.components[id]
	if !exists {
		r.mu.Unlock()
		return interfaces.ErrComponentNotFound
	}
	record.Active = false
	r.mu.Unlock()

	r.log.Info("Component deactivated",
		slog.String("component_id", id.String()),
		slog.String("reason", reason))
	r.emit(ctx, events.ComponentDeactivated, "deactivateComponent", id, map[string]string{
		"reason": reason,
	})
	return nil
}

// Reactivate re-verifies the component's identity digest before marking it
// active again, preventing silent resurrection of a component whose code
// changed while it was deactivated. Fails with ErrIdentityChanged on
// mismatch.
func (r *Registry) Reactivate(ctx context.Context, id interfaces.ComponentID) error {
	r.mu.RLock()
	record, exists := r.components[id]
	if !exists {
		r.mu.RUnlock()
		return interfaces.ErrComponentNotFound
	}
	ref := record.Ref
	registered := record.IdentityDigest
	r.mu.RUnlock()

	artifact, err := r.fetchArtifact(ctx, ref)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrNotExecutable, err)
	}
	if live := IdentityDigest(artifact); !live.Equal(registered) {
		return interfaces.ErrIdentityChanged
	}

	r.mu.Lock()
	// Re-check existence: the record cannot be deleted, but keep the lookup
	// honest under the write lock.
	record, exists = r.components[id]
	if !exists {
		r.mu.Unlock()
		return interfaces.ErrComponentNotFound
	}
	record.Active = true
	r.mu.Unlock()

	r.log.Info("Component reactivated", slog.String("component_id", id.String()))
	r.emit(ctx, events.ComponentReactivated, "reactivateComponent", id, nil)
	return nil
}

// Count returns the number of registered components.
func (r *Registry) Count(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

// ListByType returns all components of the given type in registration order.
func (r *Registry) ListByType(ctx context.Context, typ interfaces.ComponentType) []*interfaces.ComponentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*interfaces.ComponentRecord
	for _, id := range r.order {
		record := r.components[id]
		if record.Type == typ {
			cp := *record
			out = append(out, &cp)
		}
	}
	return out
}

// List returns a page of components in registration order. Fails with
// ErrBatchSizeExceeded when the requested page is larger than the maximum.
func (r *Registry) List(ctx context.Context, offset, limit int) ([]*interfaces.ComponentRecord, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: negative offset or limit", interfaces.ErrInvalidID)
	}
	if limit > r.maxPageSize {
		return nil, interfaces.ErrBatchSizeExceeded
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset >= len(r.order) {
		return nil, nil
	}
	end := offset + limit
	if end > len(r.order) {
		end = len(r.order)
	}

	out := make([]*interfaces.ComponentRecord, 0, end-offset)
	for _, id := range r.order[offset:end] {
		cp := *r.components[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *Registry) fetchArtifact(ctx context.Context, ref interfaces.ComponentRef) ([]byte, error) {
	backend, err := r.artifacts.BackendFor(interfaces.StorageBackendLocation(ref.ArtifactURI))
	if err != nil {
		return nil, err
	}
	return backend.Fetch(ctx, ref.ArtifactID)
}

func (r *Registry) emit(ctx context.Context, eventType events.Type, operation string, id interfaces.ComponentID, fields map[string]string) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Emit(ctx, events.New(eventType, r.now(), operation, id.String(), "", fields)); err != nil {
		r.log.Warn("Failed to emit component event", "err", err)
	}
}
