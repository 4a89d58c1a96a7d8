// Package documents implements the document registry: ownership, executor
// delegation, resolver configuration, and the capability verification entry
// point.
//
// Every mutating operation is one atomic unit. State is committed before any
// resolver is invoked; a failing primary resolver rolls the record back so
// the operation is all-or-nothing. A per-document in-flight guard rejects
// nested re-entry, including re-entry through a resolver callback.
package documents

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/docbind-trust-core/attestation"
	"github.com/ruteri/docbind-trust-core/capability"
	"github.com/ruteri/docbind-trust-core/events"
	"github.com/ruteri/docbind-trust-core/governance"
	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/ruteri/docbind-trust-core/resolver"
)

// DefaultEmergencyWindow bounds how long the designated emergency authority
// can unlock resolver configuration after deployment.
const DefaultEmergencyWindow = 30 * 24 * time.Hour

// Config carries the registry's deployment policy.
type Config struct {
	// EmergencyWindow is how long emergency-authority unlock powers last,
	// measured from registry creation. Zero means DefaultEmergencyWindow.
	EmergencyWindow time.Duration

	// ExecutorAllowList holds pre-approved executor identities. Authorizing
	// one of these skips further trust checks.
	ExecutorAllowList []interfaces.Identity
}

// Registry is the document registry. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	docs      map[interfaces.DocumentID]*interfaces.DocumentRecord
	executors map[interfaces.DocumentID]*interfaces.ExecutorBinding

	// inflight rejects nested re-entry per document.
	inflightMu sync.Mutex
	inflight   map[interfaces.DocumentID]struct{}

	allowList map[interfaces.Identity]struct{}

	components interfaces.ComponentResolver
	dispatcher *resolver.Dispatcher
	verifier   *attestation.Verifier
	gov        *governance.Machine
	sink       events.Sink
	log        *slog.Logger
	now        func() time.Time

	emergencyDeadline time.Time
}

// NewRegistry creates an empty document registry. The verifier may be nil
// when capability verification is not wired (admin-only deployments).
func NewRegistry(cfg Config, components interfaces.ComponentResolver, dispatcher *resolver.Dispatcher, verifier *attestation.Verifier, gov *governance.Machine, sink events.Sink, log *slog.Logger) *Registry {
	window := cfg.EmergencyWindow
	if window <= 0 {
		window = DefaultEmergencyWindow
	}

	allowList := make(map[interfaces.Identity]struct{}, len(cfg.ExecutorAllowList))
	for _, id := range cfg.ExecutorAllowList {
		allowList[id] = struct{}{}
	}

	return &Registry{
		docs:              make(map[interfaces.DocumentID]*interfaces.DocumentRecord),
		executors:         make(map[interfaces.DocumentID]*interfaces.ExecutorBinding),
		inflight:          make(map[interfaces.DocumentID]struct{}),
		allowList:         allowList,
		components:        components,
		dispatcher:        dispatcher,
		verifier:          verifier,
		gov:               gov,
		sink:              sink,
		log:               log,
		now:               time.Now,
		emergencyDeadline: time.Now().Add(window),
	}
}

// SetClock overrides the time source and re-anchors the emergency window to
// it. Test hook.
func (r *Registry) SetClock(now func() time.Time, emergencyWindow time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	r.emergencyDeadline = now().Add(emergencyWindow)
}

// enter acquires the per-document in-flight guard.
func (r *Registry) enter(id interfaces.DocumentID) error {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	if _, busy := r.inflight[id]; busy {
		return interfaces.ErrReentrantCall
	}
	r.inflight[id] = struct{}{}
	return nil
}

// exit releases the guard. Must run on every exit path of a mutating
// operation.
func (r *Registry) exit(id interfaces.DocumentID) {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	delete(r.inflight, id)
}

// Register creates a document record owned by the caller. The document id
// derives from the content hash, so registering the same content twice fails
// with ErrAlreadyExists. An optional executor is authorized atomically with
// the registration.
func (r *Registry) Register(ctx context.Context, caller interfaces.Identity, contentHash interfaces.ContentHash, tokenizerBinding, primaryResolverID interfaces.ComponentID, additionalResolverIDs []interfaces.ComponentID, executor interfaces.Identity) (interfaces.DocumentID, error) {
	if err := r.gov.CheckOperational(); err != nil {
		return interfaces.DocumentID{}, err
	}
	if contentHash.IsZero() {
		return interfaces.DocumentID{}, interfaces.ErrInvalidContentHash
	}
	if caller.IsZero() {
		return interfaces.DocumentID{}, interfaces.ErrNullOwner
	}
	if !executor.IsZero() && executor.Equal(caller) {
		return interfaces.DocumentID{}, interfaces.ErrExecutorIsOwner
	}

	id := interfaces.DocumentIDForContent(contentHash)
	if err := r.enter(id); err != nil {
		return interfaces.DocumentID{}, err
	}
	defer r.exit(id)

	r.mu.Lock()
	if _, exists := r.docs[id]; exists {
		r.mu.Unlock()
		return interfaces.DocumentID{}, interfaces.ErrAlreadyExists
	}

	record := &interfaces.DocumentRecord{
		ID:                    id,
		Owner:                 caller,
		ContentHash:           contentHash,
		TokenizerBinding:      tokenizerBinding,
		PrimaryResolverID:     primaryResolverID,
		AdditionalResolverIDs: append([]interfaces.ComponentID(nil), additionalResolverIDs...),
		RegisteredAt:          r.now(),
		Exists:                true,
	}
	r.docs[id] = record

	if !executor.IsZero() {
		r.executors[id] = &interfaces.ExecutorBinding{
			DocumentID:   id,
			Executor:     executor,
			Trust:        r.trustClassFor(executor),
			AuthorizedAt: r.now(),
		}
	}
	snapshot := record.Clone()
	r.mu.Unlock()

	// The primary resolver can still abort the registration, so the event
	// only goes out once it has accepted.
	inv := resolver.Invocation{Operation: "registerDocument", DocumentID: id, ContentHash: contentHash, Actor: caller}
	if err := r.dispatcher.InvokePrimary(ctx, snapshot, inv); err != nil {
		r.mu.Lock()
		delete(r.docs, id)
		delete(r.executors, id)
		r.mu.Unlock()
		return interfaces.DocumentID{}, err
	}

	r.log.Info("document registered",
		slog.String("document", id.String()),
		slog.String("owner", caller.String()),
	)
	r.emit(ctx, events.DocumentRegistered, "registerDocument", id, caller, map[string]string{
		"content_hash": contentHash.String(),
	})
	r.dispatcher.InvokeAdditional(ctx, snapshot, inv)

	return id, nil
}

// trustClassFor picks the trust class for a plain executor authorization:
// allow-listed when pre-approved, unconditional otherwise.
func (r *Registry) trustClassFor(executor interfaces.Identity) interfaces.ExecutorTrust {
	if _, ok := r.allowList[executor]; ok {
		return interfaces.AllowListedExecutor
	}
	return interfaces.UnconditionalExecutor
}

// TransferOwnership reassigns the document to newOwner. Owner only. The
// reason is recorded in the emitted event for auditing.
func (r *Registry) TransferOwnership(ctx context.Context, caller interfaces.Identity, id interfaces.DocumentID, newOwner interfaces.Identity, reason string) error {
	if err := r.gov.CheckOperational(); err != nil {
		return err
	}
	if newOwner.IsZero() {
		return interfaces.ErrNullOwner
	}

	if err := r.enter(id); err != nil {
		return err
	}
	defer r.exit(id)

	r.mu.Lock()
	record, exists := r.docs[id]
	if !exists {
		r.mu.Unlock()
		return interfaces.ErrNotFound
	}
	if !record.Owner.Equal(caller) {
		r.mu.Unlock()
		return interfaces.ErrUnauthorized
	}
	if record.Owner.Equal(newOwner) {
		r.mu.Unlock()
		return interfaces.ErrSameOwner
	}

	rollback := record.Clone()
	record.Owner = newOwner
	snapshot := record.Clone()
	r.mu.Unlock()

	inv := resolver.Invocation{Operation: "transferDocumentOwnership", DocumentID: id, ContentHash: snapshot.ContentHash, Actor: caller}
	if err := r.dispatcher.InvokePrimary(ctx, snapshot, inv); err != nil {
		r.restore(rollback)
		return err
	}

	r.log.Info("document ownership transferred",
		slog.String("document", id.String()),
		slog.String("from", caller.String()),
		slog.String("to", newOwner.String()),
	)
	r.emit(ctx, events.OwnershipTransferred, "transferDocumentOwnership", id, caller, map[string]string{
		"new_owner": newOwner.String(),
		"reason":    reason,
	})
	r.dispatcher.InvokeAdditional(ctx, snapshot, inv)

	return nil
}

// AuthorizeExecutor delegates bounded operations on the document to
// executor. Owner only; the executor can never be the owner. Code-identity
// executors declare the component whose identity digest backs their
// validity; it must resolve at authorization time.
func (r *Registry) AuthorizeExecutor(ctx context.Context, caller interfaces.Identity, id interfaces.DocumentID, executor interfaces.Identity, trust interfaces.ExecutorTrust, componentID interfaces.ComponentID) error {
	if err := r.gov.CheckOperational(); err != nil {
		return err
	}
	if executor.IsZero() {
		return interfaces.ErrInvalidID
	}

	if err := r.enter(id); err != nil {
		return err
	}
	defer r.exit(id)

	r.mu.Lock()
	record, exists := r.docs[id]
	if !exists {
		r.mu.Unlock()
		return interfaces.ErrNotFound
	}
	if !record.Owner.Equal(caller) {
		r.mu.Unlock()
		return interfaces.ErrUnauthorized
	}
	if executor.Equal(record.Owner) {
		r.mu.Unlock()
		return interfaces.ErrExecutorIsOwner
	}

	if trust == interfaces.CodeIdentityExecutor {
		if componentID.IsZero() {
			r.mu.Unlock()
			return interfaces.ErrWrongBinding
		}
		// Resolution enforces the digest gate: a substituted component
		// cannot back an executor.
		if r.components.Resolve(ctx, componentID) == nil {
			r.mu.Unlock()
			return interfaces.ErrWrongBinding
		}
	}

	r.executors[id] = &interfaces.ExecutorBinding{
		DocumentID:   id,
		Executor:     executor,
		Trust:        trust,
		ComponentID:  componentID,
		AuthorizedAt: r.now(),
	}
	snapshot := record.Clone()
	r.mu.Unlock()

	inv := resolver.Invocation{Operation: "authorizeExecutor", DocumentID: id, ContentHash: snapshot.ContentHash, Actor: caller}
	if err := r.dispatcher.InvokePrimary(ctx, snapshot, inv); err != nil {
		r.mu.Lock()
		delete(r.executors, id)
		r.mu.Unlock()
		return err
	}

	r.emit(ctx, events.ExecutorAuthorized, "authorizeExecutor", id, caller, map[string]string{
		"executor": executor.String(),
		"trust":    trust.String(),
	})
	r.dispatcher.InvokeAdditional(ctx, snapshot, inv)

	return nil
}

// RevokeExecutor removes the document's executor binding. Owner only.
func (r *Registry) RevokeExecutor(ctx context.Context, caller interfaces.Identity, id interfaces.DocumentID) error {
	if err := r.gov.CheckOperational(); err != nil {
		return err
	}

	if err := r.enter(id); err != nil {
		return err
	}
	defer r.exit(id)

	r.mu.Lock()
	record, exists := r.docs[id]
	if !exists {
		r.mu.Unlock()
		return interfaces.ErrNotFound
	}
	if !record.Owner.Equal(caller) {
		r.mu.Unlock()
		return interfaces.ErrUnauthorized
	}
	binding, bound := r.executors[id]
	if !bound {
		r.mu.Unlock()
		return interfaces.ErrNoExecutor
	}
	delete(r.executors, id)
	snapshot := record.Clone()
	r.mu.Unlock()

	inv := resolver.Invocation{Operation: "revokeExecutor", DocumentID: id, ContentHash: snapshot.ContentHash, Actor: caller}
	if err := r.dispatcher.InvokePrimary(ctx, snapshot, inv); err != nil {
		r.mu.Lock()
		r.executors[id] = binding
		r.mu.Unlock()
		return err
	}

	r.emit(ctx, events.ExecutorRevoked, "revokeExecutor", id, caller, map[string]string{
		"executor": binding.Executor.String(),
	})
	r.dispatcher.InvokeAdditional(ctx, snapshot, inv)

	return nil
}

// AuthorizeAction resolves whether caller may act on the document. Three
// paths, checked in order: the owner is always authorized; an authorized
// executor is authorized when its trust class still holds; everything else
// is rejected. There is no superuser path.
func (r *Registry) AuthorizeAction(ctx context.Context, caller interfaces.Identity, id interfaces.DocumentID) error {
	r.mu.RLock()
	record, exists := r.docs[id]
	if !exists {
		r.mu.RUnlock()
		return interfaces.ErrNotFound
	}
	owner := record.Owner
	tokenizerBinding := record.TokenizerBinding
	binding := r.executors[id]
	r.mu.RUnlock()

	if owner.Equal(caller) {
		return nil
	}

	if binding != nil && binding.Executor.Equal(caller) {
		switch binding.Trust {
		case interfaces.AllowListedExecutor, interfaces.UnconditionalExecutor:
			return nil
		case interfaces.CodeIdentityExecutor:
			if binding.ComponentID != tokenizerBinding {
				return interfaces.ErrWrongBinding
			}
			// Re-check the backing component at action time so a
			// substituted component invalidates the executor.
			if r.components.Resolve(ctx, binding.ComponentID) == nil {
				return interfaces.ErrUnauthorized
			}
			return nil
		}
	}

	return interfaces.ErrUnauthorized
}

// SetPrimaryResolver replaces the document's primary resolver. Owner only;
// fails once the configuration is locked.
func (r *Registry) SetPrimaryResolver(ctx context.Context, caller interfaces.Identity, id interfaces.DocumentID, resolverID interfaces.ComponentID) error {
	return r.updateResolvers(ctx, caller, id, "setPrimaryResolver", events.PrimaryResolverSet, resolverID, func(record *interfaces.DocumentRecord) {
		record.PrimaryResolverID = resolverID
	})
}

// AddAdditionalResolver appends a best-effort resolver. Owner only; fails
// once the configuration is locked.
func (r *Registry) AddAdditionalResolver(ctx context.Context, caller interfaces.Identity, id interfaces.DocumentID, resolverID interfaces.ComponentID) error {
	return r.updateResolvers(ctx, caller, id, "addAdditionalResolver", events.AdditionalResolver, resolverID, func(record *interfaces.DocumentRecord) {
		record.AdditionalResolverIDs = append(record.AdditionalResolverIDs, resolverID)
	})
}

func (r *Registry) updateResolvers(ctx context.Context, caller interfaces.Identity, id interfaces.DocumentID, operation string, eventType events.Type, resolverID interfaces.ComponentID, apply func(*interfaces.DocumentRecord)) error {
	if err := r.gov.CheckOperational(); err != nil {
		return err
	}

	if err := r.enter(id); err != nil {
		return err
	}
	defer r.exit(id)

	r.mu.Lock()
	record, exists := r.docs[id]
	if !exists {
		r.mu.Unlock()
		return interfaces.ErrNotFound
	}
	if !record.Owner.Equal(caller) {
		r.mu.Unlock()
		return interfaces.ErrUnauthorized
	}
	if record.ResolversLocked {
		r.mu.Unlock()
		return interfaces.ErrResolverConfigurationLocked
	}

	rollback := record.Clone()
	apply(record)
	snapshot := record.Clone()
	r.mu.Unlock()

	inv := resolver.Invocation{Operation: operation, DocumentID: id, ContentHash: snapshot.ContentHash, Actor: caller}
	if err := r.dispatcher.InvokePrimary(ctx, snapshot, inv); err != nil {
		r.restore(rollback)
		return err
	}

	r.emit(ctx, eventType, operation, id, caller, map[string]string{
		"resolver": resolverID.String(),
	})
	r.dispatcher.InvokeAdditional(ctx, snapshot, inv)

	return nil
}

// LockResolvers freezes the document's resolver configuration. Owner only,
// one-way on the normal path; only an emergency unlock reopens it.
// Idempotent once locked.
func (r *Registry) LockResolvers(ctx context.Context, caller interfaces.Identity, id interfaces.DocumentID) error {
	if err := r.gov.CheckOperational(); err != nil {
		return err
	}

	if err := r.enter(id); err != nil {
		return err
	}
	defer r.exit(id)

	r.mu.Lock()
	record, exists := r.docs[id]
	if !exists {
		r.mu.Unlock()
		return interfaces.ErrNotFound
	}
	if !record.Owner.Equal(caller) {
		r.mu.Unlock()
		return interfaces.ErrUnauthorized
	}
	if record.ResolversLocked {
		r.mu.Unlock()
		return nil
	}
	record.ResolversLocked = true
	r.mu.Unlock()

	r.emit(ctx, events.ResolversLocked, "lockResolvers", id, caller, nil)
	return nil
}

// EmergencyUnlockResolvers reopens a locked resolver configuration. Before
// the emergency window expires the designated emergency authority or the
// governance authority may call it; afterwards governance only. The
// justification is mandatory and always lands in the emitted event.
func (r *Registry) EmergencyUnlockResolvers(ctx context.Context, caller interfaces.Identity, id interfaces.DocumentID, justification string) error {
	if err := r.gov.CheckOperational(); err != nil {
		return err
	}
	if justification == "" {
		return interfaces.ErrEmptyJustification
	}

	if err := r.enter(id); err != nil {
		return err
	}
	defer r.exit(id)

	r.mu.Lock()
	record, exists := r.docs[id]
	if !exists {
		r.mu.Unlock()
		return interfaces.ErrNotFound
	}

	isGovernance := r.gov.IsAuthority(caller)
	isEmergency := r.gov.IsEmergencyAuthority(caller)
	withinWindow := r.now().Before(r.emergencyDeadline)

	if !isGovernance {
		if !withinWindow {
			r.mu.Unlock()
			return interfaces.ErrEmergencyPowersExpired
		}
		if !isEmergency {
			r.mu.Unlock()
			return interfaces.ErrUnauthorized
		}
	}

	record.ResolversLocked = false
	r.mu.Unlock()

	r.log.Warn("resolver configuration emergency-unlocked",
		slog.String("document", id.String()),
		slog.String("caller", caller.String()),
		slog.String("justification", justification),
	)
	r.emit(ctx, events.ResolversUnlocked, "emergencyUnlockResolvers", id, caller, map[string]string{
		"justification": justification,
	})
	return nil
}

// VerifyCapability runs the attestation pipeline for the document and
// applies the capability check to the granted set. Read-only; invalid proofs
// are an expected outcome, never an error.
func (r *Registry) VerifyCapability(ctx context.Context, proof attestation.Proof, claimant interfaces.Identity, id interfaces.DocumentID, required capability.Set) attestation.Verdict {
	r.mu.RLock()
	record, exists := r.docs[id]
	var contentHash interfaces.ContentHash
	if exists {
		contentHash = record.ContentHash
	}
	r.mu.RUnlock()

	if !exists {
		return attestation.Verdict{FailedCheck: "document_lookup"}
	}
	if r.verifier == nil {
		return attestation.Verdict{FailedCheck: "verifier_unconfigured"}
	}

	verdict := r.verifier.Verify(ctx, proof, claimant, id, contentHash)
	if !verdict.Granted {
		return verdict
	}
	if !verdict.Capabilities.Has(required) {
		return attestation.Verdict{FailedCheck: "capability", Capabilities: verdict.Capabilities}
	}

	r.emit(ctx, events.CapabilityVerified, "verifyCapability", id, claimant, map[string]string{
		"capabilities": verdict.Capabilities.String(),
	})
	return verdict
}

// Document returns a copy of the document record, or ErrNotFound.
func (r *Registry) Document(id interfaces.DocumentID) (*interfaces.DocumentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, exists := r.docs[id]
	if !exists {
		return nil, interfaces.ErrNotFound
	}
	return record.Clone(), nil
}

// Executor returns a copy of the document's executor binding, or
// ErrNoExecutor. ErrNotFound when the document itself is unknown.
func (r *Registry) Executor(id interfaces.DocumentID) (*interfaces.ExecutorBinding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, exists := r.docs[id]; !exists {
		return nil, interfaces.ErrNotFound
	}
	binding, bound := r.executors[id]
	if !bound {
		return nil, interfaces.ErrNoExecutor
	}
	cp := *binding
	return &cp, nil
}

// Count returns the number of registered documents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// restore puts a rollback snapshot back in place.
func (r *Registry) restore(snapshot *interfaces.DocumentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[snapshot.ID] = snapshot
}

func (r *Registry) emit(ctx context.Context, eventType events.Type, operation string, id interfaces.DocumentID, actor interfaces.Identity, fields map[string]string) {
	if r.sink == nil {
		return
	}
	event := events.New(eventType, r.now(), operation, id.String(), actor.String(), fields)
	if err := r.sink.Emit(ctx, event); err != nil {
		r.log.Warn("failed to emit document event", slog.String("type", string(eventType)), slog.String("err", err.Error()))
	}
}
