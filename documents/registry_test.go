package documents

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/docbind-trust-core/attestation"
	"github.com/ruteri/docbind-trust-core/capability"
	"github.com/ruteri/docbind-trust-core/events"
	"github.com/ruteri/docbind-trust-core/governance"
	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/ruteri/docbind-trust-core/registry"
	"github.com/ruteri/docbind-trust-core/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner     = interfaces.Identity{0x01}
	executor  = interfaces.Identity{0x02}
	stranger  = interfaces.Identity{0x03}
	deployer  = interfaces.Identity{0x0a}
	emergency = interfaces.Identity{0x0b}

	contentHash = interfaces.ContentHash{0xc0, 0xff, 0xee}
	tokenizerID = interfaces.ComponentIDForName("tokenizer")
	resolverR1  = interfaces.ComponentIDForName("resolver-r1")
	resolverR2  = interfaces.ComponentIDForName("resolver-r2")
)

type fixture struct {
	registry   *Registry
	gov        *governance.Machine
	sink       *events.MemorySink
	components *registry.StaticResolver
	hooks      map[interfaces.ComponentID]resolver.Hook
	now        time.Time
}

type hookFunc func(ctx context.Context, inv resolver.Invocation) error

func (f hookFunc) OnDocumentEvent(ctx context.Context, inv resolver.Invocation) error {
	return f(ctx, inv)
}

func setup(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := events.NewMemorySink()
	gov := governance.NewMachine(governance.Config{InitialAuthority: deployer, EmergencyAuthority: emergency}, sink, log)

	components := &registry.StaticResolver{Components: map[interfaces.ComponentID]*interfaces.ComponentRecord{
		tokenizerID: {ID: tokenizerID, Active: true, Type: interfaces.TokenImplementationComponent},
		resolverR1:  {ID: resolverR1, Active: true, Type: interfaces.ResolverComponent},
		resolverR2:  {ID: resolverR2, Active: true, Type: interfaces.ResolverComponent},
	}}
	hooks := map[interfaces.ComponentID]resolver.Hook{
		resolverR1: hookFunc(func(context.Context, resolver.Invocation) error { return nil }),
		resolverR2: hookFunc(func(context.Context, resolver.Invocation) error { return nil }),
	}
	dispatcher := resolver.NewDispatcher(components, &resolver.StaticBinder{Hooks: hooks}, sink, log)

	reg := NewRegistry(Config{}, components, dispatcher, nil, gov, sink, log)
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	f := &fixture{registry: reg, gov: gov, sink: sink, components: components, hooks: hooks, now: now}
	reg.SetClock(func() time.Time { return f.now }, 72*time.Hour)
	return f
}

func (f *fixture) register(t *testing.T) interfaces.DocumentID {
	t.Helper()
	id, err := f.registry.Register(context.Background(), owner, contentHash, tokenizerID, resolverR1, nil, interfaces.Identity{})
	require.NoError(t, err)
	return id
}

func TestRegister(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.registry.Register(ctx, owner, contentHash, tokenizerID, resolverR1, []interfaces.ComponentID{resolverR2}, interfaces.Identity{})
	require.NoError(t, err)
	assert.Equal(t, interfaces.DocumentIDForContent(contentHash), id)

	record, err := f.registry.Document(id)
	require.NoError(t, err)
	assert.True(t, record.Owner.Equal(owner))
	assert.Equal(t, contentHash, record.ContentHash)
	assert.Equal(t, resolverR1, record.PrimaryResolverID)
	assert.False(t, record.ResolversLocked)

	assert.Len(t, f.sink.ByType(events.DocumentRegistered), 1)
}

func TestRegister_DuplicateFails(t *testing.T) {
	f := setup(t)
	f.register(t)

	_, err := f.registry.Register(context.Background(), stranger, contentHash, tokenizerID, resolverR1, nil, interfaces.Identity{})
	assert.ErrorIs(t, err, interfaces.ErrAlreadyExists)
}

func TestRegister_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.registry.Register(ctx, owner, interfaces.ContentHash{}, tokenizerID, resolverR1, nil, interfaces.Identity{})
	assert.ErrorIs(t, err, interfaces.ErrInvalidContentHash)

	_, err = f.registry.Register(ctx, interfaces.Identity{}, contentHash, tokenizerID, resolverR1, nil, interfaces.Identity{})
	assert.ErrorIs(t, err, interfaces.ErrNullOwner)

	_, err = f.registry.Register(ctx, owner, contentHash, tokenizerID, resolverR1, nil, owner)
	assert.ErrorIs(t, err, interfaces.ErrExecutorIsOwner)
}

func TestRegister_WithExecutor(t *testing.T) {
	f := setup(t)

	id, err := f.registry.Register(context.Background(), owner, contentHash, tokenizerID, resolverR1, nil, executor)
	require.NoError(t, err)

	binding, err := f.registry.Executor(id)
	require.NoError(t, err)
	assert.True(t, binding.Executor.Equal(executor))
	assert.Equal(t, interfaces.UnconditionalExecutor, binding.Trust)
}

// A failing primary resolver aborts registration entirely: no record
// survives.
func TestRegister_PrimaryFailureRollsBack(t *testing.T) {
	f := setup(t)
	f.hooks[resolverR1] = hookFunc(func(context.Context, resolver.Invocation) error {
		return errors.New("resolver rejected")
	})

	id, err := f.registry.Register(context.Background(), owner, contentHash, tokenizerID, resolverR1, nil, executor)
	require.Error(t, err)
	assert.True(t, id.IsZero())

	_, err = f.registry.Document(interfaces.DocumentIDForContent(contentHash))
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	// The aborted registration never reached the audit stream.
	assert.Empty(t, f.sink.ByType(events.DocumentRegistered))
}

func TestTransferOwnership(t *testing.T) {
	f := setup(t)
	id := f.register(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.registry.TransferOwnership(ctx, stranger, id, stranger, "takeover"), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, f.registry.TransferOwnership(ctx, owner, id, interfaces.Identity{}, "null"), interfaces.ErrNullOwner)
	assert.ErrorIs(t, f.registry.TransferOwnership(ctx, owner, id, owner, "self"), interfaces.ErrSameOwner)
	assert.ErrorIs(t, f.registry.TransferOwnership(ctx, owner, interfaces.DocumentID{0xde}, stranger, "gone"), interfaces.ErrNotFound)

	require.NoError(t, f.registry.TransferOwnership(ctx, owner, id, stranger, "sale"))
	record, err := f.registry.Document(id)
	require.NoError(t, err)
	assert.True(t, record.Owner.Equal(stranger))

	emitted := f.sink.ByType(events.OwnershipTransferred)
	require.Len(t, emitted, 1)
	assert.Equal(t, "sale", emitted[0].Fields["reason"])

	// The previous owner lost all rights.
	assert.ErrorIs(t, f.registry.TransferOwnership(ctx, owner, id, owner, "back"), interfaces.ErrUnauthorized)
}

func TestTransferOwnership_PrimaryFailureRollsBack(t *testing.T) {
	f := setup(t)
	id := f.register(t)
	f.hooks[resolverR1] = hookFunc(func(context.Context, resolver.Invocation) error {
		return errors.New("boom")
	})

	err := f.registry.TransferOwnership(context.Background(), owner, id, stranger, "sale")
	require.Error(t, err)

	record, err := f.registry.Document(id)
	require.NoError(t, err)
	assert.True(t, record.Owner.Equal(owner), "owner restored after rollback")
	assert.Empty(t, f.sink.ByType(events.OwnershipTransferred))
}

func TestExecutorLifecycle(t *testing.T) {
	f := setup(t)
	id := f.register(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.registry.AuthorizeExecutor(ctx, stranger, id, executor, interfaces.UnconditionalExecutor, interfaces.ComponentID{}), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, f.registry.AuthorizeExecutor(ctx, owner, id, owner, interfaces.UnconditionalExecutor, interfaces.ComponentID{}), interfaces.ErrExecutorIsOwner)
	assert.ErrorIs(t, f.registry.RevokeExecutor(ctx, owner, id), interfaces.ErrNoExecutor)

	require.NoError(t, f.registry.AuthorizeExecutor(ctx, owner, id, executor, interfaces.UnconditionalExecutor, interfaces.ComponentID{}))
	binding, err := f.registry.Executor(id)
	require.NoError(t, err)
	assert.Equal(t, interfaces.UnconditionalExecutor, binding.Trust)

	require.NoError(t, f.registry.RevokeExecutor(ctx, owner, id))
	_, err = f.registry.Executor(id)
	assert.ErrorIs(t, err, interfaces.ErrNoExecutor)
}

func TestAuthorizeExecutor_CodeIdentity(t *testing.T) {
	f := setup(t)
	id := f.register(t)
	ctx := context.Background()

	// Backing component must resolve.
	unknown := interfaces.ComponentIDForName("unregistered")
	assert.ErrorIs(t, f.registry.AuthorizeExecutor(ctx, owner, id, executor, interfaces.CodeIdentityExecutor, unknown), interfaces.ErrWrongBinding)
	assert.ErrorIs(t, f.registry.AuthorizeExecutor(ctx, owner, id, executor, interfaces.CodeIdentityExecutor, interfaces.ComponentID{}), interfaces.ErrWrongBinding)

	require.NoError(t, f.registry.AuthorizeExecutor(ctx, owner, id, executor, interfaces.CodeIdentityExecutor, tokenizerID))
}

func TestAuthorizeAction_ThreePaths(t *testing.T) {
	f := setup(t)
	id := f.register(t)
	ctx := context.Background()

	// PATH 1: owner.
	assert.NoError(t, f.registry.AuthorizeAction(ctx, owner, id))
	// PATH 3: zero-trust default.
	assert.ErrorIs(t, f.registry.AuthorizeAction(ctx, stranger, id), interfaces.ErrUnauthorized)

	// PATH 2: code-identity executor bound to the document's tokenizer.
	require.NoError(t, f.registry.AuthorizeExecutor(ctx, owner, id, executor, interfaces.CodeIdentityExecutor, tokenizerID))
	assert.NoError(t, f.registry.AuthorizeAction(ctx, executor, id))

	// The executor's authority dies with its backing component.
	f.components.Components[tokenizerID].Active = false
	assert.ErrorIs(t, f.registry.AuthorizeAction(ctx, executor, id), interfaces.ErrUnauthorized)
}

func TestAuthorizeAction_WrongBinding(t *testing.T) {
	f := setup(t)
	id := f.register(t)
	ctx := context.Background()

	// Executor backed by a component that is not the document's tokenizer
	// binding.
	require.NoError(t, f.registry.AuthorizeExecutor(ctx, owner, id, executor, interfaces.CodeIdentityExecutor, resolverR2))
	assert.ErrorIs(t, f.registry.AuthorizeAction(ctx, executor, id), interfaces.ErrWrongBinding)
}

// Spec scenario: lock, locked set fails, emergency unlock before expiry
// succeeds, after expiry a non-governance caller fails.
func TestResolverLockScenario(t *testing.T) {
	f := setup(t)
	id := f.register(t)
	ctx := context.Background()

	require.NoError(t, f.registry.LockResolvers(ctx, owner, id))
	record, err := f.registry.Document(id)
	require.NoError(t, err)
	assert.True(t, record.ResolversLocked)

	assert.ErrorIs(t, f.registry.SetPrimaryResolver(ctx, owner, id, resolverR2), interfaces.ErrResolverConfigurationLocked)
	assert.ErrorIs(t, f.registry.AddAdditionalResolver(ctx, owner, id, resolverR2), interfaces.ErrResolverConfigurationLocked)

	// Emergency authority unlocks within the window.
	require.NoError(t, f.registry.EmergencyUnlockResolvers(ctx, emergency, id, "test"))
	record, err = f.registry.Document(id)
	require.NoError(t, err)
	assert.False(t, record.ResolversLocked)

	require.NoError(t, f.registry.SetPrimaryResolver(ctx, owner, id, resolverR2))
	require.NoError(t, f.registry.LockResolvers(ctx, owner, id))

	// Window expires: emergency authority loses its powers.
	f.now = f.now.Add(100 * time.Hour)
	assert.ErrorIs(t, f.registry.EmergencyUnlockResolvers(ctx, emergency, id, "late"), interfaces.ErrEmergencyPowersExpired)

	// Governance authority may still unlock.
	require.NoError(t, f.registry.EmergencyUnlockResolvers(ctx, deployer, id, "governance override"))
}

func TestEmergencyUnlock_RequiresJustification(t *testing.T) {
	f := setup(t)
	id := f.register(t)

	assert.ErrorIs(t, f.registry.EmergencyUnlockResolvers(context.Background(), emergency, id, ""), interfaces.ErrEmptyJustification)
}

func TestEmergencyUnlock_StrangerWithinWindow(t *testing.T) {
	f := setup(t)
	id := f.register(t)

	assert.ErrorIs(t, f.registry.EmergencyUnlockResolvers(context.Background(), stranger, id, "nope"), interfaces.ErrUnauthorized)
}

func TestResolverConfiguration_OwnerOnly(t *testing.T) {
	f := setup(t)
	id := f.register(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.registry.SetPrimaryResolver(ctx, stranger, id, resolverR2), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, f.registry.AddAdditionalResolver(ctx, stranger, id, resolverR2), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, f.registry.LockResolvers(ctx, stranger, id), interfaces.ErrUnauthorized)

	require.NoError(t, f.registry.AddAdditionalResolver(ctx, owner, id, resolverR2))
	record, err := f.registry.Document(id)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ComponentID{resolverR2}, record.AdditionalResolverIDs)
}

// A resolver calling back into the registry for the same document is
// rejected as reentrant, and the guard is released afterwards.
func TestReentrancyGuard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var nestedErr error
	id := interfaces.DocumentIDForContent(contentHash)
	f.hooks[resolverR1] = hookFunc(func(ctx context.Context, inv resolver.Invocation) error {
		nestedErr = f.registry.TransferOwnership(ctx, owner, id, stranger, "nested")
		return nil
	})

	_, err := f.registry.Register(ctx, owner, contentHash, tokenizerID, resolverR1, nil, interfaces.Identity{})
	require.NoError(t, err)
	assert.ErrorIs(t, nestedErr, interfaces.ErrReentrantCall)

	// Guard released: a fresh call goes through.
	f.hooks[resolverR1] = hookFunc(func(context.Context, resolver.Invocation) error { return nil })
	assert.NoError(t, f.registry.TransferOwnership(ctx, owner, id, stranger, "after"))
}

func TestPauseGate(t *testing.T) {
	f := setup(t)
	id := f.register(t)
	ctx := context.Background()

	require.NoError(t, f.gov.Pause(ctx, deployer))

	_, err := f.registry.Register(ctx, owner, interfaces.ContentHash{0x02}, tokenizerID, resolverR1, nil, interfaces.Identity{})
	assert.ErrorIs(t, err, interfaces.ErrSystemPaused)
	assert.ErrorIs(t, f.registry.TransferOwnership(ctx, owner, id, stranger, "x"), interfaces.ErrSystemPaused)
	assert.ErrorIs(t, f.registry.LockResolvers(ctx, owner, id), interfaces.ErrSystemPaused)

	// Reads stay available while paused.
	_, err = f.registry.Document(id)
	assert.NoError(t, err)

	require.NoError(t, f.gov.Unpause(ctx, deployer))
	assert.NoError(t, f.registry.TransferOwnership(ctx, owner, id, stranger, "x"))
}

func TestExecutorAllowList(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := events.NewMemorySink()
	gov := governance.NewMachine(governance.Config{InitialAuthority: deployer}, sink, log)
	components := &registry.StaticResolver{}
	dispatcher := resolver.NewDispatcher(components, &resolver.StaticBinder{}, sink, log)

	reg := NewRegistry(Config{ExecutorAllowList: []interfaces.Identity{executor}}, components, dispatcher, nil, gov, sink, log)

	id, err := reg.Register(context.Background(), owner, contentHash, interfaces.ComponentID{}, interfaces.ComponentID{}, nil, executor)
	require.NoError(t, err)

	binding, err := reg.Executor(id)
	require.NoError(t, err)
	assert.Equal(t, interfaces.AllowListedExecutor, binding.Trust)
}

func TestVerifyCapability_DocumentGate(t *testing.T) {
	f := setup(t)
	id := f.register(t)

	verdict := f.registry.VerifyCapability(context.Background(), attestation.Proof{}, owner, interfaces.DocumentID{0xde}, capability.Tokenize)
	assert.False(t, verdict.Granted)
	assert.Equal(t, "document_lookup", verdict.FailedCheck)

	// No verifier wired in this fixture.
	verdict = f.registry.VerifyCapability(context.Background(), attestation.Proof{}, owner, id, capability.Tokenize)
	assert.False(t, verdict.Granted)
	assert.Equal(t, "verifier_unconfigured", verdict.FailedCheck)
}
