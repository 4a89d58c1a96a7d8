package registry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/docbind-trust-core/events"
	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/ruteri/docbind-trust-core/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRegistry(t *testing.T) (*Registry, *events.MemorySink, string) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := events.NewMemorySink()
	baseDir := t.TempDir()

	return New(storage.NewFactory(logger), sink, logger), sink, baseDir
}

func storeArtifact(t *testing.T, baseDir string, data []byte) interfaces.ComponentRef {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := storage.NewFileBackend(baseDir, logger)
	require.NoError(t, err)

	id, err := backend.Store(context.Background(), data)
	require.NoError(t, err)

	return interfaces.ComponentRef{
		ArtifactURI: "file://" + baseDir,
		ArtifactID:  id,
	}
}

func TestRegister_CapturesDigest(t *testing.T) {
	reg, sink, baseDir := setupRegistry(t)
	ctx := context.Background()

	artifact := []byte("resolver binary v1")
	ref := storeArtifact(t, baseDir, artifact)
	id := interfaces.ComponentIDForName("resolver-a")

	record, err := reg.Register(ctx, id, ref, interfaces.ResolverComponent, "primary resolver")
	require.NoError(t, err)
	assert.True(t, record.Active)
	assert.Equal(t, IdentityDigest(artifact), record.IdentityDigest)
	assert.Len(t, sink.ByType(events.ComponentRegistered), 1)

	// Same id fails.
	_, err = reg.Register(ctx, id, ref, interfaces.ResolverComponent, "duplicate")
	assert.ErrorIs(t, err, interfaces.ErrAlreadyRegistered)
}

func TestRegister_NotExecutable(t *testing.T) {
	reg, _, baseDir := setupRegistry(t)

	ref := interfaces.ComponentRef{
		ArtifactURI: "file://" + baseDir,
		ArtifactID:  interfaces.ComputeArtifactID([]byte("never stored")),
	}

	_, err := reg.Register(context.Background(), interfaces.ComponentIDForName("ghost"), ref, interfaces.ProviderComponent, "")
	assert.ErrorIs(t, err, interfaces.ErrNotExecutable)
}

func TestResolve_IntegrityGate(t *testing.T) {
	reg, _, baseDir := setupRegistry(t)
	ctx := context.Background()

	artifact := []byte("provider binary v1")
	ref := storeArtifact(t, baseDir, artifact)
	id := interfaces.ComponentIDForName("provider-a")

	_, err := reg.Register(ctx, id, ref, interfaces.ProviderComponent, "")
	require.NoError(t, err)

	// Active and digest intact: resolves.
	record := reg.Resolve(ctx, id)
	require.NotNil(t, record)
	assert.Equal(t, id, record.ID)

	// Unknown id: nil, no error.
	assert.Nil(t, reg.Resolve(ctx, interfaces.ComponentIDForName("unknown")))

	// Inactive: nil.
	require.NoError(t, reg.Deactivate(ctx, id, "maintenance"))
	assert.Nil(t, reg.Resolve(ctx, id))
	require.NoError(t, reg.Reactivate(ctx, id))
	require.NotNil(t, reg.Resolve(ctx, id))

	// Post-registration code substitution: overwrite the stored artifact
	// file in place, keeping the same storage address.
	path := filepath.Join(baseDir, "artifacts", ref.ArtifactID.String())
	require.NoError(t, os.WriteFile(path, []byte("hostile replacement"), 0644))
	assert.Nil(t, reg.Resolve(ctx, id))
}

func TestReactivate_IdentityChanged(t *testing.T) {
	reg, _, baseDir := setupRegistry(t)
	ctx := context.Background()

	artifact := []byte("verifier binary v1")
	ref := storeArtifact(t, baseDir, artifact)
	id := interfaces.ComponentIDForName("verifier-a")

	_, err := reg.Register(ctx, id, ref, interfaces.VerifierComponent, "")
	require.NoError(t, err)
	require.NoError(t, reg.Deactivate(ctx, id, "compromise suspected"))

	// Swap the artifact while the component is down.
	path := filepath.Join(baseDir, "artifacts", ref.ArtifactID.String())
	require.NoError(t, os.WriteFile(path, []byte("compromised build"), 0644))

	assert.ErrorIs(t, reg.Reactivate(ctx, id), interfaces.ErrIdentityChanged)
	assert.Nil(t, reg.Resolve(ctx, id))
}

func TestLifecycle_UnknownComponent(t *testing.T) {
	reg, _, _ := setupRegistry(t)
	ctx := context.Background()
	unknown := interfaces.ComponentIDForName("unknown")

	assert.ErrorIs(t, reg.Deactivate(ctx, unknown, "x"), interfaces.ErrComponentNotFound)
	assert.ErrorIs(t, reg.Reactivate(ctx, unknown), interfaces.ErrComponentNotFound)
}

func TestEnumeration(t *testing.T) {
	reg, _, baseDir := setupRegistry(t)
	ctx := context.Background()

	refA := storeArtifact(t, baseDir, []byte("artifact a"))
	refB := storeArtifact(t, baseDir, []byte("artifact b"))
	refC := storeArtifact(t, baseDir, []byte("artifact c"))

	_, err := reg.Register(ctx, interfaces.ComponentIDForName("a"), refA, interfaces.ResolverComponent, "")
	require.NoError(t, err)
	_, err = reg.Register(ctx, interfaces.ComponentIDForName("b"), refB, interfaces.ProviderComponent, "")
	require.NoError(t, err)
	_, err = reg.Register(ctx, interfaces.ComponentIDForName("c"), refC, interfaces.ResolverComponent, "")
	require.NoError(t, err)

	assert.Equal(t, 3, reg.Count(ctx))
	assert.Len(t, reg.ListByType(ctx, interfaces.ResolverComponent), 2)
	assert.Len(t, reg.ListByType(ctx, interfaces.ProviderComponent), 1)
	assert.Empty(t, reg.ListByType(ctx, interfaces.TokenImplementationComponent))

	page, err := reg.List(ctx, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, interfaces.ComponentIDForName("a"), page[0].ID)

	page, err = reg.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	page, err = reg.List(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = reg.List(ctx, 0, DefaultMaxPageSize+1)
	assert.ErrorIs(t, err, interfaces.ErrBatchSizeExceeded)
}
