package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMultiBackend_FetchFallsBack(t *testing.T) {
	ctx := context.Background()
	data := []byte("artifact bytes")
	id := interfaces.ComputeArtifactID(data)

	down := new(MockBackend)
	down.On("Available", mock.Anything).Return(false)
	down.On("Name").Return("down")

	missing := new(MockBackend)
	missing.On("Available", mock.Anything).Return(true)
	missing.On("Fetch", mock.Anything, id).Return(nil, interfaces.ErrArtifactNotFound)
	missing.On("Name").Return("missing")

	holding := new(MockBackend)
	holding.On("Available", mock.Anything).Return(true)
	holding.On("Fetch", mock.Anything, id).Return(data, nil)
	holding.On("Name").Return("holding")

	multi := NewMultiBackend([]interfaces.ArtifactBackend{down, missing, holding}, testLogger())

	got, err := multi.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	down.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestMultiBackend_FetchNotFound(t *testing.T) {
	ctx := context.Background()
	id := interfaces.ComputeArtifactID([]byte("gone"))

	missing := new(MockBackend)
	missing.On("Available", mock.Anything).Return(true)
	missing.On("Fetch", mock.Anything, id).Return(nil, interfaces.ErrArtifactNotFound)
	missing.On("Name").Return("missing")

	multi := NewMultiBackend([]interfaces.ArtifactBackend{missing}, testLogger())

	_, err := multi.Fetch(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrArtifactNotFound)
}

func TestMultiBackend_StoreBestEffort(t *testing.T) {
	ctx := context.Background()
	data := []byte("replicated artifact")
	id := interfaces.ComputeArtifactID(data)

	ok := new(MockBackend)
	ok.On("Available", mock.Anything).Return(true)
	ok.On("Store", mock.Anything, data).Return(id, nil)
	ok.On("Name").Return("ok")

	failing := new(MockBackend)
	failing.On("Available", mock.Anything).Return(true)
	failing.On("Store", mock.Anything, data).Return(id, assert.AnError)
	failing.On("Name").Return("failing")

	multi := NewMultiBackend([]interfaces.ArtifactBackend{failing, ok}, testLogger())

	got, err := multi.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestMultiBackend_StoreAllUnavailable(t *testing.T) {
	ctx := context.Background()

	down := new(MockBackend)
	down.On("Available", mock.Anything).Return(false)
	down.On("Name").Return("down")

	multi := NewMultiBackend([]interfaces.ArtifactBackend{down}, testLogger())

	_, err := multi.Store(ctx, []byte("unstorable"))
	assert.Error(t, err)
	assert.False(t, multi.Available(ctx))
}

func TestFileBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	data := []byte("component artifact")
	id, err := backend.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeArtifactID(data), id)

	got, err := backend.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = backend.Fetch(ctx, interfaces.ComputeArtifactID([]byte("other")))
	assert.ErrorIs(t, err, interfaces.ErrArtifactNotFound)

	assert.True(t, backend.Available(ctx))
}

func TestFactory_Schemes(t *testing.T) {
	factory := NewFactory(testLogger())

	fileBackend, err := factory.BackendFor(interfaces.StorageBackendLocation("file://" + t.TempDir()))
	require.NoError(t, err)
	assert.Contains(t, fileBackend.Name(), "file-")

	ipfsBackend, err := factory.BackendFor("ipfs://127.0.0.1:5001/?timeout=10s")
	require.NoError(t, err)
	assert.Equal(t, "ipfs-127.0.0.1-5001", ipfsBackend.Name())

	_, err = factory.BackendFor("gopher://unsupported")
	assert.Error(t, err)
}

func TestFactory_CreateMultiBackendSkipsInvalid(t *testing.T) {
	factory := NewFactory(testLogger())

	multi, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{
		"gopher://bad",
		interfaces.StorageBackendLocation("file://" + t.TempDir()),
	})
	require.NoError(t, err)
	assert.Contains(t, multi.Name(), "multi-")

	_, err = factory.CreateMultiBackend([]interfaces.StorageBackendLocation{"gopher://bad"})
	assert.Error(t, err)
}
