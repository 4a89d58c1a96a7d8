package interfaces

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/url"
)

// Storage errors.
var (
	// ErrArtifactNotFound indicates the requested artifact does not exist in
	// the backend.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrInvalidLocationURI indicates a malformed storage location URI.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrBackendUnavailable indicates the backend could not be reached.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)

// ArtifactID is a 32-byte SHA-256 hash addressing an artifact within a
// storage backend. Note this is the storage address, not the component
// identity digest: identity digests are computed over the fetched bytes with
// a different hash so a backend cannot satisfy the integrity check by
// construction.
type ArtifactID = ContentHash

// ComputeArtifactID calculates the storage address for artifact data.
func ComputeArtifactID(data []byte) ArtifactID {
	return ArtifactID(sha256.Sum256(data))
}

// StorageBackendLocation is a URI identifying a storage backend, in the form
// [scheme]://[auth@]host[:port][/path][?params].
type StorageBackendLocation string

// Validate checks that the location parses as a URI with a scheme.
func (loc StorageBackendLocation) Validate() error {
	u, err := url.Parse(string(loc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("%w: missing scheme", ErrInvalidLocationURI)
	}
	return nil
}

// String returns the raw URI.
func (loc StorageBackendLocation) String() string {
	return string(loc)
}

// ArtifactBackend stores and retrieves component artifacts by content
// address. Implementations must be safe for concurrent use.
type ArtifactBackend interface {
	// Fetch retrieves artifact data by its identifier. Returns
	// ErrArtifactNotFound if the backend does not hold the artifact.
	Fetch(ctx context.Context, id ArtifactID) ([]byte, error)

	// Store saves artifact data and returns its identifier.
	Store(ctx context.Context, data []byte) (ArtifactID, error)

	// Available reports whether the backend is currently reachable.
	Available(ctx context.Context) bool

	// Name returns a unique identifier for this backend.
	Name() string

	// LocationURI returns the URI this backend was created from.
	LocationURI() string
}

// ArtifactBackendFactory creates artifact backends from location URIs.
type ArtifactBackendFactory interface {
	// BackendFor creates a storage backend for the given location.
	BackendFor(location StorageBackendLocation) (ArtifactBackend, error)

	// CreateMultiBackend aggregates backends for redundant storage.
	CreateMultiBackend(locations []StorageBackendLocation) (ArtifactBackend, error)
}
