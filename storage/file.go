package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/docbind-trust-core/interfaces"
)

// FileBackend stores artifacts on the local filesystem, one file per
// artifact, named by content address.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file storage backend rooted at baseDir, creating
// the directory if needed.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "artifacts"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch retrieves an artifact by its identifier. Returns ErrArtifactNotFound
// if the file doesn't exist.
func (b *FileBackend) Fetch(ctx context.Context, id interfaces.ArtifactID) ([]byte, error) {
	path := b.artifactPath(id)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, interfaces.ErrArtifactNotFound
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact file: %w", err)
	}

	b.log.Debug("Fetched artifact from file",
		slog.String("path", path),
		slog.Int("size", len(data)))

	return data, nil
}

// Store saves an artifact and returns its content address.
func (b *FileBackend) Store(ctx context.Context, data []byte) (interfaces.ArtifactID, error) {
	id := interfaces.ComputeArtifactID(data)
	path := b.artifactPath(id)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return id, fmt.Errorf("failed to write artifact file: %w", err)
	}

	b.log.Debug("Stored artifact in file",
		slog.String("path", path),
		slog.String("artifact_id", id.String()))

	return id, nil
}

// Available checks that the base directory still exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI this backend was created from.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) artifactPath(id interfaces.ArtifactID) string {
	return filepath.Join(b.baseDir, "artifacts", id.String())
}
