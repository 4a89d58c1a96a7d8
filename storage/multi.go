package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/docbind-trust-core/interfaces"
)

// MultiBackend aggregates several artifact backends with fallback. Fetches
// return the first hit; stores go to every available backend.
type MultiBackend struct {
	backends []interfaces.ArtifactBackend
	log      *slog.Logger
}

// NewMultiBackend creates a multi-backend over the given backends.
func NewMultiBackend(backends []interfaces.ArtifactBackend, log *slog.Logger) *MultiBackend {
	if log == nil {
		log = slog.Default()
	}

	return &MultiBackend{
		backends: backends,
		log:      log,
	}
}

// Fetch tries each backend in order and returns the first successful result.
func (m *MultiBackend) Fetch(ctx context.Context, id interfaces.ArtifactID) ([]byte, error) {
	start := time.Now()
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("artifact_id", id.String()))
			continue
		}

		data, err := backend.Fetch(ctx, id)
		if err == nil {
			m.log.Debug("Fetched artifact",
				slog.String("backend_name", backend.Name()),
				slog.String("artifact_id", id.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("artifact_id", id.String()),
			"err", err)
	}

	if len(errs) == 0 {
		return nil, interfaces.ErrBackendUnavailable
	}
	for _, err := range errs {
		if !errors.Is(err, interfaces.ErrArtifactNotFound) {
			return nil, errors.Join(errs...)
		}
	}
	return nil, interfaces.ErrArtifactNotFound
}

// Store saves the artifact to every available backend. It succeeds if at
// least one backend accepted the artifact.
func (m *MultiBackend) Store(ctx context.Context, data []byte) (interfaces.ArtifactID, error) {
	id := interfaces.ComputeArtifactID(data)
	stored := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			continue
		}

		if _, err := backend.Store(ctx, data); err != nil {
			m.log.Warn("Failed to store artifact in backend",
				slog.String("backend_name", backend.Name()),
				slog.String("artifact_id", id.String()),
				"err", err)
			continue
		}
		stored++
	}

	if stored == 0 {
		return id, fmt.Errorf("failed to store artifact in any backend")
	}

	return id, nil
}

// Available reports whether at least one backend is reachable.
func (m *MultiBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns a unique identifier for this backend.
func (m *MultiBackend) Name() string {
	return fmt.Sprintf("multi-%d", len(m.backends))
}

// LocationURI returns a synthetic URI listing the aggregated backends.
func (m *MultiBackend) LocationURI() string {
	return fmt.Sprintf("multi://%d-backends", len(m.backends))
}
