package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/docbind-trust-core/interfaces"
)

// IPFSBackend stores artifacts in IPFS. IPFS addresses content by CID while
// the registry addresses artifacts by SHA-256, so the backend keeps a
// process-local index from artifact id to CID. Pinned content stays
// retrievable by CID across restarts; the index is repopulated on Store.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	log         *slog.Logger
	locationURI string

	mu       sync.RWMutex
	cidIndex map[interfaces.ArtifactID]string
}

// NewIPFSBackend creates an IPFS artifact backend connected to the given
// node API address.
func NewIPFSBackend(host, port, timeout string, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	return &IPFSBackend{
		shell:       shell.NewShell(apiURL),
		host:        host,
		port:        port,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout),
		cidIndex:    make(map[interfaces.ArtifactID]string),
	}, nil
}

// Fetch retrieves an artifact from IPFS. Returns ErrArtifactNotFound if the
// artifact id is unknown to this backend, ErrBackendUnavailable if the node
// is unreachable.
func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.ArtifactID) ([]byte, error) {
	start := time.Now()

	b.mu.RLock()
	cid, ok := b.cidIndex[id]
	b.mu.RUnlock()
	if !ok {
		return nil, interfaces.ErrArtifactNotFound
	}

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.Cat(fmt.Sprintf("/ipfs/%s", cid))
	if err != nil {
		b.log.Error("Failed to fetch artifact from IPFS",
			slog.String("cid", cid),
			slog.String("artifact_id", id.String()),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to fetch artifact from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact from IPFS: %w", err)
	}

	b.log.Debug("Fetched artifact from IPFS",
		slog.String("cid", cid),
		slog.String("artifact_id", id.String()),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Store adds an artifact to IPFS, pins it, and returns its content address.
func (b *IPFSBackend) Store(ctx context.Context, data []byte) (interfaces.ArtifactID, error) {
	id := interfaces.ComputeArtifactID(data)

	if !b.shell.IsUp() {
		return id, interfaces.ErrBackendUnavailable
	}

	cid, err := b.shell.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return id, fmt.Errorf("failed to add artifact to IPFS: %w", err)
	}

	b.mu.Lock()
	b.cidIndex[id] = cid
	b.mu.Unlock()

	b.log.Debug("Stored artifact in IPFS",
		slog.String("cid", cid),
		slog.String("artifact_id", id.String()))

	return id, nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI this backend was created from.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}
