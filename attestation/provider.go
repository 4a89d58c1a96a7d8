package attestation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ruteri/docbind-trust-core/interfaces"
)

// Provider stores and looks up claims. Proof storage is delegated here so
// multiple proof systems can sit behind one verifier interface. A nil claim
// with a nil error means the provider is healthy but holds no such claim.
type Provider interface {
	Claim(ctx context.Context, id ClaimID) (*Claim, error)
}

// MemoryProvider holds claims in memory. Used in tests and as the backing
// store for in-process issuance.
type MemoryProvider struct {
	mu     sync.RWMutex
	claims map[ClaimID]*Claim
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{claims: make(map[ClaimID]*Claim)}
}

// Put stores a claim keyed by its subject id.
func (p *MemoryProvider) Put(claim *Claim) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *claim
	p.claims[claim.SubjectID] = &cp
}

// Revoke marks a stored claim revoked at the given instant.
func (p *MemoryProvider) Revoke(id ClaimID, at time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	claim, ok := p.claims[id]
	if !ok {
		return false
	}
	claim.RevokedAt = at
	return true
}

// Claim returns the stored claim, or nil if unknown.
func (p *MemoryProvider) Claim(_ context.Context, id ClaimID) (*Claim, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	claim, ok := p.claims[id]
	if !ok {
		return nil, nil
	}
	cp := *claim
	return &cp, nil
}

// RemoteProvider looks claims up over HTTP from an external proof system.
type RemoteProvider struct {
	// Address is the provider's base URL.
	Address string

	// Client is the HTTP client to use; http.DefaultClient when nil.
	Client *http.Client
}

// Claim fetches a claim by id from GET {address}/claims/{id}.
func (p *RemoteProvider) Claim(ctx context.Context, id ClaimID) (*Claim, error) {
	url := fmt.Sprintf("%s/claims/%s", p.Address, id.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating provider request: %w", err)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling remote proof provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote proof provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var claim Claim
	if err := json.NewDecoder(resp.Body).Decode(&claim); err != nil {
		return nil, fmt.Errorf("decoding claim from response: %w", err)
	}
	return &claim, nil
}

// ProviderBinder turns a resolved provider component record into a live
// Provider instance.
type ProviderBinder interface {
	Bind(record *interfaces.ComponentRecord) (Provider, error)
}

// EndpointBinder binds provider components by their registered endpoint.
// Supports http and https endpoints.
type EndpointBinder struct {
	Client *http.Client
}

// Bind creates a RemoteProvider for the record's endpoint.
func (b *EndpointBinder) Bind(record *interfaces.ComponentRecord) (Provider, error) {
	if record.Ref.Endpoint == "" {
		return nil, fmt.Errorf("provider component %s has no endpoint", record.ID)
	}
	return &RemoteProvider{Address: record.Ref.Endpoint, Client: b.Client}, nil
}

// StaticBinder binds provider components to fixed in-process providers.
// Used in tests and single-binary deployments.
type StaticBinder struct {
	Providers map[interfaces.ComponentID]Provider
}

// Bind returns the provider registered for the component id.
func (b *StaticBinder) Bind(record *interfaces.ComponentRecord) (Provider, error) {
	provider, ok := b.Providers[record.ID]
	if !ok {
		return nil, fmt.Errorf("no provider bound for component %s", record.ID)
	}
	return provider, nil
}
