// Package clients provides client libraries for the trust core HTTP API.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ruteri/docbind-trust-core/api"
	"github.com/ruteri/docbind-trust-core/interfaces"
)

// TrustCoreClient wraps the trust core HTTP API. It handles request
// encoding, response parsing, and error surfacing.
type TrustCoreClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewTrustCoreClient creates a client for the API at baseURL
// (e.g. "http://localhost:8080"). The optional timeout defaults to 30
// seconds.
func NewTrustCoreClient(baseURL string, timeout ...time.Duration) *TrustCoreClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &TrustCoreClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// do runs one request and decodes the response into out (when non-nil).
// Non-2xx responses are surfaced as errors carrying the server's message.
func (c *TrustCoreClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp api.ErrorResponse
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s failed with code %d: %s", errResp.Operation, resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("request failed with code %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// RegisterDocument registers a document and returns its derived id.
func (c *TrustCoreClient) RegisterDocument(ctx context.Context, req api.RegisterDocumentRequest) (interfaces.DocumentID, error) {
	var resp api.RegisterDocumentResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents", req, &resp); err != nil {
		return interfaces.DocumentID{}, err
	}
	return resp.DocumentID, nil
}

// GetDocument fetches a document record.
func (c *TrustCoreClient) GetDocument(ctx context.Context, id interfaces.DocumentID) (*interfaces.DocumentRecord, error) {
	var record interfaces.DocumentRecord
	if err := c.do(ctx, http.MethodGet, "/api/v1/documents/"+id.String(), nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// TransferOwnership reassigns a document to a new owner.
func (c *TrustCoreClient) TransferOwnership(ctx context.Context, id interfaces.DocumentID, req api.TransferOwnershipRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/documents/"+id.String()+"/transfer", req, nil)
}

// AuthorizeExecutor delegates bounded operations on a document.
func (c *TrustCoreClient) AuthorizeExecutor(ctx context.Context, id interfaces.DocumentID, req api.AuthorizeExecutorRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/documents/"+id.String()+"/executor", req, nil)
}

// RevokeExecutor removes a document's executor binding.
func (c *TrustCoreClient) RevokeExecutor(ctx context.Context, id interfaces.DocumentID, req api.RevokeExecutorRequest) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/documents/"+id.String()+"/executor", req, nil)
}

// SetPrimaryResolver replaces a document's primary resolver.
func (c *TrustCoreClient) SetPrimaryResolver(ctx context.Context, id interfaces.DocumentID, req api.SetResolverRequest) error {
	return c.do(ctx, http.MethodPut, "/api/v1/documents/"+id.String()+"/resolvers/primary", req, nil)
}

// AddAdditionalResolver appends a best-effort resolver to a document.
func (c *TrustCoreClient) AddAdditionalResolver(ctx context.Context, id interfaces.DocumentID, req api.SetResolverRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/documents/"+id.String()+"/resolvers/additional", req, nil)
}

// LockResolvers freezes a document's resolver configuration.
func (c *TrustCoreClient) LockResolvers(ctx context.Context, id interfaces.DocumentID, req api.LockResolversRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/documents/"+id.String()+"/resolvers/lock", req, nil)
}

// EmergencyUnlockResolvers reopens a locked resolver configuration.
func (c *TrustCoreClient) EmergencyUnlockResolvers(ctx context.Context, id interfaces.DocumentID, req api.EmergencyUnlockRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/documents/"+id.String()+"/resolvers/emergency-unlock", req, nil)
}

// VerifyCapability runs the attestation pipeline for a document.
func (c *TrustCoreClient) VerifyCapability(ctx context.Context, id interfaces.DocumentID, req api.VerifyCapabilityRequest) (*api.VerifyCapabilityResponse, error) {
	var resp api.VerifyCapabilityResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents/"+id.String()+"/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterComponent registers an infrastructure component.
func (c *TrustCoreClient) RegisterComponent(ctx context.Context, req api.RegisterComponentRequest) (*interfaces.ComponentRecord, error) {
	var record interfaces.ComponentRecord
	if err := c.do(ctx, http.MethodPost, "/api/v1/components", req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ResolveComponent fetches a component record. Unknown, inactive, and
// integrity-failed components all surface as an error from the 404.
func (c *TrustCoreClient) ResolveComponent(ctx context.Context, id interfaces.ComponentID) (*interfaces.ComponentRecord, error) {
	var record interfaces.ComponentRecord
	if err := c.do(ctx, http.MethodGet, "/api/v1/components/"+id.String(), nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeactivateComponent takes a component out of resolution.
func (c *TrustCoreClient) DeactivateComponent(ctx context.Context, id interfaces.ComponentID, reason string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/components/"+id.String()+"/deactivate", api.DeactivateComponentRequest{Reason: reason}, nil)
}

// ReactivateComponent restores a deactivated component after the registry
// re-verifies its identity digest.
func (c *TrustCoreClient) ReactivateComponent(ctx context.Context, id interfaces.ComponentID) error {
	return c.do(ctx, http.MethodPost, "/api/v1/components/"+id.String()+"/reactivate", nil, nil)
}

// ListComponents returns one page of components, optionally filtered by
// type (pass an empty string for all).
func (c *TrustCoreClient) ListComponents(ctx context.Context, componentType string, offset, limit int) (*api.ComponentListResponse, error) {
	path := fmt.Sprintf("/api/v1/components?offset=%d&limit=%d", offset, limit)
	if componentType != "" {
		path += "&type=" + componentType
	}

	var resp api.ComponentListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GovernanceState fetches the current governance state.
func (c *TrustCoreClient) GovernanceState(ctx context.Context) (*interfaces.GovernanceState, error) {
	var state interfaces.GovernanceState
	if err := c.do(ctx, http.MethodGet, "/api/v1/governance", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// TransitionGovernance advances the governance stage.
func (c *TrustCoreClient) TransitionGovernance(ctx context.Context, req api.GovernanceTransitionRequest) (*interfaces.GovernanceState, error) {
	var state interfaces.GovernanceState
	if err := c.do(ctx, http.MethodPost, "/api/v1/governance/transition", req, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// FreezeGovernance moves governance into the terminal frozen stage.
func (c *TrustCoreClient) FreezeGovernance(ctx context.Context, req api.FreezeGovernanceRequest) (*interfaces.GovernanceState, error) {
	var state interfaces.GovernanceState
	if err := c.do(ctx, http.MethodPost, "/api/v1/governance/freeze", req, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SetPause sets or clears the system-wide pause flag.
func (c *TrustCoreClient) SetPause(ctx context.Context, req api.SetPauseRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/governance/pause", req, nil)
}
