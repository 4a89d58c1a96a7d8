package api

import (
	"github.com/ruteri/docbind-trust-core/capability"
	"github.com/ruteri/docbind-trust-core/interfaces"
)

// RegisterDocumentRequest creates a document record owned by the caller.
type RegisterDocumentRequest struct {
	Caller                interfaces.Identity      `json:"caller"`
	ContentHash           interfaces.ContentHash   `json:"content_hash"`
	TokenizerBinding      interfaces.ComponentID   `json:"tokenizer_binding,omitzero"`
	PrimaryResolverID     interfaces.ComponentID   `json:"primary_resolver_id,omitzero"`
	AdditionalResolverIDs []interfaces.ComponentID `json:"additional_resolver_ids,omitempty"`
	Executor              interfaces.Identity      `json:"executor,omitzero"`
}

// RegisterDocumentResponse returns the derived document id.
type RegisterDocumentResponse struct {
	DocumentID interfaces.DocumentID `json:"document_id"`
}

// TransferOwnershipRequest reassigns a document to a new owner. The reason
// is mandatory audit context carried into the emitted event.
type TransferOwnershipRequest struct {
	Caller   interfaces.Identity `json:"caller"`
	NewOwner interfaces.Identity `json:"new_owner"`
	Reason   string              `json:"reason"`
}

// AuthorizeExecutorRequest delegates bounded operations to an executor.
// ComponentID is required for code-identity executors only.
type AuthorizeExecutorRequest struct {
	Caller      interfaces.Identity      `json:"caller"`
	Executor    interfaces.Identity      `json:"executor"`
	Trust       interfaces.ExecutorTrust `json:"trust"`
	ComponentID interfaces.ComponentID   `json:"component_id,omitzero"`
}

// RevokeExecutorRequest removes the document's executor binding.
type RevokeExecutorRequest struct {
	Caller interfaces.Identity `json:"caller"`
}

// SetResolverRequest configures the primary resolver or appends an
// additional one, depending on the route.
type SetResolverRequest struct {
	Caller     interfaces.Identity    `json:"caller"`
	ResolverID interfaces.ComponentID `json:"resolver_id"`
}

// LockResolversRequest freezes the document's resolver configuration.
type LockResolversRequest struct {
	Caller interfaces.Identity `json:"caller"`
}

// EmergencyUnlockRequest reopens a locked resolver configuration. The
// justification must be non-empty and always lands in the emitted event.
type EmergencyUnlockRequest struct {
	Caller        interfaces.Identity `json:"caller"`
	Justification string              `json:"justification"`
}

// VerifyCapabilityRequest runs the attestation pipeline for a document.
type VerifyCapabilityRequest struct {
	ClaimID  string              `json:"claim_id"`
	Claimant interfaces.Identity `json:"claimant"`
	Required capability.Set      `json:"required"`
}

// VerifyCapabilityResponse is the pipeline verdict. FailedCheck names the
// first failing check for rejected proofs.
type VerifyCapabilityResponse struct {
	Granted      bool           `json:"granted"`
	Capabilities capability.Set `json:"capabilities"`
	FailedCheck  string         `json:"failed_check,omitempty"`
}

// RegisterComponentRequest registers an infrastructure component. The
// identity digest is captured at registration time.
type RegisterComponentRequest struct {
	ID          interfaces.ComponentID   `json:"id"`
	Ref         interfaces.ComponentRef  `json:"ref"`
	Type        interfaces.ComponentType `json:"type"`
	Description string                   `json:"description,omitempty"`
}

// DeactivateComponentRequest takes a component out of resolution.
type DeactivateComponentRequest struct {
	Reason string `json:"reason"`
}

// ComponentListResponse is one page of component records.
type ComponentListResponse struct {
	Components []*interfaces.ComponentRecord `json:"components"`
	Total      int                           `json:"total"`
}

// GovernanceTransitionRequest advances the governance stage.
type GovernanceTransitionRequest struct {
	Caller       interfaces.Identity        `json:"caller"`
	NextStage    interfaces.GovernanceStage `json:"next_stage"`
	NewAuthority interfaces.Identity        `json:"new_authority,omitzero"`
}

// FreezeGovernanceRequest moves governance into the terminal frozen stage.
type FreezeGovernanceRequest struct {
	Caller interfaces.Identity `json:"caller"`
}

// SetPauseRequest sets or clears the system-wide pause flag.
type SetPauseRequest struct {
	Caller interfaces.Identity `json:"caller"`
	Paused bool                `json:"paused"`
}

// ErrorResponse carries a failure back to the client with enough context
// for deterministic handling.
type ErrorResponse struct {
	Error     string `json:"error"`
	Operation string `json:"operation,omitempty"`
	Subject   string `json:"subject,omitempty"`
}
