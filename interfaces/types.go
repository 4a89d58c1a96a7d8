// Package interfaces defines the core types and contracts shared by the
// document trust core components. It provides the contract between different
// components without implementation details.
package interfaces

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Identity is a 20-byte account identity derived from a secp256k1 public key.
// Owners, executors, issuers, and governance authorities are all identities.
type Identity [20]byte

// NewIdentityFromBytes creates an identity from a raw 20-byte slice.
func NewIdentityFromBytes(raw []byte) (Identity, error) {
	if len(raw) != 20 {
		return Identity{}, errors.New("invalid identity length: must be 20 bytes")
	}

	var id Identity
	copy(id[:], raw)
	return id, nil
}

// NewIdentityFromHex creates an identity from a 40-character hex string,
// with or without a 0x prefix.
func NewIdentityFromHex(s string) (Identity, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != 40 {
		return Identity{}, errors.New("invalid identity length: hex string must be 40 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewIdentityFromBytes(raw)
}

// String returns the hex string representation of the identity.
func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 20-byte identity.
func (id Identity) Bytes() []byte {
	return id[:]
}

// Equal compares two identities for equality.
func (id Identity) Equal(other Identity) bool {
	return id == other
}

// IsZero reports whether the identity is the null identity.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// ContentHash is a 32-byte hash binding a document record to its content.
type ContentHash [32]byte

// NewContentHashFromBytes creates a content hash from a raw 32-byte slice.
func NewContentHashFromBytes(raw []byte) (ContentHash, error) {
	if len(raw) != 32 {
		return ContentHash{}, errors.New("invalid content hash length: must be 32 bytes")
	}

	var h ContentHash
	copy(h[:], raw)
	return h, nil
}

// NewContentHashFromHex creates a content hash from a 64-character hex string.
func NewContentHashFromHex(s string) (ContentHash, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != 64 {
		return ContentHash{}, errors.New("invalid content hash length: hex string must be 64 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return ContentHash{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewContentHashFromBytes(raw)
}

// String returns the hex representation of the content hash.
func (h ContentHash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the raw 32-byte hash.
func (h ContentHash) Bytes() []byte {
	return h[:]
}

// Equal compares two content hashes.
func (h ContentHash) Equal(other ContentHash) bool {
	return bytes.Equal(h[:], other[:])
}

// IsZero reports whether the hash is the null hash. Null content hashes are
// rejected at registration.
func (h ContentHash) IsZero() bool {
	return h == ContentHash{}
}

// documentIDTag namespaces document identifier derivation so identifiers can
// never collide with plain content hashes used elsewhere.
const documentIDTag = "docbind.document.v1"

// DocumentID is a 32-byte content-derived document identifier.
type DocumentID [32]byte

// DocumentIDForContent derives the canonical document identifier for a
// content hash. The derivation is deterministic: the same content always
// yields the same identifier, which is what makes identifiers globally unique.
func DocumentIDForContent(h ContentHash) DocumentID {
	sum := crypto.Keccak256(append([]byte(documentIDTag), h[:]...))

	var id DocumentID
	copy(id[:], sum)
	return id
}

// NewDocumentIDFromHex creates a document identifier from a hex string.
func NewDocumentIDFromHex(s string) (DocumentID, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != 64 {
		return DocumentID{}, errors.New("invalid document id length: hex string must be 64 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return DocumentID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var id DocumentID
	copy(id[:], raw)
	return id, nil
}

// String returns the hex representation of the document identifier.
func (id DocumentID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 32-byte identifier.
func (id DocumentID) Bytes() []byte {
	return id[:]
}

// IsZero reports whether the identifier is the null identifier.
func (id DocumentID) IsZero() bool {
	return id == DocumentID{}
}

// ComponentID is a 32-byte identifier for a registered infrastructure
// component.
type ComponentID [32]byte

// NewComponentIDFromHex creates a component identifier from a hex string.
func NewComponentIDFromHex(s string) (ComponentID, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != 64 {
		return ComponentID{}, errors.New("invalid component id length: hex string must be 64 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return ComponentID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var id ComponentID
	copy(id[:], raw)
	return id, nil
}

// ComponentIDForName derives a component identifier from a human-readable
// name. Useful for deployments that address components by name.
func ComponentIDForName(name string) ComponentID {
	sum := crypto.Keccak256([]byte(name))

	var id ComponentID
	copy(id[:], sum)
	return id
}

// String returns the hex representation of the component identifier.
func (id ComponentID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 32-byte identifier.
func (id ComponentID) Bytes() []byte {
	return id[:]
}

// IsZero reports whether the identifier is the null identifier.
func (id ComponentID) IsZero() bool {
	return id == ComponentID{}
}

// Digest is a 32-byte identity digest of a component's loaded executable
// form. Digests are captured once at registration and compared against the
// live artifact at every resolution.
type Digest [32]byte

// NewDigestFromHex creates a digest from a hex string.
func NewDigestFromHex(s string) (Digest, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != 64 {
		return Digest{}, errors.New("invalid digest length: hex string must be 64 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Digest{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var d Digest
	copy(d[:], raw)
	return d, nil
}

// String returns the hex representation of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Equal compares two digests.
func (d Digest) Equal(other Digest) bool {
	return bytes.Equal(d[:], other[:])
}

// IsZero reports whether the digest is the null digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ComponentType classifies registered infrastructure components.
type ComponentType int

const (
	// ProviderComponent stores and looks up attestation proofs.
	ProviderComponent ComponentType = iota

	// VerifierComponent validates attestation proofs.
	VerifierComponent

	// ResolverComponent is a lifecycle hook invoked on document events.
	ResolverComponent

	// TokenImplementationComponent is consumed by the external issuance layer.
	TokenImplementationComponent
)

// String returns the component type name.
func (ct ComponentType) String() string {
	switch ct {
	case ProviderComponent:
		return "provider"
	case VerifierComponent:
		return "verifier"
	case ResolverComponent:
		return "resolver"
	case TokenImplementationComponent:
		return "token_implementation"
	default:
		return "unknown"
	}
}

// ParseComponentType parses a component type name.
func ParseComponentType(s string) (ComponentType, error) {
	switch s {
	case "provider":
		return ProviderComponent, nil
	case "verifier":
		return VerifierComponent, nil
	case "resolver":
		return ResolverComponent, nil
	case "token_implementation":
		return TokenImplementationComponent, nil
	default:
		return 0, fmt.Errorf("unknown component type: %q", s)
	}
}

// ComponentRef locates a component's executable artifact and, for remote
// components, the endpoint it serves on.
type ComponentRef struct {
	// ArtifactURI is the storage backend location holding the artifact,
	// e.g. file:///var/lib/trustcore/artifacts or ipfs://127.0.0.1:5001.
	ArtifactURI string `json:"artifact_uri"`

	// ArtifactID addresses the artifact within the backend.
	ArtifactID ContentHash `json:"artifact_id"`

	// Endpoint is where the running component can be reached. Supported
	// schemes: http, https, dns+http (SRV discovery). Empty for components
	// bound in-process.
	Endpoint string `json:"endpoint,omitempty"`
}

// ComponentRecord describes a registered infrastructure component.
type ComponentRecord struct {
	ID             ComponentID   `json:"id"`
	Ref            ComponentRef  `json:"ref"`
	IdentityDigest Digest        `json:"identity_digest"`
	Active         bool          `json:"active"`
	RegisteredAt   time.Time     `json:"registered_at"`
	Type           ComponentType `json:"type"`
	Description    string        `json:"description"`
}

// ExecutorTrust classifies how an executor's validity is established.
type ExecutorTrust int

const (
	// AllowListedExecutor is pre-approved by deployment configuration and
	// skips further checks.
	AllowListedExecutor ExecutorTrust = iota

	// CodeIdentityExecutor self-declares validity through a registered
	// component whose identity digest must still match.
	CodeIdentityExecutor

	// UnconditionalExecutor has no verifiable identity (e.g. self-hosted)
	// and is trusted unconditionally once the owner authorizes it.
	UnconditionalExecutor
)

// String returns the trust class name.
func (et ExecutorTrust) String() string {
	switch et {
	case AllowListedExecutor:
		return "allow_listed"
	case CodeIdentityExecutor:
		return "code_identity"
	case UnconditionalExecutor:
		return "unconditional"
	default:
		return "unknown"
	}
}

// ParseExecutorTrust parses a trust class name.
func ParseExecutorTrust(s string) (ExecutorTrust, error) {
	switch s {
	case "allow_listed":
		return AllowListedExecutor, nil
	case "code_identity":
		return CodeIdentityExecutor, nil
	case "unconditional":
		return UnconditionalExecutor, nil
	default:
		return 0, fmt.Errorf("unknown executor trust class: %q", s)
	}
}

// ExecutorBinding delegates bounded operations on one document to an
// identity that does not hold ownership. At most one binding is active per
// document.
type ExecutorBinding struct {
	DocumentID   DocumentID    `json:"document_id"`
	Executor     Identity      `json:"executor"`
	Trust        ExecutorTrust `json:"trust"`
	ComponentID  ComponentID   `json:"component_id,omitempty"` // code-identity executors only
	AuthorizedAt time.Time     `json:"authorized_at"`
}

// DocumentRecord is the canonical record for a registered document.
type DocumentRecord struct {
	ID                    DocumentID    `json:"id"`
	Owner                 Identity      `json:"owner"`
	ContentHash           ContentHash   `json:"content_hash"`
	TokenizerBinding      ComponentID   `json:"tokenizer_binding"`
	PrimaryResolverID     ComponentID   `json:"primary_resolver_id"`
	AdditionalResolverIDs []ComponentID `json:"additional_resolver_ids"`
	ResolversLocked       bool          `json:"resolvers_locked"`
	RegisteredAt          time.Time     `json:"registered_at"`
	Exists                bool          `json:"exists"`
}

// Clone returns a deep copy of the record. Used for read snapshots and for
// rollback when a blocking resolver aborts an operation.
func (r *DocumentRecord) Clone() *DocumentRecord {
	if r == nil {
		return nil
	}

	cp := *r
	cp.AdditionalResolverIDs = append([]ComponentID(nil), r.AdditionalResolverIDs...)
	return &cp
}

// GovernanceStage is the current phase of administrative authority over
// upgradeable components.
type GovernanceStage int

const (
	// StageBootstrap is the initial deployment stage.
	StageBootstrap GovernanceStage = iota

	// StageGuardian hands authority to a guardian identity.
	StageGuardian

	// StageCommunity hands authority to a community-controlled identity.
	StageCommunity

	// StageFrozen permanently disables upgrades. Terminal.
	StageFrozen
)

// String returns the stage name.
func (s GovernanceStage) String() string {
	switch s {
	case StageBootstrap:
		return "bootstrap"
	case StageGuardian:
		return "guardian"
	case StageCommunity:
		return "community"
	case StageFrozen:
		return "frozen"
	default:
		return "unknown"
	}
}

// ParseGovernanceStage parses a stage name.
func ParseGovernanceStage(s string) (GovernanceStage, error) {
	switch s {
	case "bootstrap":
		return StageBootstrap, nil
	case "guardian":
		return StageGuardian, nil
	case "community":
		return StageCommunity, nil
	case "frozen":
		return StageFrozen, nil
	default:
		return 0, fmt.Errorf("unknown governance stage: %q", s)
	}
}

// GovernanceState is the current governance configuration.
type GovernanceState struct {
	Stage            GovernanceStage `json:"stage"`
	CurrentAuthority Identity        `json:"current_authority"`
	FrozenAt         time.Time       `json:"frozen_at,omitzero"`
}

// Text marshaling so identifiers cross JSON boundaries as hex strings and
// enums as their names.

func (id Identity) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := NewIdentityFromHex(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (h ContentHash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *ContentHash) UnmarshalText(text []byte) error {
	parsed, err := NewContentHashFromHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func (id DocumentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *DocumentID) UnmarshalText(text []byte) error {
	parsed, err := NewDocumentIDFromHex(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ComponentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ComponentID) UnmarshalText(text []byte) error {
	parsed, err := NewComponentIDFromHex(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (d Digest) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := NewDigestFromHex(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (ct ComponentType) MarshalText() ([]byte, error) { return []byte(ct.String()), nil }

func (ct *ComponentType) UnmarshalText(text []byte) error {
	parsed, err := ParseComponentType(string(text))
	if err != nil {
		return err
	}
	*ct = parsed
	return nil
}

func (et ExecutorTrust) MarshalText() ([]byte, error) { return []byte(et.String()), nil }

func (et *ExecutorTrust) UnmarshalText(text []byte) error {
	parsed, err := ParseExecutorTrust(string(text))
	if err != nil {
		return err
	}
	*et = parsed
	return nil
}

func (s GovernanceStage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *GovernanceStage) UnmarshalText(text []byte) error {
	parsed, err := ParseGovernanceStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
