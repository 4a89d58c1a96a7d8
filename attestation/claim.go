// Package attestation implements capability attestations: signed claims that
// an issuer granted specific capabilities to a recipient for one document,
// and the verification pipeline that checks a proof before any capability is
// honored.
package attestation

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ruteri/docbind-trust-core/capability"
	"github.com/ruteri/docbind-trust-core/interfaces"
)

// SchemaID identifies a claim schema.
type SchemaID [32]byte

// SchemaIDForName derives a schema identifier from its published name, e.g.
// "docbind.capability-grant".
func SchemaIDForName(name string) SchemaID {
	var id SchemaID
	copy(id[:], crypto.Keccak256([]byte(name)))
	return id
}

// String returns the hex representation of the schema identifier.
func (id SchemaID) String() string {
	return hex.EncodeToString(id[:])
}

// NetworkID identifies the deployment a claim was issued for, preventing
// replay of claims across deployments.
type NetworkID [32]byte

// NetworkIDForName derives a network identifier from a deployment name.
func NetworkIDForName(name string) NetworkID {
	var id NetworkID
	copy(id[:], crypto.Keccak256([]byte(name)))
	return id
}

// String returns the hex representation of the network identifier.
func (id NetworkID) String() string {
	return hex.EncodeToString(id[:])
}

// ClaimID addresses a claim within its provider.
type ClaimID [32]byte

// NewClaimIDFromHex parses a claim identifier from hex.
func NewClaimIDFromHex(s string) (ClaimID, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != 64 {
		return ClaimID{}, errors.New("invalid claim id length: hex string must be 64 characters")
	}
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return ClaimID{}, fmt.Errorf("invalid hex format: %w", err)
	}
	var id ClaimID
	copy(id[:], raw)
	return id, nil
}

// String returns the hex representation of the claim identifier.
func (id ClaimID) String() string {
	return hex.EncodeToString(id[:])
}

// Proof is the opaque evidence a caller presents: a reference to a claim
// held by an attestation provider. The proof itself grants nothing; the
// verifier resolves and checks the underlying claim.
type Proof struct {
	ClaimID ClaimID `json:"claim_id"`
}

// Claim is a verifiable assertion that an issuer granted capabilities to a
// recipient for one document.
type Claim struct {
	SubjectID           ClaimID                 `json:"subject_id"`
	Recipient           interfaces.Identity     `json:"recipient"`
	SchemaID            SchemaID                `json:"schema_id"`
	SchemaVersion       uint32                  `json:"schema_version"`
	Issuer              interfaces.Identity     `json:"issuer"`
	SourceSystemID      interfaces.ComponentID  `json:"source_system_id"`
	SourceNetworkID     NetworkID               `json:"source_network_id"`
	TargetID            interfaces.ComponentID  `json:"target_id"`
	GrantedCapabilities capability.Set          `json:"granted_capabilities"`
	ContentHash         interfaces.ContentHash  `json:"content_hash"`
	IssuedAt            time.Time               `json:"issued_at"`
	ExpiresAt           time.Time               `json:"expires_at"`
	RevokedAt           time.Time               `json:"revoked_at,omitzero"`
	Signature           []byte                  `json:"signature"`
}

// claimDigestTag domain-separates claim digests from any other signed data.
const claimDigestTag = "docbind.claim.v1"

// Digest computes the canonical digest the issuer signs: a Keccak-256 hash
// over a fixed-order, fixed-width encoding of every field except the
// signature and revocation mark (revocation happens after issuance).
func (c *Claim) Digest() [32]byte {
	var buf bytes.Buffer
	buf.WriteString(claimDigestTag)
	buf.Write(c.SubjectID[:])
	buf.Write(c.Recipient[:])
	buf.Write(c.SchemaID[:])
	binary.Write(&buf, binary.BigEndian, c.SchemaVersion) //nolint:errcheck // bytes.Buffer cannot fail
	buf.Write(c.Issuer[:])
	buf.Write(c.SourceSystemID[:])
	buf.Write(c.SourceNetworkID[:])
	buf.Write(c.TargetID[:])
	buf.Write(c.GrantedCapabilities.Bytes())
	buf.Write(c.ContentHash[:])
	binary.Write(&buf, binary.BigEndian, c.IssuedAt.UnixNano())  //nolint:errcheck
	binary.Write(&buf, binary.BigEndian, c.ExpiresAt.UnixNano()) //nolint:errcheck

	var digest [32]byte
	copy(digest[:], crypto.Keccak256(buf.Bytes()))
	return digest
}

// RecoverSigner recovers the identity that signed the claim.
func (c *Claim) RecoverSigner() (interfaces.Identity, error) {
	if len(c.Signature) != 65 {
		return interfaces.Identity{}, fmt.Errorf("invalid signature length: %d", len(c.Signature))
	}

	digest := c.Digest()
	pubkey, err := crypto.SigToPub(digest[:], c.Signature)
	if err != nil {
		return interfaces.Identity{}, fmt.Errorf("failed to recover signer: %w", err)
	}

	addr := crypto.PubkeyToAddress(*pubkey)
	return interfaces.Identity(addr), nil
}

// Revoked reports whether the claim was revoked as of now.
func (c *Claim) Revoked(now time.Time) bool {
	return !c.RevokedAt.IsZero() && !c.RevokedAt.After(now)
}

// Expired reports whether the claim expired as of now.
func (c *Claim) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}
