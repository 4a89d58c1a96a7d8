package attestation

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ruteri/docbind-trust-core/interfaces"
)

// Issuer signs capability claims. It derives its secp256k1 signing key
// deterministically from a seed so deployments can reproduce the issuer
// identity from configuration. Suitable for development and single-operator
// deployments; production issuers live off-process and only their identity
// appears on the verifier allow-list.
type Issuer struct {
	key *ecdsa.PrivateKey
}

// NewIssuer creates an issuer from a seed of at least 32 bytes.
func NewIssuer(seed []byte) (*Issuer, error) {
	if len(seed) < 32 {
		return nil, errors.New("issuer seed must be at least 32 bytes")
	}

	key, err := crypto.ToECDSA(crypto.Keccak256(append([]byte("docbind.issuer.v1"), seed...)))
	if err != nil {
		return nil, fmt.Errorf("failed to derive issuer key: %w", err)
	}

	return &Issuer{key: key}, nil
}

// Identity returns the issuer's identity, the one verifiers allow-list.
func (i *Issuer) Identity() interfaces.Identity {
	return interfaces.Identity(crypto.PubkeyToAddress(i.key.PublicKey))
}

// Sign fills in the claim's issuer, subject id, and signature. The claim
// must carry every other field already; signing fixes the digest.
func (i *Issuer) Sign(claim *Claim) error {
	claim.Issuer = i.Identity()
	claim.SubjectID = ClaimID{} // subject id derives from the digest below

	digest := claim.Digest()
	claim.SubjectID = ClaimID(digest)

	// Re-digest with the subject id in place; the signature covers the
	// final form the provider stores.
	digest = claim.Digest()
	sig, err := crypto.Sign(digest[:], i.key)
	if err != nil {
		return fmt.Errorf("failed to sign claim: %w", err)
	}

	claim.Signature = sig
	return nil
}
