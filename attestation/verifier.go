package attestation

import (
	"context"
	"log/slog"
	"time"

	"github.com/ruteri/docbind-trust-core/capability"
	"github.com/ruteri/docbind-trust-core/interfaces"
)

// VerifierConfig is the verifier's only state. Proof storage and lookup live
// behind the provider resolved per call through the component registry.
type VerifierConfig struct {
	// VerifierID is this verifier's own component id; claims must target it.
	VerifierID interfaces.ComponentID

	// ProviderID is the component id of the attestation provider claims
	// must originate from.
	ProviderID interfaces.ComponentID

	// NetworkID is this deployment's network id; claims issued for other
	// deployments never verify.
	NetworkID NetworkID

	// SchemaID and SchemaVersion pin the accepted claim schema.
	SchemaID      SchemaID
	SchemaVersion uint32

	// IssuerAllowList enumerates trusted issuer identities.
	IssuerAllowList []interfaces.Identity

	// MaxClaimAge rejects claims older than this when non-zero.
	MaxClaimAge time.Duration
}

// Verdict is the outcome of one verification run. Proof invalidity is an
// expected outcome, not an error: a failed pipeline yields Granted=false,
// empty capabilities, and the name of the first failed check.
type Verdict struct {
	Granted      bool           `json:"granted"`
	Capabilities capability.Set `json:"capabilities"`
	FailedCheck  string         `json:"failed_check,omitempty"`
}

func failed(check string) Verdict {
	return Verdict{FailedCheck: check}
}

// Verifier runs the attestation check pipeline. Stateless across calls; safe
// for concurrent use.
type Verifier struct {
	cfg        VerifierConfig
	components interfaces.ComponentResolver
	binder     ProviderBinder
	log        *slog.Logger
	now        func() time.Time
}

// NewVerifier creates a verifier resolving providers through the given
// component resolver.
func NewVerifier(cfg VerifierConfig, components interfaces.ComponentResolver, binder ProviderBinder, log *slog.Logger) *Verifier {
	return &Verifier{
		cfg:        cfg,
		components: components,
		binder:     binder,
		log:        log,
		now:        time.Now,
	}
}

// SetClock overrides the verifier clock. Intended for tests.
func (v *Verifier) SetClock(now func() time.Time) {
	v.now = now
}

// Verify runs the ordered check pipeline against the claim the proof
// references, short-circuiting on the first failure. claimant is the
// identity presenting the proof: a claim bound to a different recipient
// never verifies, which is what defeats in-flight proof theft. The caller
// matches the granted set against its own requirements.
func (v *Verifier) Verify(ctx context.Context, proof Proof, claimant interfaces.Identity, docID interfaces.DocumentID, docHash interfaces.ContentHash) Verdict {
	// Check 1: the proof resolves to a real claim through a healthy,
	// integrity-verified provider.
	record := v.components.Resolve(ctx, v.cfg.ProviderID)
	if record == nil {
		v.debug(proof, "provider_unresolvable")
		return failed("claim_lookup")
	}

	provider, err := v.binder.Bind(record)
	if err != nil {
		v.debug(proof, "provider_unbindable")
		return failed("claim_lookup")
	}

	claim, err := provider.Claim(ctx, proof.ClaimID)
	if err != nil || claim == nil {
		v.debug(proof, "claim_not_found")
		return failed("claim_lookup")
	}

	now := v.now()

	// Check 2: not revoked.
	if claim.Revoked(now) {
		return failed("revoked")
	}

	// Check 3: not expired.
	if claim.Expired(now) {
		return failed("expired")
	}

	// Check 4: schema matches.
	if claim.SchemaID != v.cfg.SchemaID {
		return failed("schema")
	}

	// Check 5: recipient binding. The proof is usable by exactly one
	// identity regardless of who observed it in flight.
	if !claim.Recipient.Equal(claimant) {
		return failed("recipient")
	}

	// Check 6: issuer allow-list, established by signature recovery so a
	// forged issuer field cannot pass.
	signer, err := claim.RecoverSigner()
	if err != nil || !signer.Equal(claim.Issuer) {
		return failed("issuer")
	}
	if !v.issuerAllowed(signer) {
		return failed("issuer")
	}

	// Check 7: claim was issued for this deployment.
	if claim.SourceNetworkID != v.cfg.NetworkID {
		return failed("network")
	}

	// Check 8: claim originates from the configured provider.
	if claim.SourceSystemID != v.cfg.ProviderID {
		return failed("source_system")
	}

	// Check 9: claim targets this verifier.
	if claim.TargetID != v.cfg.VerifierID {
		return failed("target")
	}

	// Check 10: schema version matches.
	if claim.SchemaVersion != v.cfg.SchemaVersion {
		return failed("schema_version")
	}

	// Check 11: claim is bound to the target document's content.
	if !claim.ContentHash.Equal(docHash) {
		return failed("content_hash")
	}

	// Check 12: optional maximum claim age.
	if v.cfg.MaxClaimAge > 0 && now.Sub(claim.IssuedAt) > v.cfg.MaxClaimAge {
		return failed("max_age")
	}

	v.log.Debug("Attestation verified",
		slog.String("claim_id", proof.ClaimID.String()),
		slog.String("claimant", claimant.String()),
		slog.String("document_id", docID.String()))

	return Verdict{
		Granted:      true,
		Capabilities: claim.GrantedCapabilities,
	}
}

func (v *Verifier) issuerAllowed(issuer interfaces.Identity) bool {
	for _, allowed := range v.cfg.IssuerAllowList {
		if allowed.Equal(issuer) {
			return true
		}
	}
	return false
}

func (v *Verifier) debug(proof Proof, reason string) {
	v.log.Debug("Attestation check failed",
		slog.String("claim_id", proof.ClaimID.String()),
		slog.String("reason", reason))
}
