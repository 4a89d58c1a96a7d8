package attestation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/docbind-trust-core/capability"
	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/ruteri/docbind-trust-core/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSchema   = SchemaIDForName("docbind.capability-grant")
	testNetwork  = NetworkIDForName("docbind-test")
	providerID   = interfaces.ComponentIDForName("proof-provider")
	verifierID   = interfaces.ComponentIDForName("capability-verifier")
	testDocHash  = interfaces.ContentHash{0xaa, 0xbb}
	testDocID    = interfaces.DocumentIDForContent(testDocHash)
	recipientKey = []byte("recipient-seed-recipient-seed-32")
)

type fixture struct {
	verifier *Verifier
	provider *MemoryProvider
	issuer   *Issuer
	now      time.Time
}

func setupVerifier(t *testing.T, mutate func(*VerifierConfig)) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer, err := NewIssuer([]byte("issuer-seed-issuer-seed-32bytes!"))
	require.NoError(t, err)

	cfg := VerifierConfig{
		VerifierID:      verifierID,
		ProviderID:      providerID,
		NetworkID:       testNetwork,
		SchemaID:        testSchema,
		SchemaVersion:   1,
		IssuerAllowList: []interfaces.Identity{issuer.Identity()},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	provider := NewMemoryProvider()
	resolver := &registry.StaticResolver{
		Components: map[interfaces.ComponentID]*interfaces.ComponentRecord{
			providerID: {ID: providerID, Active: true, Type: interfaces.ProviderComponent},
		},
	}
	binder := &StaticBinder{Providers: map[interfaces.ComponentID]Provider{providerID: provider}}

	verifier := NewVerifier(cfg, resolver, binder, logger)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier.SetClock(func() time.Time { return now })

	return &fixture{verifier: verifier, provider: provider, issuer: issuer, now: now}
}

func (f *fixture) issueClaim(t *testing.T, recipient interfaces.Identity, caps capability.Set, mutate func(*Claim)) Proof {
	t.Helper()

	claim := &Claim{
		Recipient:           recipient,
		SchemaID:            testSchema,
		SchemaVersion:       1,
		SourceSystemID:      providerID,
		SourceNetworkID:     testNetwork,
		TargetID:            verifierID,
		GrantedCapabilities: caps,
		ContentHash:         testDocHash,
		IssuedAt:            f.now.Add(-time.Minute),
		ExpiresAt:           f.now.Add(time.Hour),
	}
	if mutate != nil {
		mutate(claim)
	}
	require.NoError(t, f.issuer.Sign(claim))
	f.provider.Put(claim)

	return Proof{ClaimID: claim.SubjectID}
}

func identityFor(t *testing.T, seed []byte) interfaces.Identity {
	t.Helper()
	issuer, err := NewIssuer(seed)
	require.NoError(t, err)
	return issuer.Identity()
}

func TestVerify_FullPass(t *testing.T) {
	f := setupVerifier(t, nil)
	recipient := identityFor(t, recipientKey)
	caps := capability.Compose(capability.Tokenize, capability.Transfer)

	proof := f.issueClaim(t, recipient, caps, nil)

	verdict := f.verifier.Verify(context.Background(), proof, recipient, testDocID, testDocHash)
	assert.True(t, verdict.Granted)
	assert.True(t, verdict.Capabilities.Equal(caps))
	assert.Empty(t, verdict.FailedCheck)
}

// A proof bound to recipient A must fail for any other claimant, regardless
// of the claim being otherwise fully valid.
func TestVerify_RecipientBinding(t *testing.T) {
	f := setupVerifier(t, nil)
	recipient := identityFor(t, recipientKey)
	thief := identityFor(t, []byte("thief-seed-thief-seed-32-bytes!!"))

	proof := f.issueClaim(t, recipient, capability.Tokenize, nil)

	verdict := f.verifier.Verify(context.Background(), proof, thief, testDocID, testDocHash)
	assert.False(t, verdict.Granted)
	assert.True(t, verdict.Capabilities.IsEmpty())
	assert.Equal(t, "recipient", verdict.FailedCheck)
}

func TestVerify_ChecksShortCircuit(t *testing.T) {
	recipient := identityFor(t, recipientKey)

	tests := []struct {
		name        string
		mutate      func(*Claim)
		failedCheck string
	}{
		{
			name:        "revoked",
			mutate:      nil, // revoked below, after signing
			failedCheck: "revoked",
		},
		{
			name:        "expired",
			mutate:      func(c *Claim) { c.ExpiresAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) },
			failedCheck: "expired",
		},
		{
			name:        "wrong schema",
			mutate:      func(c *Claim) { c.SchemaID = SchemaIDForName("other-schema") },
			failedCheck: "schema",
		},
		{
			name:        "wrong network",
			mutate:      func(c *Claim) { c.SourceNetworkID = NetworkIDForName("other-net") },
			failedCheck: "network",
		},
		{
			name:        "wrong source system",
			mutate:      func(c *Claim) { c.SourceSystemID = interfaces.ComponentIDForName("rogue-provider") },
			failedCheck: "source_system",
		},
		{
			name:        "wrong target",
			mutate:      func(c *Claim) { c.TargetID = interfaces.ComponentIDForName("other-verifier") },
			failedCheck: "target",
		},
		{
			name:        "wrong schema version",
			mutate:      func(c *Claim) { c.SchemaVersion = 2 },
			failedCheck: "schema_version",
		},
		{
			name:        "wrong content hash",
			mutate:      func(c *Claim) { c.ContentHash = interfaces.ContentHash{0x01} },
			failedCheck: "content_hash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupVerifier(t, nil)
			proof := f.issueClaim(t, recipient, capability.Tokenize, tt.mutate)
			if tt.failedCheck == "revoked" {
				require.True(t, f.provider.Revoke(proof.ClaimID, f.now.Add(-time.Second)))
			}

			verdict := f.verifier.Verify(context.Background(), proof, recipient, testDocID, testDocHash)
			assert.False(t, verdict.Granted)
			assert.True(t, verdict.Capabilities.IsEmpty())
			assert.Equal(t, tt.failedCheck, verdict.FailedCheck)
		})
	}
}

func TestVerify_UnknownClaim(t *testing.T) {
	f := setupVerifier(t, nil)
	recipient := identityFor(t, recipientKey)

	verdict := f.verifier.Verify(context.Background(), Proof{ClaimID: ClaimID{0x99}}, recipient, testDocID, testDocHash)
	assert.False(t, verdict.Granted)
	assert.Equal(t, "claim_lookup", verdict.FailedCheck)
}

func TestVerify_IssuerNotAllowed(t *testing.T) {
	// Verifier trusts a different issuer than the one that signed.
	f := setupVerifier(t, func(cfg *VerifierConfig) {
		cfg.IssuerAllowList = []interfaces.Identity{identityFor(t, []byte("trusted-issuer-seed-32-bytes!!!!"))}
	})
	recipient := identityFor(t, recipientKey)

	proof := f.issueClaim(t, recipient, capability.Tokenize, nil)

	verdict := f.verifier.Verify(context.Background(), proof, recipient, testDocID, testDocHash)
	assert.False(t, verdict.Granted)
	assert.Equal(t, "issuer", verdict.FailedCheck)
}

func TestVerify_TamperedSignature(t *testing.T) {
	f := setupVerifier(t, nil)
	recipient := identityFor(t, recipientKey)

	claim := &Claim{
		Recipient:           recipient,
		SchemaID:            testSchema,
		SchemaVersion:       1,
		SourceSystemID:      providerID,
		SourceNetworkID:     testNetwork,
		TargetID:            verifierID,
		GrantedCapabilities: capability.Tokenize,
		ContentHash:         testDocHash,
		IssuedAt:            f.now.Add(-time.Minute),
		ExpiresAt:           f.now.Add(time.Hour),
	}
	require.NoError(t, f.issuer.Sign(claim))

	// Escalate granted capabilities after signing.
	claim.GrantedCapabilities = capability.Admin
	f.provider.Put(claim)

	verdict := f.verifier.Verify(context.Background(), Proof{ClaimID: claim.SubjectID}, recipient, testDocID, testDocHash)
	assert.False(t, verdict.Granted)
	assert.Equal(t, "issuer", verdict.FailedCheck)
}

func TestVerify_MaxClaimAge(t *testing.T) {
	f := setupVerifier(t, func(cfg *VerifierConfig) {
		cfg.MaxClaimAge = 10 * time.Minute
	})
	recipient := identityFor(t, recipientKey)

	proof := f.issueClaim(t, recipient, capability.Tokenize, func(c *Claim) {
		c.IssuedAt = f.now.Add(-time.Hour)
	})

	verdict := f.verifier.Verify(context.Background(), proof, recipient, testDocID, testDocHash)
	assert.False(t, verdict.Granted)
	assert.Equal(t, "max_age", verdict.FailedCheck)
}

func TestVerify_ProviderUnresolvable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer, err := NewIssuer([]byte("issuer-seed-issuer-seed-32bytes!"))
	require.NoError(t, err)

	cfg := VerifierConfig{
		VerifierID:      verifierID,
		ProviderID:      providerID,
		NetworkID:       testNetwork,
		SchemaID:        testSchema,
		SchemaVersion:   1,
		IssuerAllowList: []interfaces.Identity{issuer.Identity()},
	}

	// Component registry has no record for the provider.
	verifier := NewVerifier(cfg, &registry.StaticResolver{}, &StaticBinder{}, logger)

	verdict := verifier.Verify(context.Background(), Proof{}, identityFor(t, recipientKey), testDocID, testDocHash)
	assert.False(t, verdict.Granted)
	assert.Equal(t, "claim_lookup", verdict.FailedCheck)
}

func TestClaimDigest_CoversFields(t *testing.T) {
	base := Claim{
		Recipient:       identityFor(t, recipientKey),
		SchemaID:        testSchema,
		SchemaVersion:   1,
		SourceSystemID:  providerID,
		SourceNetworkID: testNetwork,
		TargetID:        verifierID,
		ContentHash:     testDocHash,
		IssuedAt:        time.Unix(1000, 0),
		ExpiresAt:       time.Unix(2000, 0),
	}

	changed := base
	changed.SchemaVersion = 2
	assert.NotEqual(t, base.Digest(), changed.Digest())

	changed = base
	changed.ContentHash = interfaces.ContentHash{0x42}
	assert.NotEqual(t, base.Digest(), changed.Digest())

	// Revocation is not covered: revoking must not invalidate the signature.
	changed = base
	changed.RevokedAt = time.Unix(1500, 0)
	assert.Equal(t, base.Digest(), changed.Digest())
}
