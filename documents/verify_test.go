package documents

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/docbind-trust-core/attestation"
	"github.com/ruteri/docbind-trust-core/capability"
	"github.com/ruteri/docbind-trust-core/events"
	"github.com/ruteri/docbind-trust-core/governance"
	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/ruteri/docbind-trust-core/registry"
	"github.com/ruteri/docbind-trust-core/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// End-to-end capability verification: document registry feeding the
// attestation pipeline and applying the capability check on top of the
// granted set.
func TestVerifyCapability_EndToEnd(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := events.NewMemorySink()
	gov := governance.NewMachine(governance.Config{InitialAuthority: deployer}, sink, log)

	issuer, err := attestation.NewIssuer([]byte("end-to-end-issuer-seed-32-bytes!"))
	require.NoError(t, err)

	providerID := interfaces.ComponentIDForName("proof-provider")
	verifierID := interfaces.ComponentIDForName("capability-verifier")
	networkID := attestation.NetworkIDForName("docbind-test")
	schemaID := attestation.SchemaIDForName("docbind.capability-grant")

	components := &registry.StaticResolver{Components: map[interfaces.ComponentID]*interfaces.ComponentRecord{
		providerID: {ID: providerID, Active: true, Type: interfaces.ProviderComponent},
	}}
	provider := attestation.NewMemoryProvider()
	verifier := attestation.NewVerifier(attestation.VerifierConfig{
		VerifierID:      verifierID,
		ProviderID:      providerID,
		NetworkID:       networkID,
		SchemaID:        schemaID,
		SchemaVersion:   1,
		IssuerAllowList: []interfaces.Identity{issuer.Identity()},
	}, components, &attestation.StaticBinder{Providers: map[interfaces.ComponentID]attestation.Provider{providerID: provider}}, log)

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	verifier.SetClock(func() time.Time { return now })

	dispatcher := resolver.NewDispatcher(components, &resolver.StaticBinder{}, sink, log)
	reg := NewRegistry(Config{}, components, dispatcher, verifier, gov, sink, log)

	docID, err := reg.Register(context.Background(), owner, contentHash, interfaces.ComponentID{}, interfaces.ComponentID{}, nil, interfaces.Identity{})
	require.NoError(t, err)

	claim := &attestation.Claim{
		Recipient:           executor,
		SchemaID:            schemaID,
		SchemaVersion:       1,
		SourceSystemID:      providerID,
		SourceNetworkID:     networkID,
		TargetID:            verifierID,
		GrantedCapabilities: capability.Tokenize,
		ContentHash:         contentHash,
		IssuedAt:            now.Add(-time.Minute),
		ExpiresAt:           now.Add(time.Hour),
	}
	require.NoError(t, issuer.Sign(claim))
	provider.Put(claim)
	proof := attestation.Proof{ClaimID: claim.SubjectID}

	verdict := reg.VerifyCapability(context.Background(), proof, executor, docID, capability.Tokenize)
	assert.True(t, verdict.Granted)
	assert.True(t, verdict.Capabilities.Equal(capability.Tokenize))
	assert.Len(t, sink.ByType(events.CapabilityVerified), 1)

	// Granted set lacks the required capability.
	verdict = reg.VerifyCapability(context.Background(), proof, executor, docID, capability.Transfer)
	assert.False(t, verdict.Granted)
	assert.Equal(t, "capability", verdict.FailedCheck)

	// Proof bound to the executor fails for anyone else.
	verdict = reg.VerifyCapability(context.Background(), proof, stranger, docID, capability.Tokenize)
	assert.False(t, verdict.Granted)
	assert.Equal(t, "recipient", verdict.FailedCheck)
}
