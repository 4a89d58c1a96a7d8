package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ruteri/docbind-trust-core/events"
	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/ruteri/docbind-trust-core/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	primaryID = interfaces.ComponentIDForName("primary-resolver")
	extraID1  = interfaces.ComponentIDForName("extra-resolver-1")
	extraID2  = interfaces.ComponentIDForName("extra-resolver-2")
)

// recordingHook captures invocations and optionally fails or stalls.
type recordingHook struct {
	invocations []Invocation
	err         error
	delay       time.Duration
}

func (h *recordingHook) OnDocumentEvent(ctx context.Context, inv Invocation) error {
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.invocations = append(h.invocations, inv)
	return h.err
}

func activeRecord(id interfaces.ComponentID) *interfaces.ComponentRecord {
	return &interfaces.ComponentRecord{ID: id, Active: true, Type: interfaces.ResolverComponent}
}

func testDispatcher(components interfaces.ComponentResolver, hooks map[interfaces.ComponentID]Hook) (*Dispatcher, *events.MemorySink) {
	sink := events.NewMemorySink()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDispatcher(components, &StaticBinder{Hooks: hooks}, sink, log)
	return d, sink
}

func testDoc(primary interfaces.ComponentID, additional ...interfaces.ComponentID) *interfaces.DocumentRecord {
	return &interfaces.DocumentRecord{
		ID:                    interfaces.DocumentID{0x01},
		PrimaryResolverID:     primary,
		AdditionalResolverIDs: additional,
		Exists:                true,
	}
}

func TestInvokePrimary_Unconfigured(t *testing.T) {
	d, sink := testDispatcher(&registry.StaticResolver{}, nil)

	err := d.InvokePrimary(context.Background(), testDoc(interfaces.ComponentID{}), Invocation{Operation: "registerDocument"})
	assert.NoError(t, err)
	assert.Empty(t, sink.All())
}

func TestInvokePrimary_Success(t *testing.T) {
	hook := &recordingHook{}
	components := &registry.StaticResolver{Components: map[interfaces.ComponentID]*interfaces.ComponentRecord{
		primaryID: activeRecord(primaryID),
	}}
	d, sink := testDispatcher(components, map[interfaces.ComponentID]Hook{primaryID: hook})

	inv := Invocation{Operation: "registerDocument", DocumentID: interfaces.DocumentID{0x01}}
	require.NoError(t, d.InvokePrimary(context.Background(), testDoc(primaryID), inv))
	require.Len(t, hook.invocations, 1)
	assert.Equal(t, "registerDocument", hook.invocations[0].Operation)
	assert.Empty(t, sink.All())
}

// An unresolvable primary degrades to success, with an event marking the gap.
func TestInvokePrimary_UnavailableDegrades(t *testing.T) {
	d, sink := testDispatcher(&registry.StaticResolver{}, nil)

	err := d.InvokePrimary(context.Background(), testDoc(primaryID), Invocation{Operation: "transferOwnership"})
	assert.NoError(t, err)

	emitted := sink.ByType(events.PrimaryUnavailable)
	require.Len(t, emitted, 1)
	assert.Equal(t, "transferOwnership", emitted[0].Operation)
	assert.Equal(t, primaryID.String(), emitted[0].Fields["resolver"])
}

// A primary that runs and fails aborts the enclosing operation.
func TestInvokePrimary_FailureAborts(t *testing.T) {
	hook := &recordingHook{err: errors.New("resolver rejected")}
	components := &registry.StaticResolver{Components: map[interfaces.ComponentID]*interfaces.ComponentRecord{
		primaryID: activeRecord(primaryID),
	}}
	d, _ := testDispatcher(components, map[interfaces.ComponentID]Hook{primaryID: hook})

	err := d.InvokePrimary(context.Background(), testDoc(primaryID), Invocation{Operation: "registerDocument"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolver rejected")
}

func TestInvokePrimary_BudgetOverrunAborts(t *testing.T) {
	hook := &recordingHook{delay: time.Second}
	components := &registry.StaticResolver{Components: map[interfaces.ComponentID]*interfaces.ComponentRecord{
		primaryID: activeRecord(primaryID),
	}}
	d, _ := testDispatcher(components, map[interfaces.ComponentID]Hook{primaryID: hook})
	d.SetBudget(primaryID, 10*time.Millisecond)

	err := d.InvokePrimary(context.Background(), testDoc(primaryID), Invocation{Operation: "registerDocument"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, hook.invocations)
}

func TestSetBudget_CappedAtMax(t *testing.T) {
	d, _ := testDispatcher(&registry.StaticResolver{}, nil)

	d.SetBudget(primaryID, time.Hour)
	assert.Equal(t, MaxBudget, d.budgetFor(primaryID))

	d.SetBudget(primaryID, 0)
	assert.Equal(t, DefaultBudget, d.budgetFor(primaryID))
}

// Additional resolvers never abort: failures become events, unresolvable
// entries are skipped, and the rest still run.
func TestInvokeAdditional_BestEffort(t *testing.T) {
	failing := &recordingHook{err: errors.New("boom")}
	healthy := &recordingHook{}
	components := &registry.StaticResolver{Components: map[interfaces.ComponentID]*interfaces.ComponentRecord{
		extraID1: activeRecord(extraID1),
		extraID2: activeRecord(extraID2),
	}}
	d, sink := testDispatcher(components, map[interfaces.ComponentID]Hook{
		extraID1: failing,
		extraID2: healthy,
	})

	unresolvable := interfaces.ComponentIDForName("gone")
	doc := testDoc(interfaces.ComponentID{}, extraID1, unresolvable, extraID2)
	d.InvokeAdditional(context.Background(), doc, Invocation{Operation: "authorizeExecutor"})

	assert.Len(t, healthy.invocations, 1, "healthy resolver runs despite earlier failure")

	emitted := sink.ByType(events.AdditionalFailed)
	require.Len(t, emitted, 1)
	assert.Equal(t, extraID1.String(), emitted[0].Fields["resolver"])
	assert.Equal(t, "boom", emitted[0].Fields["error"])
}

func TestHTTPResolver_PostsInvocation(t *testing.T) {
	var gotPath string
	var got Invocation
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, jsonDecode(r, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	hook := NewHTTPResolver(server.URL, nil)
	inv := Invocation{Operation: "registerDocument", DocumentID: interfaces.DocumentID{0xab}}
	require.NoError(t, hook.OnDocumentEvent(context.Background(), inv))
	assert.Equal(t, "/resolver/events", gotPath)
	assert.Equal(t, inv.DocumentID, got.DocumentID)
}

func TestHTTPResolver_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	hook := NewHTTPResolver(server.URL, nil)
	err := hook.OnDocumentEvent(context.Background(), Invocation{Operation: "registerDocument"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestEndpointBinder_Schemes(t *testing.T) {
	binder := &EndpointBinder{}

	_, err := binder.Bind(&interfaces.ComponentRecord{ID: primaryID, Ref: interfaces.ComponentRef{Endpoint: "http://localhost:8080"}})
	assert.NoError(t, err)

	_, err = binder.Bind(&interfaces.ComponentRecord{ID: primaryID})
	assert.Error(t, err, "empty endpoint")

	_, err = binder.Bind(&interfaces.ComponentRecord{ID: primaryID, Ref: interfaces.ComponentRef{Endpoint: "ftp://example.com"}})
	assert.Error(t, err, "unsupported scheme")
}

func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
