// Package events provides append-only structured event emission for external
// indexers. Events are observability, never control flow: sinks may fail
// without affecting the operations that emitted them.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names every state change the core emits.
type Type string

const (
	DocumentRegistered   Type = "document.registered"
	OwnershipTransferred Type = "document.ownership_transferred"
	ExecutorAuthorized   Type = "document.executor_authorized"
	ExecutorRevoked      Type = "document.executor_revoked"
	PrimaryResolverSet   Type = "document.primary_resolver_set"
	AdditionalResolver   Type = "document.additional_resolver_added"
	ResolversLocked      Type = "document.resolvers_locked"
	ResolversUnlocked    Type = "document.resolvers_emergency_unlocked"
	PrimaryUnavailable   Type = "resolver.primary_unavailable"
	AdditionalFailed     Type = "resolver.additional_failed"
	CapabilityVerified   Type = "attestation.capability_verified"
	ComponentRegistered  Type = "component.registered"
	ComponentDeactivated Type = "component.deactivated"
	ComponentReactivated Type = "component.reactivated"
	GovernanceTransition Type = "governance.stage_transitioned"
	GovernanceFrozen     Type = "governance.frozen"
	SystemPauseChanged   Type = "governance.pause_changed"
)

// Event is one structured state-change notification.
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Operation string            `json:"operation"`
	Subject   string            `json:"subject"` // document/component id the event is about
	Actor     string            `json:"actor"`   // identity that caused the change
	Fields    map[string]string `json:"fields,omitempty"`
}

// Sink consumes emitted events.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// New creates an event with a fresh id and the given timestamp.
func New(eventType Type, at time.Time, operation, subject, actor string, fields map[string]string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at,
		Operation: operation,
		Subject:   subject,
		Actor:     actor,
		Fields:    fields,
	}
}
