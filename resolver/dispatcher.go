package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/docbind-trust-core/events"
	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/ruteri/docbind-trust-core/metrics"
)

const (
	// DefaultBudget bounds a resolver invocation that has no override.
	DefaultBudget = 2 * time.Second

	// MaxBudget is the global cap no override may exceed.
	MaxBudget = 10 * time.Second
)

// Dispatcher invokes resolver hooks for document lifecycle changes.
//
// The primary resolver participates in the enclosing operation: its failure
// or budget overrun aborts the operation. An unresolvable primary is treated
// as success, with an event recording the degradation. Additional resolvers
// are strictly best-effort: they can never abort anything, and each failure
// is recorded as an event.
type Dispatcher struct {
	components interfaces.ComponentResolver
	binder     HookBinder
	sink       events.Sink
	log        *slog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	budgets map[interfaces.ComponentID]time.Duration
}

// NewDispatcher creates a dispatcher resolving hooks through the component
// registry.
func NewDispatcher(components interfaces.ComponentResolver, binder HookBinder, sink events.Sink, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		components: components,
		binder:     binder,
		sink:       sink,
		log:        log,
		now:        time.Now,
		budgets:    make(map[interfaces.ComponentID]time.Duration),
	}
}

// SetBudget overrides the invocation budget for one resolver. Overrides
// above the global cap are clamped to it; zero or negative restores the
// default.
func (d *Dispatcher) SetBudget(id interfaces.ComponentID, budget time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if budget <= 0 {
		delete(d.budgets, id)
		return
	}
	if budget > MaxBudget {
		budget = MaxBudget
	}
	d.budgets[id] = budget
}

func (d *Dispatcher) budgetFor(id interfaces.ComponentID) time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if budget, ok := d.budgets[id]; ok {
		return budget
	}
	return DefaultBudget
}

// InvokePrimary notifies the document's primary resolver. No-op when the
// document has none configured. When the resolver cannot be resolved or
// bound, the operation proceeds and a PrimaryUnavailable event records the
// gap. When the resolver runs and fails, the error propagates and the
// enclosing operation must roll back.
func (d *Dispatcher) InvokePrimary(ctx context.Context, record *interfaces.DocumentRecord, inv Invocation) error {
	if record.PrimaryResolverID.IsZero() {
		return nil
	}

	hook := d.bind(ctx, record.PrimaryResolverID)
	if hook == nil {
		d.log.Warn("primary resolver unavailable",
			slog.String("document", record.ID.String()),
			slog.String("resolver", record.PrimaryResolverID.String()),
			slog.String("operation", inv.Operation),
		)
		d.emit(ctx, events.PrimaryUnavailable, inv, record.PrimaryResolverID, nil)
		metrics.ResolverFailuresTotal.WithLabelValues("primary_unavailable").Inc()
		return nil
	}

	if err := d.invoke(ctx, hook, record.PrimaryResolverID, inv); err != nil {
		metrics.ResolverFailuresTotal.WithLabelValues("primary_failed").Inc()
		return fmt.Errorf("primary resolver %s failed: %w", record.PrimaryResolverID, err)
	}
	return nil
}

// InvokeAdditional notifies every additional resolver. Unresolvable entries
// are skipped; run failures are recorded as AdditionalFailed events. Never
// returns an error.
func (d *Dispatcher) InvokeAdditional(ctx context.Context, record *interfaces.DocumentRecord, inv Invocation) {
	for _, id := range record.AdditionalResolverIDs {
		hook := d.bind(ctx, id)
		if hook == nil {
			continue
		}

		if err := d.invoke(ctx, hook, id, inv); err != nil {
			d.log.Warn("additional resolver failed",
				slog.String("document", record.ID.String()),
				slog.String("resolver", id.String()),
				slog.String("err", err.Error()),
			)
			d.emit(ctx, events.AdditionalFailed, inv, id, map[string]string{"error": err.Error()})
			metrics.ResolverFailuresTotal.WithLabelValues("additional_failed").Inc()
		}
	}
}

// bind resolves and binds a component, returning nil when either step fails.
func (d *Dispatcher) bind(ctx context.Context, id interfaces.ComponentID) Hook {
	record := d.components.Resolve(ctx, id)
	if record == nil {
		return nil
	}

	hook, err := d.binder.Bind(record)
	if err != nil {
		d.log.Warn("failed to bind resolver", slog.String("resolver", id.String()), slog.String("err", err.Error()))
		return nil
	}
	return hook
}

// invoke runs one hook under its budget. Budget overrun surfaces as a
// deadline error.
func (d *Dispatcher) invoke(ctx context.Context, hook Hook, id interfaces.ComponentID, inv Invocation) error {
	budgeted, cancel := context.WithTimeout(ctx, d.budgetFor(id))
	defer cancel()

	err := hook.OnDocumentEvent(budgeted, inv)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("resolver budget exhausted: %w", err)
	}
	return err
}

func (d *Dispatcher) emit(ctx context.Context, eventType events.Type, inv Invocation, resolverID interfaces.ComponentID, extra map[string]string) {
	if d.sink == nil {
		return
	}

	fields := map[string]string{"resolver": resolverID.String()}
	for k, v := range extra {
		fields[k] = v
	}
	event := events.New(eventType, d.now(), inv.Operation, inv.DocumentID.String(), inv.Actor.String(), fields)
	if err := d.sink.Emit(ctx, event); err != nil {
		d.log.Warn("failed to emit resolver event", slog.String("type", string(eventType)), slog.String("err", err.Error()))
	}
}
