// Package governance implements the one-way authority stage machine and the
// system-wide pause flag.
//
// Administrative authority over upgradeable components progresses through
// fixed stages (bootstrap, guardian, community, frozen). Each forward
// transition reassigns authority and revokes the prior holder's rights.
// The frozen stage is terminal: once reached, every upgrade or
// reconfiguration attempt fails permanently.
package governance

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ruteri/docbind-trust-core/events"
	"github.com/ruteri/docbind-trust-core/interfaces"
	"go.uber.org/atomic"
)

// Machine holds the governance stage, the current authority, and the pause
// flag. Safe for concurrent use.
type Machine struct {
	mu    sync.RWMutex
	state interfaces.GovernanceState

	// emergencyAuthority may emergency-unlock resolver configuration before
	// the emergency window expires. It holds no other rights.
	emergencyAuthority interfaces.Identity

	// paused is read lock-free by every mutating entry point.
	paused *atomic.Bool

	sink events.Sink
	log  *slog.Logger
	now  func() time.Time
}

// Config carries the initial governance configuration.
type Config struct {
	InitialAuthority   interfaces.Identity
	EmergencyAuthority interfaces.Identity
}

// NewMachine creates a machine in the bootstrap stage.
func NewMachine(cfg Config, sink events.Sink, log *slog.Logger) *Machine {
	return &Machine{
		state: interfaces.GovernanceState{
			Stage:            interfaces.StageBootstrap,
			CurrentAuthority: cfg.InitialAuthority,
		},
		emergencyAuthority: cfg.EmergencyAuthority,
		paused:             atomic.NewBool(false),
		sink:               sink,
		log:                log,
		now:                time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (m *Machine) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// State returns a copy of the current governance state.
func (m *Machine) State() interfaces.GovernanceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Authority returns the identity currently holding governance authority.
func (m *Machine) Authority() interfaces.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.CurrentAuthority
}

// IsAuthority reports whether the identity is the current governance
// authority.
func (m *Machine) IsAuthority(id interfaces.Identity) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.CurrentAuthority.Equal(id)
}

// IsEmergencyAuthority reports whether the identity holds the designated
// emergency powers.
func (m *Machine) IsEmergencyAuthority(id interfaces.Identity) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.emergencyAuthority.IsZero() && m.emergencyAuthority.Equal(id)
}

// Transition advances the machine to the next stage. Only the current
// authority may call it, only the immediately following stage is accepted,
// and the new authority takes over on success. Transitioning into the frozen
// stage records the freeze time.
func (m *Machine) Transition(ctx context.Context, caller interfaces.Identity, next interfaces.GovernanceStage, newAuthority interfaces.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Stage == interfaces.StageFrozen {
		return interfaces.ErrOssified
	}
	if !m.state.CurrentAuthority.Equal(caller) {
		return interfaces.ErrUnauthorized
	}
	if next != m.state.Stage+1 {
		return interfaces.ErrInvalidStageTransition
	}

	prev := m.state.Stage
	m.state.Stage = next
	m.state.CurrentAuthority = newAuthority
	if next == interfaces.StageFrozen {
		m.state.FrozenAt = m.now()
	}

	m.log.Info("governance stage transitioned",
		slog.String("from", prev.String()),
		slog.String("to", next.String()),
		slog.String("authority", newAuthority.String()),
	)
	m.emit(ctx, events.GovernanceTransition, "transitionGovernanceStage", caller, map[string]string{
		"from":          prev.String(),
		"to":            next.String(),
		"new_authority": newAuthority.String(),
	})
	return nil
}

// Freeze moves the machine directly into the terminal frozen stage from any
// earlier stage. Only the current authority may call it. Authority is
// cleared: nothing remains to govern once frozen.
func (m *Machine) Freeze(ctx context.Context, caller interfaces.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Stage == interfaces.StageFrozen {
		return interfaces.ErrOssified
	}
	if !m.state.CurrentAuthority.Equal(caller) {
		return interfaces.ErrUnauthorized
	}

	prev := m.state.Stage
	m.state.Stage = interfaces.StageFrozen
	m.state.CurrentAuthority = interfaces.Identity{}
	m.state.FrozenAt = m.now()

	m.log.Info("governance frozen", slog.String("from", prev.String()))
	m.emit(ctx, events.GovernanceFrozen, "freezeGovernance", caller, map[string]string{
		"from": prev.String(),
	})
	return nil
}

// CheckUpgradeAllowed fails with ErrOssified once the machine is frozen.
// Called by every administrative entry point that changes an upgradeable
// component.
func (m *Machine) CheckUpgradeAllowed() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.Stage == interfaces.StageFrozen {
		return interfaces.ErrOssified
	}
	return nil
}

// Pause sets the system-wide pause flag. Authority only.
func (m *Machine) Pause(ctx context.Context, caller interfaces.Identity) error {
	return m.setPaused(ctx, caller, true)
}

// Unpause clears the system-wide pause flag. Authority only.
func (m *Machine) Unpause(ctx context.Context, caller interfaces.Identity) error {
	return m.setPaused(ctx, caller, false)
}

func (m *Machine) setPaused(ctx context.Context, caller interfaces.Identity, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.CurrentAuthority.Equal(caller) {
		return interfaces.ErrUnauthorized
	}
	m.paused.Store(paused)

	m.log.Info("system pause flag changed", slog.Bool("paused", paused))
	m.emit(ctx, events.SystemPauseChanged, "setPaused", caller, map[string]string{
		"paused": strconv.FormatBool(paused),
	})
	return nil
}

// Paused reports the pause flag. Lock-free.
func (m *Machine) Paused() bool {
	return m.paused.Load()
}

// CheckOperational fails with ErrSystemPaused while the pause flag is set.
// Called at entry to every mutating operation.
func (m *Machine) CheckOperational() error {
	if m.paused.Load() {
		return interfaces.ErrSystemPaused
	}
	return nil
}

// emit must be called with m.mu held so the event timestamp matches the
// state it describes.
func (m *Machine) emit(ctx context.Context, eventType events.Type, operation string, actor interfaces.Identity, fields map[string]string) {
	if m.sink == nil {
		return
	}
	event := events.New(eventType, m.now(), operation, m.state.Stage.String(), actor.String(), fields)
	if err := m.sink.Emit(ctx, event); err != nil {
		m.log.Warn("failed to emit governance event", slog.String("type", string(eventType)), slog.String("err", err.Error()))
	}
}
