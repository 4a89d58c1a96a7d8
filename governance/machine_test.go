package governance

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/docbind-trust-core/events"
	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	deployer  = interfaces.Identity{0x01}
	guardian  = interfaces.Identity{0x02}
	community = interfaces.Identity{0x03}
	emergency = interfaces.Identity{0x04}
	stranger  = interfaces.Identity{0xff}
)

func newMachine(t *testing.T) (*Machine, *events.MemorySink) {
	t.Helper()
	sink := events.NewMemorySink()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewMachine(Config{InitialAuthority: deployer, EmergencyAuthority: emergency}, sink, log)
	return m, sink
}

func TestTransition_FullProgression(t *testing.T) {
	m, sink := newMachine(t)
	ctx := context.Background()

	require.NoError(t, m.Transition(ctx, deployer, interfaces.StageGuardian, guardian))
	assert.Equal(t, interfaces.StageGuardian, m.State().Stage)
	assert.True(t, m.IsAuthority(guardian))
	assert.False(t, m.IsAuthority(deployer), "prior holder loses rights")

	require.NoError(t, m.Transition(ctx, guardian, interfaces.StageCommunity, community))
	assert.True(t, m.IsAuthority(community))

	require.NoError(t, m.Transition(ctx, community, interfaces.StageFrozen, interfaces.Identity{}))
	state := m.State()
	assert.Equal(t, interfaces.StageFrozen, state.Stage)
	assert.False(t, state.FrozenAt.IsZero())

	assert.Len(t, sink.ByType(events.GovernanceTransition), 3)
}

func TestTransition_OutOfOrderFails(t *testing.T) {
	m, _ := newMachine(t)
	ctx := context.Background()

	// Skipping a stage.
	assert.ErrorIs(t, m.Transition(ctx, deployer, interfaces.StageCommunity, community), interfaces.ErrInvalidStageTransition)

	require.NoError(t, m.Transition(ctx, deployer, interfaces.StageGuardian, guardian))

	// Reversing.
	assert.ErrorIs(t, m.Transition(ctx, guardian, interfaces.StageBootstrap, deployer), interfaces.ErrInvalidStageTransition)
	// Staying put.
	assert.ErrorIs(t, m.Transition(ctx, guardian, interfaces.StageGuardian, guardian), interfaces.ErrInvalidStageTransition)
}

func TestTransition_AuthorityOnly(t *testing.T) {
	m, _ := newMachine(t)
	ctx := context.Background()

	assert.ErrorIs(t, m.Transition(ctx, stranger, interfaces.StageGuardian, guardian), interfaces.ErrUnauthorized)

	require.NoError(t, m.Transition(ctx, deployer, interfaces.StageGuardian, guardian))
	// The old authority cannot act anymore.
	assert.ErrorIs(t, m.Transition(ctx, deployer, interfaces.StageCommunity, community), interfaces.ErrUnauthorized)
}

func TestFreeze_TerminalFromAnyStage(t *testing.T) {
	m, sink := newMachine(t)
	ctx := context.Background()

	frozenAt := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return frozenAt })

	assert.ErrorIs(t, m.Freeze(ctx, stranger), interfaces.ErrUnauthorized)
	require.NoError(t, m.Freeze(ctx, deployer))

	state := m.State()
	assert.Equal(t, interfaces.StageFrozen, state.Stage)
	assert.Equal(t, frozenAt, state.FrozenAt)
	assert.True(t, state.CurrentAuthority.IsZero())

	// Frozen blocks everything afterwards.
	assert.ErrorIs(t, m.Freeze(ctx, deployer), interfaces.ErrOssified)
	assert.ErrorIs(t, m.Transition(ctx, deployer, interfaces.StageGuardian, guardian), interfaces.ErrOssified)
	assert.ErrorIs(t, m.CheckUpgradeAllowed(), interfaces.ErrOssified)

	assert.Len(t, sink.ByType(events.GovernanceFrozen), 1)
}

func TestPause_AuthorityGated(t *testing.T) {
	m, sink := newMachine(t)
	ctx := context.Background()

	assert.ErrorIs(t, m.Pause(ctx, stranger), interfaces.ErrUnauthorized)
	assert.False(t, m.Paused())
	assert.NoError(t, m.CheckOperational())

	require.NoError(t, m.Pause(ctx, deployer))
	assert.True(t, m.Paused())
	assert.ErrorIs(t, m.CheckOperational(), interfaces.ErrSystemPaused)

	assert.ErrorIs(t, m.Unpause(ctx, stranger), interfaces.ErrUnauthorized)
	require.NoError(t, m.Unpause(ctx, deployer))
	assert.NoError(t, m.CheckOperational())

	assert.Len(t, sink.ByType(events.SystemPauseChanged), 2)
}

func TestEmergencyAuthority(t *testing.T) {
	m, _ := newMachine(t)

	assert.True(t, m.IsEmergencyAuthority(emergency))
	assert.False(t, m.IsEmergencyAuthority(deployer))
	assert.False(t, m.IsEmergencyAuthority(interfaces.Identity{}))
}
