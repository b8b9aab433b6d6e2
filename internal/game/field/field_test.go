package field

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go-effects/internal/data"
	"github.com/udisondev/la2go-effects/internal/game/effect"
)

const (
	effMight          = 10000001
	effShieldOfFaith  = 10000002
	effBleed          = 10000003
	effThornSkin      = 10000005
	effSwift          = 10000006
	effGuardianSpirit = 10000009
	effBattleStandard = 10000010
	effWarhorse       = 10000011
	effArenaFervor    = 10000012
	effHasteRune      = 10000014
)

var errStoreDown = errors.New("store down")

type memStore struct {
	mu      sync.Mutex
	snaps   map[effect.ActorID][]effect.Snapshot
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[effect.ActorID][]effect.Snapshot)}
}

func (s *memStore) Load(_ context.Context, id effect.ActorID) ([]effect.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps[id], nil
}

func (s *memStore) Save(_ context.Context, id effect.ActorID, snaps []effect.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snaps[id] = snaps
	return nil
}

func (s *memStore) get(id effect.ActorID) []effect.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps[id]
}

func testCatalog(t *testing.T) *data.EffectCatalog {
	t.Helper()
	c, err := data.LoadEffectCatalog("")
	require.NoError(t, err)
	return c
}

func newActor(id effect.ActorID, hp int64) *Actor {
	return NewActor(ActorSpec{ID: id, Level: 40, HP: hp, MaxHP: 1000, Player: true})
}

func joined(t *testing.T, f *Field, ids ...effect.ActorID) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.Join(context.Background(), newActor(id, 1000)))
	}
}

func drain(f *Field) []effect.Notification {
	var out []effect.Notification
	for {
		select {
		case n := <-f.Notifications():
			out = append(out, n)
		default:
			return out
		}
	}
}

func TestField_JoinRestoresAndLeavePersists(t *testing.T) {
	store := newMemStore()
	store.snaps[1] = []effect.Snapshot{
		{EffectID: effMight, Level: 2, CasterID: 5, RemainingTicks: 3000, Stacks: 1, Enabled: true},
	}
	f := New(Config{ID: 1}, testCatalog(t), store)
	f.Step(1000)

	a := newActor(1, 1000)
	require.NoError(t, f.Join(context.Background(), a))
	assert.Equal(t, 1, f.Count())
	require.True(t, a.Effects().HasEffect(effMight, 2, 1))
	assert.Equal(t, int64(4000), a.Effects().ByID(effMight)[0].EndTick())
	assert.InDelta(t, 0.12, a.Stat("pAtk").Rate, 1e-9)
	assert.Empty(t, drain(f), "restored effects are not broadcast")

	err := f.Join(context.Background(), newActor(1, 1000))
	assert.ErrorIs(t, err, ErrActorExists)

	require.NoError(t, f.Leave(context.Background(), 1))
	assert.Equal(t, 0, f.Count())
	saved := store.get(1)
	require.Len(t, saved, 1)
	assert.Equal(t, int64(3000), saved[0].RemainingTicks)

	assert.ErrorIs(t, f.Leave(context.Background(), 1), ErrActorNotFound)
}

func TestField_ApplyFromRunsOnNextStep(t *testing.T) {
	f := New(Config{ID: 1}, testCatalog(t), nil)
	joined(t, f, 1, 2)
	a, _ := f.Actor(1)

	require.NoError(t, f.ApplyFrom(context.Background(), 2, 1, effThornSkin, 1))
	assert.False(t, a.Effects().HasEffect(effThornSkin, 1, 1))

	f.Step(100)
	require.True(t, a.Effects().HasEffect(effThornSkin, 1, 1))
	in := a.Effects().ByID(effThornSkin)[0]
	assert.Equal(t, effect.ActorID(2), in.CasterID())
	assert.Equal(t, int64(100), in.StartTick())

	notes := drain(f)
	require.Len(t, notes, 1)
	assert.Equal(t, effect.NotifyAdd, notes[0].Kind)
	assert.Equal(t, int32(effThornSkin), notes[0].EffectID)

	require.NoError(t, f.Dispel(context.Background(), 1, 2, effThornSkin))
	f.Step(200)
	assert.False(t, a.Effects().HasEffect(effThornSkin, 1, 1))
}

func TestField_OutboxDropsWhenFull(t *testing.T) {
	f := New(Config{ID: 1, OutboxSize: 1}, testCatalog(t), nil)
	joined(t, f, 1)

	ctx := context.Background()
	require.NoError(t, f.ApplyFrom(ctx, 1, 1, effThornSkin, 1))
	require.NoError(t, f.ApplyFrom(ctx, 1, 1, effSwift, 1))
	f.Step(0)

	assert.Len(t, drain(f), 1)
	assert.Equal(t, int64(1), f.Dropped())

	a, _ := f.Actor(1)
	assert.Equal(t, 2, a.Effects().Count(), "dropping never blocks the tick")
}

func TestField_PeriodicDamageKillsAndReviveReenables(t *testing.T) {
	f := New(Config{ID: 1}, testCatalog(t), nil)
	require.NoError(t, f.Join(context.Background(), newActor(1, 100)))
	joined(t, f, 2)
	a, _ := f.Actor(1)

	ctx := context.Background()
	require.NoError(t, f.ApplyFrom(ctx, 2, 1, effBleed, 5))
	require.NoError(t, f.ApplyFrom(ctx, 2, 1, effMight, 1))
	require.NoError(t, f.ApplyFrom(ctx, 1, 1, effGuardianSpirit, 1))
	f.Step(0)
	require.Equal(t, 3, a.Effects().Count())

	f.Step(999)
	assert.Equal(t, int64(100), a.HP())

	f.Step(1000)
	assert.True(t, a.IsDead())
	assert.Zero(t, a.HP())
	assert.False(t, a.Effects().HasEffect(effBleed, 1, 1))
	assert.False(t, a.Effects().HasEffect(effMight, 1, 1))
	require.True(t, a.Effects().HasEffect(effGuardianSpirit, 1, 1))
	guardian := a.Effects().ByID(effGuardianSpirit)[0]
	assert.False(t, guardian.Enabled())

	require.NoError(t, f.Revive(ctx, 1))
	f.Step(1100)
	assert.False(t, a.IsDead())
	assert.Equal(t, int64(1000), a.HP())
	assert.True(t, guardian.Enabled())
}

func TestField_AttackShieldAndReflect(t *testing.T) {
	f := New(Config{ID: 1}, testCatalog(t), nil)
	joined(t, f, 1, 2)
	target, _ := f.Actor(1)
	attacker, _ := f.Actor(2)

	ctx := context.Background()
	require.NoError(t, f.ApplyFrom(ctx, 1, 1, effShieldOfFaith, 1))
	require.NoError(t, f.ApplyFrom(ctx, 1, 1, effThornSkin, 1))
	f.Step(0)
	assert.Equal(t, int64(550), target.Effects().ByID(effShieldOfFaith)[0].ShieldHP())

	require.NoError(t, f.Attack(ctx, 2, 1, 600))
	f.Step(100)

	assert.Equal(t, int64(950), target.HP())
	assert.False(t, target.Effects().HasEffect(effShieldOfFaith, 1, 1), "depleted shield removed")
	assert.Equal(t, int64(880), attacker.HP())
}

func TestField_MountThroughEffects(t *testing.T) {
	f := New(Config{ID: 1}, testCatalog(t), newMemStore())
	joined(t, f, 1, 2)
	a, _ := f.Actor(1)

	ctx := context.Background()
	require.NoError(t, f.ApplyFrom(ctx, 1, 1, effWarhorse, 1))
	f.Step(0)
	assert.Equal(t, int32(7), a.RideID())

	require.NoError(t, f.Leave(ctx, 1))
	assert.Zero(t, a.RideID(), "leaving the field dismounts")

	b, _ := f.Actor(2)
	require.NoError(t, f.Attack(ctx, 1, 2, 5000))
	require.NoError(t, f.ApplyFrom(ctx, 2, 2, effWarhorse, 1))
	f.Step(100)
	assert.True(t, b.IsDead())
	assert.False(t, b.Effects().HasEffect(effWarhorse, 1, 1), "mount failure rolls the effect back")
	assert.Zero(t, b.RideID())
}

func TestField_PvPEntryAndLeave(t *testing.T) {
	store := newMemStore()
	store.snaps[1] = []effect.Snapshot{
		{EffectID: effMight, Level: 1, CasterID: 5, RemainingTicks: 3000, Stacks: 1, Enabled: true},
		{EffectID: effBattleStandard, Level: 1, CasterID: 5, RemainingTicks: 3000, Stacks: 1, Enabled: true},
	}
	f := New(Config{
		ID:              2,
		PvP:             true,
		EntranceEffects: []data.EffectRef{{ID: effArenaFervor, Level: 1}},
	}, testCatalog(t), store)

	a := newActor(1, 1000)
	require.NoError(t, f.Join(context.Background(), a))

	assert.False(t, a.Effects().HasEffect(effMight, 1, 1), "stripped by pvp entry")
	assert.True(t, a.Effects().HasEffect(effBattleStandard, 1, 1))
	assert.True(t, a.Effects().HasEffect(effArenaFervor, 1, 1))
	assert.InDelta(t, 0.05, a.Stat("pAtk").Rate, 1e-9)

	require.NoError(t, f.Leave(context.Background(), 1))
	saved := store.get(1)
	require.Len(t, saved, 1)
	assert.Equal(t, int32(effBattleStandard), saved[0].EffectID)
}

func TestField_EquipGrantsEffects(t *testing.T) {
	f := New(Config{ID: 1}, testCatalog(t), nil)
	joined(t, f, 1)
	a, _ := f.Actor(1)
	runeRef := []data.EffectRef{{ID: effHasteRune, Level: 1}}

	require.NoError(t, f.Equip(context.Background(), 1, runeRef, nil))
	f.Step(0)
	assert.Equal(t, 12.0, a.Stat("runSpd").Flat)

	require.NoError(t, f.Equip(context.Background(), 1, nil, runeRef))
	f.Step(100)
	assert.False(t, a.Effects().HasEffect(effHasteRune, 1, 1))
	assert.Zero(t, a.Stat("runSpd").Flat)
}

func TestField_SaveAll(t *testing.T) {
	store := newMemStore()
	f := New(Config{ID: 1}, testCatalog(t), store)
	joined(t, f, 1, 2)

	ctx := context.Background()
	require.NoError(t, f.ApplyFrom(ctx, 2, 1, effMight, 1))
	require.NoError(t, f.ApplyFrom(ctx, 1, 2, effSwift, 1))
	f.Step(0)

	require.NoError(t, f.SaveAll(ctx))
	assert.Len(t, store.get(1), 1)
	assert.Len(t, store.get(2), 1)

	store.saveErr = errStoreDown
	assert.ErrorIs(t, f.SaveAll(ctx), errStoreDown)
}

func TestField_SubmitHonorsContext(t *testing.T) {
	f := New(Config{ID: 1, InboxSize: 1}, testCatalog(t), nil)

	require.NoError(t, f.Submit(context.Background(), func(int64) {}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Submit(ctx, func(int64) {}), context.Canceled)
}

func TestField_RunAdvancesTicks(t *testing.T) {
	f := New(Config{ID: 1, TickInterval: 5 * time.Millisecond}, testCatalog(t), nil)
	joined(t, f, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return f.Tick() >= 20 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Zero(t, f.Tick()%5, "ticks advance by the interval")
}

func TestField_SaveLoopSavesOnStop(t *testing.T) {
	store := newMemStore()
	f := New(Config{ID: 1}, testCatalog(t), store)
	joined(t, f, 1)
	require.NoError(t, f.ApplyFrom(context.Background(), 1, 1, effSwift, 1))
	f.Step(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.RunSaveLoop(ctx, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, store.get(1), 1)
}

func TestEnableDebugLogging(t *testing.T) {
	t.Cleanup(func() { EnableDebugLogging(false) })

	EnableDebugLogging(true)
	assert.True(t, IsDebugEnabled())
	EnableDebugLogging(false)
	assert.False(t, IsDebugEnabled())
}
