package field

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/la2go-effects/internal/data"
	"github.com/udisondev/la2go-effects/internal/game/effect"
)

var (
	ErrActorExists    = errors.New("actor already in field")
	ErrActorNotFound  = errors.New("actor not in field")
	ErrActorDead      = errors.New("actor is dead")
	ErrAlreadyMounted = errors.New("actor already mounted")
)

const (
	defaultTickInterval = 100 * time.Millisecond
	defaultInboxSize    = 1024
	defaultOutboxSize   = 4096
)

// Config describes one field.
type Config struct {
	ID                 int32
	PvP                bool
	ShadowWorld        bool
	EntranceEffects    []data.EffectRef
	ShadowWorldEffects []data.EffectRef
	TickInterval       time.Duration
	GraceTicks         int64
	InboxSize          int
	OutboxSize         int
}

// SnapshotStore persists effect snapshots across sessions.
type SnapshotStore interface {
	Load(ctx context.Context, ownerID effect.ActorID) ([]effect.Snapshot, error)
	Save(ctx context.Context, ownerID effect.ActorID, snaps []effect.Snapshot) error
}

// Field owns the actors of one map and drives their effect registries.
//
// All registry mutations that originate outside the tick goroutine go through
// Submit and run at the start of the next Step. Field implements every
// effect collaborator interface for the registries it creates.
type Field struct {
	cfg     Config
	catalog effect.Catalog
	store   SnapshotStore

	actors     sync.Map // map[effect.ActorID]*Actor
	actorCount atomic.Int32

	inbox   chan func(tick int64)
	outbox  chan effect.Notification
	dropped atomic.Int64
	tick    atomic.Int64
}

// New creates a field. store may be nil, in which case nothing is persisted.
func New(cfg Config, catalog effect.Catalog, store SnapshotStore) *Field {
	if cfg.TickInterval < time.Millisecond {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defaultOutboxSize
	}
	return &Field{
		cfg:     cfg,
		catalog: catalog,
		store:   store,
		inbox:   make(chan func(tick int64), cfg.InboxSize),
		outbox:  make(chan effect.Notification, cfg.OutboxSize),
	}
}

func (f *Field) ID() int32 { return f.cfg.ID }

// Tick returns the tick of the last Step.
func (f *Field) Tick() int64 { return f.tick.Load() }

// Count returns the number of actors in the field.
func (f *Field) Count() int { return int(f.actorCount.Load()) }

// Dropped returns the number of notifications dropped on a full outbox.
func (f *Field) Dropped() int64 { return f.dropped.Load() }

// Notifications returns the outbound notification queue.
func (f *Field) Notifications() <-chan effect.Notification { return f.outbox }

// Actor returns the actor with the given id.
func (f *Field) Actor(id effect.ActorID) (*Actor, bool) {
	v, ok := f.actors.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Actor), true
}

func (f *Field) info() effect.FieldInfo {
	return effect.FieldInfo{
		MapID:              f.cfg.ID,
		PvP:                f.cfg.PvP,
		ShadowWorld:        f.cfg.ShadowWorld,
		EntranceEffects:    f.cfg.EntranceEffects,
		ShadowWorldEffects: f.cfg.ShadowWorldEffects,
	}
}

// Join adds an actor, restores its persisted effects and applies the
// field's entrance effects.
func (f *Field) Join(ctx context.Context, a *Actor) error {
	if _, ok := f.actors.Load(a.id); ok {
		return fmt.Errorf("joining actor %d: %w", a.id, ErrActorExists)
	}

	a.effects = effect.NewRegistry(a.id, f.catalog, effect.Dependencies{
		Actors:    f,
		Broadcast: f,
		Stats:     f,
		Periodic:  f,
		Mounts:    f,
	}, effect.WithGraceTicks(f.cfg.GraceTicks))

	if _, loaded := f.actors.LoadOrStore(a.id, a); loaded {
		return fmt.Errorf("joining actor %d: %w", a.id, ErrActorExists)
	}
	f.actorCount.Add(1)

	tick := f.tick.Load()
	restored := 0
	if f.store != nil {
		snaps, err := f.store.Load(ctx, a.id)
		if err != nil {
			f.actors.Delete(a.id)
			f.actorCount.Add(-1)
			return fmt.Errorf("loading effects of actor %d: %w", a.id, err)
		}
		restored = a.effects.ImportSnapshots(snaps, tick)
	}
	a.effects.OnFieldEnter(f.info(), tick)

	slog.Info("actor joined field",
		"field", f.cfg.ID,
		"actor", a.id,
		"restored", restored,
		"effects", a.effects.Count())
	return nil
}

// Leave removes an actor, strips field-bound effects and persists the rest.
func (f *Field) Leave(ctx context.Context, id effect.ActorID) error {
	a, ok := f.Actor(id)
	if !ok {
		return fmt.Errorf("leaving actor %d: %w", id, ErrActorNotFound)
	}

	a.effects.OnFieldLeave()
	snaps := a.effects.ExportPersistable()
	if _, ok := f.actors.LoadAndDelete(id); ok {
		f.actorCount.Add(-1)
	}

	slog.Info("actor left field", "field", f.cfg.ID, "actor", id, "persisted", len(snaps))

	if f.store == nil {
		return nil
	}
	if err := f.store.Save(ctx, id, snaps); err != nil {
		return fmt.Errorf("saving effects of actor %d: %w", id, err)
	}
	return nil
}

// SaveAll persists the effects of every actor in the field.
func (f *Field) SaveAll(ctx context.Context) error {
	if f.store == nil {
		return nil
	}
	var errs []error
	saved := 0
	f.actors.Range(func(_, v any) bool {
		a := v.(*Actor)
		if err := f.store.Save(ctx, a.id, a.effects.ExportPersistable()); err != nil {
			errs = append(errs, fmt.Errorf("saving effects of actor %d: %w", a.id, err))
			return ctx.Err() == nil
		}
		saved++
		return true
	})
	if IsDebugEnabled() {
		slog.Debug("field effects saved", "field", f.cfg.ID, "actors", saved, "failed", len(errs))
	}
	return errors.Join(errs...)
}

// RunSaveLoop periodically persists every actor's effects.
// Blocks until ctx is canceled, then saves once more.
func (f *Field) RunSaveLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("field save loop started", "field", f.cfg.ID, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			// Final save before exit
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			if err := f.SaveAll(saveCtx); err != nil {
				slog.Error("final effect save", "field", f.cfg.ID, "error", err)
			}
			cancel()
			slog.Info("field save loop stopping", "field", f.cfg.ID)
			return ctx.Err()
		case <-ticker.C:
			if err := f.SaveAll(ctx); err != nil {
				slog.Error("periodic effect save", "field", f.cfg.ID, "error", err)
			}
		}
	}
}

// Submit queues fn to run on the tick goroutine at the start of the next Step.
func (f *Field) Submit(ctx context.Context, fn func(tick int64)) error {
	select {
	case f.inbox <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyFrom applies an effect of casterID to targetID on the next tick.
func (f *Field) ApplyFrom(ctx context.Context, casterID, targetID effect.ActorID, effectID, level int32) error {
	return f.Submit(ctx, func(tick int64) {
		target, ok := f.Actor(targetID)
		if !ok {
			slog.Debug("apply target not in field", "field", f.cfg.ID, "target", targetID, "effect", effectID)
			return
		}
		_, out := target.effects.Apply(effect.ApplyParams{
			CasterID:  casterID,
			TargetID:  targetID,
			EffectID:  effectID,
			Level:     level,
			StartTick: tick,
			Broadcast: true,
		})
		if err := out.Err(); err != nil {
			slog.Debug("effect not applied",
				"field", f.cfg.ID,
				"caster", casterID,
				"target", targetID,
				"effect", effectID,
				"error", err)
		}
	})
}

// Dispel removes effectID applied by casterID from targetID on the next tick.
func (f *Field) Dispel(ctx context.Context, targetID, casterID effect.ActorID, effectID int32) error {
	return f.Submit(ctx, func(int64) {
		if target, ok := f.Actor(targetID); ok {
			target.effects.Remove(effectID, casterID)
		}
	})
}

// Attack deals damage from attackerID to targetID on the next tick.
func (f *Field) Attack(ctx context.Context, attackerID, targetID effect.ActorID, amount int64) error {
	return f.Submit(ctx, func(tick int64) {
		f.hit(tick, attackerID, targetID, amount)
	})
}

// Revive restores a dead actor to full HP on the next tick.
func (f *Field) Revive(ctx context.Context, id effect.ActorID) error {
	return f.Submit(ctx, func(int64) {
		a, ok := f.Actor(id)
		if !ok || !a.revive() {
			return
		}
		a.effects.ReevaluateEnabled()
	})
}

// Equip reports gear-granted effects that changed on the next tick.
func (f *Field) Equip(ctx context.Context, id effect.ActorID, added, removed []data.EffectRef) error {
	return f.Submit(ctx, func(tick int64) {
		if a, ok := f.Actor(id); ok {
			a.effects.OnGearChange(added, removed, tick)
		}
	})
}

// Run drives Step on every tick interval until ctx is canceled.
func (f *Field) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.TickInterval)
	defer ticker.Stop()

	step := f.cfg.TickInterval.Milliseconds()
	slog.Info("field tick loop started", "field", f.cfg.ID, "interval", f.cfg.TickInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("field tick loop stopping", "field", f.cfg.ID)
			return ctx.Err()
		case <-ticker.C:
			f.Step(f.tick.Load() + step)
		}
	}
}

// Step runs one tick: drains queued work, then updates every registry.
// Must only be called from a single goroutine.
func (f *Field) Step(tick int64) {
	f.tick.Store(tick)

	for n := len(f.inbox); n > 0; n-- {
		fn := <-f.inbox
		fn(tick)
	}

	count := 0
	f.actors.Range(func(_, v any) bool {
		v.(*Actor).effects.Update(tick)
		count++
		return true
	})

	if IsDebugEnabled() {
		slog.Debug("field tick completed", "field", f.cfg.ID, "tick", tick, "actors", count)
	}
}

// hit runs the damage-taking path: shield absorb, HP loss, reflect.
func (f *Field) hit(tick int64, attackerID, targetID effect.ActorID, amount int64) {
	target, ok := f.Actor(targetID)
	if !ok || amount <= 0 || target.IsDead() {
		return
	}

	reflect, reflected := target.effects.ActiveReflect()

	dealt := amount - target.effects.AbsorbDamage(amount)
	if dealt > 0 && target.changeHP(-dealt) {
		f.kill(target)
	}

	if !reflected || attackerID == targetID || rand.Float64() >= reflect.Reflect.Rate {
		return
	}
	attacker, ok := f.Actor(attackerID)
	if !ok {
		return
	}
	back := int64(float64(amount)*reflect.Reflect.DamageRate) + reflect.Reflect.FlatDamage
	if back > 0 && attacker.changeHP(-back) {
		f.kill(attacker)
	}
	if id := reflect.Reflect.CasterEffect; id != 0 && !attacker.IsDead() {
		attacker.effects.Apply(effect.ApplyParams{
			CasterID:  targetID,
			EffectID:  id,
			Level:     1,
			StartTick: tick,
			Broadcast: true,
		})
	}
}

func (f *Field) kill(a *Actor) {
	slog.Debug("actor died", "field", f.cfg.ID, "actor", a.id)
	a.effects.OnDeath()
}

// Snapshot implements effect.ActorResolver.
func (f *Field) Snapshot(id effect.ActorID) (effect.ActorSnapshot, bool) {
	a, ok := f.Actor(id)
	if !ok {
		return effect.ActorSnapshot{}, false
	}
	return a.Snapshot(), true
}

// Broadcast implements effect.Broadcaster. Never blocks; a full outbox drops.
func (f *Field) Broadcast(n effect.Notification) {
	select {
	case f.outbox <- n:
	default:
		if f.dropped.Add(1)%1000 == 1 {
			slog.Warn("effect notification dropped",
				"field", f.cfg.ID,
				"owner", n.OwnerID,
				"effect", n.EffectID,
				"kind", n.Kind,
				"dropped", f.dropped.Load())
		}
	}
}

// RefreshStats implements effect.StatRefresher.
func (f *Field) RefreshStats(ownerID effect.ActorID) {
	if a, ok := f.Actor(ownerID); ok {
		a.refreshStats()
	}
}

// OnPeriodic implements effect.PeriodicHandler.
func (f *Field) OnPeriodic(p effect.PeriodicProc) {
	if p.HP == 0 {
		return
	}
	a, ok := f.Actor(p.OwnerID)
	if !ok {
		return
	}
	if a.changeHP(p.HP) {
		f.kill(a)
	}
}

// Mount implements effect.MountController.
func (f *Field) Mount(ownerID effect.ActorID, rideID int32) error {
	a, ok := f.Actor(ownerID)
	if !ok {
		return fmt.Errorf("mounting actor %d: %w", ownerID, ErrActorNotFound)
	}
	if err := a.mount(rideID); err != nil {
		return fmt.Errorf("mounting actor %d on %d: %w", ownerID, rideID, err)
	}
	return nil
}

// Dismount implements effect.MountController.
func (f *Field) Dismount(ownerID effect.ActorID, rideID int32) {
	if a, ok := f.Actor(ownerID); ok {
		a.dismount(rideID)
	}
}
