package effect

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go-effects/internal/data"
)

const (
	ownerID  ActorID = 1
	casterA  ActorID = 100
	casterB  ActorID = 200
	testTick int64   = 1000
)

const testCatalogYAML = `
effects:
  - id: 10
    name: Timed
    duration: [5000]
  - id: 11
    name: Bleed
    kind: debuff
    duration: [5000]
    max_count: 3
    per_caster_instance: true
  - id: 20
    name: Ward
    duration: [10000]
    immune:
      ids: [21]
  - id: 21
    name: Curse
    kind: debuff
    duration: [10000]
  - id: 22
    name: Cleanse Aura
    duration: [10000]
    immune:
      categories: [7]
  - id: 23
    name: Poison
    kind: debuff
    category: 7
    duration: [10000]
  - id: 30
    name: Replace Me
    duration: [5000]
    reset_condition: replace
  - id: 31
    name: Persist
    duration: [5000]
    reset_condition: persist_end_tick
  - id: 32
    name: Reset
    duration: [5000]
    reset_condition: reset_end_tick
  - id: 33
    name: Reset Two
    duration: [5000]
    reset_condition: reset2
  - id: 40
    name: Stance A
    duration: [10000]
    group: 5
  - id: 41
    name: Stance B
    duration: [10000]
    group: 5
  - id: 50
    name: Frost Ward
    duration: [10000]
    stats:
      - attribute: pAtk
        flat: [10]
        rate: [0.05]
    resistances:
      - attribute: fire
        value: [0.1]
      - attribute: ice
        value: [0.2]
  - id: 51
    name: Fire Ward
    duration: [10000]
    resistances:
      - attribute: fire
        value: [0.3]
  - id: 52
    name: Scorch
    kind: debuff
    duration: [10000]
    resistances:
      - attribute: fire
        value: [-0.2]
      - attribute: ice
        value: [-0.2]
  - id: 53
    name: Ember Charm
    duration: [10000]
    resistances:
      - attribute: fire
        value: [0]
  - id: 54
    name: Hearth Charm
    duration: [10000]
    resistances:
      - attribute: fire
        value: [0]
  - id: 60
    name: Quick Cast
    duration: [10000]
    invoke:
      type: cooldown_reduce
      rate: [0.1]
      skill_group_id: 300
  - id: 61
    name: Focus
    duration: [10000]
    invoke:
      type: cooldown_reduce
      value: [2]
      skill_id: 1001
  - id: 70
    name: Frenzy
    duration: [10000]
    compulsion:
      event: skill_cast
      rate: [0.6]
  - id: 71
    name: Rage
    duration: [10000]
    compulsion:
      event: skill_cast
      rate: [0.7]
      skill_ids: [5]
  - id: 80
    name: Thorns
    duration: [10000]
    reflect:
      rate: 1
      damage_rate: 0.2
  - id: 81
    name: Mirror
    duration: [10000]
    reflect:
      rate: 0.5
      damage_rate: 0.5
  - id: 90
    name: Barrier
    duration: [10000]
    shield:
      hp: [100]
      hp_rate: 0.1
  - id: 100
    name: Guardian
    duration: [0]
    keep_on_death: true
    stats:
      - attribute: pDef
        flat: [5]
    begin_conditions:
      - require_alive: true
  - id: 101
    name: Last Stand
    duration: [10000]
    begin_conditions:
      - max_hp_rate: 0.5
  - id: 110
    name: Horse
    duration: [0]
    ride_id: 3
  - id: 111
    name: War Horse
    duration: [5000]
    ride_id: 4
    keep_on_death: true
    begin_conditions:
      - require_alive: true
  - id: 112
    name: Desperate Gallop
    duration: [0]
    ride_id: 5
    begin_conditions:
      - max_hp_rate: 0.5
  - id: 120
    name: Burst
    duration: [500]
    cooldown: 1000
  - id: 130
    name: Banner
    duration: [1000]
    loop: true
    interval: 300
    periodic:
      hp: [-10]
  - id: 140
    name: Commander
    duration: [10000]
    update:
      cancel_ids: [10]
      reset_cooldowns: [120]
      duration_deltas:
        - effect_id: 11
          delta: 1000
    overlap_modifiers:
      - effect_id: 11
        offset: 2
  - id: 150
    name: Arena Mark
    duration: [10000]
    keep_on_enter_pvp_zone: true
  - id: 151
    name: Safe Zone Blessing
    duration: [10000]
    keep_on_enter_pvp_zone: true
    remove_on_pvp_zone: true
  - id: 152
    name: Town Aura
    duration: [10000]
    remove_on_leave_field: true
    keep_on_enter_pvp_zone: true
  - id: 153
    name: Event Buff
    duration: [10000]
    remove_on_logout: true
  - id: 154
    name: Rune
    duration: [0]
    stats:
      - attribute: runSpd
        flat: [12]
  - id: 155
    name: Shade
    duration: [0]
  - id: 160
    name: Leveled
    levels: 3
    duration: [5000]
  - id: 170
    name: Dot
    duration: [2000]
    interval: 500
    delay: 100
    max_count: 2
    periodic:
      hp: [-5]
  - id: 171
    name: Battle Trance
    duration: [10000]
    max_count: 3
    stats:
      - attribute: mAtk
        flat: [4]
        rate: [0.01]
    resistances:
      - attribute: wind
        value: [0.1]
`

func testCatalog(t testing.TB) *data.EffectCatalog {
	t.Helper()
	c, err := data.ParseEffectCatalog([]byte(testCatalogYAML))
	require.NoError(t, err)
	return c
}

func testDef(t testing.TB, id, level int32) *data.EffectTemplate {
	t.Helper()
	def, ok := testCatalog(t).TryGetDefinition(id, level)
	require.True(t, ok, "definition %d/%d", id, level)
	return def
}

// fakeWorld records everything the registry hands to its collaborators.
type fakeWorld struct {
	mu        sync.Mutex
	actors    map[ActorID]ActorSnapshot
	notes     []Notification
	refreshes int
	procs     []PeriodicProc
	mounted   map[ActorID]int32
	mountErr  error
	dismounts int
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		actors: map[ActorID]ActorSnapshot{
			ownerID: {ID: ownerID, Level: 40, HP: 1000, MaxHP: 1000},
			casterA: {ID: casterA, Level: 40, HP: 500, MaxHP: 500},
			casterB: {ID: casterB, Level: 20, HP: 500, MaxHP: 500},
		},
		mounted: make(map[ActorID]int32),
	}
}

func (w *fakeWorld) Snapshot(id ActorID) (ActorSnapshot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.actors[id]
	return s, ok
}

func (w *fakeWorld) set(id ActorID, fn func(*ActorSnapshot)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.actors[id]
	fn(&s)
	w.actors[id] = s
}

func (w *fakeWorld) Broadcast(n Notification) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notes = append(w.notes, n)
}

func (w *fakeWorld) RefreshStats(ActorID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refreshes++
}

func (w *fakeWorld) OnPeriodic(p PeriodicProc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.procs = append(w.procs, p)
}

func (w *fakeWorld) Mount(id ActorID, rideID int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mountErr != nil {
		return w.mountErr
	}
	w.mounted[id] = rideID
	return nil
}

func (w *fakeWorld) Dismount(id ActorID, _ int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.mounted, id)
	w.dismounts++
}

func (w *fakeWorld) kinds() []NotificationKind {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]NotificationKind, len(w.notes))
	for i, n := range w.notes {
		out[i] = n.Kind
	}
	return out
}

func (w *fakeWorld) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notes = nil
	w.refreshes = 0
	w.procs = nil
}

func (w *fakeWorld) deps() Dependencies {
	return Dependencies{
		Actors:    w,
		Broadcast: w,
		Stats:     w,
		Periodic:  w,
		Mounts:    w,
	}
}

var errNoHorse = errors.New("no horse")

func newTestRegistry(t testing.TB, opts ...Option) (*Registry, *fakeWorld) {
	t.Helper()
	w := newFakeWorld()
	return NewRegistry(ownerID, testCatalog(t), w.deps(), opts...), w
}

func apply(r *Registry, caster ActorID, effectID int32, tick int64) (*Instance, Outcome) {
	return r.Apply(ApplyParams{
		CasterID:  caster,
		EffectID:  effectID,
		Level:     1,
		StartTick: tick,
		Broadcast: true,
	})
}
