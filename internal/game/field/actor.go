package field

import (
	"sync"

	"github.com/udisondev/la2go-effects/internal/data"
	"github.com/udisondev/la2go-effects/internal/game/effect"
)

// ActorSpec describes an actor joining a field.
type ActorSpec struct {
	ID     effect.ActorID
	Level  int32
	Job    int32
	HP     int64
	MaxHP  int64
	Player bool
	Remote bool
}

// StatBonus is the cached flat and rate bonus of one attribute.
type StatBonus struct {
	Flat float64
	Rate float64
}

// Actor is a character or NPC living in a field.
// Vital state is guarded by mu; the effect registry has its own lock.
// Lock order: registry before actor, never the reverse.
type Actor struct {
	id      effect.ActorID
	effects *effect.Registry

	mu     sync.RWMutex
	level  int32
	job    int32
	hp     int64
	maxHP  int64
	dead   bool
	player bool
	remote bool
	rideID int32
	stats  map[data.Attribute]StatBonus
}

// NewActor creates an actor. Effects are attached when it joins a field.
func NewActor(spec ActorSpec) *Actor {
	hp := spec.HP
	if hp <= 0 || hp > spec.MaxHP {
		hp = spec.MaxHP
	}
	return &Actor{
		id:     spec.ID,
		level:  spec.Level,
		job:    spec.Job,
		hp:     hp,
		maxHP:  spec.MaxHP,
		player: spec.Player,
		remote: spec.Remote,
		stats:  make(map[data.Attribute]StatBonus),
	}
}

func (a *Actor) ID() effect.ActorID { return a.id }

// Effects returns the actor's effect registry, nil before Join.
func (a *Actor) Effects() *effect.Registry { return a.effects }

// Snapshot returns the state read by begin conditions.
func (a *Actor) Snapshot() effect.ActorSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return effect.ActorSnapshot{
		ID:     a.id,
		Level:  a.level,
		Job:    a.job,
		HP:     a.hp,
		MaxHP:  a.maxHP,
		Dead:   a.dead,
		Player: a.player,
		Remote: a.remote,
		RideID: a.rideID,
	}
}

func (a *Actor) HP() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.hp
}

func (a *Actor) IsDead() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dead
}

func (a *Actor) RideID() int32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rideID
}

// Stat returns the cached effect bonus of attr as of the last stat refresh.
func (a *Actor) Stat(attr data.Attribute) StatBonus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats[attr]
}

// changeHP adds delta to HP bounded to [0, MaxHP].
// Returns true if the change killed the actor.
func (a *Actor) changeHP(delta int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dead {
		return false
	}
	a.hp = min(max(a.hp+delta, 0), a.maxHP)
	if a.hp == 0 {
		a.dead = true
		return true
	}
	return false
}

func (a *Actor) revive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.dead {
		return false
	}
	a.dead = false
	a.hp = a.maxHP
	return true
}

func (a *Actor) mount(rideID int32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.dead:
		return ErrActorDead
	case a.rideID != 0 && a.rideID != rideID:
		return ErrAlreadyMounted
	}
	a.rideID = rideID
	return nil
}

func (a *Actor) dismount(rideID int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rideID == rideID {
		a.rideID = 0
	}
}

// refreshStats recomputes the bonus cache from the registry.
// Registry queries run before the actor lock is taken.
func (a *Actor) refreshStats() {
	if a.effects == nil {
		return
	}
	next := make(map[data.Attribute]StatBonus)
	for _, in := range a.effects.All() {
		if !in.Enabled() {
			continue
		}
		for _, mod := range in.Definition().StatModifiers {
			if _, ok := next[mod.Attribute]; ok {
				continue
			}
			flat, rate := a.effects.StatBonus(mod.Attribute)
			next[mod.Attribute] = StatBonus{Flat: flat, Rate: rate}
		}
	}

	a.mu.Lock()
	a.stats = next
	a.mu.Unlock()
}
