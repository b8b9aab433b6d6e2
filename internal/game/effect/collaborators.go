package effect

import "github.com/udisondev/la2go-effects/internal/data"

// ActorID is a handle to an actor, resolved through the field at point of use.
type ActorID int64

// ActorSnapshot — состояние актора на момент проверки условий.
// Registries never keep snapshots; they are fetched on each evaluation.
type ActorSnapshot struct {
	ID     ActorID
	Level  int32
	Job    int32
	HP     int64
	MaxHP  int64
	Dead   bool
	Player bool
	Remote bool // player whose client also tracks effect timers
	RideID int32
}

// HPRate returns current HP as a share of max HP.
func (s ActorSnapshot) HPRate() float64 {
	if s.MaxHP <= 0 {
		return 0
	}
	return float64(s.HP) / float64(s.MaxHP)
}

// Catalog resolves effect definitions.
type Catalog interface {
	TryGetDefinition(effectID, level int32) (*data.EffectTemplate, bool)
}

// ActorResolver looks up actor snapshots by id.
type ActorResolver interface {
	Snapshot(id ActorID) (ActorSnapshot, bool)
}

// NotificationKind is the observer-facing change type.
type NotificationKind int8

const (
	NotifyAdd NotificationKind = iota
	NotifyUpdate
	NotifyRemove
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyAdd:
		return "add"
	case NotifyUpdate:
		return "update"
	case NotifyRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Notification is an opaque change record handed to the broadcast channel.
type Notification struct {
	Kind       NotificationKind
	OwnerID    ActorID
	CasterID   ActorID
	InstanceID int32
	EffectID   int32
	Level      int32
	StartTick  int64
	EndTick    int64
	Stacks     int32
	Enabled    bool
	ShieldHP   int64
}

// Broadcaster forwards notifications to observers. Must not block.
type Broadcaster interface {
	Broadcast(n Notification)
}

// StatRefresher recomputes an actor's stats after stat-affecting changes.
type StatRefresher interface {
	RefreshStats(ownerID ActorID)
}

// PeriodicProc is one interval trigger handed to the damage pipeline.
type PeriodicProc struct {
	OwnerID    ActorID
	CasterID   ActorID
	InstanceID int32
	EffectID   int32
	Level      int32
	Stacks     int32
	Tick       int64
	HP         int64
}

// PeriodicHandler runs interval sub-effects (damage/heal over time).
type PeriodicHandler interface {
	OnPeriodic(p PeriodicProc)
}

// MountController mounts and dismounts actors for ride-granting effects.
// Called with the registry lock held; must not call back into the registry.
type MountController interface {
	Mount(ownerID ActorID, rideID int32) error
	Dismount(ownerID ActorID, rideID int32)
}

// Dependencies are the external collaborators of a Registry.
// Nil members are replaced by no-op implementations.
type Dependencies struct {
	Actors    ActorResolver
	Broadcast Broadcaster
	Stats     StatRefresher
	Periodic  PeriodicHandler
	Mounts    MountController
}

type nopDeps struct{}

func (nopDeps) Snapshot(ActorID) (ActorSnapshot, bool) { return ActorSnapshot{}, false }
func (nopDeps) Broadcast(Notification)                 {}
func (nopDeps) RefreshStats(ActorID)                   {}
func (nopDeps) OnPeriodic(PeriodicProc)                {}
func (nopDeps) Mount(ActorID, int32) error             { return nil }
func (nopDeps) Dismount(ActorID, int32)                {}

func (d Dependencies) withDefaults() Dependencies {
	if d.Actors == nil {
		d.Actors = nopDeps{}
	}
	if d.Broadcast == nil {
		d.Broadcast = nopDeps{}
	}
	if d.Stats == nil {
		d.Stats = nopDeps{}
	}
	if d.Periodic == nil {
		d.Periodic = nopDeps{}
	}
	if d.Mounts == nil {
		d.Mounts = nopDeps{}
	}
	return d
}
