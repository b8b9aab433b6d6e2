package effect

import "github.com/udisondev/la2go-effects/internal/data"

// State is the lifecycle state of an Instance.
type State int8

const (
	StatePending State = iota
	StateEnabled
	StateDisabled
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Instance is one live application of a definition to one (caster, owner) pair.
// Owned exclusively by a Registry; mutated only under its lock.
type Instance struct {
	def      *data.EffectTemplate
	id       int32
	casterID ActorID
	ownerID  ActorID
	targetID ActorID

	startTick    int64
	endTick      int64
	duration     int64
	nextProcTick int64

	stacks   int32
	state    State
	shieldHP int64

	// attached is true while contributions sit in the derived index.
	attached bool
	// mounted is true while the ride of this instance is held by the owner.
	mounted bool
}

func newInstance(def *data.EffectTemplate, id int32, casterID, ownerID, targetID ActorID, startTick, duration int64) *Instance {
	in := &Instance{
		def:       def,
		id:        id,
		casterID:  casterID,
		ownerID:   ownerID,
		targetID:  targetID,
		startTick: startTick,
		endTick:   data.PermanentEndTick,
		stacks:    1,
		state:     StatePending,
	}
	if duration > 0 {
		in.duration = duration
		in.endTick = startTick + duration
	}
	if def.Interval > 0 {
		in.nextProcTick = startTick + def.Delay
		if def.Delay <= 0 {
			in.nextProcTick = startTick + def.Interval
		}
	}
	return in
}

func (in *Instance) Definition() *data.EffectTemplate { return in.def }
func (in *Instance) ID() int32                        { return in.id }
func (in *Instance) EffectID() int32                  { return in.def.ID }
func (in *Instance) Level() int32                     { return in.def.Level }
func (in *Instance) CasterID() ActorID                { return in.casterID }
func (in *Instance) OwnerID() ActorID                 { return in.ownerID }
func (in *Instance) TargetID() ActorID                { return in.targetID }
func (in *Instance) StartTick() int64                 { return in.startTick }
func (in *Instance) EndTick() int64                   { return in.endTick }
func (in *Instance) Stacks() int32                    { return in.stacks }
func (in *Instance) State() State                     { return in.state }
func (in *Instance) ShieldHP() int64                  { return in.shieldHP }

// Enabled returns true if the instance currently contributes to derived state.
func (in *Instance) Enabled() bool { return in.state == StateEnabled }

// IsPermanent returns true if the instance has no end tick.
func (in *Instance) IsPermanent() bool { return in.endTick == data.PermanentEndTick }

// ExtendEnd moves the end tick. Returns true if the visible timer changed.
// The end tick never precedes the start tick; permanent instances are untouched.
func (in *Instance) ExtendEnd(newEndTick int64) bool {
	if in.state == StateRemoved || in.IsPermanent() {
		return false
	}
	newEndTick = max(newEndTick, in.startTick)
	if newEndTick == in.endTick {
		return false
	}
	in.endTick = newEndTick
	return true
}

// Stack changes the stack count by offset, bounded to [1, MaxCount].
// Returns true if the count changed. Non-stackable definitions never change.
func (in *Instance) Stack(offset int32) bool {
	if in.state == StateRemoved || !in.def.IsStackable() {
		return false
	}
	next := min(max(in.stacks+offset, 1), in.def.MaxCount)
	if next == in.stacks {
		return false
	}
	in.stacks = next
	return true
}

// Disable forces Disabled without removal. Returns true if the state changed.
func (in *Instance) Disable() bool {
	if in.state == StateDisabled || in.state == StateRemoved {
		return false
	}
	in.state = StateDisabled
	return true
}

// setEnabled applies a begin-condition result. Returns true on a transition
// between Enabled and Disabled, or when leaving Pending.
func (in *Instance) setEnabled(ok bool) bool {
	if in.state == StateRemoved {
		return false
	}
	next := StateDisabled
	if ok {
		next = StateEnabled
	}
	if next == in.state {
		return false
	}
	in.state = next
	return true
}

func (in *Instance) markRemoved() {
	in.state = StateRemoved
}

// tickResult is what one Update step asks the registry to do.
type tickResult struct {
	expired bool
	looped  bool
	proc    bool
}

// Update advances the instance to tick. grace delays expiry and loop
// restarts for owners whose client clock may lag behind the server.
func (in *Instance) Update(tick, grace int64) tickResult {
	var res tickResult
	if in.state == StateRemoved {
		return res
	}

	if !in.IsPermanent() && tick > in.endTick+grace {
		if !in.def.Loop || in.duration <= 0 {
			res.expired = true
			return res
		}
		in.restart(tick)
		res.looped = true
	}

	if in.state != StateEnabled || in.def.Interval <= 0 {
		return res
	}
	if tick >= in.nextProcTick {
		res.proc = true
		missed := (tick-in.nextProcTick)/in.def.Interval + 1
		in.nextProcTick += missed * in.def.Interval
	}
	return res
}

// restart moves the loop cursor to the cycle containing tick.
func (in *Instance) restart(tick int64) {
	cycles := (tick - in.startTick) / in.duration
	in.startTick += cycles * in.duration
	in.endTick = in.startTick + in.duration
}

func (in *Instance) notification(kind NotificationKind) Notification {
	return Notification{
		Kind:       kind,
		OwnerID:    in.ownerID,
		CasterID:   in.casterID,
		InstanceID: in.id,
		EffectID:   in.def.ID,
		Level:      in.def.Level,
		StartTick:  in.startTick,
		EndTick:    in.endTick,
		Stacks:     in.stacks,
		Enabled:    in.state == StateEnabled,
		ShieldHP:   in.shieldHP,
	}
}
