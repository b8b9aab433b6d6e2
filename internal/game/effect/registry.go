package effect

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/udisondev/la2go-effects/internal/data"
)

// Registry tracks live effect instances of one actor and the derived indices
// read by the stat and damage subsystems.
//
// Thread-safe: all methods take mu. The field tick is the serialization
// boundary for compound operations; the lock only keeps out-of-tick readers
// (persistence flush) memory-safe. Broadcasts, stat refresh requests and
// periodic procs are collected under mu and dispatched after it is released,
// so those collaborators may call back into the registry.
type Registry struct {
	mu sync.Mutex

	ownerID    ActorID
	catalog    Catalog
	deps       Dependencies
	graceTicks int64

	nextSeq   int32
	instances map[int32]map[ActorID]*Instance // effectID → scoped caster → instance
	bySeq     map[int32]*Instance
	cooldowns map[int32]int64
	index     derivedIndex

	fieldEffects  map[int32]struct{}
	gearRefs      map[data.EffectRef]int
	gearInstances map[int32]data.EffectRef // instance id → grant that created it
	lastTick      int64

	outbox     []Notification
	procs      []PeriodicProc
	statsDirty bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithGraceTicks sets the expiry grace window applied to remote players.
func WithGraceTicks(ticks int64) Option {
	return func(r *Registry) {
		r.graceTicks = max(ticks, 0)
	}
}

// NewRegistry creates an empty registry owned by ownerID.
func NewRegistry(ownerID ActorID, catalog Catalog, deps Dependencies, opts ...Option) *Registry {
	r := &Registry{
		ownerID:      ownerID,
		catalog:      catalog,
		deps:         deps.withDefaults(),
		instances:    make(map[int32]map[ActorID]*Instance),
		bySeq:        make(map[int32]*Instance),
		cooldowns:    make(map[int32]int64),
		index:        newDerivedIndex(),
		fieldEffects:  make(map[int32]struct{}),
		gearRefs:      make(map[data.EffectRef]int),
		gearInstances: make(map[int32]data.EffectRef),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OwnerID returns the actor owning this registry.
func (r *Registry) OwnerID() ActorID { return r.ownerID }

// ApplyParams describes one Apply request.
type ApplyParams struct {
	CasterID         ActorID
	TargetID         ActorID // 0 = owner
	EffectID         int32
	Level            int32
	StartTick        int64
	DurationOverride int64 // > 0 replaces the definition duration
	Broadcast        bool
}

// Apply applies an effect to the owner.
// Returns the live instance (nil if none) and what happened. Never panics
// outside fail-fast mode; suppression and unknown definitions are no-ops.
func (r *Registry) Apply(p ApplyParams) (*Instance, Outcome) {
	r.mu.Lock()
	defer r.unlockAndFlush()
	return r.applyLocked(p)
}

func (r *Registry) applyLocked(p ApplyParams) (*Instance, Outcome) {
	def, ok := r.catalog.TryGetDefinition(p.EffectID, p.Level)
	if !ok {
		slog.Debug("effect definition not found",
			"owner", r.ownerID,
			"effect", p.EffectID,
			"level", p.Level)
		return nil, OutcomeNotFound
	}

	if until, ok := r.cooldowns[def.ID]; ok && p.StartTick < until {
		return nil, OutcomeCooldown
	}
	if r.immuneLocked(def) {
		slog.Debug("effect blocked by immunity", "owner", r.ownerID, "effect", def.ID)
		return nil, OutcomeImmune
	}

	duration := def.Duration
	if p.DurationOverride > 0 {
		duration = p.DurationOverride
	}

	if existing := r.instances[def.ID][scopeOf(def, p.CasterID)]; existing != nil {
		// Higher level always replaces, as does the Replace policy.
		if def.ResetCondition == data.Replace || def.Level > existing.def.Level {
			r.removeLocked(existing, "replaced", true)
		} else {
			return r.refreshLocked(existing, p, duration)
		}
	}

	return r.createLocked(def, p, duration)
}

// refreshLocked applies the reset-condition policy to an existing instance.
func (r *Registry) refreshLocked(in *Instance, p ApplyParams, duration int64) (*Instance, Outcome) {
	timerChanged := false
	if in.def.ResetCondition.RefreshesEndTick() && duration > 0 {
		timerChanged = in.ExtendEnd(p.StartTick + duration)
	}
	stacked := in.Stack(1)
	if stacked && in.Enabled() && in.def.AffectsStats() {
		r.statsDirty = true
	}
	if !timerChanged && !stacked {
		return in, OutcomeUnchanged
	}
	if p.Broadcast {
		r.outbox = append(r.outbox, in.notification(NotifyUpdate))
	}
	return in, OutcomeRefreshed
}

func (r *Registry) createLocked(def *data.EffectTemplate, p ApplyParams, duration int64) (*Instance, Outcome) {
	if def.Group != 0 {
		for _, in := range r.sortedLocked() {
			if in.def.Group == def.Group {
				r.removeLocked(in, "group_evicted", true)
			}
		}
	}

	target := p.TargetID
	if target == 0 {
		target = r.ownerID
	}
	r.nextSeq++
	in := newInstance(def, r.nextSeq, p.CasterID, r.ownerID, target, p.StartTick, duration)

	byCaster, ok := r.instances[def.ID]
	if !ok {
		byCaster = make(map[ActorID]*Instance, 1)
		r.instances[def.ID] = byCaster
	}
	byCaster[scopeOf(def, p.CasterID)] = in
	r.bySeq[in.id] = in

	if def.Shield != nil {
		owner, _ := r.deps.Actors.Snapshot(r.ownerID)
		in.shieldHP = def.Shield.HP + int64(def.Shield.HPRate*float64(owner.MaxHP))
	}

	if err := r.setEnabledLocked(in, r.evaluateLocked(in), false); err != nil {
		r.removeLocked(in, "rollback", false)
		return nil, OutcomeRolledBack
	}

	r.applyUpdateRulesLocked(in)
	r.applyOverlapLocked(in)

	if def.Cooldown > 0 {
		r.cooldowns[def.ID] = p.StartTick + def.Cooldown
	}
	if p.Broadcast {
		r.outbox = append(r.outbox, in.notification(NotifyAdd))
	}

	slog.Debug("effect added",
		"owner", r.ownerID,
		"caster", p.CasterID,
		"effect", def.ID,
		"level", def.Level,
		"instance", in.id,
		"state", in.state)

	if !in.Enabled() {
		return in, OutcomeAddedDisabled
	}
	return in, OutcomeAdded
}

// Remove removes instances of effectID applied by casterID. For effects that
// are not per-caster, casterID is ignored. Returns the number removed.
func (r *Registry) Remove(effectID int32, casterID ActorID) int {
	r.mu.Lock()
	defer r.unlockAndFlush()

	removed := 0
	for _, in := range r.byIDLocked(effectID) {
		if in.def.PerCasterInstance && in.casterID != casterID {
			continue
		}
		if r.removeLocked(in, "removed", true) {
			removed++
		}
	}
	return removed
}

// RemoveAll removes every instance of effectID regardless of caster.
func (r *Registry) RemoveAll(effectID int32) int {
	r.mu.Lock()
	defer r.unlockAndFlush()

	removed := 0
	for _, in := range r.byIDLocked(effectID) {
		if r.removeLocked(in, "removed", true) {
			removed++
		}
	}
	return removed
}

// Update advances every live instance to tick, sweeping expired ones.
// Called once per field tick.
func (r *Registry) Update(tick int64) {
	r.mu.Lock()
	defer r.unlockAndFlush()

	r.lastTick = tick
	grace := r.graceLocked()

	var expired []*Instance
	for _, in := range r.sortedLocked() {
		res := in.Update(tick, grace)
		if res.expired {
			expired = append(expired, in)
			continue
		}
		if res.looped {
			r.outbox = append(r.outbox, in.notification(NotifyUpdate))
		}
		if res.proc {
			proc := PeriodicProc{
				OwnerID:    r.ownerID,
				CasterID:   in.casterID,
				InstanceID: in.id,
				EffectID:   in.def.ID,
				Level:      in.def.Level,
				Stacks:     in.stacks,
				Tick:       tick,
			}
			if in.def.Periodic != nil {
				proc.HP = in.def.Periodic.HP * int64(in.stacks)
			}
			r.procs = append(r.procs, proc)
		}
	}

	for _, in := range expired {
		r.removeLocked(in, "expired", true)
	}
}

// ReevaluateEnabled re-runs begin conditions on every instance, e.g. after
// death or a stat change, and flips Enabled/Disabled where needed.
func (r *Registry) ReevaluateEnabled() {
	r.mu.Lock()
	defer r.unlockAndFlush()
	r.reevaluateLocked()
}

func (r *Registry) reevaluateLocked() {
	for _, in := range r.sortedLocked() {
		if in.state == StateRemoved {
			continue
		}
		if err := r.setEnabledLocked(in, r.evaluateLocked(in), true); err != nil {
			r.removeLocked(in, "rollback", true)
		}
	}
}

// AbsorbDamage consumes shield HP of enabled instances in application order.
// Depleted shields are removed. Returns the amount absorbed.
func (r *Registry) AbsorbDamage(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.unlockAndFlush()

	var absorbed int64
	for _, in := range r.sortedLocked() {
		if absorbed == amount {
			break
		}
		if !in.Enabled() || in.shieldHP <= 0 {
			continue
		}
		take := min(in.shieldHP, amount-absorbed)
		in.shieldHP -= take
		absorbed += take
		if in.shieldHP == 0 {
			r.removeLocked(in, "shield_depleted", true)
			continue
		}
		r.outbox = append(r.outbox, in.notification(NotifyUpdate))
	}
	return absorbed
}

// HasEffect reports whether a live instance of effectID exists with at least
// the given level and stack count.
func (r *Registry) HasEffect(effectID, minLevel, minStacks int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, in := range r.instances[effectID] {
		if in.def.Level >= minLevel && in.stacks >= minStacks {
			return true
		}
	}
	return false
}

// All returns live instances ordered by sequence id.
func (r *Registry) All() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked()
}

// ByID returns live instances of effectID ordered by sequence id.
func (r *Registry) ByID(effectID int32) []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byIDLocked(effectID)
}

// Count returns the number of live instances.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySeq)
}

// CooldownUntil returns the tick before which effectID cannot be reapplied.
func (r *Registry) CooldownUntil(effectID int32) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.cooldowns[effectID]
	return until, ok
}

// ResistanceOf returns the summed resistance for an attribute, never negative.
func (r *Registry) ResistanceOf(attr data.Attribute) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index.resistance(attr)
}

// PassiveModifierOf sums value and rate of invoke records of the given type
// that match the skill or one of its groups.
func (r *Registry) PassiveModifierOf(t data.InvokeType, skillID int32, skillGroupIDs []int32) (value, rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID := r.index.invokes[t]
	for id, rec := range byID {
		if !r.liveEnabledLocked(id) {
			violation(r.ownerID, "stale invoke entry", "instance", id, "type", t)
			delete(byID, id)
			continue
		}
		if rec.Matches(skillID, skillGroupIDs) {
			value += rec.Value
			rate += rec.Rate
		}
	}
	return value, rate
}

// ForcedBehaviorRateOf returns the combined trigger probability, clamped to [0, 1].
func (r *Registry) ForcedBehaviorRateOf(event data.CompulsionEvent, skillID int32) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rate float64
	byID := r.index.compulsions[event]
	for id, rec := range byID {
		if !r.liveEnabledLocked(id) {
			violation(r.ownerID, "stale compulsion entry", "instance", id, "event", event)
			delete(byID, id)
			continue
		}
		if rec.Matches(skillID) {
			rate += rec.Rate
		}
	}
	return min(max(rate, 0), 1)
}

// ActiveReflect returns the active reflect record, if any.
func (r *Registry) ActiveReflect() (ReflectRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.index.reflect
	if rec == nil {
		return ReflectRecord{}, false
	}
	if !r.liveEnabledLocked(rec.InstanceID) {
		violation(r.ownerID, "stale reflect entry", "instance", rec.InstanceID)
		delete(r.index.reflectors, rec.InstanceID)
		r.index.reflect = r.index.latestReflector()
		return ReflectRecord{}, false
	}
	return *rec, true
}

// StatBonus returns the flat and rate bonus for an attribute from enabled
// instances, scaled by stack count.
func (r *Registry) StatBonus(attr data.Attribute) (flat, rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, in := range r.bySeq {
		if !in.Enabled() {
			continue
		}
		for _, mod := range in.def.StatModifiers {
			if mod.Attribute == attr {
				flat += mod.Flat * float64(in.stacks)
				rate += mod.Rate * float64(in.stacks)
			}
		}
	}
	return flat, rate
}

// removeLocked detaches and drops one instance. Returns false on a double remove.
func (r *Registry) removeLocked(in *Instance, reason string, notify bool) bool {
	if cur, ok := r.bySeq[in.id]; !ok || cur != in {
		violation(r.ownerID, "double remove", "instance", in.id, "effect", in.def.ID)
		return false
	}

	wasEnabled := in.Enabled()
	in.Disable()
	r.detachLocked(in)

	delete(r.bySeq, in.id)
	if byCaster := r.instances[in.def.ID]; byCaster != nil {
		delete(byCaster, scopeOf(in.def, in.casterID))
		if len(byCaster) == 0 {
			delete(r.instances, in.def.ID)
		}
	}
	in.markRemoved()

	r.dismountLocked(in)
	delete(r.gearInstances, in.id)
	if wasEnabled && in.def.AffectsStats() {
		r.statsDirty = true
	}
	if notify {
		r.outbox = append(r.outbox, in.notification(NotifyRemove))
	}

	slog.Debug("effect removed",
		"owner", r.ownerID,
		"effect", in.def.ID,
		"instance", in.id,
		"reason", reason)
	return true
}

// setEnabledLocked applies a begin-condition result and keeps the derived
// index, the ride and the immunity invariant in step with the transition.
// Returns the mount error when enabling needs a ride the controller refused;
// the instance is then left not enabled and the caller rolls it back.
func (r *Registry) setEnabledLocked(in *Instance, ok, notify bool) error {
	wasEnabled := in.Enabled()
	if ok && !wasEnabled && in.state != StateRemoved {
		if err := r.mountLocked(in); err != nil {
			return err
		}
	}
	if !in.setEnabled(ok) {
		return nil
	}
	switch {
	case in.Enabled():
		r.attachLocked(in)
		r.sweepCoveredLocked(in)
	case wasEnabled:
		r.detachLocked(in)
		r.dismountLocked(in)
	}
	if wasEnabled != in.Enabled() && in.def.AffectsStats() {
		r.statsDirty = true
	}
	if notify {
		r.outbox = append(r.outbox, in.notification(NotifyUpdate))
	}
	return nil
}

func (r *Registry) mountLocked(in *Instance) error {
	if in.def.RideID == 0 || in.mounted {
		return nil
	}
	if err := r.deps.Mounts.Mount(r.ownerID, in.def.RideID); err != nil {
		slog.Warn("mount failed, rolling back effect",
			"owner", r.ownerID,
			"effect", in.def.ID,
			"instance", in.id,
			"ride", in.def.RideID,
			"error", err)
		return err
	}
	in.mounted = true
	return nil
}

func (r *Registry) dismountLocked(in *Instance) {
	if !in.mounted {
		return
	}
	in.mounted = false
	r.deps.Mounts.Dismount(r.ownerID, in.def.RideID)
}

func (r *Registry) attachLocked(in *Instance) {
	if in.attached {
		violation(r.ownerID, "double attach", "instance", in.id, "effect", in.def.ID)
		return
	}
	r.index.attach(in)
}

func (r *Registry) detachLocked(in *Instance) {
	if !in.attached {
		return
	}
	if missing := r.index.detach(in); len(missing) > 0 {
		violation(r.ownerID, "derived index missing entries",
			"instance", in.id,
			"effect", in.def.ID,
			"entries", missing)
	}
}

// immuneLocked reports whether an enabled instance blocks def.
func (r *Registry) immuneLocked(def *data.EffectTemplate) bool {
	for _, in := range r.bySeq {
		if in.Enabled() && in.def.ID != def.ID && in.def.Immune.Covers(def.ID, def.Category) {
			return true
		}
	}
	return false
}

// sweepCoveredLocked removes instances that src's immunity covers.
func (r *Registry) sweepCoveredLocked(src *Instance) {
	if src.def.Immune == nil {
		return
	}
	for _, in := range r.sortedLocked() {
		if in == src || in.def.ID == src.def.ID {
			continue
		}
		if src.def.Immune.Covers(in.def.ID, in.def.Category) {
			r.removeLocked(in, "immunity", true)
		}
	}
}

// applyUpdateRulesLocked runs the cross-effect rules of a freshly created instance.
func (r *Registry) applyUpdateRulesLocked(src *Instance) {
	u := src.def.Update
	if u == nil {
		return
	}

	for _, in := range r.sortedLocked() {
		if in == src {
			continue
		}
		if slices.Contains(u.CancelIDs, in.def.ID) ||
			(in.def.Category != 0 && slices.Contains(u.CancelCategories, in.def.Category)) {
			r.removeLocked(in, "cancelled", true)
		}
	}
	for _, id := range u.ResetCooldowns {
		delete(r.cooldowns, id)
	}
	for _, d := range u.DurationDeltas {
		for _, in := range r.byIDLocked(d.EffectID) {
			if in == src {
				continue
			}
			if in.ExtendEnd(in.endTick + d.Delta) {
				r.outbox = append(r.outbox, in.notification(NotifyUpdate))
			}
		}
	}
}

// applyOverlapLocked adjusts stack counts of sibling effects.
func (r *Registry) applyOverlapLocked(src *Instance) {
	for _, o := range src.def.OverlapModifiers {
		for _, in := range r.byIDLocked(o.EffectID) {
			if in == src || !in.Stack(o.Offset) {
				continue
			}
			if in.Enabled() && in.def.AffectsStats() {
				r.statsDirty = true
			}
			r.outbox = append(r.outbox, in.notification(NotifyUpdate))
		}
	}
}

func (r *Registry) evaluateLocked(in *Instance) bool {
	if len(in.def.BeginConditions) == 0 {
		return true
	}
	var s conditionSubjects
	s.caster, _ = r.deps.Actors.Snapshot(in.casterID)
	s.owner, _ = r.deps.Actors.Snapshot(in.ownerID)
	s.target, _ = r.deps.Actors.Snapshot(in.targetID)
	return evaluateBegin(in.def.BeginConditions, s)
}

func (r *Registry) graceLocked() int64 {
	if r.graceTicks == 0 {
		return 0
	}
	owner, ok := r.deps.Actors.Snapshot(r.ownerID)
	if ok && owner.Player && owner.Remote {
		return r.graceTicks
	}
	return 0
}

func (r *Registry) liveEnabledLocked(id int32) bool {
	in, ok := r.bySeq[id]
	return ok && in.Enabled()
}

func (r *Registry) sortedLocked() []*Instance {
	out := make([]*Instance, 0, len(r.bySeq))
	for _, in := range r.bySeq {
		out = append(out, in)
	}
	slices.SortFunc(out, func(a, b *Instance) int { return int(a.id - b.id) })
	return out
}

func (r *Registry) byIDLocked(effectID int32) []*Instance {
	byCaster := r.instances[effectID]
	out := make([]*Instance, 0, len(byCaster))
	for _, in := range byCaster {
		out = append(out, in)
	}
	slices.SortFunc(out, func(a, b *Instance) int { return int(a.id - b.id) })
	return out
}

// unlockAndFlush releases mu and dispatches what the locked section collected.
func (r *Registry) unlockAndFlush() {
	out, procs, refresh := r.outbox, r.procs, r.statsDirty
	r.outbox, r.procs, r.statsDirty = nil, nil, false
	r.mu.Unlock()

	for _, n := range out {
		r.deps.Broadcast.Broadcast(n)
	}
	if refresh {
		r.deps.Stats.RefreshStats(r.ownerID)
	}
	for _, p := range procs {
		r.deps.Periodic.OnPeriodic(p)
	}
}

// scopeOf returns the caster key an instance is stored under.
func scopeOf(def *data.EffectTemplate, casterID ActorID) ActorID {
	if def.PerCasterInstance {
		return casterID
	}
	return 0
}
