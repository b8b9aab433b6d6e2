package effect

import (
	"log/slog"

	"github.com/udisondev/la2go-effects/internal/data"
)

// FieldInfo describes the field an actor enters.
type FieldInfo struct {
	MapID              int32
	PvP                bool
	ShadowWorld        bool
	EntranceEffects    []data.EffectRef
	ShadowWorldEffects []data.EffectRef
}

// OnFieldEnter strips effects a PvP region disallows, then applies the
// field's entrance effects (and shadow-world effects where flagged).
func (r *Registry) OnFieldEnter(info FieldInfo, tick int64) {
	r.mu.Lock()
	defer r.unlockAndFlush()

	if info.PvP {
		for _, in := range r.sortedLocked() {
			if in.def.RemoveOnPvpZone || !in.def.KeepOnEnterPvpZone {
				r.removeLocked(in, "pvp_zone", true)
			}
		}
	}

	grant := func(refs []data.EffectRef) {
		for _, ref := range refs {
			_, out := r.applyLocked(ApplyParams{
				CasterID:  r.ownerID,
				EffectID:  ref.ID,
				Level:     ref.Level,
				StartTick: tick,
				Broadcast: true,
			})
			if out.Applied() {
				r.fieldEffects[ref.ID] = struct{}{}
			}
		}
	}
	grant(info.EntranceEffects)
	if info.ShadowWorld {
		grant(info.ShadowWorldEffects)
	}

	slog.Debug("effects entered field",
		"owner", r.ownerID,
		"map", info.MapID,
		"pvp", info.PvP,
		"live", len(r.bySeq))
}

// OnFieldLeave strips RemoveOnLeaveField effects and everything the field granted.
func (r *Registry) OnFieldLeave() {
	r.mu.Lock()
	defer r.unlockAndFlush()

	for _, in := range r.sortedLocked() {
		_, granted := r.fieldEffects[in.def.ID]
		if in.def.RemoveOnLeaveField || granted {
			r.removeLocked(in, "leave_field", true)
		}
	}
	clear(r.fieldEffects)
}

// OnDeath strips instances lacking KeepOnDeath and re-evaluates survivors.
func (r *Registry) OnDeath() {
	r.mu.Lock()
	defer r.unlockAndFlush()

	for _, in := range r.sortedLocked() {
		if !in.def.KeepOnDeath {
			r.removeLocked(in, "death", true)
		}
	}
	r.reevaluateLocked()
}

// OnGearChange applies effects granted by newly equipped gear and sockets and
// removes those no longer granted. Grants are reference counted so two items
// granting the same effect keep it until both are removed. Only instances the
// gear itself created are removed; a grant that merely refreshed a cast
// instance leaves it alone. A suppressed grant is not counted, so equipping
// the item again retries it.
func (r *Registry) OnGearChange(added, removed []data.EffectRef, tick int64) {
	r.mu.Lock()
	defer r.unlockAndFlush()

	for _, ref := range removed {
		n, ok := r.gearRefs[ref]
		if !ok {
			continue
		}
		if n > 1 {
			r.gearRefs[ref] = n - 1
			continue
		}
		delete(r.gearRefs, ref)
		for _, in := range r.sortedLocked() {
			if granted, ok := r.gearInstances[in.id]; ok && granted == ref {
				r.removeLocked(in, "gear", true)
			}
		}
	}

	for _, ref := range added {
		if r.gearRefs[ref] > 0 {
			r.gearRefs[ref]++
			continue
		}
		in, out := r.applyLocked(ApplyParams{
			CasterID:  r.ownerID,
			EffectID:  ref.ID,
			Level:     ref.Level,
			StartTick: tick,
			Broadcast: true,
		})
		if !out.Applied() {
			slog.Debug("gear effect not applied",
				"owner", r.ownerID,
				"effect", ref.ID,
				"level", ref.Level,
				"outcome", out)
			continue
		}
		r.gearRefs[ref] = 1
		if out == OutcomeAdded || out == OutcomeAddedDisabled {
			r.gearInstances[in.id] = ref
		}
	}
}
