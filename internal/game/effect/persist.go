package effect

import "log/slog"

// Snapshot is the persistable form of one instance. Ticks are stored as the
// remaining duration so they survive a server restart; -1 means permanent.
type Snapshot struct {
	EffectID       int32
	Level          int32
	CasterID       ActorID
	RemainingTicks int64
	Stacks         int32
	Enabled        bool
	ShieldHP       int64
}

// ExportPersistable returns snapshots of instances that survive logout,
// measured against the last Update tick. Field- and gear-granted effects are
// excluded; they are granted again on field enter and equip.
func (r *Registry) ExportPersistable() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.bySeq))
	for _, in := range r.sortedLocked() {
		if in.def.RemoveOnLogout || r.grantedLocked(in) {
			continue
		}
		remaining := int64(-1)
		if !in.IsPermanent() {
			remaining = in.endTick - r.lastTick
			if remaining <= 0 {
				continue
			}
		}
		out = append(out, Snapshot{
			EffectID:       in.def.ID,
			Level:          in.def.Level,
			CasterID:       in.casterID,
			RemainingTicks: remaining,
			Stacks:         in.stacks,
			Enabled:        in.Enabled(),
			ShieldHP:       in.shieldHP,
		})
	}
	return out
}

// ImportSnapshots restores persisted instances at tick without broadcasting.
// Unknown definitions and suppressed applies are skipped. Returns the number restored.
func (r *Registry) ImportSnapshots(snaps []Snapshot, tick int64) int {
	r.mu.Lock()
	defer r.unlockAndFlush()

	r.lastTick = max(r.lastTick, tick)
	restored := 0
	for _, s := range snaps {
		if s.RemainingTicks == 0 {
			continue
		}
		p := ApplyParams{
			CasterID:  s.CasterID,
			EffectID:  s.EffectID,
			Level:     s.Level,
			StartTick: tick,
		}
		if s.RemainingTicks > 0 {
			p.DurationOverride = s.RemainingTicks
		}

		in, out := r.applyLocked(p)
		if in == nil {
			slog.Debug("effect snapshot skipped",
				"owner", r.ownerID,
				"effect", s.EffectID,
				"level", s.Level,
				"outcome", out)
			continue
		}
		if s.Stacks > in.stacks && in.Stack(s.Stacks-in.stacks) && in.Enabled() && in.def.AffectsStats() {
			r.statsDirty = true
		}
		if s.ShieldHP > 0 && in.def.Shield != nil {
			in.shieldHP = s.ShieldHP
		}
		restored++
	}
	return restored
}

// grantedLocked reports whether the instance came from the field or gear.
func (r *Registry) grantedLocked(in *Instance) bool {
	if in.casterID != r.ownerID {
		return false
	}
	if _, ok := r.fieldEffects[in.def.ID]; ok {
		return true
	}
	_, ok := r.gearInstances[in.id]
	return ok
}
