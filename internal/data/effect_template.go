package data

import "math"

// PermanentEndTick — end tick для эффектов без длительности (пассивки, экипировка).
const PermanentEndTick int64 = math.MaxInt64

// ResetCondition определяет, что происходит при повторном наложении эффекта
// тем же кастером (или любым кастером, если эффект не per-caster).
type ResetCondition int8

const (
	ResetEndTick   ResetCondition = iota // refresh end tick from the new start tick
	PersistEndTick                       // keep the current end tick
	Reset2                               // distinct variant, currently handled as ResetEndTick
	Replace                              // remove the old instance and create a new one
)

// String returns the catalog name of the reset condition.
func (c ResetCondition) String() string {
	switch c {
	case ResetEndTick:
		return "reset_end_tick"
	case PersistEndTick:
		return "persist_end_tick"
	case Reset2:
		return "reset2"
	case Replace:
		return "replace"
	default:
		return "unknown"
	}
}

// RefreshesEndTick reports whether reapplication moves the end tick.
func (c ResetCondition) RefreshesEndTick() bool {
	return c == ResetEndTick || c == Reset2
}

// EffectKind — buff или debuff.
type EffectKind int8

const (
	KindBuff EffectKind = iota
	KindDebuff
)

// Attribute names a stat or resistance attribute ("pAtk", "fireResist", ...).
type Attribute string

// StatModifier — runtime модификатор стата от эффекта.
// Flat суммируется, Rate — доля (0.1 = +10%).
type StatModifier struct {
	Attribute Attribute
	Flat      float64
	Rate      float64
}

// Reflect redirects a share of incoming damage back to its source.
type Reflect struct {
	Rate         float64 // chance to reflect, 0..1
	DamageRate   float64 // share of the incoming damage sent back
	FlatDamage   int64
	CasterEffect int32 // effect applied to the attacker on reflect, 0 = none
}

// InvokeType — тип пассивного модификатора ("cooldown_reduce", "damage_rate", ...).
type InvokeType string

// Invoke is a passive numeric adjustment contributed to another subsystem's
// calculation while the effect is active.
type Invoke struct {
	Type         InvokeType
	Value        float64
	Rate         float64
	SkillID      int32
	SkillGroupID int32
}

// Matches reports whether the record applies to the given skill.
// A record without skill and group filters applies to every skill.
func (i *Invoke) Matches(skillID int32, skillGroupIDs []int32) bool {
	if i.SkillID == 0 && i.SkillGroupID == 0 {
		return true
	}
	if i.SkillID != 0 && i.SkillID == skillID {
		return true
	}
	if i.SkillGroupID != 0 {
		for _, g := range skillGroupIDs {
			if g == i.SkillGroupID {
				return true
			}
		}
	}
	return false
}

// CompulsionEvent — событие, на котором срабатывает принудительное поведение.
type CompulsionEvent string

// Compulsion is a probability-gated behavior override triggered by specific
// skills while the effect is active.
type Compulsion struct {
	Event    CompulsionEvent
	Rate     float64
	SkillIDs []int32 // empty = any skill
}

// Matches reports whether the record applies to the given skill.
func (c *Compulsion) Matches(skillID int32) bool {
	if len(c.SkillIDs) == 0 {
		return true
	}
	for _, id := range c.SkillIDs {
		if id == skillID {
			return true
		}
	}
	return false
}

// Shield absorbs incoming damage until depleted.
// HP is the flat pool; HPRate is a share of the owner's max HP added on top.
type Shield struct {
	HP     int64
	HPRate float64
}

// DurationDelta shifts the end tick of live instances of another effect.
type DurationDelta struct {
	EffectID int32
	Delta    int64
}

// UpdateRules are cross-effect side effects run when a new instance is created.
type UpdateRules struct {
	CancelIDs        []int32
	CancelCategories []int32
	ResetCooldowns   []int32 // effect ids whose cooldown is cleared
	DurationDeltas   []DurationDelta
}

// OverlapModifier changes the stack count of a sibling effect on creation.
type OverlapModifier struct {
	EffectID int32
	Offset   int32
}

// Immunity lists effect ids and categories that cannot coexist with this effect.
type Immunity struct {
	IDs        []int32
	Categories []int32
}

// Covers reports whether the immunity blocks the given effect.
func (im *Immunity) Covers(effectID, category int32) bool {
	if im == nil {
		return false
	}
	for _, id := range im.IDs {
		if id == effectID {
			return true
		}
	}
	if category == 0 {
		return false
	}
	for _, c := range im.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// ConditionSubject selects which actor a begin condition inspects.
type ConditionSubject int8

const (
	SubjectOwner ConditionSubject = iota
	SubjectCaster
	SubjectTarget
)

// Condition — одно условие включения эффекта. Нулевые поля не проверяются.
type Condition struct {
	Subject      ConditionSubject
	MinLevel     int32
	MaxLevel     int32
	MinHPRate    float64
	MaxHPRate    float64
	RequireAlive bool
	RequireDead  bool
	Jobs         []int32
	NotRiding    bool
}

// Periodic is the per-interval payload handed to the damage pipeline.
// Negative HP is damage, positive is healing.
type Periodic struct {
	HP int64
}

// EffectRef identifies one effect level, e.g. in field or gear grants.
type EffectRef struct {
	ID    int32 `yaml:"id"`
	Level int32 `yaml:"level"`
}

// EffectTemplate — immutable шаблон эффекта, загруженный из каталога.
// Один экземпляр на каждую пару (ID, Level).
// Shared across all actors — НЕ модифицировать после загрузки.
type EffectTemplate struct {
	ID       int32
	Level    int32
	Name     string
	Kind     EffectKind
	Category int32
	SubType  int32

	// Ticks.
	Duration int64 // <= 0 means permanent
	Interval int64
	Cooldown int64
	Delay    int64

	MaxCount       int32
	Group          int32
	ResetCondition ResetCondition

	KeepOnDeath        bool
	RemoveOnLogout     bool
	RemoveOnLeaveField bool
	RemoveOnPvpZone    bool
	KeepOnEnterPvpZone bool
	PerCasterInstance  bool
	Loop               bool

	StatModifiers []StatModifier
	Resistances   map[Attribute]float64

	Reflect          *Reflect
	Invoke           *Invoke
	Compulsion       *Compulsion
	Shield           *Shield
	Update           *UpdateRules
	OverlapModifiers []OverlapModifier
	Immune           *Immunity
	BeginConditions  []Condition
	Periodic         *Periodic
	RideID           int32
}

// IsPermanent returns true if the effect never expires on its own.
func (t *EffectTemplate) IsPermanent() bool {
	return t.Duration <= 0
}

// AffectsStats returns true if adding or removing the effect changes stats.
func (t *EffectTemplate) AffectsStats() bool {
	return len(t.StatModifiers) > 0 || len(t.Resistances) > 0
}

// IsStackable returns true if the effect keeps a stack count.
func (t *EffectTemplate) IsStackable() bool {
	return t.MaxCount > 0
}
