package data

// EffectFile — корневой документ каталога эффектов (YAML).
// JSON tags mirror the YAML names so cmd/effectschema can reflect the same shape.
type EffectFile struct {
	Effects []EffectDef `yaml:"effects" json:"effects"`
}

// EffectDef — определение эффекта с per-level массивами.
// Для полей-слайсов с суффиксом per-level: индекс = level-1.
// Если массив короче levels — берётся последний элемент.
type EffectDef struct {
	ID       int32  `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Levels   int32  `yaml:"levels,omitempty" json:"levels,omitempty"`
	Kind     string `yaml:"kind,omitempty" json:"kind,omitempty" jsonschema:"enum=buff,enum=debuff"`
	Category int32  `yaml:"category,omitempty" json:"category,omitempty"`
	SubType  int32  `yaml:"sub_type,omitempty" json:"sub_type,omitempty"`

	// per-level ticks
	Duration []int64 `yaml:"duration,omitempty" json:"duration,omitempty"`

	Interval int64 `yaml:"interval,omitempty" json:"interval,omitempty"`
	Cooldown int64 `yaml:"cooldown,omitempty" json:"cooldown,omitempty"`
	Delay    int64 `yaml:"delay,omitempty" json:"delay,omitempty"`

	MaxCount       int32  `yaml:"max_count,omitempty" json:"max_count,omitempty"`
	Group          int32  `yaml:"group,omitempty" json:"group,omitempty"`
	ResetCondition string `yaml:"reset_condition,omitempty" json:"reset_condition,omitempty" jsonschema:"enum=reset_end_tick,enum=persist_end_tick,enum=reset2,enum=replace"`

	KeepOnDeath        bool `yaml:"keep_on_death,omitempty" json:"keep_on_death,omitempty"`
	RemoveOnLogout     bool `yaml:"remove_on_logout,omitempty" json:"remove_on_logout,omitempty"`
	RemoveOnLeaveField bool `yaml:"remove_on_leave_field,omitempty" json:"remove_on_leave_field,omitempty"`
	RemoveOnPvpZone    bool `yaml:"remove_on_pvp_zone,omitempty" json:"remove_on_pvp_zone,omitempty"`
	KeepOnEnterPvpZone bool `yaml:"keep_on_enter_pvp_zone,omitempty" json:"keep_on_enter_pvp_zone,omitempty"`
	PerCasterInstance  bool `yaml:"per_caster_instance,omitempty" json:"per_caster_instance,omitempty"`
	Loop               bool `yaml:"loop,omitempty" json:"loop,omitempty"`

	Stats       []StatDef       `yaml:"stats,omitempty" json:"stats,omitempty"`
	Resistances []ResistanceDef `yaml:"resistances,omitempty" json:"resistances,omitempty"`

	Reflect          *ReflectDef    `yaml:"reflect,omitempty" json:"reflect,omitempty"`
	Invoke           *InvokeDef     `yaml:"invoke,omitempty" json:"invoke,omitempty"`
	Compulsion       *CompulsionDef `yaml:"compulsion,omitempty" json:"compulsion,omitempty"`
	Shield           *ShieldDef     `yaml:"shield,omitempty" json:"shield,omitempty"`
	Update           *UpdateDef     `yaml:"update,omitempty" json:"update,omitempty"`
	OverlapModifiers []OverlapDef   `yaml:"overlap_modifiers,omitempty" json:"overlap_modifiers,omitempty"`
	Immune           *ImmuneDef     `yaml:"immune,omitempty" json:"immune,omitempty"`
	BeginConditions  []ConditionDef `yaml:"begin_conditions,omitempty" json:"begin_conditions,omitempty"`
	Periodic         *PeriodicDef   `yaml:"periodic,omitempty" json:"periodic,omitempty"`
	RideID           int32          `yaml:"ride_id,omitempty" json:"ride_id,omitempty"`
}

// StatDef — per-level модификатор стата.
type StatDef struct {
	Attribute string    `yaml:"attribute" json:"attribute"`
	Flat      []float64 `yaml:"flat,omitempty" json:"flat,omitempty"`
	Rate      []float64 `yaml:"rate,omitempty" json:"rate,omitempty"`
}

// ResistanceDef — per-level сопротивление.
type ResistanceDef struct {
	Attribute string    `yaml:"attribute" json:"attribute"`
	Value     []float64 `yaml:"value" json:"value"`
}

type ReflectDef struct {
	Rate         float64 `yaml:"rate" json:"rate"`
	DamageRate   float64 `yaml:"damage_rate,omitempty" json:"damage_rate,omitempty"`
	FlatDamage   int64   `yaml:"flat_damage,omitempty" json:"flat_damage,omitempty"`
	CasterEffect int32   `yaml:"caster_effect,omitempty" json:"caster_effect,omitempty"`
}

type InvokeDef struct {
	Type         string    `yaml:"type" json:"type"`
	Value        []float64 `yaml:"value,omitempty" json:"value,omitempty"`
	Rate         []float64 `yaml:"rate,omitempty" json:"rate,omitempty"`
	SkillID      int32     `yaml:"skill_id,omitempty" json:"skill_id,omitempty"`
	SkillGroupID int32     `yaml:"skill_group_id,omitempty" json:"skill_group_id,omitempty"`
}

type CompulsionDef struct {
	Event    string    `yaml:"event" json:"event"`
	Rate     []float64 `yaml:"rate" json:"rate"`
	SkillIDs []int32   `yaml:"skill_ids,omitempty" json:"skill_ids,omitempty"`
}

type ShieldDef struct {
	HP     []int64 `yaml:"hp,omitempty" json:"hp,omitempty"`
	HPRate float64 `yaml:"hp_rate,omitempty" json:"hp_rate,omitempty"`
}

type UpdateDef struct {
	CancelIDs        []int32            `yaml:"cancel_ids,omitempty" json:"cancel_ids,omitempty"`
	CancelCategories []int32            `yaml:"cancel_categories,omitempty" json:"cancel_categories,omitempty"`
	ResetCooldowns   []int32            `yaml:"reset_cooldowns,omitempty" json:"reset_cooldowns,omitempty"`
	DurationDeltas   []DurationDeltaDef `yaml:"duration_deltas,omitempty" json:"duration_deltas,omitempty"`
}

type DurationDeltaDef struct {
	EffectID int32 `yaml:"effect_id" json:"effect_id"`
	Delta    int64 `yaml:"delta" json:"delta"`
}

type OverlapDef struct {
	EffectID int32 `yaml:"effect_id" json:"effect_id"`
	Offset   int32 `yaml:"offset" json:"offset"`
}

type ImmuneDef struct {
	IDs        []int32 `yaml:"ids,omitempty" json:"ids,omitempty"`
	Categories []int32 `yaml:"categories,omitempty" json:"categories,omitempty"`
}

type ConditionDef struct {
	Subject      string  `yaml:"subject,omitempty" json:"subject,omitempty" jsonschema:"enum=owner,enum=caster,enum=target"`
	MinLevel     int32   `yaml:"min_level,omitempty" json:"min_level,omitempty"`
	MaxLevel     int32   `yaml:"max_level,omitempty" json:"max_level,omitempty"`
	MinHPRate    float64 `yaml:"min_hp_rate,omitempty" json:"min_hp_rate,omitempty"`
	MaxHPRate    float64 `yaml:"max_hp_rate,omitempty" json:"max_hp_rate,omitempty"`
	RequireAlive bool    `yaml:"require_alive,omitempty" json:"require_alive,omitempty"`
	RequireDead  bool    `yaml:"require_dead,omitempty" json:"require_dead,omitempty"`
	Jobs         []int32 `yaml:"jobs,omitempty" json:"jobs,omitempty"`
	NotRiding    bool    `yaml:"not_riding,omitempty" json:"not_riding,omitempty"`
}

type PeriodicDef struct {
	HP []int64 `yaml:"hp" json:"hp"`
}
