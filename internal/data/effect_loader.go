package data

import (
	_ "embed"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

//go:embed effects.yaml
var defaultEffects []byte

// EffectCatalog — registry всех effect templates.
// map[effectID]map[level]*EffectTemplate, read-only после загрузки.
type EffectCatalog struct {
	table       map[int32]map[int32]*EffectTemplate
	maxLevel    map[int32]int32
	fingerprint string
}

// TryGetDefinition возвращает EffectTemplate по ID и Level.
func (c *EffectCatalog) TryGetDefinition(effectID, level int32) (*EffectTemplate, bool) {
	if c == nil || c.table == nil {
		return nil, false
	}
	levels, ok := c.table[effectID]
	if !ok {
		return nil, false
	}
	t, ok := levels[level]
	return t, ok
}

// MaxLevel возвращает максимальный уровень эффекта (0 если не найден).
func (c *EffectCatalog) MaxLevel(effectID int32) int32 {
	if c == nil {
		return 0
	}
	return c.maxLevel[effectID]
}

// Len returns the number of distinct effect ids.
func (c *EffectCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.table)
}

// Fingerprint returns the hex blake2b-256 digest of the catalog source.
// Persisted next to effect snapshots to detect catalog drift between saves.
func (c *EffectCatalog) Fingerprint() string {
	if c == nil {
		return ""
	}
	return c.fingerprint
}

// LoadEffectCatalog загружает каталог из YAML файла.
// Пустой path — встроенный каталог по умолчанию.
func LoadEffectCatalog(path string) (*EffectCatalog, error) {
	raw := defaultEffects
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading effect catalog %s: %w", path, err)
		}
	}

	c, err := ParseEffectCatalog(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing effect catalog %q: %w", path, err)
	}

	slog.Info("loaded effects", "effect_ids", c.Len(), "fingerprint", c.Fingerprint()[:12])
	return c, nil
}

// ParseEffectCatalog builds a catalog from raw YAML.
func ParseEffectCatalog(raw []byte) (*EffectCatalog, error) {
	var file EffectFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}

	sum := blake2b.Sum256(raw)
	c := &EffectCatalog{
		table:       make(map[int32]map[int32]*EffectTemplate, len(file.Effects)),
		maxLevel:    make(map[int32]int32, len(file.Effects)),
		fingerprint: hex.EncodeToString(sum[:]),
	}

	for i := range file.Effects {
		if err := c.add(&file.Effects[i]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// add создаёт EffectTemplate для каждого уровня эффекта из определения.
func (c *EffectCatalog) add(def *EffectDef) error {
	if def.ID <= 0 {
		return fmt.Errorf("effect %q: id must be positive, got %d", def.Name, def.ID)
	}
	if _, dup := c.table[def.ID]; dup {
		return fmt.Errorf("effect %d: duplicate id", def.ID)
	}
	if def.MaxCount < 0 {
		return fmt.Errorf("effect %d: negative max_count %d", def.ID, def.MaxCount)
	}
	reset, err := ParseResetCondition(def.ResetCondition)
	if err != nil {
		return fmt.Errorf("effect %d: %w", def.ID, err)
	}
	kind, err := ParseEffectKind(def.Kind)
	if err != nil {
		return fmt.Errorf("effect %d: %w", def.ID, err)
	}
	conds, err := buildConditions(def.BeginConditions)
	if err != nil {
		return fmt.Errorf("effect %d: %w", def.ID, err)
	}

	levels := max(def.Levels, 1)
	c.table[def.ID] = make(map[int32]*EffectTemplate, int(levels))
	c.maxLevel[def.ID] = levels

	for levelIdx := range int(levels) {
		c.table[def.ID][int32(levelIdx+1)] = buildEffectTemplate(def, levelIdx, reset, kind, conds)
	}
	return nil
}

func buildEffectTemplate(def *EffectDef, levelIdx int, reset ResetCondition, kind EffectKind, conds []Condition) *EffectTemplate {
	t := &EffectTemplate{
		ID:                 def.ID,
		Level:              int32(levelIdx + 1),
		Name:               def.Name,
		Kind:               kind,
		Category:           def.Category,
		SubType:            def.SubType,
		Duration:           perLevel(def.Duration, levelIdx),
		Interval:           def.Interval,
		Cooldown:           def.Cooldown,
		Delay:              def.Delay,
		MaxCount:           def.MaxCount,
		Group:              def.Group,
		ResetCondition:     reset,
		KeepOnDeath:        def.KeepOnDeath,
		RemoveOnLogout:     def.RemoveOnLogout,
		RemoveOnLeaveField: def.RemoveOnLeaveField,
		RemoveOnPvpZone:    def.RemoveOnPvpZone,
		KeepOnEnterPvpZone: def.KeepOnEnterPvpZone,
		PerCasterInstance:  def.PerCasterInstance,
		Loop:               def.Loop,
		BeginConditions:    conds,
		RideID:             def.RideID,
	}

	for _, s := range def.Stats {
		t.StatModifiers = append(t.StatModifiers, StatModifier{
			Attribute: Attribute(s.Attribute),
			Flat:      perLevel(s.Flat, levelIdx),
			Rate:      perLevel(s.Rate, levelIdx),
		})
	}
	if len(def.Resistances) > 0 {
		t.Resistances = make(map[Attribute]float64, len(def.Resistances))
		for _, r := range def.Resistances {
			t.Resistances[Attribute(r.Attribute)] += perLevel(r.Value, levelIdx)
		}
	}

	if def.Reflect != nil {
		t.Reflect = &Reflect{
			Rate:         def.Reflect.Rate,
			DamageRate:   def.Reflect.DamageRate,
			FlatDamage:   def.Reflect.FlatDamage,
			CasterEffect: def.Reflect.CasterEffect,
		}
	}
	if def.Invoke != nil {
		t.Invoke = &Invoke{
			Type:         InvokeType(def.Invoke.Type),
			Value:        perLevel(def.Invoke.Value, levelIdx),
			Rate:         perLevel(def.Invoke.Rate, levelIdx),
			SkillID:      def.Invoke.SkillID,
			SkillGroupID: def.Invoke.SkillGroupID,
		}
	}
	if def.Compulsion != nil {
		t.Compulsion = &Compulsion{
			Event:    CompulsionEvent(def.Compulsion.Event),
			Rate:     perLevel(def.Compulsion.Rate, levelIdx),
			SkillIDs: def.Compulsion.SkillIDs,
		}
	}
	if def.Shield != nil {
		t.Shield = &Shield{
			HP:     perLevel(def.Shield.HP, levelIdx),
			HPRate: def.Shield.HPRate,
		}
	}
	if def.Update != nil {
		u := &UpdateRules{
			CancelIDs:        def.Update.CancelIDs,
			CancelCategories: def.Update.CancelCategories,
			ResetCooldowns:   def.Update.ResetCooldowns,
		}
		for _, d := range def.Update.DurationDeltas {
			u.DurationDeltas = append(u.DurationDeltas, DurationDelta{EffectID: d.EffectID, Delta: d.Delta})
		}
		t.Update = u
	}
	for _, o := range def.OverlapModifiers {
		t.OverlapModifiers = append(t.OverlapModifiers, OverlapModifier{EffectID: o.EffectID, Offset: o.Offset})
	}
	if def.Immune != nil {
		t.Immune = &Immunity{IDs: def.Immune.IDs, Categories: def.Immune.Categories}
	}
	if def.Periodic != nil {
		t.Periodic = &Periodic{HP: perLevel(def.Periodic.HP, levelIdx)}
	}
	return t
}

func buildConditions(defs []ConditionDef) ([]Condition, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	conds := make([]Condition, 0, len(defs))
	for _, d := range defs {
		subject, err := ParseConditionSubject(d.Subject)
		if err != nil {
			return nil, err
		}
		if d.RequireAlive && d.RequireDead {
			return nil, fmt.Errorf("condition requires both alive and dead")
		}
		conds = append(conds, Condition{
			Subject:      subject,
			MinLevel:     d.MinLevel,
			MaxLevel:     d.MaxLevel,
			MinHPRate:    d.MinHPRate,
			MaxHPRate:    d.MaxHPRate,
			RequireAlive: d.RequireAlive,
			RequireDead:  d.RequireDead,
			Jobs:         d.Jobs,
			NotRiding:    d.NotRiding,
		})
	}
	return conds, nil
}

// ParseResetCondition converts a catalog string to ResetCondition.
// Empty string defaults to ResetEndTick.
func ParseResetCondition(s string) (ResetCondition, error) {
	switch strings.ToLower(s) {
	case "", "reset_end_tick":
		return ResetEndTick, nil
	case "persist_end_tick":
		return PersistEndTick, nil
	case "reset2":
		return Reset2, nil
	case "replace":
		return Replace, nil
	default:
		return ResetEndTick, fmt.Errorf("unknown reset condition %q", s)
	}
}

// ParseEffectKind converts a catalog string to EffectKind. Empty = buff.
func ParseEffectKind(s string) (EffectKind, error) {
	switch strings.ToLower(s) {
	case "", "buff":
		return KindBuff, nil
	case "debuff":
		return KindDebuff, nil
	default:
		return KindBuff, fmt.Errorf("unknown effect kind %q", s)
	}
}

// ParseConditionSubject converts a catalog string to ConditionSubject. Empty = owner.
func ParseConditionSubject(s string) (ConditionSubject, error) {
	switch strings.ToLower(s) {
	case "", "owner":
		return SubjectOwner, nil
	case "caster":
		return SubjectCaster, nil
	case "target":
		return SubjectTarget, nil
	default:
		return SubjectOwner, fmt.Errorf("unknown condition subject %q", s)
	}
}

// perLevel возвращает значение для уровня из per-level массива.
func perLevel[T any](vals []T, levelIdx int) T {
	var zero T
	if len(vals) == 0 {
		return zero
	}
	if levelIdx < len(vals) {
		return vals[levelIdx]
	}
	return vals[len(vals)-1]
}
