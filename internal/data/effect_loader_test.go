package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEffectCatalog_Default(t *testing.T) {
	c, err := LoadEffectCatalog("")
	require.NoError(t, err)

	assert.Equal(t, 14, c.Len())
	assert.Len(t, c.Fingerprint(), 64)

	might, ok := c.TryGetDefinition(10000001, 2)
	require.True(t, ok)
	assert.Equal(t, "Might", might.Name)
	assert.Equal(t, int64(90000), might.Duration)
	assert.Equal(t, int32(1), might.Group)
	require.Len(t, might.StatModifiers, 1)
	assert.InDelta(t, 0.12, might.StatModifiers[0].Rate, 1e-9)
	assert.True(t, might.AffectsStats())

	_, ok = c.TryGetDefinition(10000001, 4)
	assert.False(t, ok, "level past max must not resolve")
	assert.Equal(t, int32(3), c.MaxLevel(10000001))
}

func TestLoadEffectCatalog_PerLevelFallsBackToLast(t *testing.T) {
	c, err := LoadEffectCatalog("")
	require.NoError(t, err)

	bleed, ok := c.TryGetDefinition(10000003, 5)
	require.True(t, ok)
	assert.Equal(t, int64(10000), bleed.Duration, "single-element array applies to all levels")
	assert.Equal(t, int64(-100), bleed.Periodic.HP)
	assert.Equal(t, KindDebuff, bleed.Kind)
	assert.True(t, bleed.PerCasterInstance)
}

func TestLoadEffectCatalog_MissingFile(t *testing.T) {
	_, err := LoadEffectCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadEffectCatalog_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "effects.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
effects:
  - id: 5
    name: Test
    duration: [100]
    reset_condition: reset2
`), 0o644))

	c, err := LoadEffectCatalog(path)
	require.NoError(t, err)

	def, ok := c.TryGetDefinition(5, 1)
	require.True(t, ok)
	assert.Equal(t, Reset2, def.ResetCondition)
	assert.True(t, def.ResetCondition.RefreshesEndTick())
}

func TestParseEffectCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "effects: [\n"},
		{"zero id", "effects:\n  - id: 0\n    name: x\n"},
		{"duplicate id", "effects:\n  - id: 1\n    name: a\n  - id: 1\n    name: b\n"},
		{"bad reset condition", "effects:\n  - id: 1\n    name: a\n    reset_condition: sometimes\n"},
		{"bad kind", "effects:\n  - id: 1\n    name: a\n    kind: neutral\n"},
		{"negative max count", "effects:\n  - id: 1\n    name: a\n    max_count: -1\n"},
		{"bad subject", "effects:\n  - id: 1\n    name: a\n    begin_conditions:\n      - subject: party\n"},
		{"alive and dead", "effects:\n  - id: 1\n    name: a\n    begin_conditions:\n      - require_alive: true\n        require_dead: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEffectCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseEffectCatalog_FingerprintTracksContent(t *testing.T) {
	a, err := ParseEffectCatalog([]byte("effects:\n  - id: 1\n    name: a\n"))
	require.NoError(t, err)
	b, err := ParseEffectCatalog([]byte("effects:\n  - id: 1\n    name: b\n"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestImmunity_Covers(t *testing.T) {
	im := &Immunity{IDs: []int32{7}, Categories: []int32{2}}

	assert.True(t, im.Covers(7, 0))
	assert.True(t, im.Covers(99, 2))
	assert.False(t, im.Covers(99, 0))
	assert.False(t, im.Covers(99, 3))

	var none *Immunity
	assert.False(t, none.Covers(7, 2))
}

func TestInvoke_Matches(t *testing.T) {
	tests := []struct {
		name    string
		invoke  Invoke
		skillID int32
		groups  []int32
		want    bool
	}{
		{"unfiltered", Invoke{}, 5, nil, true},
		{"skill match", Invoke{SkillID: 5}, 5, nil, true},
		{"skill miss", Invoke{SkillID: 5}, 6, nil, false},
		{"group match", Invoke{SkillGroupID: 300}, 6, []int32{100, 300}, true},
		{"group miss", Invoke{SkillGroupID: 300}, 6, []int32{100}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.invoke.Matches(tt.skillID, tt.groups))
		})
	}
}

func TestCompulsion_Matches(t *testing.T) {
	anySkill := &Compulsion{Event: "skill_cast"}
	assert.True(t, anySkill.Matches(42))

	only := &Compulsion{Event: "skill_cast", SkillIDs: []int32{1001}}
	assert.True(t, only.Matches(1001))
	assert.False(t, only.Matches(1002))
}
