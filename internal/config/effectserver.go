package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/udisondev/la2go-effects/internal/data"
)

// FieldConfig describes one field hosted by the server.
type FieldConfig struct {
	ID                 int32            `yaml:"id"`
	PvP                bool             `yaml:"pvp"`
	ShadowWorld        bool             `yaml:"shadow_world"`
	EntranceEffects    []data.EffectRef `yaml:"entrance_effects"`
	ShadowWorldEffects []data.EffectRef `yaml:"shadow_world_effects"`

	// DevActors are joined at startup. There is no session layer; this is
	// the only way to populate a field outside tests.
	DevActors []DevActorConfig `yaml:"dev_actors"`
}

// DevActorConfig describes an actor seeded into a field at startup.
type DevActorConfig struct {
	ID      int64            `yaml:"id"`
	Level   int32            `yaml:"level"`
	MaxHP   int64            `yaml:"max_hp"`
	Player  bool             `yaml:"player"`
	Effects []data.EffectRef `yaml:"effects"` // self-cast on the first tick
}

// EffectServer holds all configuration for the effect server.
type EffectServer struct {
	LogLevel string `yaml:"log_level"` // debug, info, warn, error

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Catalog file; empty = embedded default catalog
	CatalogPath string `yaml:"catalog_path"`

	// Tick loop
	TickInterval time.Duration `yaml:"tick_interval"` // default: 100ms
	GraceTicks   int64         `yaml:"grace_ticks"`   // expiry grace for remote players, ms
	InboxSize    int           `yaml:"inbox_size"`
	OutboxSize   int           `yaml:"outbox_size"`

	// Persistence
	SaveInterval time.Duration `yaml:"save_interval"` // default: 1m

	// FailFast panics on registry invariant violations (dev builds).
	FailFast bool `yaml:"fail_fast"`

	Fields []FieldConfig `yaml:"fields"`
}

// DefaultEffectServer returns EffectServer config with sensible defaults.
func DefaultEffectServer() EffectServer {
	return EffectServer{
		LogLevel:     "info",
		Database:     DefaultDatabase(),
		TickInterval: 100 * time.Millisecond,
		GraceTicks:   1000,
		InboxSize:    1024,
		OutboxSize:   4096,
		SaveInterval: time.Minute,
		Fields: []FieldConfig{
			{ID: 1},
		},
	}
}

// LoadEffectServer loads effect server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadEffectServer(path string) (EffectServer, error) {
	cfg := DefaultEffectServer()
	if err := loadYAML(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values the server cannot start with.
func (c EffectServer) Validate() error {
	var errs []error
	if c.TickInterval < time.Millisecond {
		errs = append(errs, fmt.Errorf("tick_interval %s below 1ms", c.TickInterval))
	}
	if c.SaveInterval <= 0 {
		errs = append(errs, fmt.Errorf("save_interval %s must be positive", c.SaveInterval))
	}
	if c.GraceTicks < 0 {
		errs = append(errs, fmt.Errorf("grace_ticks %d is negative", c.GraceTicks))
	}
	if len(c.Fields) == 0 {
		errs = append(errs, errors.New("no fields configured"))
	}
	seen := make(map[int32]struct{}, len(c.Fields))
	actors := make(map[int64]struct{})
	for _, f := range c.Fields {
		if _, dup := seen[f.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate field id %d", f.ID))
		}
		seen[f.ID] = struct{}{}
		for _, a := range f.DevActors {
			switch {
			case a.ID <= 0:
				errs = append(errs, fmt.Errorf("field %d: dev actor id %d must be positive", f.ID, a.ID))
			case a.MaxHP <= 0:
				errs = append(errs, fmt.Errorf("field %d: dev actor %d max_hp must be positive", f.ID, a.ID))
			}
			if _, dup := actors[a.ID]; dup {
				errs = append(errs, fmt.Errorf("dev actor %d configured twice", a.ID))
			}
			actors[a.ID] = struct{}{}
		}
	}
	return errors.Join(errs...)
}
