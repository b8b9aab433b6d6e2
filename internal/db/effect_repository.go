package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/la2go-effects/internal/game/effect"
)

// EffectRepository хранит снапшоты эффектов персонажей.
//
// Each save also records the fingerprint of the catalog the snapshots were
// taken against, so a load after a catalog change can be reported.
type EffectRepository struct {
	db          *pgxpool.Pool
	fingerprint string
}

// NewEffectRepository creates a repository bound to the running catalog.
func NewEffectRepository(db *pgxpool.Pool, catalogFingerprint string) *EffectRepository {
	return &EffectRepository{db: db, fingerprint: catalogFingerprint}
}

// Load returns the persisted snapshots of ownerID in save order.
func (r *EffectRepository) Load(ctx context.Context, ownerID effect.ActorID) ([]effect.Snapshot, error) {
	var saved string
	err := r.db.QueryRow(ctx,
		`SELECT fingerprint FROM character_effect_catalogs WHERE owner_id = $1`, ownerID,
	).Scan(&saved)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("querying catalog fingerprint for actor %d: %w", ownerID, err)
	}
	if saved != r.fingerprint {
		slog.Warn("effect snapshots saved against another catalog",
			"owner", ownerID,
			"saved", saved,
			"current", r.fingerprint)
	}

	query := `
		SELECT effect_id, effect_level, caster_id, remaining_ticks, stacks, enabled, shield_hp
		FROM character_effects
		WHERE owner_id = $1
		ORDER BY slot
	`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying effects for actor %d: %w", ownerID, err)
	}
	defer rows.Close()

	snaps := make([]effect.Snapshot, 0, 16)
	for rows.Next() {
		var s effect.Snapshot
		if err := rows.Scan(&s.EffectID, &s.Level, &s.CasterID, &s.RemainingTicks, &s.Stacks, &s.Enabled, &s.ShieldHP); err != nil {
			return nil, fmt.Errorf("scanning effect row: %w", err)
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating effect rows: %w", err)
	}

	return snaps, nil
}

// Save replaces the persisted snapshots of ownerID in one transaction.
func (r *EffectRepository) Save(ctx context.Context, ownerID effect.ActorID, snaps []effect.Snapshot) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		// Rollback after commit is expected to fail
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM character_effects WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("deleting existing effects: %w", err)
	}

	if len(snaps) > 0 {
		rows := make([][]any, len(snaps))
		for i, s := range snaps {
			rows[i] = []any{ownerID, int32(i), s.EffectID, s.Level, s.CasterID, s.RemainingTicks, s.Stacks, s.Enabled, s.ShieldHP}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"character_effects"},
			[]string{"owner_id", "slot", "effect_id", "effect_level", "caster_id", "remaining_ticks", "stacks", "enabled", "shield_hp"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copying %d effects: %w", len(snaps), err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO character_effect_catalogs (owner_id, fingerprint, saved_at)
		VALUES ($1, $2, now())
		ON CONFLICT (owner_id)
		DO UPDATE SET fingerprint = $2, saved_at = now()
	`, ownerID, r.fingerprint); err != nil {
		return fmt.Errorf("recording catalog fingerprint: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing effects save: %w", err)
	}
	return nil
}

// Delete removes everything persisted for ownerID.
func (r *EffectRepository) Delete(ctx context.Context, ownerID effect.ActorID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM character_effects WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("deleting effects for actor %d: %w", ownerID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM character_effect_catalogs WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("deleting catalog fingerprint for actor %d: %w", ownerID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing effects delete: %w", err)
	}
	return nil
}
