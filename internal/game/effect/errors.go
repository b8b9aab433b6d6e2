package effect

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

var (
	// ErrDefinitionNotFound — unknown (id, level) in the catalog.
	ErrDefinitionNotFound = errors.New("effect definition not found")
	// ErrSuppressed — apply blocked by cooldown or immunity.
	ErrSuppressed = errors.New("effect suppressed")
	// ErrInvariantViolation — derived state out of sync with the instance set.
	ErrInvariantViolation = errors.New("effect invariant violation")
	// ErrDependentSubsystem — a collaborator (mount) failed and the instance was rolled back.
	ErrDependentSubsystem = errors.New("effect dependent subsystem failure")
)

// Outcome describes what Apply did.
type Outcome int8

const (
	OutcomeAdded Outcome = iota
	OutcomeAddedDisabled
	OutcomeRefreshed
	OutcomeUnchanged
	OutcomeNotFound
	OutcomeCooldown
	OutcomeImmune
	OutcomeRolledBack
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeAddedDisabled:
		return "added_disabled"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeCooldown:
		return "cooldown"
	case OutcomeImmune:
		return "immune"
	case OutcomeRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Applied reports whether a live instance exists for the request afterwards.
func (o Outcome) Applied() bool {
	switch o {
	case OutcomeAdded, OutcomeAddedDisabled, OutcomeRefreshed, OutcomeUnchanged:
		return true
	default:
		return false
	}
}

// Err maps non-applied outcomes to the error taxonomy.
func (o Outcome) Err() error {
	switch o {
	case OutcomeNotFound:
		return ErrDefinitionNotFound
	case OutcomeCooldown:
		return fmt.Errorf("%w: cooldown", ErrSuppressed)
	case OutcomeImmune:
		return fmt.Errorf("%w: immune", ErrSuppressed)
	case OutcomeRolledBack:
		return ErrDependentSubsystem
	default:
		return nil
	}
}

// failFast turns invariant violations into panics.
// Set via SetFailFast during initialization (dev builds and tests).
var failFast atomic.Bool

// SetFailFast enables or disables panicking on invariant violations.
func SetFailFast(enabled bool) {
	failFast.Store(enabled)
}

// IsFailFast returns true if invariant violations panic.
func IsFailFast() bool {
	return failFast.Load()
}

// violation reports a desynchronized derived entry or a double remove.
// In fail-fast mode it panics; otherwise the caller self-heals after logging.
func violation(ownerID ActorID, what string, args ...any) {
	err := fmt.Errorf("%w: %s", ErrInvariantViolation, what)
	if failFast.Load() {
		panic(err)
	}
	slog.Error("effect registry self-heal",
		append([]any{"owner", ownerID, "error", err}, args...)...)
}
