package payout

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrencyConflict means an optimistic status update found the row
	// already out of the expected state. Another invocation won the race.
	ErrConcurrencyConflict = errors.New("transfer status update lost the race")

	ErrRunInProgress = errors.New("payout run already in progress for this period")
)

// ValidationError reports bad calculator input (unknown plan type, negative
// amounts). Financial values are never clamped or defaulted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "payout: " + e.Msg
}

// ConfigurationError means the configured payout constants produce gym cuts
// that exceed what the gross amount can cover.
type ConfigurationError struct {
	GrossCents       int64
	FeeCents         int64
	TotalGymCutCents int64
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf(
		"payout: gym cuts %d exceed net available %d (gross %d, fee %d), shortfall %d",
		e.TotalGymCutCents, e.GrossCents-e.FeeCents, e.GrossCents, e.FeeCents, e.Shortfall(),
	)
}

func (e *ConfigurationError) Shortfall() int64 {
	return e.TotalGymCutCents - (e.GrossCents - e.FeeCents)
}
