package payout

import (
	"fmt"
	"time"
)

type PlanType string

type TransferStatus string

const (
	PlanTiered    PlanType = "tiered"
	PlanUnlimited PlanType = "unlimited"

	// pending -> completed | failed. deferred is terminal from the start:
	// below-minimum amounts never reach the transfer API.
	StatusPending   TransferStatus = "pending"
	StatusCompleted TransferStatus = "completed"
	StatusFailed    TransferStatus = "failed"
	StatusDeferred  TransferStatus = "deferred"
)

func (s TransferStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusDeferred
}

// Period is a monthly billing period in "YYYY-MM" form.
type Period string

func ParsePeriod(s string) (Period, error) {
	if _, err := time.Parse("2006-01", s); err != nil {
		return "", fmt.Errorf("invalid period %q, want YYYY-MM: %w", s, err)
	}
	return Period(s), nil
}

func PeriodOf(t time.Time) Period {
	return Period(t.UTC().Format("2006-01"))
}

func PreviousPeriod(t time.Time) Period {
	y, m, _ := t.UTC().Date()
	return PeriodOf(time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0))
}

// Bounds returns the half-open interval [start, end) covered by the period.
func (p Period) Bounds() (time.Time, time.Time) {
	start, _ := time.Parse("2006-01", string(p))
	return start, start.AddDate(0, 1, 0)
}

func (p Period) String() string { return string(p) }

// Config holds the payout constants for one deployment. Immutable after load;
// already-computed calculations are never affected by later config changes.
type Config struct {
	TierOnePayoutCents       int64
	TierTwoPayoutCents       int64
	TierThreePlusPayoutCents int64
	TieredVisitPayoutCents   int64
	PlatformFeeBps           int64
	MinPayoutCents           int64
	Workers                  int
	TransferTimeout          time.Duration
}

// VisitCount is the number of visits one user made to one gym in a period.
type VisitCount struct {
	GymID  int `db:"gym_id" json:"gym_id"`
	Visits int `db:"visits" json:"visits"`
}

// GymCut is the amount owed to one gym out of a single user's gross.
type GymCut struct {
	GymID       int   `json:"gym_id"`
	AmountCents int64 `json:"amount_cents"`
	Visits      int   `json:"visits"`
}

// CutCalculation is the full split of one user's gross for one period.
// Invariant: TotalGymCutCents + PlatformRevenueCents == GrossCents.
type CutCalculation struct {
	GymCuts              []GymCut `json:"gym_cuts"`
	TotalGymCutCents     int64    `json:"total_gym_cut_cents"`
	PlatformRevenueCents int64    `json:"platform_revenue_cents"`
	PlatformFeeCents     int64    `json:"platform_fee_cents"`
	GrossCents           int64    `json:"gross_cents"`
	UniqueGyms           int      `json:"unique_gyms"`
}

// TransferLog is one row of the append-only transfer ledger. Rows are never
// deleted; a retry is a new row with Attempt+1 and RetryOf pointing back.
type TransferLog struct {
	ID               int            `db:"id" json:"id"`
	UserID           int            `db:"user_id" json:"user_id"`
	GymID            int            `db:"gym_id" json:"gym_id"`
	Period           Period         `db:"period" json:"period"`
	Attempt          int            `db:"attempt" json:"attempt"`
	AmountCents      int64          `db:"amount_cents" json:"amount_cents"`
	Currency         string         `db:"currency" json:"currency"`
	Status           TransferStatus `db:"status" json:"status"`
	StripeTransferID *string        `db:"stripe_transfer_id" json:"stripe_transfer_id,omitempty"`
	RetryOf          *int           `db:"retry_of" json:"retry_of,omitempty"`
	FailureReason    *string        `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// CarriedBalance is the per-gym running total of deferred payouts. It
// accumulates until it clears the minimum and is claimed into a transfer.
type CarriedBalance struct {
	GymID        int       `db:"gym_id" json:"gym_id"`
	BalanceCents int64     `db:"balance_cents" json:"balance_cents"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// RunError is one isolated per-user failure inside a run.
type RunError struct {
	UserID int    `json:"user_id"`
	GymID  int    `json:"gym_id,omitempty"`
	Reason string `json:"reason"`
}

// RunReport is the operational summary of one aggregator run.
type RunReport struct {
	Period             Period     `json:"period"`
	Memberships        int        `json:"memberships"`
	TransfersCompleted int        `json:"transfers_completed"`
	TransfersFailed    int        `json:"transfers_failed"`
	TransfersSkipped   int        `json:"transfers_skipped"`
	TransfersDeferred  int        `json:"transfers_deferred"`
	TotalPaidCents     int64      `json:"total_paid_cents"`
	Errors             []RunError `json:"errors,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         time.Time  `json:"finished_at"`
}
