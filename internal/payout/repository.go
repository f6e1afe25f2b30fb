package payout

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Repository owns the transfer ledger and the per-gym carried balances.
// Ledger rows are append-only; the only mutation is the single status
// transition out of pending, guarded optimistically.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const transferColumns = `id, user_id, gym_id, period, attempt, amount_cents, currency, status,
	stripe_transfer_id, retry_of, failure_reason, created_at, updated_at`

// GetLatestTransfer returns the highest-attempt transfer log for the key, or
// nil when none exists yet.
func (r *Repository) GetLatestTransfer(ctx context.Context, userID, gymID int, period Period) (*TransferLog, error) {
	log := &TransferLog{}
	err := r.db.GetContext(ctx, log, `
		SELECT `+transferColumns+`
		FROM gym_transfer_logs
		WHERE user_id = $1 AND gym_id = $2 AND period = $3
		ORDER BY attempt DESC
		LIMIT 1
	`, userID, gymID, period)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

// claimCarriedBalance zeroes the gym's carried balance inside tx and returns
// the amount claimed. The FOR UPDATE lock keeps two users paying the same gym
// in one run from both absorbing it.
func claimCarriedBalance(ctx context.Context, tx *sqlx.Tx, gymID int) (int64, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		SELECT balance_cents FROM gym_carried_balances WHERE gym_id = $1 FOR UPDATE
	`, gymID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if balance <= 0 {
		return 0, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE gym_carried_balances SET balance_cents = 0, updated_at = NOW() WHERE gym_id = $1
	`, gymID)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// CreatePendingTransfer inserts attempt 1 for (user, gym, period), claiming
// any carried balance into the amount in the same transaction. A unique-key
// conflict means another invocation got there first; the caller re-reads.
func (r *Repository) CreatePendingTransfer(ctx context.Context, userID, gymID int, period Period, baseCents int64, currency string) (*TransferLog, error) {
	return r.insertTransfer(ctx, userID, gymID, period, 1, baseCents, currency, StatusPending, nil)
}

// CreateRetryTransfer appends a new pending attempt linked to a failed one.
// The failed row keeps its final state forever.
func (r *Repository) CreateRetryTransfer(ctx context.Context, failed *TransferLog) (*TransferLog, error) {
	if failed.Status != StatusFailed {
		return nil, &ValidationError{Msg: "can only retry a failed transfer"}
	}
	return r.insertTransfer(ctx, failed.UserID, failed.GymID, failed.Period,
		failed.Attempt+1, failed.AmountCents, failed.Currency, StatusPending, &failed.ID)
}

func (r *Repository) insertTransfer(ctx context.Context, userID, gymID int, period Period, attempt int, baseCents int64, currency string, status TransferStatus, retryOf *int) (*TransferLog, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	carried, err := claimCarriedBalance(ctx, tx, gymID)
	if err != nil {
		return nil, err
	}

	log := &TransferLog{}
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO gym_transfer_logs (user_id, gym_id, period, attempt, amount_cents, currency, status, retry_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, gym_id, period, attempt) DO NOTHING
		RETURNING `+transferColumns+`
	`, userID, gymID, period, attempt, baseCents+carried, currency, status, retryOf).StructScan(log)
	if errors.Is(err, sql.ErrNoRows) {
		// Row already exists: rollback also restores the claimed balance.
		return nil, ErrConcurrencyConflict
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return log, nil
}

// CreateDeferral records a below-minimum amount as a terminal deferred row and
// adds it to the gym's carried balance. The unique key makes re-runs no-ops:
// the balance is only bumped when the row is first inserted. Returns whether
// this call inserted the row.
func (r *Repository) CreateDeferral(ctx context.Context, userID, gymID int, period Period, amountCents int64, currency string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var id int
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO gym_transfer_logs (user_id, gym_id, period, attempt, amount_cents, currency, status)
		VALUES ($1, $2, $3, 1, $4, $5, 'deferred')
		ON CONFLICT (user_id, gym_id, period, attempt) DO NOTHING
		RETURNING id
	`, userID, gymID, period, amountCents, currency).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO gym_carried_balances (gym_id, balance_cents)
		VALUES ($1, $2)
		ON CONFLICT (gym_id) DO UPDATE
		SET balance_cents = gym_carried_balances.balance_cents + EXCLUDED.balance_cents,
		    updated_at = NOW()
	`, gymID, amountCents)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// MarkCompleted transitions pending -> completed. Zero rows affected means the
// row was not pending anymore: a concurrent run already resolved it.
func (r *Repository) MarkCompleted(ctx context.Context, id int, stripeTransferID string) error {
	return r.transition(ctx, `
		UPDATE gym_transfer_logs
		SET status = 'completed', stripe_transfer_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, stripeTransferID)
}

// MarkFailed transitions pending -> failed with the external error recorded.
func (r *Repository) MarkFailed(ctx context.Context, id int, reason string) error {
	return r.transition(ctx, `
		UPDATE gym_transfer_logs
		SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, reason)
}

func (r *Repository) transition(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConcurrencyConflict
	}
	return nil
}

func (r *Repository) GetCarriedBalance(ctx context.Context, gymID int) (int64, error) {
	var balance int64
	err := r.db.GetContext(ctx, &balance, `
		SELECT balance_cents FROM gym_carried_balances WHERE gym_id = $1
	`, gymID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func (r *Repository) ListTransfersByPeriod(ctx context.Context, period Period) ([]TransferLog, error) {
	logs := []TransferLog{}
	err := r.db.SelectContext(ctx, &logs, `
		SELECT `+transferColumns+`
		FROM gym_transfer_logs
		WHERE period = $1
		ORDER BY gym_id, user_id, attempt
	`, period)
	return logs, err
}

func (r *Repository) ListCarriedBalances(ctx context.Context) ([]CarriedBalance, error) {
	balances := []CarriedBalance{}
	err := r.db.SelectContext(ctx, &balances, `
		SELECT gym_id, balance_cents, updated_at
		FROM gym_carried_balances
		WHERE balance_cents > 0
		ORDER BY gym_id
	`)
	return balances, err
}
