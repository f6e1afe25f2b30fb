package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCanceled  PaymentStatus = "canceled"
)

var ErrStalePayment = errors.New("payment log already left pending")

// PaymentLog is one Stripe invoice as we saw it. One row per invoice, keyed
// by the Stripe invoice id, so replayed webhook deliveries collapse.
type PaymentLog struct {
	ID                   int           `db:"id" json:"id"`
	StripeInvoiceID      string        `db:"stripe_invoice_id" json:"stripe_invoice_id"`
	StripeSubscriptionID string        `db:"stripe_subscription_id" json:"stripe_subscription_id"`
	AmountCents          int64         `db:"amount_cents" json:"amount_cents"`
	Currency             string        `db:"currency" json:"currency"`
	Status               PaymentStatus `db:"status" json:"status"`
	CreatedAt            time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updated_at"`
}

type PaymentLogRepository struct {
	db *sqlx.DB
}

func NewPaymentLogRepository(db *sqlx.DB) *PaymentLogRepository {
	return &PaymentLogRepository{db: db}
}

// Ensure inserts the pending row for an invoice if it is not recorded yet.
func (r *PaymentLogRepository) Ensure(ctx context.Context, invoiceID, subscriptionID string, amountCents int64, currency string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_logs (stripe_invoice_id, stripe_subscription_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, 'pending')
		ON CONFLICT (stripe_invoice_id) DO NOTHING
	`, invoiceID, subscriptionID, amountCents, currency)
	return err
}

// Resolve moves an invoice out of pending. A row that already resolved stays
// as it is and ErrStalePayment is returned, which keeps webhook replays inert.
func (r *PaymentLogRepository) Resolve(ctx context.Context, invoiceID string, status PaymentStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_logs
		SET status = $2, updated_at = NOW()
		WHERE stripe_invoice_id = $1 AND status = 'pending'
	`, invoiceID, status)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStalePayment
	}
	return nil
}

func (r *PaymentLogRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]PaymentLog, error) {
	logs := []PaymentLog{}
	err := r.db.SelectContext(ctx, &logs, `
		SELECT id, stripe_invoice_id, stripe_subscription_id, amount_cents, currency, status, created_at, updated_at
		FROM payment_logs
		WHERE stripe_subscription_id = $1
		ORDER BY created_at DESC
	`, subscriptionID)
	return logs, err
}
