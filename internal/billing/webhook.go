package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"fitpass/internal/api"
	"fitpass/internal/logger"
	"fitpass/internal/membership"
)

// MembershipStore is the slice of the membership repository the webhook
// needs to mirror subscription lifecycle events.
type MembershipStore interface {
	UpdateStatusBySubscription(ctx context.Context, stripeSubID string, status membership.Status) error
	RenewBySubscription(ctx context.Context, stripeSubID string, periodStart, periodEnd time.Time) error
}

type PaymentLogStore interface {
	Ensure(ctx context.Context, invoiceID, subscriptionID string, amountCents int64, currency string) error
	Resolve(ctx context.Context, invoiceID string, status PaymentStatus) error
}

type WebhookHandler struct {
	secret      string
	logs        PaymentLogStore
	memberships MembershipStore
}

func NewWebhookHandler(secret string, logs PaymentLogStore, memberships MembershipStore) *WebhookHandler {
	return &WebhookHandler{secret: secret, logs: logs, memberships: memberships}
}

// Handle receives Stripe events. Deliveries are at-least-once, so every
// branch has to tolerate seeing the same event twice.
func (h *WebhookHandler) Handle(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<16))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "failed to read payload"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid signature"})
		return
	}

	if err := h.process(c.Request.Context(), event); err != nil {
		logger.Errorf("webhook %s (%s) failed: %v", event.Type, event.ID, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to process event"})
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "ok"})
}

func (h *WebhookHandler) process(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "invoice.payment_succeeded":
		return h.invoicePaid(ctx, event)
	case "invoice.payment_failed":
		return h.invoiceFailed(ctx, event)
	case "customer.subscription.deleted":
		return h.subscriptionDeleted(ctx, event)
	default:
		logger.Debugf("ignoring webhook event %s", event.Type)
		return nil
	}
}

func (h *WebhookHandler) invoicePaid(ctx context.Context, event stripe.Event) error {
	inv, err := parseInvoice(event)
	if err != nil {
		return err
	}
	if inv.Subscription == nil {
		return nil
	}

	if err := h.logs.Ensure(ctx, inv.ID, inv.Subscription.ID, inv.AmountPaid, string(inv.Currency)); err != nil {
		return err
	}
	if err := h.logs.Resolve(ctx, inv.ID, PaymentSucceeded); err != nil {
		if errors.Is(err, ErrStalePayment) {
			return nil
		}
		return err
	}

	start, end := invoicePeriod(inv)
	err = h.memberships.RenewBySubscription(ctx, inv.Subscription.ID, start, end)
	if errors.Is(err, membership.ErrNotFound) {
		logger.Infof("paid invoice %s references unknown subscription %s", inv.ID, inv.Subscription.ID)
		return nil
	}
	return err
}

func (h *WebhookHandler) invoiceFailed(ctx context.Context, event stripe.Event) error {
	inv, err := parseInvoice(event)
	if err != nil {
		return err
	}
	if inv.Subscription == nil {
		return nil
	}

	if err := h.logs.Ensure(ctx, inv.ID, inv.Subscription.ID, inv.AmountDue, string(inv.Currency)); err != nil {
		return err
	}
	if err := h.logs.Resolve(ctx, inv.ID, PaymentFailed); err != nil {
		if errors.Is(err, ErrStalePayment) {
			return nil
		}
		return err
	}

	err = h.memberships.UpdateStatusBySubscription(ctx, inv.Subscription.ID, membership.StatusPastDue)
	if errors.Is(err, membership.ErrNotFound) {
		return nil
	}
	return err
}

func (h *WebhookHandler) subscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var s stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return err
	}

	err := h.memberships.UpdateStatusBySubscription(ctx, s.ID, membership.StatusCanceled)
	if errors.Is(err, membership.ErrNotFound) {
		return nil
	}
	return err
}

func parseInvoice(event stripe.Event) (*stripe.Invoice, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// invoicePeriod prefers the line period, which is the subscription period the
// invoice covers. The invoice level period only describes the billing moment.
func invoicePeriod(inv *stripe.Invoice) (time.Time, time.Time) {
	if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil {
		p := inv.Lines.Data[0].Period
		return time.Unix(p.Start, 0).UTC(), time.Unix(p.End, 0).UTC()
	}
	return time.Unix(inv.PeriodStart, 0).UTC(), time.Unix(inv.PeriodEnd, 0).UTC()
}
