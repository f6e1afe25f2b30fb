package billing

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/customer"
	"github.com/stripe/stripe-go/v74/price"
	sub "github.com/stripe/stripe-go/v74/subscription"
	"github.com/stripe/stripe-go/v74/transfer"

	"fitpass/internal/membership"
)

// Client wraps the Stripe API. It satisfies membership.SubscriptionClient and
// the payout aggregator's transfer client.
type Client struct{}

func NewClient(secretKey string) *Client {
	stripe.Key = secretKey
	return &Client{}
}

func (c *Client) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx

	cus, err := customer.New(params)
	if err != nil {
		return "", err
	}
	return cus.ID, nil
}

func (c *Client) CreateSubscription(ctx context.Context, customerID, priceID string) (*membership.StripeSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
	}
	params.Context = ctx

	s, err := sub.New(params)
	if err != nil {
		return nil, err
	}

	return &membership.StripeSubscription{
		ID:          s.ID,
		PeriodStart: time.Unix(s.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:   time.Unix(s.CurrentPeriodEnd, 0).UTC(),
	}, nil
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*membership.StripeSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	s, err := sub.Get(subscriptionID, params)
	if err != nil {
		return nil, err
	}

	return &membership.StripeSubscription{
		ID:          s.ID,
		PeriodStart: time.Unix(s.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:   time.Unix(s.CurrentPeriodEnd, 0).UTC(),
	}, nil
}

// ListPrices returns the active recurring prices, used when seeding the plan
// catalog against the Stripe account.
func (c *Client) ListPrices(ctx context.Context) ([]*stripe.Price, error) {
	params := &stripe.PriceListParams{
		Active: stripe.Bool(true),
	}
	params.Context = ctx

	var prices []*stripe.Price
	iter := price.List(params)
	for iter.Next() {
		prices = append(prices, iter.Price())
	}
	return prices, iter.Err()
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	_, err := sub.Cancel(subscriptionID, params)
	return err
}

// CreateTransfer moves money to a gym's connected account. The ledger row id
// rides along as the idempotency key, so replaying a payout run cannot double
// a transfer Stripe already accepted.
func (c *Client) CreateTransfer(ctx context.Context, destinationAccount string, amountCents int64, currency string, metadata map[string]string) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(currency),
		Destination: stripe.String(destinationAccount),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if logID, ok := metadata["log_id"]; ok {
		params.SetIdempotencyKey("gym-transfer-" + logID)
	}

	tr, err := transfer.New(params)
	if err != nil {
		return "", err
	}
	return tr.ID, nil
}
