// Package stripe adapts Stripe card payments: one-time payment intents,
// subscriptions and the signed webhook feed.
package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	stripesdk "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"donasiku_backend/internals/features/donations/gateways"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

type Config struct {
	SecretKey string
	Timeout   time.Duration
	Currency  string
	// BaseURL overrides the API host.
	BaseURL string
}

// Client talks to the Stripe API. It keeps no state beyond the configured
// SDK client and is safe for concurrent use.
type Client struct {
	api      *client.API
	currency string
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	backend := func(kind stripesdk.SupportedBackend) stripesdk.Backend {
		bc := &stripesdk.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripesdk.Int64(0),
			LeveledLogger:     &stripesdk.LeveledLogger{Level: stripesdk.LevelError},
		}
		if cfg.BaseURL != "" && kind == stripesdk.APIBackend {
			bc.URL = stripesdk.String(strings.TrimRight(cfg.BaseURL, "/"))
		}
		return stripesdk.GetBackendWithConfig(kind, bc)
	}
	backends := &stripesdk.Backends{
		API:     backend(stripesdk.APIBackend),
		Connect: backend(stripesdk.ConnectBackend),
		Uploads: backend(stripesdk.UploadsBackend),
	}

	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "gbp"
	}
	return &Client{api: client.New(cfg.SecretKey, backends), currency: currency}
}

func (c *Client) Provider() paymentModel.PaymentProvider { return paymentModel.ProviderStripe }

func (c *Client) CreateCharge(ctx context.Context, req gateways.ChargeRequest) (*gateways.ProviderTransaction, error) {
	customerID, err := c.ensureCustomer(ctx, req.Payer, req.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	params := &stripesdk.PaymentIntentParams{
		Amount:   stripesdk.Int64(gateways.MinorUnits(req.Amount)),
		Currency: stripesdk.String(c.currencyOf(req.Currency)),
		Customer: stripesdk.String(customerID),
	}
	params.Context = ctx
	if req.PaymentMethodID != "" {
		params.PaymentMethod = stripesdk.String(req.PaymentMethodID)
		params.Confirm = stripesdk.Bool(true)
		if req.ReturnURL != "" {
			params.ReturnURL = stripesdk.String(req.ReturnURL)
		}
	}
	if req.Description != "" {
		params.Description = stripesdk.String(req.Description)
	}
	if req.Payer.Email != "" {
		params.ReceiptEmail = stripesdk.String(req.Payer.Email)
	}
	params.AddMetadata("donor_id", req.Payer.DonorID.String())
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return &gateways.ProviderTransaction{
		ID:              pi.ID,
		Status:          string(pi.Status),
		ClientReference: pi.ClientSecret,
		CustomerID:      customerID,
	}, nil
}

func (c *Client) CreateSubscription(ctx context.Context, req gateways.SubscriptionRequest) (*gateways.ProviderTransaction, error) {
	if req.PlanID == "" {
		return nil, gateways.Rejected(paymentModel.ProviderStripe, "missing_price", "a price id is required for subscriptions")
	}
	amount, err := c.priceAmount(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if amount, err = gateways.MatchPlanAmount(paymentModel.ProviderStripe, req.Amount, amount); err != nil {
		return nil, err
	}
	customerID, err := c.ensureCustomer(ctx, req.Payer, req.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	params := &stripesdk.SubscriptionParams{
		Customer: stripesdk.String(customerID),
		Items: []*stripesdk.SubscriptionItemsParams{
			{Price: stripesdk.String(req.PlanID)},
		},
		PaymentBehavior: stripesdk.String("default_incomplete"),
	}
	params.Context = ctx
	if req.PaymentMethodID != "" {
		params.DefaultPaymentMethod = stripesdk.String(req.PaymentMethodID)
	}
	params.AddExpand("latest_invoice.payment_intent")
	params.AddMetadata("donor_id", req.Payer.DonorID.String())
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	sub, err := c.api.Subscriptions.New(params)
	if err != nil {
		return nil, classify(err)
	}
	out := &gateways.ProviderTransaction{
		ID:         sub.ID,
		Status:     string(sub.Status),
		CustomerID: customerID,
		Amount:     amount,
	}
	if a, ok := subscriptionAmount(sub); ok {
		out.Amount = a
	}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		out.ClientReference = sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	return out, nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	params := &stripesdk.SubscriptionCancelParams{}
	params.Context = ctx
	if reason != "" {
		params.CancellationDetails = &stripesdk.SubscriptionCancelCancellationDetailsParams{
			Comment: stripesdk.String(reason),
		}
	}
	if _, err := c.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return classify(err)
	}
	return nil
}

// priceAmount reads the unit amount of a recurring price.
func (c *Client) priceAmount(ctx context.Context, priceID string) (decimal.Decimal, error) {
	params := &stripesdk.PriceParams{}
	params.Context = ctx
	price, err := c.api.Prices.Get(priceID, params)
	if err != nil {
		return decimal.Zero, classify(err)
	}
	return gateways.FromMinorUnits(price.UnitAmount), nil
}

// subscriptionAmount is the first item's price times its quantity.
func subscriptionAmount(sub *stripesdk.Subscription) (decimal.Decimal, bool) {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return decimal.Zero, false
	}
	item := sub.Items.Data[0]
	if item.Price == nil || item.Price.UnitAmount <= 0 {
		return decimal.Zero, false
	}
	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}
	return gateways.FromMinorUnits(item.Price.UnitAmount * qty), true
}

// ensureCustomer reuses the donor's customer or creates one, and attaches
// the payment method as the default for invoices.
func (c *Client) ensureCustomer(ctx context.Context, payer gateways.Payer, paymentMethodID string) (string, error) {
	customerID := payer.StripeCustomerID
	if customerID == "" {
		params := &stripesdk.CustomerParams{
			Email: stripesdk.String(payer.Email),
			Name:  stripesdk.String(payer.Name),
		}
		params.Context = ctx
		params.AddMetadata("donor_id", payer.DonorID.String())
		cus, err := c.api.Customers.New(params)
		if err != nil {
			return "", classify(err)
		}
		customerID = cus.ID
	}
	if paymentMethodID == "" {
		return customerID, nil
	}

	attach := &stripesdk.PaymentMethodAttachParams{Customer: stripesdk.String(customerID)}
	attach.Context = ctx
	if _, err := c.api.PaymentMethods.Attach(paymentMethodID, attach); err != nil {
		return "", classify(err)
	}
	upd := &stripesdk.CustomerParams{
		InvoiceSettings: &stripesdk.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripesdk.String(paymentMethodID),
		},
	}
	upd.Context = ctx
	if _, err := c.api.Customers.Update(customerID, upd); err != nil {
		return "", classify(err)
	}
	return customerID, nil
}

func (c *Client) currencyOf(cur string) string {
	if cur == "" {
		return c.currency
	}
	return strings.ToLower(cur)
}

func classify(err error) error {
	var se *stripesdk.Error
	if errors.As(err, &se) {
		if se.Type == stripesdk.ErrorTypeCard {
			return gateways.Rejected(paymentModel.ProviderStripe, string(se.Code), se.Msg)
		}
		return gateways.FromStatus(paymentModel.ProviderStripe, se.HTTPStatusCode, string(se.Code), se.Msg)
	}
	return gateways.Unavailable(paymentModel.ProviderStripe, err)
}
