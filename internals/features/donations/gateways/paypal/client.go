// Package paypal adapts PayPal orders, billing subscriptions and the
// webhook feed.
package paypal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paypalsdk "github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"

	"donasiku_backend/internals/features/donations/gateways"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

type Config struct {
	ClientID  string
	Secret    string
	WebhookID string
	// Mode is "sandbox" or "live"; BaseURL wins when set.
	Mode     string
	BaseURL  string
	Timeout  time.Duration
	Currency string
	Brand    string
}

func (c Config) apiBase() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if strings.EqualFold(c.Mode, "live") {
		return paypalsdk.APIBaseLive
	}
	return paypalsdk.APIBaseSandBox
}

type Client struct {
	api      *paypalsdk.Client
	currency string
	brand    string
}

func NewClient(cfg Config) (*Client, error) {
	api, err := paypalsdk.NewClient(cfg.ClientID, cfg.Secret, cfg.apiBase())
	if err != nil {
		return nil, fmt.Errorf("paypal client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	api.SetHTTPClient(&http.Client{Timeout: timeout})

	currency := strings.ToUpper(cfg.Currency)
	if currency == "" {
		currency = "GBP"
	}
	return &Client{api: api, currency: currency, brand: cfg.Brand}, nil
}

// API exposes the SDK client for webhook verification.
func (c *Client) API() *paypalsdk.Client { return c.api }

func (c *Client) Provider() paymentModel.PaymentProvider { return paymentModel.ProviderPaypal }

func (c *Client) CreateCharge(ctx context.Context, req gateways.ChargeRequest) (*gateways.ProviderTransaction, error) {
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = c.currency
	}
	units := []paypalsdk.PurchaseUnitRequest{{
		Amount: &paypalsdk.PurchaseUnitAmount{
			Currency: currency,
			Value:    req.Amount.StringFixed(2),
		},
		Description: req.Description,
	}}
	appCtx := &paypalsdk.ApplicationContext{
		BrandName:  c.brand,
		UserAction: "PAY_NOW",
		ReturnURL:  req.ReturnURL,
		CancelURL:  req.CancelURL,
	}

	order, err := c.api.CreateOrder(ctx, paypalsdk.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		return nil, classify(err)
	}
	return &gateways.ProviderTransaction{
		ID:              order.ID,
		Status:          order.Status,
		ClientReference: approvalLink(order.Links),
	}, nil
}

func (c *Client) CreateSubscription(ctx context.Context, req gateways.SubscriptionRequest) (*gateways.ProviderTransaction, error) {
	if req.PlanID == "" {
		return nil, gateways.Rejected(paymentModel.ProviderPaypal, "MISSING_PLAN", "a plan id is required for subscriptions")
	}
	amount, err := c.planAmount(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if amount, err = gateways.MatchPlanAmount(paymentModel.ProviderPaypal, req.Amount, amount); err != nil {
		return nil, err
	}
	sub, err := c.api.CreateSubscription(ctx, paypalsdk.SubscriptionBase{
		PlanID: req.PlanID,
		ApplicationContext: &paypalsdk.ApplicationContext{
			BrandName: c.brand,
			ReturnURL: req.ReturnURL,
			CancelURL: req.CancelURL,
		},
	})
	if err != nil {
		return nil, classify(err)
	}
	return &gateways.ProviderTransaction{
		ID:              sub.ID,
		Status:          string(sub.SubscriptionStatus),
		ClientReference: approvalLink(sub.Links),
		Amount:          amount,
	}, nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	if reason == "" {
		reason = "Cancelled by donor"
	}
	if err := c.api.CancelSubscription(ctx, subscriptionID, reason); err != nil {
		return classify(err)
	}
	return nil
}

// planAmount is the fixed price of the plan's regular billing cycle.
func (c *Client) planAmount(ctx context.Context, planID string) (decimal.Decimal, error) {
	plan, err := c.api.GetSubscriptionPlan(ctx, planID)
	if err != nil {
		return decimal.Zero, classify(err)
	}
	for _, bc := range plan.BillingCycles {
		if bc.TenureType != paypalsdk.TenureTypeRegular {
			continue
		}
		if amt, ok := gateways.ParseAmount(bc.PricingScheme.FixedPrice.Value); ok {
			return amt, nil
		}
	}
	return decimal.Zero, nil
}

// Capture captures an approved order. The PayPal-Request-Id makes a
// repeated capture of the same order return the first result.
func (c *Client) Capture(ctx context.Context, ev *gateways.Event) (*gateways.Event, error) {
	res, err := c.api.CaptureOrderWithPaypalRequestId(ctx, ev.TransactionID, paypalsdk.CaptureOrderRequest{}, "capture-"+ev.TransactionID, nil)
	if err != nil {
		return nil, classify(err)
	}
	out := *ev
	out.Invoice = nil
	out.Target = ""
	out.Action = gateways.ActionIgnore

	email := ""
	if res.Payer != nil {
		email = res.Payer.EmailAddress
	}
	for _, pu := range res.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}
		for _, cp := range pu.Payments.Captures {
			var amount decimal.Decimal
			if cp.Amount != nil {
				amount, _ = gateways.ParseAmount(cp.Amount.Value)
			}
			if applyCapture(&out, cp.ID, cp.Status, amount, email) {
				return &out, nil
			}
		}
	}
	return &out, nil
}

func approvalLink(links []paypalsdk.Link) string {
	for _, l := range links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func classify(err error) error {
	var er *paypalsdk.ErrorResponse
	if errors.As(err, &er) {
		status := http.StatusBadGateway
		if er.Response != nil {
			status = er.Response.StatusCode
		}
		return gateways.FromStatus(paymentModel.ProviderPaypal, status, er.Name, er.Message)
	}
	return gateways.Unavailable(paymentModel.ProviderPaypal, err)
}
