// Package midtrans adapts Midtrans Snap checkouts and the HTTP
// notification feed.
package midtrans

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	midtranssdk "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"donasiku_backend/internals/features/donations/gateways"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

type Config struct {
	ServerKey     string
	UseProduction bool
	Timeout       time.Duration
}

// snapAPI is the part of snap.Client the gateway uses.
type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtranssdk.Error)
}

type Client struct {
	snap snapAPI
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// The SDK reads its http client from a package variable.
	midtranssdk.DefaultGoHttpClient = &http.Client{Timeout: timeout}

	env := midtranssdk.Sandbox
	if cfg.UseProduction {
		env = midtranssdk.Production
	}
	var sc snap.Client
	sc.New(cfg.ServerKey, env)
	return &Client{snap: &sc}
}

func (c *Client) Provider() paymentModel.PaymentProvider { return paymentModel.ProviderMidtrans }

func (c *Client) CreateCharge(_ context.Context, req gateways.ChargeRequest) (*gateways.ProviderTransaction, error) {
	if req.IdempotencyKey == "" {
		return nil, gateways.Rejected(paymentModel.ProviderMidtrans, "missing_order_id", "an order id is required")
	}
	gross := req.Amount.Round(0).IntPart()
	if gross <= 0 {
		return nil, gateways.Rejected(paymentModel.ProviderMidtrans, "invalid_amount", "gross amount must be positive")
	}

	first, last := splitName(req.Payer.Name)
	addr := &midtranssdk.CustomerAddress{
		FName:       first,
		LName:       last,
		Address:     req.Payer.StreetAddress,
		City:        req.Payer.City,
		Postcode:    req.Payer.PostalCode,
		CountryCode: defaultString(req.Payer.Country, "IDN"),
	}
	snapReq := &snap.Request{
		TransactionDetails: midtranssdk.TransactionDetails{
			OrderID:  req.IdempotencyKey,
			GrossAmt: gross,
		},
		CustomerDetail: &midtranssdk.CustomerDetails{
			FName:    first,
			LName:    last,
			Email:    req.Payer.Email,
			BillAddr: addr,
		},
		Items: &[]midtranssdk.ItemDetails{{
			ID:       req.IdempotencyKey,
			Price:    gross,
			Qty:      1,
			Name:     truncate(defaultString(req.Description, "Donation"), 50),
			Category: "Donation",
		}},
	}
	if req.Description != "" {
		snapReq.CustomField1 = truncate(req.Description, 40)
	}

	resp, merr := c.snap.CreateTransaction(snapReq)
	// *midtrans.Error must be nil-checked before it becomes an error value.
	if merr != nil {
		return nil, gateways.FromStatus(paymentModel.ProviderMidtrans, merr.StatusCode, "", merr.Message)
	}
	return &gateways.ProviderTransaction{
		ID:              req.IdempotencyKey,
		Status:          "pending",
		ClientReference: resp.RedirectURL,
	}, nil
}

func (c *Client) CreateSubscription(context.Context, gateways.SubscriptionRequest) (*gateways.ProviderTransaction, error) {
	return nil, fmt.Errorf("%w: midtrans snap has no recurring donations", gateways.ErrUnsupported)
}

func (c *Client) CancelSubscription(context.Context, string, string) error {
	return fmt.Errorf("%w: midtrans snap has no recurring donations", gateways.ErrUnsupported)
}

func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	first, last, _ := strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
