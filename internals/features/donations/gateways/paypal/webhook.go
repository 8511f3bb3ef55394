package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	paypalsdk "github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"

	"donasiku_backend/internals/features/donations/gateways"
	invoiceModel "donasiku_backend/internals/features/donations/invoices/model"
	"donasiku_backend/internals/features/donations/notifications"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

// Verifier authenticates a PayPal delivery. PayPal signs with a rotating
// certificate, so the live implementation asks the PayPal API.
type Verifier interface {
	Verify(ctx context.Context, req gateways.WebhookRequest) (bool, error)
}

type remoteVerifier struct {
	api       *paypalsdk.Client
	webhookID string
}

func NewRemoteVerifier(api *paypalsdk.Client, webhookID string) Verifier {
	return &remoteVerifier{api: api, webhookID: webhookID}
}

func (v *remoteVerifier) Verify(ctx context.Context, req gateways.WebhookRequest) (bool, error) {
	if v.webhookID == "" || req.Header.Get("Paypal-Transmission-Sig") == "" {
		return false, nil
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(req.Body))
	if err != nil {
		return false, err
	}
	httpReq.Header = req.Header.Clone()

	resp, err := v.api.VerifyWebhookSignature(ctx, httpReq, v.webhookID)
	if err != nil {
		return false, gateways.Unavailable(paymentModel.ProviderPaypal, err)
	}
	return resp.VerificationStatus == "SUCCESS", nil
}

type Webhook struct {
	verifier Verifier
}

func NewWebhook(v Verifier) *Webhook { return &Webhook{verifier: v} }

func (w *Webhook) Provider() paymentModel.PaymentProvider { return paymentModel.ProviderPaypal }

func (w *Webhook) Decode(ctx context.Context, req gateways.WebhookRequest) (*gateways.Event, error) {
	ok, err := w.verifier.Verify(ctx, req)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, gateways.ErrInvalidSignature
	}

	var env envelope
	if err := json.Unmarshal(req.Body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrMalformedPayload, err)
	}
	return mapEvent(&env)
}

/* ===================== typed payloads ===================== */

type envelope struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	CreateTime   string          `json:"create_time"`
	ResourceType string          `json:"resource_type"`
	Resource     json.RawMessage `json:"resource"`
}

type money struct {
	Value        string `json:"value"`
	CurrencyCode string `json:"currency_code"`
}

type orderResource struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Amount   money `json:"amount"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount money  `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Payer struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
}

type captureResource struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	Amount            money  `json:"amount"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

type saleResource struct {
	ID                 string `json:"id"`
	State              string `json:"state"`
	BillingAgreementID string `json:"billing_agreement_id"`
	Amount             struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

type subscriptionResource struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Subscriber struct {
		EmailAddress string `json:"email_address"`
	} `json:"subscriber"`
	BillingInfo struct {
		NextBillingTime string `json:"next_billing_time"`
	} `json:"billing_info"`
}

/* ===================== mapping ===================== */

func mapEvent(env *envelope) (*gateways.Event, error) {
	out := &gateways.Event{
		Provider: paymentModel.ProviderPaypal,
		EventID:  env.ID,
		Type:     env.EventType,
	}
	if t, err := time.Parse(time.RFC3339, env.CreateTime); err == nil {
		out.OccurredAt = t.UTC()
	}

	switch env.EventType {
	case "CHECKOUT.ORDER.APPROVED", "CHECKOUT.ORDER.COMPLETED":
		var o orderResource
		if err := decode(env, &o); err != nil {
			return nil, err
		}
		out.TransactionID = o.ID
		captured := false
		for _, pu := range o.PurchaseUnits {
			for _, cp := range pu.Payments.Captures {
				captured = true
				amount, _ := gateways.ParseAmount(cp.Amount.Value)
				if applyCapture(out, cp.ID, cp.Status, amount, o.Payer.EmailAddress) {
					return out, nil
				}
			}
		}
		// An approved order holds no money until it is captured.
		if !captured && env.EventType == "CHECKOUT.ORDER.APPROVED" {
			out.Action = gateways.ActionCapture
			return out, nil
		}
		return gateways.Ignore(out.Provider, env.ID, env.EventType), nil

	case "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.CAPTURE.DENIED":
		var c captureResource
		if err := decode(env, &c); err != nil {
			return nil, err
		}
		if c.SupplementaryData.RelatedIDs.OrderID == "" {
			return gateways.Ignore(out.Provider, env.ID, env.EventType), nil
		}
		out.Action = gateways.ActionTransition
		out.TransactionID = c.SupplementaryData.RelatedIDs.OrderID
		amount, _ := gateways.ParseAmount(c.Amount.Value)
		out.Invoice = &gateways.InvoiceRef{ProviderInvoiceID: c.ID, Amount: amount}
		if env.EventType == "PAYMENT.CAPTURE.COMPLETED" {
			out.Target = paymentModel.PaymentStatusCompleted
			out.Invoice.Status = invoiceModel.InvoiceStatusCompleted
		} else {
			out.Target = paymentModel.PaymentStatusRejected
			out.Invoice.Status = invoiceModel.InvoiceStatusFailed
		}

	case "PAYMENT.SALE.COMPLETED":
		var s saleResource
		if err := decode(env, &s); err != nil {
			return nil, err
		}
		if s.BillingAgreementID == "" {
			return gateways.Ignore(out.Provider, env.ID, env.EventType), nil
		}
		amount, _ := gateways.ParseAmount(s.Amount.Total)
		out.Action = gateways.ActionTransition
		out.TransactionID = s.BillingAgreementID
		out.Target = paymentModel.PaymentStatusCompleted
		out.Invoice = &gateways.InvoiceRef{
			ProviderInvoiceID: s.ID,
			Amount:            amount,
			Status:            invoiceModel.InvoiceStatusCompleted,
		}

	case "BILLING.SUBSCRIPTION.ACTIVATED", "BILLING.SUBSCRIPTION.UPDATED",
		"BILLING.SUBSCRIPTION.SUSPENDED", "BILLING.SUBSCRIPTION.CANCELLED",
		"BILLING.SUBSCRIPTION.EXPIRED", "BILLING.SUBSCRIPTION.PAYMENT.FAILED":
		var s subscriptionResource
		if err := decode(env, &s); err != nil {
			return nil, err
		}
		out.TransactionID = s.ID
		mapSubscriptionEvent(out, &s)

	default:
		return gateways.Ignore(out.Provider, env.ID, env.EventType), nil
	}
	return out, nil
}

func mapSubscriptionEvent(out *gateways.Event, s *subscriptionResource) {
	switch strings.TrimPrefix(out.Type, "BILLING.SUBSCRIPTION.") {
	case "ACTIVATED":
		out.Action = gateways.ActionTransition
		out.Target = paymentModel.PaymentStatusActive
	case "UPDATED":
		out.Action = gateways.ActionNotify
		out.Template = notifications.TemplateSubscriptionUpdated
	case "SUSPENDED", "CANCELLED":
		out.Action = gateways.ActionTransition
		out.Target = paymentModel.PaymentStatusCancelled
		out.Template = notifications.TemplateSubscriptionCancelled
	case "EXPIRED":
		out.Action = gateways.ActionNotify
		out.Template = notifications.TemplateSubscriptionExpired
	case "PAYMENT.FAILED":
		out.Action = gateways.ActionNotify
		out.Template = notifications.TemplatePaymentRenewalFailed
	}
	if s.BillingInfo.NextBillingTime != "" {
		out.Extra = map[string]any{"NextBillingTime": s.BillingInfo.NextBillingTime}
	}
}

// applyCapture turns a settled capture into a transition on out. It
// reports false while the capture is still pending.
func applyCapture(out *gateways.Event, captureID, status string, amount decimal.Decimal, email string) bool {
	ref := &gateways.InvoiceRef{ProviderInvoiceID: captureID, Amount: amount, CustomerEmail: email}
	switch strings.ToUpper(status) {
	case "COMPLETED":
		out.Target = paymentModel.PaymentStatusCompleted
		ref.Status = invoiceModel.InvoiceStatusCompleted
	case "DECLINED", "FAILED":
		out.Target = paymentModel.PaymentStatusRejected
		ref.Status = invoiceModel.InvoiceStatusFailed
	default:
		return false
	}
	out.Action = gateways.ActionTransition
	out.Invoice = ref
	return true
}

func decode(env *envelope, dst any) error {
	if len(env.Resource) == 0 {
		return fmt.Errorf("%w: %s has no resource", gateways.ErrMalformedPayload, env.EventType)
	}
	if err := json.Unmarshal(env.Resource, dst); err != nil {
		return fmt.Errorf("%w: %s resource: %v", gateways.ErrMalformedPayload, env.EventType, err)
	}
	return nil
}
