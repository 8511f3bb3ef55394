package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	stripesdk "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"donasiku_backend/internals/features/donations/gateways"
	invoiceModel "donasiku_backend/internals/features/donations/invoices/model"
	"donasiku_backend/internals/features/donations/notifications"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

const (
	SignatureHeader  = "Stripe-Signature"
	DefaultTolerance = 300 * time.Second
)

// VerifySignature checks a Stripe-Signature header against the payload.
// It does not look at the timestamp's age.
func VerifySignature(payload []byte, header, secret string) bool {
	if secret == "" {
		return false
	}
	return webhook.ValidatePayloadIgnoringTolerance(payload, header, secret) == nil
}

// Webhook decodes signed Stripe events.
type Webhook struct {
	secret    string
	tolerance time.Duration
}

func NewWebhook(secret string, tolerance time.Duration) *Webhook {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Webhook{secret: secret, tolerance: tolerance}
}

func (w *Webhook) Provider() paymentModel.PaymentProvider { return paymentModel.ProviderStripe }

func (w *Webhook) Decode(_ context.Context, req gateways.WebhookRequest) (*gateways.Event, error) {
	if w.secret == "" {
		return nil, gateways.ErrInvalidSignature
	}
	if err := webhook.ValidatePayloadWithTolerance(req.Body, req.Header.Get(SignatureHeader), w.secret, w.tolerance); err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrInvalidSignature, err)
	}

	var ev stripesdk.Event
	if err := json.Unmarshal(req.Body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrMalformedPayload, err)
	}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event %s has no data.object", gateways.ErrMalformedPayload, ev.ID)
	}
	return mapEvent(&ev)
}

/* ===================== typed payloads ===================== */

// Webhook objects carry expandable references as plain ids.

type chargeObject struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	PaymentIntent  string `json:"payment_intent"`
	Invoice        string `json:"invoice"`
	ReceiptEmail   string `json:"receipt_email"`
	ReceiptURL     string `json:"receipt_url"`
	BillingDetails struct {
		Email string `json:"email"`
	} `json:"billing_details"`
}

type paymentIntentObject struct {
	ID               string `json:"id"`
	Amount           int64  `json:"amount"`
	ReceiptEmail     string `json:"receipt_email"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type invoiceObject struct {
	ID               string `json:"id"`
	Subscription     string `json:"subscription"`
	Status           string `json:"status"`
	AmountDue        int64  `json:"amount_due"`
	AmountPaid       int64  `json:"amount_paid"`
	CustomerEmail    string `json:"customer_email"`
	HostedInvoiceURL string `json:"hosted_invoice_url"`
	BillingReason    string `json:"billing_reason"`
	NextPaymentAt    int64  `json:"next_payment_attempt"`
}

type subscriptionObject struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	CancelAtEnd      bool   `json:"cancel_at_period_end"`
}

/* ===================== mapping ===================== */

func mapEvent(ev *stripesdk.Event) (*gateways.Event, error) {
	typ := string(ev.Type)
	out := &gateways.Event{
		Provider:   paymentModel.ProviderStripe,
		EventID:    ev.ID,
		Type:       typ,
		OccurredAt: time.Unix(ev.Created, 0).UTC(),
	}
	if ev.Created == 0 {
		out.OccurredAt = time.Time{}
	}

	switch typ {
	case "charge.succeeded":
		var ch chargeObject
		if err := decodeObject(ev, &ch); err != nil {
			return nil, err
		}
		// Subscription charges are reconciled through invoice events.
		if ch.PaymentIntent == "" || ch.Invoice != "" {
			return gateways.Ignore(out.Provider, ev.ID, typ), nil
		}
		email := ch.ReceiptEmail
		if email == "" {
			email = ch.BillingDetails.Email
		}
		out.Action = gateways.ActionTransition
		out.TransactionID = ch.PaymentIntent
		out.Target = paymentModel.PaymentStatusCompleted
		out.Invoice = &gateways.InvoiceRef{
			ProviderInvoiceID: ch.ID,
			Amount:            gateways.FromMinorUnits(ch.Amount),
			CustomerEmail:     email,
			HostedURL:         ch.ReceiptURL,
			Status:            invoiceModel.InvoiceStatusCompleted,
		}

	case "payment_intent.payment_failed":
		var pi paymentIntentObject
		if err := decodeObject(ev, &pi); err != nil {
			return nil, err
		}
		out.Action = gateways.ActionTransition
		out.TransactionID = pi.ID
		out.Target = paymentModel.PaymentStatusRejected
		if pi.LastPaymentError != nil {
			out.Extra = map[string]any{"Reason": pi.LastPaymentError.Message}
		}

	case "invoice.payment_succeeded", "invoice.payment_failed", "invoice.created", "invoice.finalized", "invoice.upcoming":
		var inv invoiceObject
		if err := decodeObject(ev, &inv); err != nil {
			return nil, err
		}
		if inv.Subscription == "" {
			return gateways.Ignore(out.Provider, ev.ID, typ), nil
		}
		out.TransactionID = inv.Subscription
		mapInvoiceEvent(out, &inv)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub subscriptionObject
		if err := decodeObject(ev, &sub); err != nil {
			return nil, err
		}
		out.TransactionID = sub.ID
		mapSubscriptionEvent(out, &sub, ev.Data.PreviousAttributes)

	default:
		return gateways.Ignore(out.Provider, ev.ID, typ), nil
	}
	return out, nil
}

func mapInvoiceEvent(out *gateways.Event, inv *invoiceObject) {
	ref := &gateways.InvoiceRef{
		ProviderInvoiceID: inv.ID,
		Amount:            gateways.FromMinorUnits(inv.AmountDue),
		CustomerEmail:     inv.CustomerEmail,
		HostedURL:         inv.HostedInvoiceURL,
	}

	// Cycle invoices belong to a subscription that is already active;
	// they are recorded and mailed without touching the payment status.
	renewal := inv.BillingReason == "subscription_cycle"

	switch out.Type {
	case "invoice.payment_succeeded":
		ref.Amount = gateways.FromMinorUnits(inv.AmountPaid)
		ref.Status = invoiceModel.InvoiceStatusCompleted
		out.Invoice = ref
		if renewal {
			out.Action = gateways.ActionInvoiceSync
			out.Template = notifications.TemplateSubscriptionRenewed
			return
		}
		out.Action = gateways.ActionTransition
		out.Target = paymentModel.PaymentStatusActive
	case "invoice.payment_failed":
		ref.Status = invoiceModel.InvoiceStatusFailed
		out.Invoice = ref
		if renewal {
			out.Action = gateways.ActionInvoiceSync
			out.Template = notifications.TemplatePaymentRenewalFailed
			return
		}
		out.Action = gateways.ActionTransition
		out.Target = paymentModel.PaymentStatusRejected
	case "invoice.created", "invoice.finalized":
		out.Action = gateways.ActionInvoiceSync
		ref.Status = invoiceStatusOf(inv.Status)
		out.Invoice = ref
	case "invoice.upcoming":
		// Upcoming invoices have no id yet; nothing to record.
		out.Action = gateways.ActionNotify
		out.Template = notifications.TemplateSubscriptionUpcoming
		out.Extra = map[string]any{"Amount": gateways.FromMinorUnits(inv.AmountDue).StringFixed(2)}
		if inv.NextPaymentAt > 0 {
			out.Extra["DueAt"] = time.Unix(inv.NextPaymentAt, 0).UTC().Format("2 Jan 2006")
		}
	}
}

func mapSubscriptionEvent(out *gateways.Event, sub *subscriptionObject, prev map[string]interface{}) {
	switch out.Type {
	case "customer.subscription.created":
		out.Action = gateways.ActionTransition
		out.Target = paymentModel.PaymentStatusPending
	case "customer.subscription.deleted":
		out.Action = gateways.ActionTransition
		out.Target = paymentModel.PaymentStatusCancelled
		out.Template = notifications.TemplateSubscriptionCancelled
	case "customer.subscription.updated":
		switch sub.Status {
		case "active", "trialing":
			_, statusChanged := prev["status"]
			_, renewed := prev["current_period_end"]
			switch {
			case statusChanged:
				out.Action = gateways.ActionTransition
				out.Target = paymentModel.PaymentStatusActive
			case renewed:
				// the cycle invoice carries the renewal
				out.Action = gateways.ActionIgnore
			default:
				out.Action = gateways.ActionNotify
				out.Template = notifications.TemplateSubscriptionUpdated
			}
		case "canceled", "incomplete_expired":
			out.Action = gateways.ActionTransition
			out.Target = paymentModel.PaymentStatusCancelled
			out.Template = notifications.TemplateSubscriptionCancelled
		default:
			out.Action = gateways.ActionIgnore
		}
	}
}

func invoiceStatusOf(s string) invoiceModel.InvoiceStatus {
	switch s {
	case "draft":
		return invoiceModel.InvoiceStatusDraft
	case "paid":
		return invoiceModel.InvoiceStatusPaid
	case "void", "uncollectible":
		return invoiceModel.InvoiceStatusVoid
	default:
		return invoiceModel.InvoiceStatusOpen
	}
}

func decodeObject(ev *stripesdk.Event, dst any) error {
	if err := json.Unmarshal(ev.Data.Raw, dst); err != nil {
		return fmt.Errorf("%w: %s object: %v", gateways.ErrMalformedPayload, ev.Type, err)
	}
	return nil
}
