package paypal

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"donasiku_backend/internals/features/donations/gateways"
	invoiceModel "donasiku_backend/internals/features/donations/invoices/model"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

type stubVerifier struct {
	ok    bool
	err   error
	calls int
}

func (s *stubVerifier) Verify(context.Context, gateways.WebhookRequest) (bool, error) {
	s.calls++
	return s.ok, s.err
}

func decodeWith(t *testing.T, body string) *gateways.Event {
	t.Helper()
	ev, err := NewWebhook(&stubVerifier{ok: true}).Decode(context.Background(), gateways.WebhookRequest{Body: []byte(body), Header: http.Header{}})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return ev
}

func TestDecode_InvalidSignature(t *testing.T) {
	w := NewWebhook(&stubVerifier{ok: false})
	_, err := w.Decode(context.Background(), gateways.WebhookRequest{Body: []byte(`{}`), Header: http.Header{}})
	if !errors.Is(err, gateways.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestDecode_VerifierUnavailable(t *testing.T) {
	w := NewWebhook(&stubVerifier{err: gateways.Unavailable(paymentModel.ProviderPaypal, errors.New("timeout"))})
	_, err := w.Decode(context.Background(), gateways.WebhookRequest{Body: []byte(`{}`), Header: http.Header{}})
	if !errors.Is(err, gateways.ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}
}

func TestDecode_OrderApproved(t *testing.T) {
	ev := decodeWith(t, `{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","create_time":"2024-03-01T10:00:00Z",
		"resource":{"id":"ORDER-1","status":"APPROVED","payer":{"email_address":"p@x.org"},
		"purchase_units":[{"amount":{"value":"20.00","currency_code":"GBP"},
		"payments":{"captures":[{"id":"CAP-1","status":"COMPLETED","amount":{"value":"20.00"}}]}}]}}`)

	if ev.Action != gateways.ActionTransition || ev.Target != paymentModel.PaymentStatusCompleted {
		t.Fatalf("got %s -> %s", ev.Action, ev.Target)
	}
	if ev.TransactionID != "ORDER-1" {
		t.Errorf("TransactionID = %q", ev.TransactionID)
	}
	if ev.Invoice.ProviderInvoiceID != "CAP-1" || ev.Invoice.Amount.StringFixed(2) != "20.00" || ev.Invoice.CustomerEmail != "p@x.org" {
		t.Errorf("invoice = %+v", ev.Invoice)
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if !ev.OccurredAt.Equal(want) {
		t.Errorf("OccurredAt = %v", ev.OccurredAt)
	}
}

func TestDecode_OrderCaptureStates(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		units  string
		action gateways.Action
		target paymentModel.PaymentStatus
	}{
		{"approved without capture asks for capture", "CHECKOUT.ORDER.APPROVED", `[{"amount":{"value":"20.00"}}]`, gateways.ActionCapture, ""},
		{"pending capture waits", "CHECKOUT.ORDER.COMPLETED", `[{"payments":{"captures":[{"id":"CAP-1","status":"PENDING","amount":{"value":"20.00"}}]}}]`, gateways.ActionIgnore, ""},
		{"declined capture rejects", "CHECKOUT.ORDER.COMPLETED", `[{"payments":{"captures":[{"id":"CAP-1","status":"DECLINED","amount":{"value":"20.00"}}]}}]`, gateways.ActionTransition, paymentModel.PaymentStatusRejected},
		{"completed without captures ignored", "CHECKOUT.ORDER.COMPLETED", `[]`, gateways.ActionIgnore, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := decodeWith(t, `{"id":"WH-1","event_type":"`+tt.typ+`","resource":{"id":"ORDER-1","purchase_units":`+tt.units+`}}`)
			if ev.Action != tt.action || ev.Target != tt.target {
				t.Fatalf("got %s -> %s", ev.Action, ev.Target)
			}
			if tt.action == gateways.ActionCapture && (ev.TransactionID != "ORDER-1" || ev.Invoice != nil) {
				t.Errorf("capture event = %+v", ev)
			}
		})
	}
}

func TestDecode_SaleCompletedUsesBillingAgreement(t *testing.T) {
	ev := decodeWith(t, `{"id":"WH-2","event_type":"PAYMENT.SALE.COMPLETED",
		"resource":{"id":"SALE-1","billing_agreement_id":"I-SUB1","amount":{"total":"5.00","currency":"GBP"}}}`)

	if ev.TransactionID != "I-SUB1" || ev.Target != paymentModel.PaymentStatusCompleted {
		t.Fatalf("got %+v", ev)
	}
	if ev.Invoice.ProviderInvoiceID != "SALE-1" || ev.Invoice.Status != invoiceModel.InvoiceStatusCompleted {
		t.Errorf("invoice = %+v", ev.Invoice)
	}
	if ev.HasTime() {
		t.Error("missing create_time should leave OccurredAt zero")
	}
}

func TestDecode_CaptureDenied(t *testing.T) {
	ev := decodeWith(t, `{"id":"WH-3","event_type":"PAYMENT.CAPTURE.DENIED",
		"resource":{"id":"CAP-2","amount":{"value":"9.00"},"supplementary_data":{"related_ids":{"order_id":"ORDER-2"}}}}`)
	if ev.TransactionID != "ORDER-2" || ev.Target != paymentModel.PaymentStatusRejected {
		t.Fatalf("got %+v", ev)
	}
	if ev.Invoice.Status != invoiceModel.InvoiceStatusFailed {
		t.Errorf("invoice status = %s", ev.Invoice.Status)
	}
}

func TestDecode_SubscriptionVocabulary(t *testing.T) {
	tests := []struct {
		typ      string
		action   gateways.Action
		target   paymentModel.PaymentStatus
		template string
	}{
		{"BILLING.SUBSCRIPTION.ACTIVATED", gateways.ActionTransition, paymentModel.PaymentStatusActive, ""},
		{"BILLING.SUBSCRIPTION.UPDATED", gateways.ActionNotify, "", "subscription_updated"},
		{"BILLING.SUBSCRIPTION.SUSPENDED", gateways.ActionTransition, paymentModel.PaymentStatusCancelled, "subscription_cancelled"},
		{"BILLING.SUBSCRIPTION.CANCELLED", gateways.ActionTransition, paymentModel.PaymentStatusCancelled, "subscription_cancelled"},
		{"BILLING.SUBSCRIPTION.EXPIRED", gateways.ActionNotify, "", "subscription_expired"},
		{"BILLING.SUBSCRIPTION.PAYMENT.FAILED", gateways.ActionNotify, "", "payment_renewal_failed"},
	}
	for _, tt := range tests {
		ev := decodeWith(t, `{"id":"WH-S","event_type":"`+tt.typ+`","resource":{"id":"I-SUB1","status":"X"}}`)
		if ev.Action != tt.action || ev.Target != tt.target || ev.Template != tt.template {
			t.Errorf("%s: got (%s,%s,%q)", tt.typ, ev.Action, ev.Target, ev.Template)
		}
		if ev.TransactionID != "I-SUB1" {
			t.Errorf("%s: TransactionID = %q", tt.typ, ev.TransactionID)
		}
	}
}

func TestDecode_UnknownIgnored(t *testing.T) {
	ev := decodeWith(t, `{"id":"WH-9","event_type":"CUSTOMER.DISPUTE.CREATED","resource":{}}`)
	if ev.Action != gateways.ActionIgnore {
		t.Errorf("Action = %s", ev.Action)
	}
}

func TestDecode_MissingResourceIsMalformed(t *testing.T) {
	_, err := NewWebhook(&stubVerifier{ok: true}).Decode(context.Background(),
		gateways.WebhookRequest{Body: []byte(`{"id":"WH-4","event_type":"PAYMENT.SALE.COMPLETED"}`), Header: http.Header{}})
	if !errors.Is(err, gateways.ErrMalformedPayload) {
		t.Fatalf("err = %v, want ErrMalformedPayload", err)
	}
}
