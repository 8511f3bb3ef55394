package coinpayments

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"donasiku_backend/internals/features/donations/gateways"
	invoiceModel "donasiku_backend/internals/features/donations/invoices/model"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

const (
	SignatureHeader = "HMAC"
	// DonorQueryParam is appended to the IPN url so a forged call can
	// still be traced to the donor.
	DonorQueryParam = "userId"
)

// VerifySignature compares the HMAC header with the expected digest of
// the raw body in constant time.
func VerifySignature(payload []byte, header, secret string) bool {
	if header == "" || secret == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(payload, secret))
	return hmac.Equal(got, want)
}

type IPN struct {
	secret   string
	merchant string
}

// NewIPN builds the IPN decoder. merchant may be empty to skip the
// merchant id check.
func NewIPN(secret, merchant string) *IPN {
	return &IPN{secret: secret, merchant: merchant}
}

func (d *IPN) Provider() paymentModel.PaymentProvider { return paymentModel.ProviderCoinPayments }

// notification is the form-encoded IPN body for ipn_type=api.
type notification struct {
	IPNID      string
	IPNType    string
	IPNMode    string
	Merchant   string
	TxnID      string
	Status     int
	StatusText string
	Currency1  string
	Amount1    string
	Email      string
	Custom     string
}

func parseNotification(form url.Values) (*notification, error) {
	n := &notification{
		IPNID:      form.Get("ipn_id"),
		IPNType:    form.Get("ipn_type"),
		IPNMode:    form.Get("ipn_mode"),
		Merchant:   form.Get("merchant"),
		TxnID:      form.Get("txn_id"),
		StatusText: form.Get("status_text"),
		Currency1:  form.Get("currency1"),
		Amount1:    form.Get("amount1"),
		Email:      form.Get("email"),
		Custom:     form.Get("custom"),
	}
	status, err := strconv.Atoi(strings.TrimSpace(form.Get("status")))
	if err != nil {
		return nil, fmt.Errorf("%w: status %q", gateways.ErrMalformedPayload, form.Get("status"))
	}
	n.Status = status
	if n.TxnID == "" {
		return nil, fmt.Errorf("%w: missing txn_id", gateways.ErrMalformedPayload)
	}
	return n, nil
}

func (d *IPN) Decode(_ context.Context, req gateways.WebhookRequest) (*gateways.Event, error) {
	if !VerifySignature(req.Body, req.Header.Get(SignatureHeader), d.secret) {
		return nil, gateways.ErrInvalidSignature
	}
	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrMalformedPayload, err)
	}
	if mode := form.Get("ipn_mode"); mode != "" && mode != "hmac" {
		return nil, fmt.Errorf("%w: ipn_mode %q", gateways.ErrInvalidSignature, mode)
	}
	if d.merchant != "" && form.Get("merchant") != d.merchant {
		return nil, fmt.Errorf("%w: merchant mismatch", gateways.ErrInvalidSignature)
	}

	n, err := parseNotification(form)
	if err != nil {
		return nil, err
	}
	return mapNotification(n), nil
}

// TargetFor maps a CoinPayments status code to the internal status.
// Codes 2 and >= 100 are both "complete"; 1 means coins were sent but
// not yet confirmed.
func TargetFor(status int) (paymentModel.PaymentStatus, invoiceModel.InvoiceStatus) {
	switch {
	case status < 0:
		return paymentModel.PaymentStatusCancelled, invoiceModel.InvoiceStatusFailed
	case status == 0:
		return paymentModel.PaymentStatusPending, invoiceModel.InvoiceStatusOpen
	case status == 1:
		return paymentModel.PaymentStatusFundsSent, invoiceModel.InvoiceStatusOpen
	case status == 2 || status >= 100:
		return paymentModel.PaymentStatusActive, invoiceModel.InvoiceStatusCompleted
	default:
		// 3..99 are reserved; wait for a definite code.
		return paymentModel.PaymentStatusPending, invoiceModel.InvoiceStatusOpen
	}
}

func mapNotification(n *notification) *gateways.Event {
	target, invStatus := TargetFor(n.Status)
	ev := &gateways.Event{
		Provider:      paymentModel.ProviderCoinPayments,
		EventID:       n.IPNID,
		Type:          fmt.Sprintf("status_%d", n.Status),
		Action:        gateways.ActionTransition,
		TransactionID: n.TxnID,
		Target:        target,
		Extra:         map[string]any{"StatusText": n.StatusText},
	}
	if n.IPNID != "" {
		amount, _ := gateways.ParseAmount(n.Amount1)
		ev.Invoice = &gateways.InvoiceRef{
			ProviderInvoiceID: n.IPNID,
			Amount:            amount,
			CustomerEmail:     n.Email,
			Status:            invStatus,
		}
	}
	if target == paymentModel.PaymentStatusCancelled {
		ev.Template = "payment_failed_crypto"
	}
	return ev
}
