package midtrans

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"donasiku_backend/internals/features/donations/gateways"
	invoiceModel "donasiku_backend/internals/features/donations/invoices/model"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

// Midtrans reports transaction_time in Western Indonesia Time.
var wib = time.FixedZone("WIB", 7*60*60)

type notification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
}

// Signature is SHA512(order_id + status_code + gross_amount + server_key)
// in lower-case hex.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	h := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(h[:])
}

func VerifySignature(orderID, statusCode, grossAmount, signatureKey, serverKey string) bool {
	if signatureKey == "" || serverKey == "" {
		return false
	}
	want := Signature(orderID, statusCode, grossAmount, serverKey)
	got := strings.ToLower(strings.TrimSpace(signatureKey))
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

type Notifications struct {
	serverKey string
}

func NewNotifications(serverKey string) *Notifications {
	return &Notifications{serverKey: serverKey}
}

func (n *Notifications) Provider() paymentModel.PaymentProvider { return paymentModel.ProviderMidtrans }

// Decode reads the body first because the signature lives inside it; an
// unreadable body is treated as unauthenticated.
func (n *Notifications) Decode(_ context.Context, req gateways.WebhookRequest) (*gateways.Event, error) {
	var notif notification
	if err := json.Unmarshal(req.Body, &notif); err != nil {
		return nil, fmt.Errorf("%w: unreadable notification", gateways.ErrInvalidSignature)
	}
	if !VerifySignature(notif.OrderID, notif.StatusCode, notif.GrossAmount, notif.SignatureKey, n.serverKey) {
		return nil, gateways.ErrInvalidSignature
	}
	if notif.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order_id", gateways.ErrMalformedPayload)
	}
	return mapNotification(&notif), nil
}

// TargetFor maps transaction_status and fraud_status. ok is false for
// statuses that do not move the payment (refunds are out of scope).
func TargetFor(transactionStatus, fraudStatus string) (paymentModel.PaymentStatus, bool) {
	switch strings.ToLower(transactionStatus) {
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "", "accept":
			return paymentModel.PaymentStatusCompleted, true
		case "challenge":
			return paymentModel.PaymentStatusPending, true
		default:
			return paymentModel.PaymentStatusRejected, true
		}
	case "settlement":
		return paymentModel.PaymentStatusCompleted, true
	case "pending":
		return paymentModel.PaymentStatusPending, true
	case "deny", "failure":
		return paymentModel.PaymentStatusRejected, true
	case "cancel", "expire":
		return paymentModel.PaymentStatusCancelled, true
	}
	return "", false
}

func mapNotification(n *notification) *gateways.Event {
	ev := &gateways.Event{
		Provider:      paymentModel.ProviderMidtrans,
		EventID:       n.TransactionID + ":" + n.TransactionStatus,
		Type:          n.TransactionStatus,
		TransactionID: n.OrderID,
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", n.TransactionTime, wib); err == nil {
		ev.OccurredAt = t.UTC()
	}

	target, ok := TargetFor(n.TransactionStatus, n.FraudStatus)
	if !ok {
		ev.Action = gateways.ActionIgnore
		return ev
	}
	ev.Action = gateways.ActionTransition
	ev.Target = target

	if target.Credits() && n.TransactionID != "" {
		amount, _ := gateways.ParseAmount(n.GrossAmount)
		ev.Invoice = &gateways.InvoiceRef{
			ProviderInvoiceID: n.TransactionID,
			Amount:            amount,
			Status:            invoiceModel.InvoiceStatusCompleted,
		}
	}
	ev.Extra = map[string]any{"PaymentType": n.PaymentType}
	return ev
}
