package midtrans

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	midtranssdk "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"donasiku_backend/internals/features/donations/gateways"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

const serverKey = "SB-Mid-server-test"

func notificationBody(status, fraud, sig string) []byte {
	return []byte(fmt.Sprintf(`{"transaction_time":"2024-05-01 17:00:00","transaction_status":%q,
		"transaction_id":"trx-1","status_code":"200","signature_key":%q,"order_id":"ORD-1",
		"gross_amount":"150000.00","payment_type":"bank_transfer","fraud_status":%q}`, status, sig, fraud))
}

func TestVerifySignature(t *testing.T) {
	sig := Signature("ORD-1", "200", "150000.00", serverKey)
	if !VerifySignature("ORD-1", "200", "150000.00", sig, serverKey) {
		t.Fatal("valid signature rejected")
	}
	if !VerifySignature("ORD-1", "200", "150000.00", "  "+sig, serverKey) {
		t.Error("surrounding space should be tolerated")
	}
	if VerifySignature("ORD-1", "200", "1.00", sig, serverKey) {
		t.Error("tampered amount accepted")
	}
	if VerifySignature("ORD-1", "200", "150000.00", "", serverKey) {
		t.Error("empty signature accepted")
	}
}

func TestDecode_Settlement(t *testing.T) {
	sig := Signature("ORD-1", "200", "150000.00", serverKey)
	ev, err := NewNotifications(serverKey).Decode(context.Background(),
		gateways.WebhookRequest{Body: notificationBody("settlement", "", sig), Header: http.Header{}})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.TransactionID != "ORD-1" || ev.Target != paymentModel.PaymentStatusCompleted {
		t.Fatalf("got %+v", ev)
	}
	if ev.Invoice == nil || ev.Invoice.ProviderInvoiceID != "trx-1" || !ev.Invoice.Amount.Equal(decimal.NewFromInt(150000)) {
		t.Errorf("invoice = %+v", ev.Invoice)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if !ev.OccurredAt.Equal(want) {
		t.Errorf("OccurredAt = %v, want %v", ev.OccurredAt, want)
	}
}

func TestDecode_InvalidSignature(t *testing.T) {
	_, err := NewNotifications(serverKey).Decode(context.Background(),
		gateways.WebhookRequest{Body: notificationBody("settlement", "", "deadbeef"), Header: http.Header{}})
	if !errors.Is(err, gateways.ErrInvalidSignature) {
		t.Fatalf("err = %v", err)
	}
	_, err = NewNotifications(serverKey).Decode(context.Background(),
		gateways.WebhookRequest{Body: []byte("garbage"), Header: http.Header{}})
	if !errors.Is(err, gateways.ErrInvalidSignature) {
		t.Fatalf("garbage err = %v", err)
	}
}

func TestTargetFor(t *testing.T) {
	tests := []struct {
		status, fraud string
		want          paymentModel.PaymentStatus
		ok            bool
	}{
		{"capture", "accept", paymentModel.PaymentStatusCompleted, true},
		{"capture", "challenge", paymentModel.PaymentStatusPending, true},
		{"capture", "deny", paymentModel.PaymentStatusRejected, true},
		{"settlement", "", paymentModel.PaymentStatusCompleted, true},
		{"pending", "", paymentModel.PaymentStatusPending, true},
		{"deny", "", paymentModel.PaymentStatusRejected, true},
		{"expire", "", paymentModel.PaymentStatusCancelled, true},
		{"cancel", "", paymentModel.PaymentStatusCancelled, true},
		{"refund", "", "", false},
	}
	for _, tt := range tests {
		got, ok := TargetFor(tt.status, tt.fraud)
		if got != tt.want || ok != tt.ok {
			t.Errorf("TargetFor(%s,%s) = (%s,%v)", tt.status, tt.fraud, got, ok)
		}
	}
}

type fakeSnap struct {
	req  *snap.Request
	resp *snap.Response
	err  *midtranssdk.Error
}

func (f *fakeSnap) CreateTransaction(req *snap.Request) (*snap.Response, *midtranssdk.Error) {
	f.req = req
	return f.resp, f.err
}

func TestCreateCharge(t *testing.T) {
	fs := &fakeSnap{resp: &snap.Response{Token: "tok", RedirectURL: "https://app.sandbox.midtrans.com/snap/v2/vtweb/tok"}}
	c := &Client{snap: fs}

	tx, err := c.CreateCharge(context.Background(), gateways.ChargeRequest{
		Amount:         decimal.RequireFromString("150000"),
		IdempotencyKey: "01HXYZ",
		Payer:          gateways.Payer{Name: "Siti Aminah", Email: "s@x.id"},
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if tx.ID != "01HXYZ" || tx.ClientReference == "" {
		t.Errorf("tx = %+v", tx)
	}
	if fs.req.TransactionDetails.GrossAmt != 150000 || fs.req.CustomerDetail.FName != "Siti" || fs.req.CustomerDetail.LName != "Aminah" {
		t.Errorf("request = %+v", fs.req.TransactionDetails)
	}
}

func TestCreateCharge_NilErrorPointerIsSuccess(t *testing.T) {
	c := &Client{snap: &fakeSnap{resp: &snap.Response{RedirectURL: "u"}, err: nil}}
	if _, err := c.CreateCharge(context.Background(), gateways.ChargeRequest{Amount: decimal.NewFromInt(1000), IdempotencyKey: "k"}); err != nil {
		t.Fatalf("err = %v", err)
	}

	c = &Client{snap: &fakeSnap{err: &midtranssdk.Error{Message: "bad", StatusCode: 400}}}
	_, err := c.CreateCharge(context.Background(), gateways.ChargeRequest{Amount: decimal.NewFromInt(1000), IdempotencyKey: "k"})
	if !errors.Is(err, gateways.ErrGatewayRejected) {
		t.Fatalf("err = %v, want rejected", err)
	}
}
