package ledgertest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	campaignModel "donasiku_backend/internals/features/donations/campaigns/model"
	donorModel "donasiku_backend/internals/features/donations/donors/model"
	invoiceModel "donasiku_backend/internals/features/donations/invoices/model"
	"donasiku_backend/internals/features/donations/ledger"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

func newPayment(txn string) *paymentModel.Payment {
	return &paymentModel.Payment{
		PaymentDonorID:               uuid.New(),
		PaymentProvider:              paymentModel.ProviderStripe,
		PaymentProviderTransactionID: txn,
		PaymentAmount:                decimal.RequireFromString("10.00"),
		PaymentMethod:                paymentModel.PaymentMethodCard,
		PaymentKind:                  paymentModel.PaymentKindOneTime,
	}
}

func TestMemoryPayments_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryStore().Ledgers()

	p := newPayment("pi_1")
	p.PaymentStatus = paymentModel.PaymentStatusActive
	if err := l.Payments.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.PaymentStatus != paymentModel.PaymentStatusPending {
		t.Errorf("create must force pending, got %s", p.PaymentStatus)
	}

	got, err := l.Payments.FindByTransactionID(ctx, paymentModel.ProviderStripe, "pi_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.PaymentID != p.PaymentID {
		t.Errorf("id = %s, want %s", got.PaymentID, p.PaymentID)
	}

	if _, err := l.Payments.FindByTransactionID(ctx, paymentModel.ProviderPaypal, "pi_1"); !errors.Is(err, ledger.ErrPaymentNotFound) {
		t.Errorf("lookup is keyed by provider too, got %v", err)
	}
}

func TestMemoryPayments_DuplicateTransaction(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryStore().Ledgers()

	if err := l.Payments.Create(ctx, newPayment("dup")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := l.Payments.Create(ctx, newPayment("dup")); !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("second create err = %v, want ledger.ErrDuplicateTransaction", err)
	}

	other := newPayment("dup")
	other.PaymentProvider = paymentModel.ProviderCoinPayments
	if err := l.Payments.Create(ctx, other); err != nil {
		t.Errorf("same id on another provider must be accepted: %v", err)
	}
}

func TestMemoryPayments_UpdateStatusCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryStore().Ledgers()
	p := newPayment("cas")
	if err := l.Payments.Create(ctx, p); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	f := paymentModel.FieldsFor(paymentModel.PaymentStatusCompleted, now, &now)
	updated, err := l.Payments.UpdateStatus(ctx, p.PaymentID, paymentModel.PaymentStatusPending, paymentModel.PaymentStatusCompleted, f)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.PaymentPaidAt == nil || updated.PaymentLastEventAt == nil {
		t.Error("paid_at and last_event_at should be set")
	}

	_, err = l.Payments.UpdateStatus(ctx, p.PaymentID, paymentModel.PaymentStatusPending, paymentModel.PaymentStatusRejected, paymentModel.StatusFields{})
	if !errors.Is(err, ledger.ErrStatusConflict) {
		t.Errorf("stale from-status err = %v, want ledger.ErrStatusConflict", err)
	}
}

func TestMemoryPayments_MarkCreditedOnce(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryStore().Ledgers()
	p := newPayment("credit")
	_ = l.Payments.Create(ctx, p)

	first, err := l.Payments.MarkCredited(ctx, p.PaymentID, time.Now())
	if err != nil || !first {
		t.Fatalf("first mark = %v, %v", first, err)
	}
	second, err := l.Payments.MarkCredited(ctx, p.PaymentID, time.Now())
	if err != nil || second {
		t.Fatalf("second mark = %v, %v; want false", second, err)
	}
}

func TestMemoryCampaigns_ConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	c := m.PutCampaign(campaignModel.Campaign{
		CampaignTitle:        "Well",
		CampaignRequiredCost: decimal.RequireFromString("1000000"),
	})
	l := m.Ledgers()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Campaigns.IncrementCollected(ctx, c.CampaignID, decimal.RequireFromString("0.01")); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := l.Campaigns.FindByID(ctx, c.CampaignID)
	if !got.CampaignCollectedCost.Equal(decimal.RequireFromString("1.00")) {
		t.Errorf("collected = %s, want 1.00", got.CampaignCollectedCost)
	}
}

func TestMemoryCampaigns_MarkFilledOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	c := m.PutCampaign(campaignModel.Campaign{CampaignTitle: "Roof", CampaignRequiredCost: decimal.NewFromInt(10)})
	l := m.Ledgers()

	_, changed, err := l.Campaigns.MarkFilled(ctx, c.CampaignID, time.Now())
	if err != nil || !changed {
		t.Fatalf("first MarkFilled = %v, %v", changed, err)
	}
	got, changed, err := l.Campaigns.MarkFilled(ctx, c.CampaignID, time.Now())
	if err != nil || changed {
		t.Fatalf("second MarkFilled = %v, %v; want no-op", changed, err)
	}
	if !got.IsFilled() {
		t.Errorf("status = %s", got.CampaignStatus)
	}
}

func TestMemoryCampaigns_MarkFilledKeepsCompleted(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	c := m.PutCampaign(campaignModel.Campaign{
		CampaignTitle:        "Closed",
		CampaignRequiredCost: decimal.NewFromInt(10),
		CampaignStatus:       campaignModel.CampaignStatusCompleted,
	})

	got, changed, err := m.Ledgers().Campaigns.MarkFilled(ctx, c.CampaignID, time.Now())
	if err != nil || changed {
		t.Fatalf("MarkFilled = %v, %v; want no-op", changed, err)
	}
	if got.CampaignStatus != campaignModel.CampaignStatusCompleted || got.CampaignFilledAt != nil {
		t.Errorf("completed campaign moved: %+v", got)
	}
}

func TestMemoryCampaigns_GeneralMissing(t *testing.T) {
	l := NewMemoryStore().Ledgers()
	if _, err := l.Campaigns.GetGeneralCampaign(context.Background()); !errors.Is(err, ledger.ErrGeneralCampaignMissing) {
		t.Fatalf("err = %v, want ledger.ErrGeneralCampaignMissing", err)
	}
}

func TestMemoryInvoices_InsertOrIgnore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	l := m.Ledgers()
	pid := uuid.New()

	inv := func() *invoiceModel.Invoice {
		return &invoiceModel.Invoice{
			InvoicePaymentID:         pid,
			InvoiceProviderInvoiceID: "in_1",
			InvoiceAmount:            decimal.NewFromInt(5),
			InvoiceStatus:            invoiceModel.InvoiceStatusOpen,
		}
	}
	created, err := l.Invoices.CreateIfAbsent(ctx, inv())
	if err != nil || !created {
		t.Fatalf("first create = %v, %v", created, err)
	}
	created, err = l.Invoices.CreateIfAbsent(ctx, inv())
	if err != nil || created {
		t.Fatalf("second create = %v, %v; want ignored", created, err)
	}

	paid := inv()
	paid.InvoiceStatus = invoiceModel.InvoiceStatusPaid
	if changed, _ := l.Invoices.SyncStatus(ctx, paid); !changed {
		t.Error("open -> paid should update")
	}
	failed := inv()
	failed.InvoiceStatus = invoiceModel.InvoiceStatusFailed
	if changed, _ := l.Invoices.SyncStatus(ctx, failed); changed {
		t.Error("paid invoice must not be overwritten")
	}
	if n := m.InvoiceCount(); n != 1 {
		t.Errorf("invoice count = %d, want 1", n)
	}
}

func TestMemoryInvoices_MarkStatusNeverInserts(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	l := m.Ledgers()
	pid := uuid.New()

	failed := &invoiceModel.Invoice{
		InvoicePaymentID:         pid,
		InvoiceProviderInvoiceID: "in_2",
		InvoiceAmount:            decimal.NewFromInt(5),
		InvoiceStatus:            invoiceModel.InvoiceStatusFailed,
	}
	if changed, err := l.Invoices.MarkStatus(ctx, failed); err != nil || changed {
		t.Fatalf("MarkStatus on missing invoice = %v, %v; want no-op", changed, err)
	}
	if n := m.InvoiceCount(); n != 0 {
		t.Fatalf("invoice count = %d, want 0", n)
	}

	open := *failed
	open.InvoiceStatus = invoiceModel.InvoiceStatusOpen
	if _, err := l.Invoices.CreateIfAbsent(ctx, &open); err != nil {
		t.Fatal(err)
	}
	if changed, _ := l.Invoices.MarkStatus(ctx, failed); !changed {
		t.Error("open -> failed should update")
	}
	rows, _ := l.Invoices.ListByPayment(ctx, pid)
	if len(rows) != 1 || rows[0].InvoiceStatus != invoiceModel.InvoiceStatusFailed {
		t.Errorf("rows = %+v", rows)
	}
}

func TestMemoryStore_InTxRollsBack(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	c := m.PutCampaign(campaignModel.Campaign{CampaignTitle: "Clinic", CampaignRequiredCost: decimal.NewFromInt(100)})

	boom := errors.New("boom")
	err := m.InTx(ctx, func(l ledger.Ledgers) error {
		if _, err := l.Campaigns.IncrementCollected(ctx, c.CampaignID, decimal.NewFromInt(40)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	got, _ := m.Ledgers().Campaigns.FindByID(ctx, c.CampaignID)
	if !got.CampaignCollectedCost.IsZero() {
		t.Errorf("collected = %s after rollback, want 0", got.CampaignCollectedCost)
	}
}

func TestMemoryPayments_CompletedDonorsDedupe(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	l := m.Ledgers()
	campaignID := uuid.New()

	known := &donorModel.Donor{DonorName: "Aisha", DonorEmail: "aisha@example.org"}
	anon := &donorModel.Donor{DonorName: donorModel.AnonymousName, DonorEmail: "Anonymous123@example.org", DonorIsGuest: true}
	_ = l.Donors.Create(ctx, known)
	_ = l.Donors.Create(ctx, anon)

	put := func(d *donorModel.Donor, st paymentModel.PaymentStatus) {
		m.PutPayment(paymentModel.Payment{
			PaymentDonorID:               d.DonorID,
			PaymentCampaignID:            &campaignID,
			PaymentProvider:              paymentModel.ProviderStripe,
			PaymentProviderTransactionID: uuid.NewString(),
			PaymentStatus:                st,
		})
	}
	put(known, paymentModel.PaymentStatusCompleted)
	put(known, paymentModel.PaymentStatusActive)
	put(known, paymentModel.PaymentStatusCompleted)
	put(anon, paymentModel.PaymentStatusCompleted)
	put(anon, paymentModel.PaymentStatusCompleted)
	put(known, paymentModel.PaymentStatusPending)

	donors, err := l.Payments.CompletedDonors(ctx, campaignID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(donors) != 1 || donors[0].DonorEmail != "aisha@example.org" {
		t.Fatalf("donors = %+v, want only aisha", donors)
	}
}
