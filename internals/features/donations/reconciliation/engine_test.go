package reconciliation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	campaignModel "donasiku_backend/internals/features/donations/campaigns/model"
	donorModel "donasiku_backend/internals/features/donations/donors/model"
	"donasiku_backend/internals/features/donations/gateways"
	invoiceModel "donasiku_backend/internals/features/donations/invoices/model"
	"donasiku_backend/internals/features/donations/ledger"
	"donasiku_backend/internals/features/donations/ledger/ledgertest"
	"donasiku_backend/internals/features/donations/notifications"
	"donasiku_backend/internals/features/donations/notifications/notifytest"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store   *ledgertest.MemoryStore
	rec     *notifytest.Recorder
	engine  *Engine
	general campaignModel.Campaign
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledgertest.NewMemoryStore()
	general := store.PutCampaign(campaignModel.Campaign{CampaignTitle: "General Fund", CampaignIsGeneral: true})
	rec := notifytest.NewRecorder()
	return &fixture{store: store, rec: rec, engine: NewEngine(store, rec, testLogger()), general: general}
}

func (f *fixture) donor(t *testing.T, name, email string) donorModel.Donor {
	t.Helper()
	d := donorModel.Donor{DonorName: name, DonorEmail: email}
	if err := f.store.Ledgers().Donors.Create(context.Background(), &d); err != nil {
		t.Fatalf("create donor: %v", err)
	}
	return d
}

func (f *fixture) campaign(required, collected string) campaignModel.Campaign {
	return f.store.PutCampaign(campaignModel.Campaign{
		CampaignTitle:         "Water Well",
		CampaignRequiredCost:  dec(required),
		CampaignCollectedCost: dec(collected),
	})
}

func (f *fixture) payment(donorID uuid.UUID, campaignID *uuid.UUID, amount, txn string) paymentModel.Payment {
	return f.store.PutPayment(paymentModel.Payment{
		PaymentDonorID:               donorID,
		PaymentCampaignID:            campaignID,
		PaymentProvider:              paymentModel.ProviderStripe,
		PaymentProviderTransactionID: txn,
		PaymentAmount:                dec(amount),
		PaymentCurrency:              "GBP",
		PaymentMethod:                paymentModel.PaymentMethodCard,
		PaymentKind:                  paymentModel.PaymentKindOneTime,
		PaymentStatus:                paymentModel.PaymentStatusPending,
	})
}

func (f *fixture) collected(t *testing.T, id uuid.UUID) *campaignModel.Campaign {
	t.Helper()
	c, err := f.store.Ledgers().Campaigns.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find campaign: %v", err)
	}
	return c
}

func (f *fixture) status(t *testing.T, txn string) *paymentModel.Payment {
	t.Helper()
	p, err := f.store.Ledgers().Payments.FindByTransactionID(context.Background(), paymentModel.ProviderStripe, txn)
	if err != nil {
		t.Fatalf("find payment: %v", err)
	}
	return p
}

func completed(txn string) *gateways.Event {
	return &gateways.Event{
		Provider:      paymentModel.ProviderStripe,
		EventID:       "evt_" + txn,
		Type:          "charge.succeeded",
		Action:        gateways.ActionTransition,
		TransactionID: txn,
		Target:        paymentModel.PaymentStatusCompleted,
		Invoice:       &gateways.InvoiceRef{ProviderInvoiceID: "ch_" + txn, Status: invoiceModel.InvoiceStatusCompleted},
	}
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestReconcile_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	c := f.campaign("100", "0")
	f.payment(d.DonorID, ptr(c.CampaignID), "25", "pi_1")

	want := []Result{ResultApplied, ResultDuplicate, ResultDuplicate}
	for i, w := range want {
		out, err := f.engine.Reconcile(context.Background(), completed("pi_1"))
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if out.Result != w {
			t.Errorf("delivery %d: result = %s, want %s", i, out.Result, w)
		}
	}

	if got := f.collected(t, c.CampaignID).CampaignCollectedCost; !got.Equal(dec("25")) {
		t.Errorf("collected = %s, want 25", got)
	}
	if n := f.store.InvoiceCount(); n != 1 {
		t.Errorf("invoices = %d, want 1", n)
	}
	if got := f.rec.ByTemplate(notifications.TemplatePaymentCompleted); len(got) != 1 || got[0] != "aisha@x.org" {
		t.Errorf("receipts = %v", got)
	}
}

func TestReconcile_ConcurrentReplayCreditsOnce(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	c := f.campaign("1000", "0")
	f.payment(d.DonorID, ptr(c.CampaignID), "25", "pi_1")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.engine.Reconcile(context.Background(), completed("pi_1"))
			if err != nil {
				t.Errorf("Reconcile: %v", err)
				return
			}
			if out.Result == ResultApplied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Errorf("applied %d times, want 1", applied)
	}
	if got := f.collected(t, c.CampaignID).CampaignCollectedCost; !got.Equal(dec("25")) {
		t.Errorf("collected = %s, want 25", got)
	}
}

func TestReconcile_GuardIgnoresActiveAndCancelled(t *testing.T) {
	for _, st := range []paymentModel.PaymentStatus{paymentModel.PaymentStatusActive, paymentModel.PaymentStatusCancelled} {
		f := newFixture(t)
		d := f.donor(t, "Aisha", "aisha@x.org")
		c := f.campaign("100", "0")
		p := f.payment(d.DonorID, ptr(c.CampaignID), "25", "sub_1")
		p.PaymentStatus = st
		f.store.PutPayment(p)

		for _, target := range []paymentModel.PaymentStatus{paymentModel.PaymentStatusCompleted, paymentModel.PaymentStatusRejected, paymentModel.PaymentStatusActive} {
			ev := completed("sub_1")
			ev.Target = target
			out, err := f.engine.Reconcile(context.Background(), ev)
			if err != nil {
				t.Fatalf("%s->%s: %v", st, target, err)
			}
			if out.Result != ResultIgnored {
				t.Errorf("%s->%s: result = %s, want ignored", st, target, out.Result)
			}
		}
		if got := f.status(t, "sub_1").PaymentStatus; got != st {
			t.Errorf("status changed to %s", got)
		}
		if !f.collected(t, c.CampaignID).CampaignCollectedCost.IsZero() {
			t.Error("guarded payment credited the campaign")
		}
		if len(f.rec.Sent()) != 0 {
			t.Errorf("mails sent: %v", f.rec.Sent())
		}
	}
}

func TestReconcile_OverflowGoesToGeneral(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	c := f.campaign("100", "80")
	f.payment(d.DonorID, ptr(c.CampaignID), "50", "pi_1")

	out, err := f.engine.Reconcile(context.Background(), completed("pi_1"))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !out.Credited || !out.Filled || !out.Overflow.Equal(dec("30")) {
		t.Errorf("outcome = %+v", out)
	}

	got := f.collected(t, c.CampaignID)
	if !got.CampaignCollectedCost.Equal(dec("100")) {
		t.Errorf("collected = %s, want 100", got.CampaignCollectedCost)
	}
	if got.CampaignStatus != campaignModel.CampaignStatusFilled || got.CampaignFilledAt == nil {
		t.Errorf("status = %s, filled_at = %v", got.CampaignStatus, got.CampaignFilledAt)
	}
	if g := f.collected(t, f.general.CampaignID).CampaignCollectedCost; !g.Equal(dec("30")) {
		t.Errorf("general collected = %s, want 30", g)
	}
}

func TestReconcile_PaymentOnFilledCampaignOverflowsEntirely(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	c := f.campaign("100", "100")
	c.CampaignStatus = campaignModel.CampaignStatusFilled
	f.store.PutCampaign(c)
	f.payment(d.DonorID, ptr(c.CampaignID), "10", "pi_1")

	out, err := f.engine.Reconcile(context.Background(), completed("pi_1"))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if out.Filled {
		t.Error("campaign was already filled; no second goal-met")
	}
	if g := f.collected(t, f.general.CampaignID).CampaignCollectedCost; !g.Equal(dec("10")) {
		t.Errorf("general collected = %s, want 10", g)
	}
	if len(f.rec.ByTemplate(notifications.TemplateGoalMet)) != 0 {
		t.Error("goal met mailed twice")
	}
}

func TestReconcile_DecimalExactness(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	c := f.campaign("100", "0")
	for _, txn := range []string{"pi_1", "pi_2", "pi_3"} {
		f.payment(d.DonorID, ptr(c.CampaignID), "33.33", txn)
		if _, err := f.engine.Reconcile(context.Background(), completed(txn)); err != nil {
			t.Fatalf("%s: %v", txn, err)
		}
	}

	got := f.collected(t, c.CampaignID)
	if !got.CampaignCollectedCost.Equal(dec("99.99")) {
		t.Fatalf("collected = %s, want 99.99", got.CampaignCollectedCost)
	}
	if got.IsFilled() {
		t.Fatal("99.99 of 100 must not fill")
	}

	f.payment(d.DonorID, ptr(c.CampaignID), "0.01", "pi_4")
	out, err := f.engine.Reconcile(context.Background(), completed("pi_4"))
	if err != nil {
		t.Fatalf("pi_4: %v", err)
	}
	if !out.Filled || !out.Overflow.IsZero() {
		t.Errorf("outcome = %+v", out)
	}
	if !f.collected(t, c.CampaignID).CampaignCollectedCost.Equal(dec("100")) {
		t.Error("campaign should hold exactly 100")
	}
	if !f.collected(t, f.general.CampaignID).CampaignCollectedCost.IsZero() {
		t.Error("no overflow expected")
	}
}

func TestReconcile_GoalMetDedupesDonors(t *testing.T) {
	f := newFixture(t)
	known := f.donor(t, "Aisha", "aisha@x.org")
	anon1 := f.donor(t, donorModel.AnonymousName, "Anonymous1@donasiku.org")
	anon2 := f.donor(t, donorModel.AnonymousName, "Anonymous2@donasiku.org")
	c := f.campaign("100", "0")

	f.payment(known.DonorID, ptr(c.CampaignID), "20", "pi_1")
	f.payment(known.DonorID, ptr(c.CampaignID), "20", "pi_2")
	f.payment(known.DonorID, ptr(c.CampaignID), "20", "pi_3")
	f.payment(anon1.DonorID, ptr(c.CampaignID), "20", "pi_4")
	f.payment(anon2.DonorID, ptr(c.CampaignID), "20", "pi_5")

	var filled int
	for _, txn := range []string{"pi_1", "pi_2", "pi_3", "pi_4", "pi_5"} {
		out, err := f.engine.Reconcile(context.Background(), completed(txn))
		if err != nil {
			t.Fatalf("%s: %v", txn, err)
		}
		if out.Filled {
			filled++
		}
	}

	if filled != 1 {
		t.Errorf("filled %d times, want 1", filled)
	}
	got := f.rec.ByTemplate(notifications.TemplateGoalMet)
	if len(got) != 1 || got[0] != "aisha@x.org" {
		t.Errorf("goal met recipients = %v, want [aisha@x.org]", got)
	}
	// Anonymous payers get no receipt either.
	if r := f.rec.ByTemplate(notifications.TemplatePaymentCompleted); len(r) != 3 {
		t.Errorf("receipts = %v, want 3 for the known donor", r)
	}
}

func TestReconcile_NotFound(t *testing.T) {
	f := newFixture(t)
	out, err := f.engine.Reconcile(context.Background(), completed("pi_missing"))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if out.Result != ResultNotFound {
		t.Errorf("result = %s", out.Result)
	}
}

func TestReconcile_StaleAndDisallowed(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	last := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := f.payment(d.DonorID, nil, "10", "pi_1")
	p.PaymentLastEventAt = &last
	f.store.PutPayment(p)

	older := completed("pi_1")
	older.OccurredAt = last.Add(-time.Minute)
	out, err := f.engine.Reconcile(context.Background(), older)
	if err != nil || out.Result != ResultStale {
		t.Fatalf("older event: result = %s, err = %v", out.Result, err)
	}

	newer := completed("pi_1")
	newer.OccurredAt = last.Add(time.Minute)
	if out, err = f.engine.Reconcile(context.Background(), newer); err != nil || out.Result != ResultApplied {
		t.Fatalf("newer event: result = %s, err = %v", out.Result, err)
	}
	if got := f.status(t, "pi_1").PaymentLastEventAt; got == nil || !got.Equal(newer.OccurredAt) {
		t.Errorf("last_event_at = %v", got)
	}

	// completed -> rejected is not a transition.
	rejected := completed("pi_1")
	rejected.Target = paymentModel.PaymentStatusRejected
	rejected.OccurredAt = time.Time{}
	if out, err = f.engine.Reconcile(context.Background(), rejected); err != nil || out.Result != ResultStale {
		t.Fatalf("disallowed: result = %s, err = %v", out.Result, err)
	}
}

func TestReconcile_CompletedThenActiveCreditsOnce(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	c := f.campaign("100", "0")
	f.payment(d.DonorID, ptr(c.CampaignID), "10", "I-SUB1")

	if _, err := f.engine.Reconcile(context.Background(), completed("I-SUB1")); err != nil {
		t.Fatal(err)
	}
	activate := completed("I-SUB1")
	activate.Target = paymentModel.PaymentStatusActive
	activate.Invoice = nil
	out, err := f.engine.Reconcile(context.Background(), activate)
	if err != nil {
		t.Fatal(err)
	}
	if out.Result != ResultApplied || out.Credited {
		t.Errorf("outcome = %+v", out)
	}
	if got := f.collected(t, c.CampaignID).CampaignCollectedCost; !got.Equal(dec("10")) {
		t.Errorf("collected = %s, want 10", got)
	}
}

func TestReconcile_NoCampaignCreditsGeneral(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	f.payment(d.DonorID, nil, "15.50", "pi_1")

	if _, err := f.engine.Reconcile(context.Background(), completed("pi_1")); err != nil {
		t.Fatal(err)
	}
	if g := f.collected(t, f.general.CampaignID).CampaignCollectedCost; !g.Equal(dec("15.50")) {
		t.Errorf("general = %s", g)
	}
}

func TestReconcile_FailureRollsBackEverything(t *testing.T) {
	store := ledgertest.NewMemoryStore()
	rec := notifytest.NewRecorder()
	e := NewEngine(store, rec, testLogger())
	d := donorModel.Donor{DonorName: "Aisha", DonorEmail: "aisha@x.org"}
	if err := store.Ledgers().Donors.Create(context.Background(), &d); err != nil {
		t.Fatal(err)
	}
	// No general campaign: crediting must fail.
	store.PutPayment(paymentModel.Payment{
		PaymentDonorID: d.DonorID, PaymentProvider: paymentModel.ProviderStripe,
		PaymentProviderTransactionID: "pi_1", PaymentAmount: dec("5"), PaymentStatus: paymentModel.PaymentStatusPending,
	})

	_, err := e.Reconcile(context.Background(), completed("pi_1"))
	if !errors.Is(err, ledger.ErrGeneralCampaignMissing) {
		t.Fatalf("err = %v, want ErrGeneralCampaignMissing", err)
	}
	p, _ := store.Ledgers().Payments.FindByTransactionID(context.Background(), paymentModel.ProviderStripe, "pi_1")
	if p.PaymentStatus != paymentModel.PaymentStatusPending || p.IsCredited() {
		t.Errorf("payment mutated: %+v", p)
	}
	if store.InvoiceCount() != 0 {
		t.Error("invoice survived rollback")
	}
	if len(rec.Sent()) != 0 {
		t.Error("mail sent for a rolled-back unit")
	}
}

func TestReconcile_RejectedMailsDonor(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	f.payment(d.DonorID, nil, "10", "pi_1")

	ev := completed("pi_1")
	ev.Target = paymentModel.PaymentStatusRejected
	ev.Invoice = nil
	out, err := f.engine.Reconcile(context.Background(), ev)
	if err != nil || out.Result != ResultApplied {
		t.Fatalf("result = %s, err = %v", out.Result, err)
	}
	if got := f.rec.ByTemplate(notifications.TemplatePaymentFailed); len(got) != 1 {
		t.Errorf("failure mails = %v", got)
	}
	if p := f.status(t, "pi_1"); p.PaymentFailedAt == nil {
		t.Error("failed_at not stamped")
	}
}

func TestReconcile_InvoiceSyncAndNotify(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	f.payment(d.DonorID, nil, "10", "sub_1")

	syncEv := &gateways.Event{
		Provider: paymentModel.ProviderStripe, Type: "invoice.created", Action: gateways.ActionInvoiceSync,
		TransactionID: "sub_1",
		Invoice:       &gateways.InvoiceRef{ProviderInvoiceID: "in_1", Status: invoiceModel.InvoiceStatusDraft},
	}
	out, err := f.engine.Reconcile(context.Background(), syncEv)
	if err != nil || out.Result != ResultSynced {
		t.Fatalf("sync: result = %s, err = %v", out.Result, err)
	}
	if f.store.InvoiceCount() != 1 {
		t.Errorf("invoices = %d", f.store.InvoiceCount())
	}

	notify := &gateways.Event{
		Provider: paymentModel.ProviderStripe, Type: "invoice.upcoming", Action: gateways.ActionNotify,
		TransactionID: "sub_1", Template: notifications.TemplateSubscriptionUpcoming,
	}
	if out, err = f.engine.Reconcile(context.Background(), notify); err != nil || out.Result != ResultNotified {
		t.Fatalf("notify: result = %s, err = %v", out.Result, err)
	}
	if got := f.rec.ByTemplate(notifications.TemplateSubscriptionUpcoming); len(got) != 1 {
		t.Errorf("upcoming mails = %v", got)
	}
	if f.status(t, "sub_1").PaymentStatus != paymentModel.PaymentStatusPending {
		t.Error("notify-only event changed status")
	}
}

func TestReconcile_RenewalsOnActiveSubscription(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	p := f.payment(d.DonorID, nil, "10", "sub_1")
	p.PaymentKind = paymentModel.PaymentKindRecurring
	p.PaymentStatus = paymentModel.PaymentStatusActive
	f.store.PutPayment(p)

	renewal := func(invoiceID, template string, status invoiceModel.InvoiceStatus) *gateways.Event {
		return &gateways.Event{
			Provider: paymentModel.ProviderStripe, Type: "invoice.payment_succeeded", Action: gateways.ActionInvoiceSync,
			TransactionID: "sub_1", Template: template,
			Invoice: &gateways.InvoiceRef{ProviderInvoiceID: invoiceID, Amount: dec("10"), Status: status},
		}
	}

	tests := []struct {
		name     string
		ev       *gateways.Event
		want     Result
		template string
		mails    int
	}{
		{"renewal mails donor", renewal("in_2", notifications.TemplateSubscriptionRenewed, invoiceModel.InvoiceStatusCompleted), ResultSynced, notifications.TemplateSubscriptionRenewed, 1},
		{"redelivered renewal is silent", renewal("in_2", notifications.TemplateSubscriptionRenewed, invoiceModel.InvoiceStatusCompleted), ResultDuplicate, notifications.TemplateSubscriptionRenewed, 1},
		{"failed renewal mails donor", renewal("in_3", notifications.TemplatePaymentRenewalFailed, invoiceModel.InvoiceStatusFailed), ResultSynced, notifications.TemplatePaymentRenewalFailed, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.engine.Reconcile(context.Background(), tt.ev)
			if err != nil || out.Result != tt.want {
				t.Fatalf("result = %s, err = %v", out.Result, err)
			}
			if got := f.rec.ByTemplate(tt.template); len(got) != tt.mails {
				t.Errorf("%s mails = %v", tt.template, got)
			}
		})
	}

	if f.status(t, "sub_1").PaymentStatus != paymentModel.PaymentStatusActive {
		t.Error("renewal changed the subscription status")
	}
	if f.store.InvoiceCount() != 2 {
		t.Errorf("invoices = %d, want 2", f.store.InvoiceCount())
	}
	for _, n := range f.rec.Sent() {
		if n.Data["Amount"] != "10.00" || n.Data["Reference"] == "sub_1" {
			t.Errorf("mail data = %v", n.Data)
		}
	}
	if !f.collected(t, f.general.CampaignID).CampaignCollectedCost.IsZero() {
		t.Error("renewal credited a campaign")
	}
}

func TestReconcile_OnlyCreditingTransitionsRecordInvoices(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	fresh := f.payment(d.DonorID, nil, "10", "pi_1")
	known := f.payment(d.DonorID, nil, "10", "pi_2")
	open := &invoiceModel.Invoice{
		InvoicePaymentID:         known.PaymentID,
		InvoiceProviderInvoiceID: "ch_pi_2",
		InvoiceAmount:            dec("10"),
		InvoiceStatus:            invoiceModel.InvoiceStatusOpen,
	}
	if _, err := f.store.Ledgers().Invoices.CreateIfAbsent(context.Background(), open); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		payment paymentModel.Payment
		txn     string
		want    []invoiceModel.InvoiceStatus
	}{
		{"rejection without invoice records nothing", fresh, "pi_1", nil},
		{"rejection settles an existing invoice", known, "pi_2", []invoiceModel.InvoiceStatus{invoiceModel.InvoiceStatusFailed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := completed(tt.txn)
			ev.Target = paymentModel.PaymentStatusRejected
			ev.Invoice.Status = invoiceModel.InvoiceStatusFailed
			out, err := f.engine.Reconcile(context.Background(), ev)
			if err != nil || out.Result != ResultApplied {
				t.Fatalf("result = %s, err = %v", out.Result, err)
			}
			rows, _ := f.store.Ledgers().Invoices.ListByPayment(context.Background(), tt.payment.PaymentID)
			if len(rows) != len(tt.want) {
				t.Fatalf("invoices = %+v, want %v", rows, tt.want)
			}
			for i, st := range tt.want {
				if rows[i].InvoiceStatus != st {
					t.Errorf("invoice %d status = %s, want %s", i, rows[i].InvoiceStatus, st)
				}
			}
		})
	}
}

func TestReconcile_CreditsRecordedAmount(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	c := f.campaign("1000", "0")
	p := f.payment(d.DonorID, ptr(c.CampaignID), "10", "sub_1")
	p.PaymentKind = paymentModel.PaymentKindRecurring
	f.store.PutPayment(p)

	// The invoice reports more than was recorded at creation.
	ev := completed("sub_1")
	ev.Target = paymentModel.PaymentStatusActive
	ev.Invoice.Amount = dec("500")
	if _, err := f.engine.Reconcile(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if got := f.collected(t, c.CampaignID).CampaignCollectedCost; !got.Equal(dec("10")) {
		t.Errorf("collected = %s, want 10", got)
	}
}

func TestRejectUnauthenticated_NotifiesWithoutMutation(t *testing.T) {
	f := newFixture(t)
	d := f.donor(t, "Aisha", "aisha@x.org")
	c := f.campaign("100", "0")
	f.payment(d.DonorID, ptr(c.CampaignID), "10", "pi_1")

	f.engine.RejectUnauthenticated(context.Background(), paymentModel.ProviderCoinPayments, d.DonorID.String())
	f.engine.RejectUnauthenticated(context.Background(), paymentModel.ProviderCoinPayments, "not-a-uuid")
	f.engine.RejectUnauthenticated(context.Background(), paymentModel.ProviderStripe, "")

	if got := f.rec.ByTemplate(notifications.TemplatePaymentFailedCrypto); len(got) != 1 || got[0] != "aisha@x.org" {
		t.Errorf("crypto failure mails = %v", got)
	}
	if f.status(t, "pi_1").PaymentStatus != paymentModel.PaymentStatusPending {
		t.Error("payment mutated")
	}
	if !f.collected(t, c.CampaignID).CampaignCollectedCost.IsZero() {
		t.Error("campaign mutated")
	}
}
