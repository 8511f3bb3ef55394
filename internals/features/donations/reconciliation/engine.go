// Package reconciliation applies authenticated provider events to the
// payment and campaign ledgers.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	campaignModel "donasiku_backend/internals/features/donations/campaigns/model"
	donorModel "donasiku_backend/internals/features/donations/donors/model"
	"donasiku_backend/internals/features/donations/gateways"
	invoiceModel "donasiku_backend/internals/features/donations/invoices/model"
	"donasiku_backend/internals/features/donations/ledger"
	"donasiku_backend/internals/features/donations/notifications"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
	ResultNotFound  Result = "not_found"
	ResultStale     Result = "stale"
	ResultSynced    Result = "synced"
	ResultNotified  Result = "notified"
)

type Outcome struct {
	Result    Result
	PaymentID uuid.UUID
	From      paymentModel.PaymentStatus
	To        paymentModel.PaymentStatus
	// Credited is true when this event added the payment to a campaign.
	Credited bool
	// Filled is true when this event moved the campaign to filled.
	Filled   bool
	Overflow decimal.Decimal
}

type Engine struct {
	store    ledger.Store
	notifier notifications.Dispatcher
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(store ledger.Store, notifier notifications.Dispatcher, logger *slog.Logger) *Engine {
	return &Engine{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// credit is what the campaign step did, kept for post-commit mails.
type credit struct {
	campaign *campaignModel.Campaign
	filled   bool
	overflow decimal.Decimal
}

// applied carries everything the post-commit step needs.
type applied struct {
	payment *paymentModel.Payment
	donor   *donorModel.Donor
	invoice *invoiceModel.Invoice
	credit  *credit
}

// Reconcile applies ev. A non-nil error means nothing was committed and
// the provider should retry.
func (e *Engine) Reconcile(ctx context.Context, ev *gateways.Event) (Outcome, error) {
	switch ev.Action {
	case gateways.ActionTransition:
		return e.transition(ctx, ev)
	case gateways.ActionInvoiceSync:
		return e.syncInvoice(ctx, ev)
	case gateways.ActionNotify:
		return e.notifyOnly(ctx, ev)
	default:
		e.logger.Debug("event ignored", "provider", ev.Provider, "type", ev.Type, "event_id", ev.EventID)
		return Outcome{Result: ResultIgnored}, nil
	}
}

// decide applies the guard, replay and ordering rules. An empty result
// means the transition may proceed.
func decide(p *paymentModel.Payment, ev *gateways.Event) Result {
	switch {
	case p.PaymentStatus.Terminal():
		return ResultIgnored
	case p.PaymentStatus == ev.Target:
		return ResultDuplicate
	case ev.HasTime() && p.PaymentLastEventAt != nil && ev.OccurredAt.Before(*p.PaymentLastEventAt):
		return ResultStale
	case !p.PaymentStatus.CanTransition(ev.Target):
		return ResultStale
	}
	return ""
}

func (e *Engine) transition(ctx context.Context, ev *gateways.Event) (Outcome, error) {
	var (
		out  Outcome
		post applied
	)
	err := e.store.InTx(ctx, func(l ledger.Ledgers) error {
		out, post = Outcome{}, applied{}

		p, err := l.Payments.FindByTransactionIDForUpdate(ctx, ev.Provider, ev.TransactionID)
		if errors.Is(err, ledger.ErrPaymentNotFound) {
			out.Result = ResultNotFound
			return nil
		}
		if err != nil {
			return err
		}
		out.PaymentID, out.From, out.To = p.PaymentID, p.PaymentStatus, p.PaymentStatus
		if r := decide(p, ev); r != "" {
			out.Result = r
			return nil
		}

		now := e.now()
		var eventAt *time.Time
		if ev.HasTime() {
			t := ev.OccurredAt
			eventAt = &t
		}
		updated, err := l.Payments.UpdateStatus(ctx, p.PaymentID, p.PaymentStatus, ev.Target,
			paymentModel.FieldsFor(ev.Target, now, eventAt))
		if err != nil {
			return err
		}
		out.To = updated.PaymentStatus
		post.payment = updated

		// Only a crediting transition records a new invoice; the others
		// may only settle one that already exists.
		if ev.Invoice != nil && ev.Invoice.ProviderInvoiceID != "" {
			inv := invoiceFrom(updated, ev.Invoice)
			write := l.Invoices.MarkStatus
			if ev.Target.Credits() {
				write = l.Invoices.SyncStatus
			}
			if _, err := write(ctx, inv); err != nil {
				return fmt.Errorf("record invoice: %w", err)
			}
			post.invoice = inv
		}

		if ev.Target.Credits() && !updated.IsCredited() {
			c, err := e.creditCampaign(ctx, l, updated, now)
			if err != nil {
				return err
			}
			if _, err := l.Payments.MarkCredited(ctx, updated.PaymentID, now); err != nil {
				return fmt.Errorf("mark credited: %w", err)
			}
			post.credit = c
			out.Credited = true
			out.Filled = c.filled
			out.Overflow = c.overflow
		}

		d, err := l.Donors.FindByID(ctx, updated.PaymentDonorID)
		if err != nil && !errors.Is(err, ledger.ErrDonorNotFound) {
			return err
		}
		post.donor = d

		out.Result = ResultApplied
		return nil
	})
	if err != nil {
		e.logger.Error("reconcile failed, rolled back",
			"provider", ev.Provider, "type", ev.Type, "transaction_id", ev.TransactionID, "error", err)
		return Outcome{}, err
	}

	e.logOutcome(ev, out)
	if out.Result == ResultApplied {
		e.afterCommit(ctx, ev, &post)
	}
	return out, nil
}

// creditCampaign adds the payment to its campaign and moves anything past
// the goal to the general campaign. Payments without a campaign go to the
// general campaign directly.
func (e *Engine) creditCampaign(ctx context.Context, l ledger.Ledgers, p *paymentModel.Payment, now time.Time) (*credit, error) {
	if p.PaymentCampaignID == nil {
		g, err := e.creditGeneral(ctx, l, p.PaymentAmount)
		if err != nil {
			return nil, err
		}
		return &credit{campaign: g}, nil
	}

	c, err := l.Campaigns.IncrementCollected(ctx, *p.PaymentCampaignID, p.PaymentAmount)
	if errors.Is(err, ledger.ErrCampaignNotFound) {
		e.logger.Warn("campaign missing, crediting general campaign",
			"payment_id", p.PaymentID, "campaign_id", *p.PaymentCampaignID)
		g, gerr := e.creditGeneral(ctx, l, p.PaymentAmount)
		if gerr != nil {
			return nil, gerr
		}
		return &credit{campaign: g}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("increment campaign: %w", err)
	}

	res := &credit{campaign: c}
	if !c.Reached() {
		return res, nil
	}

	excess := c.Excess()
	if c, err = l.Campaigns.CapCollected(ctx, c.CampaignID); err != nil {
		return nil, fmt.Errorf("cap campaign: %w", err)
	}
	c, changed, err := l.Campaigns.MarkFilled(ctx, c.CampaignID, now)
	if err != nil {
		return nil, fmt.Errorf("mark filled: %w", err)
	}
	res.campaign, res.filled = c, changed

	if excess.IsPositive() {
		if _, err := e.creditGeneral(ctx, l, excess); err != nil {
			return nil, err
		}
		res.overflow = excess
	}
	return res, nil
}

func (e *Engine) creditGeneral(ctx context.Context, l ledger.Ledgers, amount decimal.Decimal) (*campaignModel.Campaign, error) {
	g, err := l.Campaigns.GetGeneralCampaign(ctx)
	if err != nil {
		return nil, err
	}
	g, err = l.Campaigns.IncrementCollected(ctx, g.CampaignID, amount)
	if err != nil {
		return nil, fmt.Errorf("increment general campaign: %w", err)
	}
	return g, nil
}

// syncInvoice records a renewal or a failed renewal on a subscription
// whose status no longer moves. The donor is mailed only when the invoice
// actually changed, so a redelivery stays silent.
func (e *Engine) syncInvoice(ctx context.Context, ev *gateways.Event) (Outcome, error) {
	if ev.Invoice == nil || ev.Invoice.ProviderInvoiceID == "" {
		return Outcome{Result: ResultIgnored}, nil
	}
	var (
		out  Outcome
		post applied
	)
	err := e.store.InTx(ctx, func(l ledger.Ledgers) error {
		post = applied{}
		p, err := l.Payments.FindByTransactionID(ctx, ev.Provider, ev.TransactionID)
		if errors.Is(err, ledger.ErrPaymentNotFound) {
			out = Outcome{Result: ResultNotFound}
			return nil
		}
		if err != nil {
			return err
		}
		out = Outcome{Result: ResultDuplicate, PaymentID: p.PaymentID, From: p.PaymentStatus, To: p.PaymentStatus}
		inv := invoiceFrom(p, ev.Invoice)
		changed, err := l.Invoices.SyncStatus(ctx, inv)
		if err != nil {
			return fmt.Errorf("sync invoice: %w", err)
		}
		if !changed {
			return nil
		}
		out.Result = ResultSynced
		post.payment, post.invoice = p, inv

		if ev.Template != "" {
			d, err := l.Donors.FindByID(ctx, p.PaymentDonorID)
			if err != nil && !errors.Is(err, ledger.ErrDonorNotFound) {
				return err
			}
			post.donor = d
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	e.logOutcome(ev, out)
	if out.Result == ResultSynced && ev.Template != "" {
		e.dispatch(ctx, recipient(&post), ev.Template, mailData(ev, &post))
	}
	return out, nil
}

func (e *Engine) notifyOnly(ctx context.Context, ev *gateways.Event) (Outcome, error) {
	l := e.store.Ledgers()
	p, err := l.Payments.FindByTransactionID(ctx, ev.Provider, ev.TransactionID)
	if errors.Is(err, ledger.ErrPaymentNotFound) {
		out := Outcome{Result: ResultNotFound}
		e.logOutcome(ev, out)
		return out, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Result: ResultNotified, PaymentID: p.PaymentID, From: p.PaymentStatus, To: p.PaymentStatus}
	if ev.Template != "" {
		d, err := l.Donors.FindByID(ctx, p.PaymentDonorID)
		if err != nil && !errors.Is(err, ledger.ErrDonorNotFound) {
			return Outcome{}, err
		}
		post := &applied{payment: p, donor: d}
		e.dispatch(ctx, recipient(post), ev.Template, mailData(ev, post))
	}
	e.logOutcome(ev, out)
	return out, nil
}

func invoiceFrom(p *paymentModel.Payment, ref *gateways.InvoiceRef) *invoiceModel.Invoice {
	amount := ref.Amount
	if amount.IsZero() {
		amount = p.PaymentAmount
	}
	status := ref.Status
	if status == "" {
		status = invoiceModel.InvoiceStatusOpen
	}
	inv := &invoiceModel.Invoice{
		InvoicePaymentID:         p.PaymentID,
		InvoiceProviderInvoiceID: ref.ProviderInvoiceID,
		InvoiceAmount:            amount,
		InvoiceCustomerEmail:     ref.CustomerEmail,
		InvoiceStatus:            status,
	}
	if ref.HostedURL != "" {
		u := ref.HostedURL
		inv.InvoiceHostedInvoiceURL = &u
	}
	return inv
}

func (e *Engine) logOutcome(ev *gateways.Event, out Outcome) {
	attrs := []any{
		"provider", ev.Provider,
		"type", ev.Type,
		"event_id", ev.EventID,
		"transaction_id", ev.TransactionID,
		"result", out.Result,
	}
	if out.PaymentID != uuid.Nil {
		attrs = append(attrs, "payment_id", out.PaymentID, "from", out.From, "to", out.To)
	}
	if out.Credited {
		attrs = append(attrs, "filled", out.Filled, "overflow", out.Overflow.StringFixed(2))
	}
	switch out.Result {
	case ResultApplied, ResultSynced, ResultNotified:
		e.logger.Info("event reconciled", attrs...)
	case ResultNotFound:
		e.logger.Warn("event for unknown payment", attrs...)
	default:
		e.logger.Info("event skipped", attrs...)
	}
}
