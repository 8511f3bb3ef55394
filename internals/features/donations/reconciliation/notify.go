package reconciliation

import (
	"context"

	"github.com/google/uuid"

	donorModel "donasiku_backend/internals/features/donations/donors/model"
	"donasiku_backend/internals/features/donations/gateways"
	"donasiku_backend/internals/features/donations/notifications"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

/* ===================== post-commit mail ===================== */

func (e *Engine) afterCommit(ctx context.Context, ev *gateways.Event, post *applied) {
	p := post.payment
	to := recipient(post)
	data := mailData(ev, post)

	switch {
	case p.PaymentStatus.Credits():
		if post.credit != nil {
			e.dispatch(ctx, to, notifications.TemplatePaymentCompleted, data)
		}
		if ev.Template != "" && ev.Template != notifications.TemplatePaymentCompleted {
			e.dispatch(ctx, to, ev.Template, data)
		}
	case p.PaymentStatus == paymentModel.PaymentStatusRejected:
		e.dispatch(ctx, to, firstNonEmpty(ev.Template, notifications.TemplatePaymentFailed), data)
	case p.PaymentStatus == paymentModel.PaymentStatusCancelled:
		def := notifications.TemplatePaymentFailed
		if p.IsRecurring() {
			def = notifications.TemplateSubscriptionCancelled
		}
		e.dispatch(ctx, to, firstNonEmpty(ev.Template, def), data)
	default:
		if ev.Template != "" {
			e.dispatch(ctx, to, ev.Template, data)
		}
	}

	if post.credit != nil && post.credit.filled {
		e.fanOutGoalMet(ctx, post)
	}
}

// fanOutGoalMet mails every distinct known donor of the campaign once.
// Private donations still get the mail; they are only hidden from lists.
func (e *Engine) fanOutGoalMet(ctx context.Context, post *applied) {
	c := post.credit.campaign
	donors, err := e.store.Ledgers().Payments.CompletedDonors(ctx, c.CampaignID, true)
	if err != nil {
		e.logger.Error("goal met fan-out: load donors", "campaign_id", c.CampaignID, "error", err)
		return
	}
	data := map[string]any{
		"Campaign": c.CampaignTitle,
		"Required": c.CampaignRequiredCost.StringFixed(2),
		"Currency": post.payment.PaymentCurrency,
	}
	ns := make([]notifications.Notification, 0, len(donors))
	for _, d := range donors {
		nd := map[string]any{"Name": d.DonorName}
		for k, v := range data {
			nd[k] = v
		}
		ns = append(ns, notifications.Notification{Template: notifications.TemplateGoalMet, To: d.DonorEmail, Data: nd})
	}
	e.logger.Info("campaign filled", "campaign_id", c.CampaignID, "donors_notified", len(ns))
	e.notifier.Dispatch(ctx, ns...)
}

func (e *Engine) dispatch(ctx context.Context, to, template string, data map[string]any) {
	if to == "" || template == "" {
		return
	}
	if !notifications.Known(template) {
		e.logger.Warn("unknown mail template", "template", template)
		return
	}
	e.notifier.Dispatch(ctx, notifications.Notification{Template: template, To: to, Data: data})
}

// recipient prefers the donor's address; synthesized anonymous donors fall
// back to the email the provider collected, if any.
func recipient(post *applied) string {
	if post.donor != nil && !post.donor.IsAnonymous() {
		return post.donor.DonorEmail
	}
	if post.invoice != nil && post.invoice.InvoiceCustomerEmail != "" && !donorModel.IsAnonymousEmail(post.invoice.InvoiceCustomerEmail) {
		return post.invoice.InvoiceCustomerEmail
	}
	return ""
}

func mailData(ev *gateways.Event, post *applied) map[string]any {
	p := post.payment
	data := map[string]any{
		"Amount":    p.PaymentAmount.StringFixed(2),
		"Currency":  p.PaymentCurrency,
		"PaymentID": p.PaymentID.String(),
		"Reference": p.PaymentProviderTransactionID,
		"Method":    methodLabel(p.PaymentMethod),
		"Date":      p.PaymentUpdatedAt.Format("02/01/2006"),
		"Status":    string(p.PaymentStatus),
	}
	if post.donor != nil {
		data["Name"] = post.donor.DonorName
	}
	if post.invoice != nil {
		data["Reference"] = post.invoice.InvoiceProviderInvoiceID
		if post.invoice.InvoiceAmount.IsPositive() {
			data["Amount"] = post.invoice.InvoiceAmount.StringFixed(2)
		}
	}
	if post.credit != nil && post.credit.campaign != nil && !post.credit.campaign.CampaignIsGeneral {
		data["Campaign"] = post.credit.campaign.CampaignTitle
	}
	for k, v := range ev.Extra {
		data[k] = v
	}
	return data
}

func methodLabel(m paymentModel.PaymentMethod) string {
	switch m {
	case paymentModel.PaymentMethodCard:
		return "Credit/Debit Card"
	case paymentModel.PaymentMethodAltNetwork:
		return "PayPal"
	case paymentModel.PaymentMethodCrypto:
		return "Cryptocurrency"
	case paymentModel.PaymentMethodBankGateway:
		return "Bank transfer / e-wallet"
	default:
		return string(m)
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

/* ===================== unauthenticated deliveries ===================== */

// RejectUnauthenticated handles a delivery whose signature failed. Nothing
// is written; when the delivery names a donor, that donor is told the
// payment could not be confirmed.
func (e *Engine) RejectUnauthenticated(ctx context.Context, provider paymentModel.PaymentProvider, donorHint string) {
	e.logger.Warn("webhook signature rejected", "provider", provider, "donor_hint", donorHint)
	if donorHint == "" {
		return
	}
	id, err := uuid.Parse(donorHint)
	if err != nil {
		return
	}
	d, err := e.store.Ledgers().Donors.FindByID(ctx, id)
	if err != nil || d.IsAnonymous() {
		return
	}
	template := notifications.TemplatePaymentFailed
	if provider == paymentModel.ProviderCoinPayments {
		template = notifications.TemplatePaymentFailedCrypto
	}
	e.dispatch(ctx, d.DonorEmail, template, map[string]any{"Name": d.DonorName})
}
