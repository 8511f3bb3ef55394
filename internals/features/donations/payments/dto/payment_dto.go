package dto

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	donorModel "donasiku_backend/internals/features/donations/donors/model"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
	"donasiku_backend/internals/features/donations/payments/service"
)

/* =========================================================
   CREATE
========================================================= */

type CreatePaymentRequest struct {
	Provider string          `json:"provider" validate:"required,oneof=stripe paypal coinpayments midtrans"`
	Kind     string          `json:"kind" validate:"omitempty,oneof=one_time recurring"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"omitempty,len=3,alpha"`

	CampaignID *uuid.UUID `json:"campaign_id"`

	DonorID *uuid.UUID `json:"donor_id"`
	Name    string     `json:"name" validate:"omitempty,max=120"`
	Email   string     `json:"email" validate:"omitempty,email,max=191"`

	IsGiftAid bool                       `json:"is_gift_aid"`
	GiftAid   *donorModel.GiftAidAddress `json:"gift_aid_address" validate:"omitempty"`
	IsPrivate bool                       `json:"is_donation_private"`

	PaymentMethodID string `json:"payment_method_id" validate:"omitempty,max=100"`
	PlanID          string `json:"plan_id" validate:"omitempty,max=100"`
}

// Normalize trims input in place.
func (r *CreatePaymentRequest) Normalize() {
	r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
	r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.PaymentMethodID = strings.TrimSpace(r.PaymentMethodID)
	r.PlanID = strings.TrimSpace(r.PlanID)
}

// AmountErrors covers what the validator tags cannot express on a decimal.
// A recurring donation may leave the amount out; the plan price is used.
func (r *CreatePaymentRequest) AmountErrors() map[string][]string {
	recurring := r.Kind == string(paymentModel.PaymentKindRecurring)
	switch {
	case r.Amount.IsNegative(), r.Amount.IsZero() && !recurring:
		return map[string][]string{"amount": {"gt=0"}}
	case !r.Amount.Equal(r.Amount.Round(2)):
		return map[string][]string{"amount": {"max 2 decimals"}}
	}
	return nil
}

func (r *CreatePaymentRequest) ToInput() service.CreateInput {
	kind := paymentModel.PaymentKindOneTime
	if r.Kind == string(paymentModel.PaymentKindRecurring) {
		kind = paymentModel.PaymentKindRecurring
	}
	return service.CreateInput{
		Provider:        paymentModel.PaymentProvider(r.Provider),
		Kind:            kind,
		Amount:          r.Amount,
		Currency:        r.Currency,
		CampaignID:      r.CampaignID,
		DonorID:         r.DonorID,
		Name:            r.Name,
		Email:           r.Email,
		IsGiftAid:       r.IsGiftAid,
		GiftAid:         r.GiftAid,
		IsPrivate:       r.IsPrivate,
		PaymentMethodID: r.PaymentMethodID,
		PlanID:          r.PlanID,
	}
}

/* =========================================================
   CANCEL
========================================================= */

type CancelSubscriptionRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=200"`
}

/* =========================================================
   RESPONSE
========================================================= */

type PaymentResponse struct {
	PaymentID                    uuid.UUID  `json:"payment_id"`
	PaymentDonorID               uuid.UUID  `json:"payment_donor_id"`
	PaymentCampaignID            *uuid.UUID `json:"payment_campaign_id,omitempty"`
	PaymentProvider              string     `json:"payment_provider"`
	PaymentProviderTransactionID string     `json:"payment_provider_transaction_id"`
	PaymentAmount                string     `json:"payment_amount"`
	PaymentCurrency              string     `json:"payment_currency"`
	PaymentMethod                string     `json:"payment_method"`
	PaymentKind                  string     `json:"payment_kind"`
	PaymentStatus                string     `json:"payment_status"`
	PaymentIsGiftAid             bool       `json:"payment_is_gift_aid"`
	PaymentIsDonationPrivate     bool       `json:"payment_is_donation_private"`
	PaymentPaidAt                *time.Time `json:"payment_paid_at,omitempty"`
	PaymentCreatedAt             time.Time  `json:"payment_created_at"`

	// ClientReference is only returned on create.
	ClientReference string `json:"client_reference,omitempty"`
}

func FromModel(p *paymentModel.Payment) PaymentResponse {
	return PaymentResponse{
		PaymentID:                    p.PaymentID,
		PaymentDonorID:               p.PaymentDonorID,
		PaymentCampaignID:            p.PaymentCampaignID,
		PaymentProvider:              string(p.PaymentProvider),
		PaymentProviderTransactionID: p.PaymentProviderTransactionID,
		PaymentAmount:                p.PaymentAmount.StringFixed(2),
		PaymentCurrency:              p.PaymentCurrency,
		PaymentMethod:                string(p.PaymentMethod),
		PaymentKind:                  string(p.PaymentKind),
		PaymentStatus:                string(p.PaymentStatus),
		PaymentIsGiftAid:             p.PaymentIsGiftAid,
		PaymentIsDonationPrivate:     p.PaymentIsDonationPrivate,
		PaymentPaidAt:                p.PaymentPaidAt,
		PaymentCreatedAt:             p.PaymentCreatedAt,
	}
}

func FromResult(res *service.CreateResult) PaymentResponse {
	out := FromModel(res.Payment)
	out.ClientReference = res.ClientReference
	return out
}
