// file: internals/features/donations/payments/model/payment_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

/*
  payments = satu percobaan donasi ke satu provider.
  - Kunci join webhook: (payment_provider, payment_provider_transaction_id)
  - Status hanya diubah oleh reconciliation engine.
*/

type Payment struct {
	PaymentID uuid.UUID `gorm:"column:payment_id;type:uuid;default:gen_random_uuid();primaryKey" json:"payment_id"`

	PaymentDonorID    uuid.UUID  `gorm:"column:payment_donor_id;type:uuid;not null;index" json:"payment_donor_id"`
	PaymentCampaignID *uuid.UUID `gorm:"column:payment_campaign_id;type:uuid;index" json:"payment_campaign_id"`

	PaymentProvider              PaymentProvider `gorm:"column:payment_provider;type:varchar(20);not null;uniqueIndex:uq_payments_provider_txn,priority:1" json:"payment_provider"`
	PaymentProviderTransactionID string          `gorm:"column:payment_provider_transaction_id;type:varchar(191);not null;uniqueIndex:uq_payments_provider_txn,priority:2" json:"payment_provider_transaction_id"`
	PaymentProviderReference     *string         `gorm:"column:payment_provider_reference;type:text" json:"payment_provider_reference,omitempty"`

	PaymentAmount   decimal.Decimal `gorm:"column:payment_amount;type:decimal(15,2);not null" json:"payment_amount"`
	PaymentCurrency string          `gorm:"column:payment_currency;type:varchar(10);not null;default:'GBP'" json:"payment_currency"`

	PaymentMethod PaymentMethod `gorm:"column:payment_method;type:varchar(20);not null" json:"payment_method"`
	PaymentKind   PaymentKind   `gorm:"column:payment_kind;type:varchar(20);not null;default:'one_time'" json:"payment_kind"`
	PaymentStatus PaymentStatus `gorm:"column:payment_status;type:varchar(20);not null;default:'pending';index" json:"payment_status"`

	PaymentIsGiftAid         bool `gorm:"column:payment_is_gift_aid;not null;default:false" json:"payment_is_gift_aid"`
	PaymentIsDonationPrivate bool `gorm:"column:payment_is_donation_private;not null;default:false" json:"payment_is_donation_private"`
	PaymentIsRenewal         bool `gorm:"column:payment_is_renewal;not null;default:false" json:"payment_is_renewal"`

	PaymentLastEventAt *time.Time `gorm:"column:payment_last_event_at" json:"payment_last_event_at,omitempty"`
	PaymentCreditedAt  *time.Time `gorm:"column:payment_credited_at" json:"payment_credited_at,omitempty"`
	PaymentPaidAt      *time.Time `gorm:"column:payment_paid_at" json:"payment_paid_at,omitempty"`
	PaymentCancelledAt *time.Time `gorm:"column:payment_cancelled_at" json:"payment_cancelled_at,omitempty"`
	PaymentFailedAt    *time.Time `gorm:"column:payment_failed_at" json:"payment_failed_at,omitempty"`

	PaymentCreatedAt time.Time  `gorm:"column:payment_created_at;not null;autoCreateTime" json:"payment_created_at"`
	PaymentUpdatedAt time.Time  `gorm:"column:payment_updated_at;not null;autoUpdateTime" json:"payment_updated_at"`
	PaymentDeletedAt *time.Time `gorm:"column:payment_deleted_at" json:"payment_deleted_at,omitempty"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) IsRecurring() bool { return p.PaymentKind == PaymentKindRecurring }

func (p *Payment) IsCredited() bool { return p.PaymentCreditedAt != nil }

// StatusFields carries the timestamps written alongside a status change.
type StatusFields struct {
	PaidAt      *time.Time
	CancelledAt *time.Time
	FailedAt    *time.Time
	EventAt     *time.Time
}

// FieldsFor returns the timestamp columns a transition into status sets.
func FieldsFor(status PaymentStatus, now time.Time, eventAt *time.Time) StatusFields {
	f := StatusFields{EventAt: eventAt}
	switch {
	case status.Credits():
		f.PaidAt = &now
	case status == PaymentStatusCancelled:
		f.CancelledAt = &now
	case status == PaymentStatusRejected:
		f.FailedAt = &now
	}
	return f
}
