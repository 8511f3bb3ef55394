package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusOpen      InvoiceStatus = "open"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCompleted InvoiceStatus = "completed"
	InvoiceStatusFailed    InvoiceStatus = "failed"
	InvoiceStatusVoid      InvoiceStatus = "void"
)

// Invoice is the receipt for one provider-side charge of a payment.
// (invoice_payment_id, invoice_provider_invoice_id) is unique.
type Invoice struct {
	InvoiceID uuid.UUID `gorm:"column:invoice_id;type:uuid;default:gen_random_uuid();primaryKey" json:"invoice_id"`

	InvoicePaymentID         uuid.UUID `gorm:"column:invoice_payment_id;type:uuid;not null;uniqueIndex:uq_invoices_payment_provider_invoice,priority:1" json:"invoice_payment_id"`
	InvoiceProviderInvoiceID string    `gorm:"column:invoice_provider_invoice_id;type:varchar(191);not null;uniqueIndex:uq_invoices_payment_provider_invoice,priority:2" json:"invoice_provider_invoice_id"`

	InvoiceAmount           decimal.Decimal `gorm:"column:invoice_amount;type:decimal(15,2);not null" json:"invoice_amount"`
	InvoiceCustomerEmail    string          `gorm:"column:invoice_customer_email;type:varchar(191)" json:"invoice_customer_email"`
	InvoiceHostedInvoiceURL *string         `gorm:"column:invoice_hosted_invoice_url;type:text" json:"invoice_hosted_invoice_url,omitempty"`
	InvoiceStatus           InvoiceStatus   `gorm:"column:invoice_status;type:varchar(20);not null;default:'draft'" json:"invoice_status"`

	InvoiceCreatedAt time.Time `gorm:"column:invoice_created_at;not null;autoCreateTime" json:"invoice_created_at"`
	InvoiceUpdatedAt time.Time `gorm:"column:invoice_updated_at;not null;autoUpdateTime" json:"invoice_updated_at"`
}

func (Invoice) TableName() string {
	return "invoices"
}

// Settled reports statuses a later provider update must not overwrite.
func (s InvoiceStatus) Settled() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCompleted
}
