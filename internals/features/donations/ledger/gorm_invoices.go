package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	invoiceModel "donasiku_backend/internals/features/donations/invoices/model"
)

type GormInvoiceLedger struct {
	DB *gorm.DB
}

var invoiceConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "invoice_payment_id"}, {Name: "invoice_provider_invoice_id"}},
	DoNothing: true,
}

func (r *GormInvoiceLedger) CreateIfAbsent(ctx context.Context, inv *invoiceModel.Invoice) (bool, error) {
	res := r.DB.WithContext(ctx).Clauses(invoiceConflict).Create(inv)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormInvoiceLedger) SyncStatus(ctx context.Context, inv *invoiceModel.Invoice) (bool, error) {
	return r.setStatus(ctx, inv, true)
}

func (r *GormInvoiceLedger) MarkStatus(ctx context.Context, inv *invoiceModel.Invoice) (bool, error) {
	return r.setStatus(ctx, inv, false)
}

func (r *GormInvoiceLedger) setStatus(ctx context.Context, inv *invoiceModel.Invoice, insert bool) (bool, error) {
	var cur invoiceModel.Invoice
	err := r.DB.WithContext(ctx).
		Where("invoice_payment_id = ? AND invoice_provider_invoice_id = ?", inv.InvoicePaymentID, inv.InvoiceProviderInvoiceID).
		First(&cur).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if !insert {
			return false, nil
		}
		return r.CreateIfAbsent(ctx, inv)
	}
	if err != nil {
		return false, err
	}
	if cur.InvoiceStatus.Settled() || cur.InvoiceStatus == inv.InvoiceStatus {
		return false, nil
	}

	updates := map[string]any{
		"invoice_status":     inv.InvoiceStatus,
		"invoice_updated_at": time.Now(),
	}
	if inv.InvoiceHostedInvoiceURL != nil {
		updates["invoice_hosted_invoice_url"] = *inv.InvoiceHostedInvoiceURL
	}
	res := r.DB.WithContext(ctx).
		Model(&invoiceModel.Invoice{}).
		Where("invoice_id = ? AND invoice_status = ?", cur.InvoiceID, cur.InvoiceStatus).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *GormInvoiceLedger) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]invoiceModel.Invoice, error) {
	var rows []invoiceModel.Invoice
	err := r.DB.WithContext(ctx).
		Where("invoice_payment_id = ?", paymentID).
		Order("invoice_created_at ASC").
		Find(&rows).Error
	return rows, err
}
