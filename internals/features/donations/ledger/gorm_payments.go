package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	donorModel "donasiku_backend/internals/features/donations/donors/model"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

type GormPaymentLedger struct {
	DB *gorm.DB
}

func (r *GormPaymentLedger) Create(ctx context.Context, p *paymentModel.Payment) error {
	p.PaymentStatus = paymentModel.PaymentStatusPending
	if err := r.DB.WithContext(ctx).Create(p).Error; err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateTransaction, p.PaymentProvider, p.PaymentProviderTransactionID)
		}
		return err
	}
	return nil
}

func (r *GormPaymentLedger) FindByID(ctx context.Context, id uuid.UUID) (*paymentModel.Payment, error) {
	var p paymentModel.Payment
	err := r.DB.WithContext(ctx).
		First(&p, "payment_id = ? AND payment_deleted_at IS NULL", id).Error
	return paymentOrNotFound(&p, err)
}

func (r *GormPaymentLedger) FindByTransactionID(ctx context.Context, provider paymentModel.PaymentProvider, txnID string) (*paymentModel.Payment, error) {
	var p paymentModel.Payment
	err := r.DB.WithContext(ctx).
		Where("payment_provider = ? AND payment_provider_transaction_id = ? AND payment_deleted_at IS NULL", provider, txnID).
		First(&p).Error
	return paymentOrNotFound(&p, err)
}

func (r *GormPaymentLedger) FindByTransactionIDForUpdate(ctx context.Context, provider paymentModel.PaymentProvider, txnID string) (*paymentModel.Payment, error) {
	var p paymentModel.Payment
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_provider = ? AND payment_provider_transaction_id = ? AND payment_deleted_at IS NULL", provider, txnID).
		First(&p).Error
	return paymentOrNotFound(&p, err)
}

func (r *GormPaymentLedger) UpdateStatus(ctx context.Context, id uuid.UUID, from, to paymentModel.PaymentStatus, f paymentModel.StatusFields) (*paymentModel.Payment, error) {
	updates := map[string]any{
		"payment_status":     to,
		"payment_updated_at": time.Now(),
	}
	if f.PaidAt != nil {
		updates["payment_paid_at"] = *f.PaidAt
	}
	if f.CancelledAt != nil {
		updates["payment_cancelled_at"] = *f.CancelledAt
	}
	if f.FailedAt != nil {
		updates["payment_failed_at"] = *f.FailedAt
	}
	if f.EventAt != nil {
		updates["payment_last_event_at"] = *f.EventAt
	}

	var p paymentModel.Payment
	res := r.DB.WithContext(ctx).
		Model(&p).
		Clauses(clause.Returning{}).
		Where("payment_id = ? AND payment_status = ? AND payment_deleted_at IS NULL", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s expected %s", ErrStatusConflict, id, from)
	}
	return &p, nil
}

func (r *GormPaymentLedger) MarkCredited(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).
		Model(&paymentModel.Payment{}).
		Where("payment_id = ? AND payment_credited_at IS NULL", id).
		Update("payment_credited_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormPaymentLedger) HasOpenSubscription(ctx context.Context, donorID uuid.UUID, provider paymentModel.PaymentProvider) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Model(&paymentModel.Payment{}).
		Where("payment_donor_id = ? AND payment_provider = ? AND payment_kind = ?", donorID, provider, paymentModel.PaymentKindRecurring).
		Where("payment_status IN ? AND payment_deleted_at IS NULL", OpenSubscriptionStatuses).
		Count(&n).Error
	return n > 0, err
}

func (r *GormPaymentLedger) CompletedDonors(ctx context.Context, campaignID uuid.UUID, includePrivate bool) ([]donorModel.Donor, error) {
	q := r.DB.WithContext(ctx).
		Table("payments AS p").
		Select("d.*").
		Joins("JOIN donors d ON d.donor_id = p.payment_donor_id").
		Where("p.payment_campaign_id = ? AND p.payment_status IN ? AND p.payment_deleted_at IS NULL", campaignID, creditedStatuses).
		Where("d.donor_email NOT ILIKE ?", donorModel.AnonymousName+"%")
	if !includePrivate {
		q = q.Where("p.payment_is_donation_private = false")
	}

	var rows []donorModel.Donor
	if err := q.Order("p.payment_created_at DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return DedupeDonorsByEmail(rows), nil
}

func paymentOrNotFound(p *paymentModel.Payment, err error) (*paymentModel.Payment, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}
