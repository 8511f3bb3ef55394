package ledger

import (
	"context"

	"gorm.io/gorm"
)

// GormStore is the Postgres-backed Store.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) Ledgers() Ledgers {
	return gormLedgers(s.DB)
}

func (s *GormStore) InTx(ctx context.Context, fn func(l Ledgers) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormLedgers(tx))
	})
}

func gormLedgers(db *gorm.DB) Ledgers {
	return Ledgers{
		Payments:  &GormPaymentLedger{DB: db},
		Campaigns: &GormCampaignLedger{DB: db},
		Invoices:  &GormInvoiceLedger{DB: db},
		Donors:    &GormDonorStore{DB: db},
	}
}
