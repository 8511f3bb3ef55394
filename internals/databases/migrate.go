package database

import (
	"fmt"

	"gorm.io/gorm"

	campaignModel "donasiku_backend/internals/features/donations/campaigns/model"
	donorModel "donasiku_backend/internals/features/donations/donors/model"
	gatewayEventModel "donasiku_backend/internals/features/donations/gateway_events/model"
	invoiceModel "donasiku_backend/internals/features/donations/invoices/model"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

// indexes AutoMigrate cannot express.
var extraIndexes = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	// at most one live general campaign
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_campaigns_general
		ON campaigns (campaign_is_general)
		WHERE campaign_is_general = true AND campaign_deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_payments_campaign_status
		ON payments (payment_campaign_id, payment_status, payment_created_at DESC)
		WHERE payment_deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_payments_donor_provider_kind
		ON payments (payment_donor_id, payment_provider, payment_kind)`,
	`CREATE INDEX IF NOT EXISTS idx_gw_events_received_at
		ON payment_gateway_events (gateway_event_received_at DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_donors_email_lower
		ON donors (LOWER(donor_email))`,
}

func Migrate(db *gorm.DB) error {
	if err := db.Exec(extraIndexes[0]).Error; err != nil {
		return fmt.Errorf("pgcrypto: %w", err)
	}
	if err := db.AutoMigrate(
		&campaignModel.Campaign{},
		&donorModel.Donor{},
		&paymentModel.Payment{},
		&invoiceModel.Invoice{},
		&gatewayEventModel.PaymentGatewayEvent{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	for _, stmt := range extraIndexes[1:] {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("index: %w", err)
		}
	}
	return nil
}
