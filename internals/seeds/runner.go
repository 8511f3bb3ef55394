package seeds

import (
	"log/slog"

	"gorm.io/gorm"

	"donasiku_backend/internals/seeds/campaigns"
)

type Options struct {
	GeneralCampaignTitle string
	// CampaignsFile is optional demo data.
	CampaignsFile string
}

func RunAllSeeds(db *gorm.DB, opts Options, logger *slog.Logger) error {
	if _, err := campaigns.SeedGeneralCampaign(db, opts.GeneralCampaignTitle, logger); err != nil {
		return err
	}
	if opts.CampaignsFile != "" {
		return campaigns.SeedCampaignsFromJSON(db, opts.CampaignsFile, logger)
	}
	return nil
}
