package campaigns

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	campaignModel "donasiku_backend/internals/features/donations/campaigns/model"
)

type CampaignSeed struct {
	CampaignTitle        string          `json:"campaign_title"`
	CampaignDescription  *string         `json:"campaign_description"`
	CampaignRequiredCost decimal.Decimal `json:"campaign_required_cost"`
	CampaignStatus       string          `json:"campaign_status"`
}

// SeedGeneralCampaign makes sure exactly one general campaign exists.
func SeedGeneralCampaign(db *gorm.DB, title string, logger *slog.Logger) (*campaignModel.Campaign, error) {
	var existing campaignModel.Campaign
	err := db.Where("campaign_is_general = TRUE AND campaign_deleted_at IS NULL").First(&existing).Error
	if err == nil {
		logger.Info("general campaign present, skipping", "campaign_id", existing.CampaignID)
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	c := campaignModel.Campaign{
		CampaignTitle:     title,
		CampaignStatus:    campaignModel.CampaignStatusAwaiting,
		CampaignIsGeneral: true,
	}
	if err := db.Create(&c).Error; err != nil {
		return nil, fmt.Errorf("insert general campaign: %w", err)
	}
	logger.Info("general campaign created", "campaign_id", c.CampaignID, "title", title)
	return &c, nil
}

// SeedCampaignsFromJSON inserts campaigns by title, skipping ones that exist.
func SeedCampaignsFromJSON(db *gorm.DB, filePath string, logger *slog.Logger) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", filePath, err)
	}
	var data []CampaignSeed
	if err := json.Unmarshal(content, &data); err != nil {
		return fmt.Errorf("decode %s: %w", filePath, err)
	}

	for _, item := range data {
		var n int64
		if err := db.Model(&campaignModel.Campaign{}).
			Where("campaign_title = ? AND campaign_deleted_at IS NULL", item.CampaignTitle).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			logger.Info("campaign exists, skipping", "title", item.CampaignTitle)
			continue
		}
		status := campaignModel.CampaignStatus(item.CampaignStatus)
		if status == "" {
			status = campaignModel.CampaignStatusAwaiting
		}
		record := campaignModel.Campaign{
			CampaignTitle:        item.CampaignTitle,
			CampaignDescription:  item.CampaignDescription,
			CampaignRequiredCost: item.CampaignRequiredCost,
			CampaignStatus:       status,
		}
		if err := db.Create(&record).Error; err != nil {
			logger.Error("insert campaign failed", "title", item.CampaignTitle, "error", err)
			continue
		}
		logger.Info("campaign inserted", "title", item.CampaignTitle, "campaign_id", record.CampaignID)
	}
	return nil
}
