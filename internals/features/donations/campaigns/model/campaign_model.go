package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusAwaiting  CampaignStatus = "awaiting"
	CampaignStatusFilled    CampaignStatus = "filled"
	CampaignStatusCompleted CampaignStatus = "completed"
)

type Campaign struct {
	CampaignID uuid.UUID `gorm:"column:campaign_id;type:uuid;default:gen_random_uuid();primaryKey" json:"campaign_id"`

	CampaignTitle       string  `gorm:"column:campaign_title;type:varchar(200);not null" json:"campaign_title"`
	CampaignDescription *string `gorm:"column:campaign_description;type:text" json:"campaign_description,omitempty"`

	CampaignRequiredCost  decimal.Decimal `gorm:"column:campaign_required_cost;type:decimal(15,2);not null;default:0" json:"campaign_required_cost"`
	CampaignCollectedCost decimal.Decimal `gorm:"column:campaign_collected_cost;type:decimal(15,2);not null;default:0" json:"campaign_collected_cost"`

	CampaignStatus    CampaignStatus `gorm:"column:campaign_status;type:varchar(20);not null;default:'draft'" json:"campaign_status"`
	CampaignIsGeneral bool           `gorm:"column:campaign_is_general;not null;default:false" json:"campaign_is_general"`

	CampaignFilledAt  *time.Time `gorm:"column:campaign_filled_at" json:"campaign_filled_at,omitempty"`
	CampaignCreatedAt time.Time  `gorm:"column:campaign_created_at;not null;autoCreateTime" json:"campaign_created_at"`
	CampaignUpdatedAt time.Time  `gorm:"column:campaign_updated_at;not null;autoUpdateTime" json:"campaign_updated_at"`
	CampaignDeletedAt *time.Time `gorm:"column:campaign_deleted_at" json:"campaign_deleted_at,omitempty"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) IsFilled() bool { return c.CampaignStatus == CampaignStatusFilled }

// Reached reports whether the running total met the goal.
func (c *Campaign) Reached() bool {
	return !c.CampaignIsGeneral && c.CampaignCollectedCost.GreaterThanOrEqual(c.CampaignRequiredCost)
}

// Excess is the amount collected beyond the goal, never negative.
func (c *Campaign) Excess() decimal.Decimal {
	if !c.Reached() {
		return decimal.Zero
	}
	return c.CampaignCollectedCost.Sub(c.CampaignRequiredCost)
}

func (c *Campaign) Remaining() decimal.Decimal {
	r := c.CampaignRequiredCost.Sub(c.CampaignCollectedCost)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
