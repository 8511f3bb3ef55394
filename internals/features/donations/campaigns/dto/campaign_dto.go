package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	model "donasiku_backend/internals/features/donations/campaigns/model"
	donorModel "donasiku_backend/internals/features/donations/donors/model"
)

type CampaignResponse struct {
	CampaignID            uuid.UUID  `json:"campaign_id"`
	CampaignTitle         string     `json:"campaign_title"`
	CampaignDescription   *string    `json:"campaign_description,omitempty"`
	CampaignRequiredCost  string     `json:"campaign_required_cost"`
	CampaignCollectedCost string     `json:"campaign_collected_cost"`
	CampaignRemaining     string     `json:"campaign_remaining"`
	CampaignProgress      int        `json:"campaign_progress"` // percent, 0..100
	CampaignStatus        string     `json:"campaign_status"`
	CampaignIsGeneral     bool       `json:"campaign_is_general"`
	CampaignFilledAt      *time.Time `json:"campaign_filled_at,omitempty"`
}

func FromModel(c *model.Campaign) CampaignResponse {
	return CampaignResponse{
		CampaignID:            c.CampaignID,
		CampaignTitle:         c.CampaignTitle,
		CampaignDescription:   c.CampaignDescription,
		CampaignRequiredCost:  c.CampaignRequiredCost.StringFixed(2),
		CampaignCollectedCost: c.CampaignCollectedCost.StringFixed(2),
		CampaignRemaining:     c.Remaining().StringFixed(2),
		CampaignProgress:      progress(c),
		CampaignStatus:        string(c.CampaignStatus),
		CampaignIsGeneral:     c.CampaignIsGeneral,
		CampaignFilledAt:      c.CampaignFilledAt,
	}
}

func progress(c *model.Campaign) int {
	if c.CampaignIsGeneral || !c.CampaignRequiredCost.IsPositive() {
		return 0
	}
	pct := c.CampaignCollectedCost.Mul(decimal.NewFromInt(100)).Div(c.CampaignRequiredCost).Floor()
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return 100
	}
	return int(pct.IntPart())
}

// CampaignDonorResponse is the public view of a donor; emails stay private.
type CampaignDonorResponse struct {
	DonorID   uuid.UUID `json:"donor_id"`
	DonorName string    `json:"donor_name"`
}

func FromDonors(ds []donorModel.Donor) []CampaignDonorResponse {
	out := make([]CampaignDonorResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, CampaignDonorResponse{DonorID: d.DonorID, DonorName: d.DonorName})
	}
	return out
}
