package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	campaignModel "donasiku_backend/internals/features/donations/campaigns/model"
)

type GormCampaignLedger struct {
	DB *gorm.DB
}

func (r *GormCampaignLedger) FindByID(ctx context.Context, id uuid.UUID) (*campaignModel.Campaign, error) {
	var c campaignModel.Campaign
	err := r.DB.WithContext(ctx).
		First(&c, "campaign_id = ? AND campaign_deleted_at IS NULL", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &c, nil
}

// IncrementCollected relies on the row lock taken by UPDATE, so two
// concurrent donations serialise on the campaign row.
func (r *GormCampaignLedger) IncrementCollected(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*campaignModel.Campaign, error) {
	var c campaignModel.Campaign
	res := r.DB.WithContext(ctx).
		Model(&c).
		Clauses(clause.Returning{}).
		Where("campaign_id = ? AND campaign_deleted_at IS NULL", id).
		Updates(map[string]any{
			"campaign_collected_cost": gorm.Expr("campaign_collected_cost + ?", amount),
			"campaign_updated_at":     time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrCampaignNotFound
	}
	return &c, nil
}

func (r *GormCampaignLedger) CapCollected(ctx context.Context, id uuid.UUID) (*campaignModel.Campaign, error) {
	var c campaignModel.Campaign
	res := r.DB.WithContext(ctx).
		Model(&c).
		Clauses(clause.Returning{}).
		Where("campaign_id = ? AND campaign_collected_cost > campaign_required_cost", id).
		Updates(map[string]any{
			"campaign_collected_cost": gorm.Expr("campaign_required_cost"),
			"campaign_updated_at":     time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return r.FindByID(ctx, id)
	}
	return &c, nil
}

func (r *GormCampaignLedger) MarkFilled(ctx context.Context, id uuid.UUID, at time.Time) (*campaignModel.Campaign, bool, error) {
	var c campaignModel.Campaign
	res := r.DB.WithContext(ctx).
		Model(&c).
		Clauses(clause.Returning{}).
		Where("campaign_id = ? AND campaign_status NOT IN ?", id,
			[]campaignModel.CampaignStatus{campaignModel.CampaignStatusFilled, campaignModel.CampaignStatusCompleted}).
		Updates(map[string]any{
			"campaign_status":     campaignModel.CampaignStatusFilled,
			"campaign_filled_at":  at,
			"campaign_updated_at": time.Now(),
		})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		cur, err := r.FindByID(ctx, id)
		return cur, false, err
	}
	return &c, true, nil
}

func (r *GormCampaignLedger) GetGeneralCampaign(ctx context.Context) (*campaignModel.Campaign, error) {
	var c campaignModel.Campaign
	err := r.DB.WithContext(ctx).
		Where("campaign_is_general = TRUE AND campaign_deleted_at IS NULL").
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGeneralCampaignMissing
		}
		return nil, err
	}
	return &c, nil
}
