package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	donorModel "donasiku_backend/internals/features/donations/donors/model"
)

type GormDonorStore struct {
	DB *gorm.DB
}

func (r *GormDonorStore) FindByID(ctx context.Context, id uuid.UUID) (*donorModel.Donor, error) {
	var d donorModel.Donor
	err := r.DB.WithContext(ctx).First(&d, "donor_id = ?", id).Error
	return donorOrNotFound(&d, err)
}

func (r *GormDonorStore) FindByEmail(ctx context.Context, email string) (*donorModel.Donor, error) {
	var d donorModel.Donor
	err := r.DB.WithContext(ctx).
		Where("LOWER(donor_email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&d).Error
	return donorOrNotFound(&d, err)
}

func (r *GormDonorStore) Create(ctx context.Context, d *donorModel.Donor) error {
	if err := r.DB.WithContext(ctx).Create(d).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicateDonor
		}
		return err
	}
	return nil
}

func (r *GormDonorStore) Update(ctx context.Context, id uuid.UUID, u donorModel.DonorUpdate) (*donorModel.Donor, error) {
	d, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cols := u.Apply(d)
	if len(cols) == 0 {
		return d, nil
	}
	if err := r.DB.WithContext(ctx).Model(&donorModel.Donor{}).Where("donor_id = ?", id).Updates(cols).Error; err != nil {
		return nil, err
	}
	return d, nil
}

func donorOrNotFound(d *donorModel.Donor, err error) (*donorModel.Donor, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDonorNotFound
		}
		return nil, err
	}
	return d, nil
}
