package repository

import (
	"context"

	"github.com/perkforge/couponvault/internal/merchant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, merchant *domain.Merchant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO merchants (merchant_id, principal, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (merchant_id) DO UPDATE
		 SET principal = excluded.principal, updated_at = excluded.updated_at`,
		merchant.MerchantID,
		merchant.Principal,
		merchant.CreatedAt,
		merchant.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, merchantID int64) (*domain.Merchant, error) {
	var merchant domain.Merchant
	err := db.WithContext(ctx).Raw(
		`SELECT merchant_id, principal, created_at, updated_at
		 FROM merchants WHERE merchant_id = ?`,
		merchantID,
	).Scan(&merchant).Error
	if err != nil {
		return nil, err
	}
	if merchant.MerchantID == 0 {
		return nil, nil
	}
	return &merchant, nil
}

func (r *repo) ExistsPrincipal(ctx context.Context, db *gorm.DB, principal string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM merchants WHERE principal = ?`,
		principal,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
