package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/perkforge/couponvault/internal/coupon/domain"
	"github.com/perkforge/couponvault/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) NextTokenID(ctx context.Context, tx *gorm.DB) (int64, error) {
	// Seed the sequence row on first use; the conflict clause makes this a no-op afterwards.
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO coupon_counters (name, value) VALUES (?, 0)
		 ON CONFLICT (name) DO NOTHING`,
		domain.CounterTokenID,
	).Error; err != nil {
		return 0, err
	}

	// The UPDATE row-locks the counter for the rest of the transaction, so
	// token ids are dense and never reused.
	if err := tx.WithContext(ctx).Exec(
		`UPDATE coupon_counters SET value = value + 1 WHERE name = ?`,
		domain.CounterTokenID,
	).Error; err != nil {
		return 0, err
	}

	var value int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT value FROM coupon_counters WHERE name = ?`,
		domain.CounterTokenID,
	).Scan(&value).Error; err != nil {
		return 0, err
	}
	return value, nil
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, coupon *domain.Coupon) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO coupons (
			token_id, owner, merchant_id, coupon_type, discount_value,
			max_quantity, remaining_quantity, expires_at, rarity_level,
			description, metadata_ref, is_used, is_recycled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		coupon.TokenID,
		coupon.Owner,
		coupon.MerchantID,
		string(coupon.CouponType),
		coupon.DiscountValue,
		coupon.MaxQuantity,
		coupon.RemainingQuantity,
		coupon.ExpiresAt,
		string(coupon.RarityLevel),
		coupon.Description,
		coupon.MetadataRef,
		coupon.IsUsed,
		coupon.IsRecycled,
		coupon.CreatedAt,
		coupon.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tokenID int64) (*domain.Coupon, error) {
	var coupon domain.Coupon
	err := db.WithContext(ctx).Raw(
		`SELECT token_id, owner, merchant_id, coupon_type, discount_value,
		        max_quantity, remaining_quantity, expires_at, rarity_level,
		        description, metadata_ref, is_used, is_recycled, created_at, updated_at
		 FROM coupons WHERE token_id = ?`,
		tokenID,
	).Scan(&coupon).Error
	if err != nil {
		return nil, err
	}
	if coupon.TokenID == 0 {
		return nil, nil
	}
	return &coupon, nil
}

func (r *repo) DecrementRemaining(ctx context.Context, tx *gorm.DB, tokenID int64, observed int, now time.Time) (bool, error) {
	newRemaining := observed - 1
	result := tx.WithContext(ctx).Exec(
		`UPDATE coupons
		 SET remaining_quantity = ?, is_used = ?, updated_at = ?
		 WHERE token_id = ? AND remaining_quantity = ?`,
		newRemaining,
		newRemaining == 0,
		now,
		tokenID,
		observed,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Retire(ctx context.Context, tx *gorm.DB, tokenID int64, holder string, now time.Time) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE coupons
		 SET owner = ?, is_recycled = ?, updated_at = ?
		 WHERE token_id = ? AND is_recycled = ?`,
		holder,
		true,
		now,
		tokenID,
		false,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListCouponFilter, page pagination.Pagination) ([]*domain.Coupon, error) {
	var coupons []*domain.Coupon
	stmt := db.WithContext(ctx).Model(&domain.Coupon{})
	if filter.Owner != "" {
		stmt = stmt.Where("owner = ?", filter.Owner)
	}
	if filter.MerchantID > 0 {
		stmt = stmt.Where("merchant_id = ?", filter.MerchantID)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		afterID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("token_id < ?", afterID)
	}
	limit := page.PageSize
	if limit <= 0 {
		limit = 50
	}
	err := stmt.
		Order("token_id desc").
		Limit(limit + 1).
		Find(&coupons).Error
	if err != nil {
		return nil, err
	}
	return coupons, nil
}

func (r *repo) TotalIssued(ctx context.Context, db *gorm.DB) (int64, error) {
	var value int64
	err := db.WithContext(ctx).Raw(
		`SELECT value FROM coupon_counters WHERE name = ?`,
		domain.CounterTokenID,
	).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}
