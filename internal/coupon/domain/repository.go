package domain

import (
	"context"
	"time"

	"github.com/perkforge/couponvault/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListCouponFilter struct {
	Owner      string
	MerchantID int64
}

type Repository interface {
	// NextTokenID bumps the token sequence inside tx and returns the new id.
	NextTokenID(ctx context.Context, tx *gorm.DB) (int64, error)
	Insert(ctx context.Context, tx *gorm.DB, coupon *Coupon) error
	FindByID(ctx context.Context, db *gorm.DB, tokenID int64) (*Coupon, error)
	// DecrementRemaining is a compare-and-swap: it decrements only if the
	// stored remaining quantity still equals observed, setting is_used when
	// the counter reaches zero. It reports whether the swap applied.
	DecrementRemaining(ctx context.Context, tx *gorm.DB, tokenID int64, observed int, now time.Time) (bool, error)
	// Retire moves ownership to the retirement holder and marks the coupon
	// recycled. A coupon already recycled is left untouched; Retire reports
	// whether this call performed the reassignment.
	Retire(ctx context.Context, tx *gorm.DB, tokenID int64, holder string, now time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListCouponFilter, page pagination.Pagination) ([]*Coupon, error)
	// TotalIssued returns the token sequence value: the count of all coupons
	// ever minted, including exhausted and recycled ones.
	TotalIssued(ctx context.Context, db *gorm.DB) (int64, error)
}
