package domain

import (
	"context"
	"errors"
	"time"

	"github.com/perkforge/couponvault/pkg/db/pagination"
)

type MintCouponRequest struct {
	Recipient     string
	MerchantID    int64
	CouponType    CouponType
	DiscountValue int64
	MaxQuantity   int
	ExpiresAt     time.Time
	RarityLevel   RarityLevel
	Description   string
	MetadataRef   string
}

// RedeemResult reports one successful redemption.
type RedeemResult struct {
	TokenID           int64 `json:"token_id"`
	AppliedDiscount   int64 `json:"applied_discount"`
	RemainingQuantity int   `json:"remaining_quantity"`
	Recycled          bool  `json:"recycled"`
}

type ListCouponsRequest struct {
	Owner      string
	MerchantID int64
	PageToken  string
	PageSize   int32
}

// CouponView is a coupon annotated with its current validity for read paths.
type CouponView struct {
	Coupon
	Valid bool `json:"valid"`
}

type ListCouponsResponse struct {
	pagination.PageInfo
	Coupons []CouponView `json:"coupons"`
}

type Service interface {
	// Mint issues a new coupon to the recipient. The caller principal (from
	// context) must match the principal registered for the merchant.
	Mint(context.Context, MintCouponRequest) (Coupon, error)
	// GetCoupon returns the ledger record, or ErrTokenNotFound.
	GetCoupon(ctx context.Context, tokenID int64) (Coupon, error)
	// Redeem consumes one use of the coupon on behalf of the caller principal
	// and returns the discount magnitude to apply. When the last use is
	// consumed the coupon is retired in the same step.
	Redeem(ctx context.Context, tokenID int64) (RedeemResult, error)
	// IsValid reports whether the coupon is currently redeemable. An absent
	// token yields false, not an error.
	IsValid(ctx context.Context, tokenID int64) (bool, error)
	List(context.Context, ListCouponsRequest) (ListCouponsResponse, error)
	// TotalIssued returns the number of coupons ever minted.
	TotalIssued(ctx context.Context) (int64, error)
}

var (
	ErrUnauthorizedMerchant       = errors.New("unauthorized_merchant")
	ErrInvalidQuantity            = errors.New("invalid_quantity")
	ErrTokenNotFound              = errors.New("token_not_found")
	ErrNotOwner                   = errors.New("not_owner")
	ErrCouponAlreadyUsedOrExpired = errors.New("coupon_already_used_or_expired")

	ErrInvalidTokenID       = errors.New("invalid_token_id")
	ErrInvalidRecipient     = errors.New("invalid_recipient")
	ErrInvalidCouponType    = errors.New("invalid_coupon_type")
	ErrInvalidRarityLevel   = errors.New("invalid_rarity_level")
	ErrInvalidDiscountValue = errors.New("invalid_discount_value")
)
