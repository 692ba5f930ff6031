package domain

import (
	"strings"
	"time"
)

// CouponType is the discount mechanism a coupon applies.
type CouponType string

const (
	CouponTypePercentage   CouponType = "percentage"
	CouponTypeFixedAmount  CouponType = "fixed_amount"
	CouponTypeBuyOneGetOne CouponType = "buy_one_get_one"
	CouponTypeFreeItem     CouponType = "free_item"
)

// ParseCouponType normalizes and validates a coupon type value.
func ParseCouponType(value string) (CouponType, error) {
	normalized := CouponType(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case CouponTypePercentage, CouponTypeFixedAmount, CouponTypeBuyOneGetOne, CouponTypeFreeItem:
		return normalized, nil
	default:
		return "", ErrInvalidCouponType
	}
}

// RarityLevel is display and economic metadata only; it never affects redemption.
type RarityLevel string

const (
	RarityCommon    RarityLevel = "common"
	RarityUncommon  RarityLevel = "uncommon"
	RarityRare      RarityLevel = "rare"
	RarityEpic      RarityLevel = "epic"
	RarityLegendary RarityLevel = "legendary"
)

// ParseRarityLevel normalizes and validates a rarity value.
func ParseRarityLevel(value string) (RarityLevel, error) {
	normalized := RarityLevel(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary:
		return normalized, nil
	default:
		return "", ErrInvalidRarityLevel
	}
}

// Coupon is the canonical ledger record for one issued coupon. Token IDs are
// assigned sequentially at mint time and never reused; exhausted and recycled
// coupons stay queryable as historical records.
type Coupon struct {
	TokenID           int64       `gorm:"primaryKey;column:token_id" json:"token_id"`
	Owner             string      `gorm:"type:text;not null;index" json:"owner"`
	MerchantID        int64       `gorm:"not null;index" json:"merchant_id"`
	CouponType        CouponType  `gorm:"type:text;not null" json:"coupon_type"`
	DiscountValue     int64       `gorm:"not null" json:"discount_value"`
	MaxQuantity       int         `gorm:"not null" json:"max_quantity"`
	RemainingQuantity int         `gorm:"not null" json:"remaining_quantity"`
	ExpiresAt         time.Time   `gorm:"not null" json:"expires_at"`
	RarityLevel       RarityLevel `gorm:"type:text;not null" json:"rarity_level"`
	Description       string      `gorm:"type:text" json:"description"`
	MetadataRef       string      `gorm:"type:text;column:metadata_ref" json:"metadata_ref"`
	IsUsed            bool        `gorm:"not null;default:false" json:"is_used"`
	IsRecycled        bool        `gorm:"not null;default:false" json:"is_recycled"`
	CreatedAt         time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Coupon) TableName() string { return "coupons" }

// CounterTokenID names the monotonic token-id sequence row. Its value is also
// the total number of coupons ever issued.
const CounterTokenID = "token_id"

// CouponCounter is a named monotonic counter bumped inside the issuing transaction.
type CouponCounter struct {
	Name  string `gorm:"primaryKey;type:text"`
	Value int64  `gorm:"not null"`
}

// TableName sets the database table name.
func (CouponCounter) TableName() string { return "coupon_counters" }
