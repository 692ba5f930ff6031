package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EventType string

const (
	EventMerchantAuthorized EventType = "merchant.authorized"
	EventCouponMinted       EventType = "coupon.minted"
	EventCouponUsed         EventType = "coupon.used"
	EventCouponRecycled     EventType = "coupon.recycled"
)

// CouponEvent captures outbox rows for ledger notifications. Rows are written
// in the same transaction as the state change they describe; delivery happens
// asynchronously and never rolls the change back.
type CouponEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	EventType   string            `gorm:"type:text;not null;index"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey   *string           `gorm:"type:text;uniqueIndex:ux_coupon_events_dedupe"`
	Published   bool              `gorm:"not null;default:false;index"`
	Attempts    int               `gorm:"not null;default:0"`
	PublishedAt *time.Time        `gorm:""`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CouponEvent) TableName() string { return "coupon_events" }
