package domain

import "time"

// Merchant maps a merchant identifier to the principal allowed to mint
// coupons on its behalf. Re-authorization overwrites the principal; merchants
// are never deleted.
type Merchant struct {
	MerchantID int64     `gorm:"primaryKey;column:merchant_id" json:"merchant_id"`
	Principal  string    `gorm:"type:text;not null;index" json:"principal"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Merchant) TableName() string { return "merchants" }
