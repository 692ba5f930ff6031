package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, merchant *Merchant) error
	FindByID(ctx context.Context, db *gorm.DB, merchantID int64) (*Merchant, error)
	ExistsPrincipal(ctx context.Context, db *gorm.DB, principal string) (bool, error)
}
