package domain

import (
	"context"
	"errors"
)

type AuthorizeMerchantRequest struct {
	MerchantID int64
	Principal  string
}

type Service interface {
	// Authorize registers the principal permitted to mint for the merchant.
	// It is an idempotent upsert: a prior principal is overwritten.
	Authorize(context.Context, AuthorizeMerchantRequest) (Merchant, error)
	// Resolve returns the merchant record, or ErrMerchantNotFound if the
	// merchant was never authorized.
	Resolve(ctx context.Context, merchantID int64) (Merchant, error)
	// IsAuthorized reports whether the principal is registered for any merchant.
	IsAuthorized(ctx context.Context, principal string) (bool, error)
}

var (
	ErrInvalidMerchantID = errors.New("invalid_merchant_id")
	ErrInvalidPrincipal  = errors.New("invalid_principal")
	ErrMerchantNotFound  = errors.New("merchant_not_found")
)
