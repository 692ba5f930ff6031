// Package validity holds the read-side redeemability predicate. It is the one
// read surface guaranteed side-effect-free, safe to call at any concurrency,
// and is shared by listing, display, and the validity endpoint.
package validity

import (
	"time"

	"github.com/perkforge/couponvault/internal/coupon/domain"
)

// Redeemable reports whether the coupon can currently be redeemed: it exists,
// has never been exhausted, and is not past expiry. An exhausted coupon keeps
// IsUsed set forever, so the remaining-quantity check is subsumed.
func Redeemable(coupon *domain.Coupon, now time.Time) bool {
	if coupon == nil {
		return false
	}
	if coupon.IsUsed {
		return false
	}
	return !now.After(coupon.ExpiresAt)
}
