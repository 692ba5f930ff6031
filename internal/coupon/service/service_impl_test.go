package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/perkforge/couponvault/internal/callerctx"
	"github.com/perkforge/couponvault/internal/clock"
	"github.com/perkforge/couponvault/internal/config"
	"github.com/perkforge/couponvault/internal/coupon/domain"
	"github.com/perkforge/couponvault/internal/coupon/repository"
	"github.com/perkforge/couponvault/internal/events"
	merchantdomain "github.com/perkforge/couponvault/internal/merchant/domain"
	merchantrepository "github.com/perkforge/couponvault/internal/merchant/repository"
	merchantservice "github.com/perkforge/couponvault/internal/merchant/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const retirementHolder = "vault:retired"

type couponEnv struct {
	db          *gorm.DB
	fake        *clock.FakeClock
	svc         domain.Service
	merchantSvc merchantdomain.Service
	outbox      *events.Outbox
}

func setupCouponEnv(t *testing.T) *couponEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&merchantdomain.Merchant{},
		&domain.Coupon{},
		&domain.CouponCounter{},
		&events.CouponEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	outbox := events.NewOutbox(events.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	merchantSvc := merchantservice.New(merchantservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  fake,
		Repo:   merchantrepository.Provide(),
		Outbox: outbox,
	})

	svc := New(Params{
		Cfg:         config.Config{RetirementHolder: retirementHolder},
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       fake,
		Repo:        repository.Provide(),
		MerchantSvc: merchantSvc,
		Outbox:      outbox,
	})

	return &couponEnv{
		db:          db,
		fake:        fake,
		svc:         svc,
		merchantSvc: merchantSvc,
		outbox:      outbox,
	}
}

func (e *couponEnv) authorize(t *testing.T, merchantID int64, principal string) {
	t.Helper()
	_, err := e.merchantSvc.Authorize(context.Background(), merchantdomain.AuthorizeMerchantRequest{
		MerchantID: merchantID,
		Principal:  principal,
	})
	require.NoError(t, err)
}

func (e *couponEnv) mint(t *testing.T, caller string, req domain.MintCouponRequest) domain.Coupon {
	t.Helper()
	ctx := callerctx.WithPrincipal(context.Background(), caller)
	coupon, err := e.svc.Mint(ctx, req)
	require.NoError(t, err)
	return coupon
}

func (e *couponEnv) mintRequest() domain.MintCouponRequest {
	return domain.MintCouponRequest{
		Recipient:     "user:bob",
		MerchantID:    7,
		CouponType:    domain.CouponTypePercentage,
		DiscountValue: 15,
		MaxQuantity:   3,
		ExpiresAt:     e.fake.Now().Add(24 * time.Hour),
		RarityLevel:   domain.RarityCommon,
	}
}

func (e *couponEnv) eventCount(t *testing.T, eventType events.EventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Raw(
		`SELECT COUNT(*) FROM coupon_events WHERE event_type = ?`, string(eventType),
	).Scan(&count).Error)
	return count
}

func TestMintAssignsSequentialTokenIDs(t *testing.T) {
	env := setupCouponEnv(t)
	env.authorize(t, 7, "merchant:alpha")

	first := env.mint(t, "merchant:alpha", env.mintRequest())
	assert.Equal(t, int64(1), first.TokenID)
	assert.Equal(t, "user:bob", first.Owner)
	assert.Equal(t, 3, first.MaxQuantity)
	assert.Equal(t, 3, first.RemainingQuantity)
	assert.False(t, first.IsUsed)
	assert.False(t, first.IsRecycled)

	second := env.mint(t, "merchant:alpha", env.mintRequest())
	assert.Equal(t, int64(2), second.TokenID)

	total, err := env.svc.TotalIssued(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	assert.Equal(t, int64(2), env.eventCount(t, events.EventCouponMinted))
}

func TestMintAuthorization(t *testing.T) {
	env := setupCouponEnv(t)
	env.authorize(t, 7, "merchant:alpha")

	// No caller principal at all.
	_, err := env.svc.Mint(context.Background(), env.mintRequest())
	assert.ErrorIs(t, err, domain.ErrUnauthorizedMerchant)

	// Caller does not match the registered principal.
	ctx := callerctx.WithPrincipal(context.Background(), "merchant:impostor")
	_, err = env.svc.Mint(ctx, env.mintRequest())
	assert.ErrorIs(t, err, domain.ErrUnauthorizedMerchant)

	// Merchant was never authorized.
	req := env.mintRequest()
	req.MerchantID = 99
	ctx = callerctx.WithPrincipal(context.Background(), "merchant:alpha")
	_, err = env.svc.Mint(ctx, req)
	assert.ErrorIs(t, err, domain.ErrUnauthorizedMerchant)

	// Nothing was issued along the way.
	total, err := env.svc.TotalIssued(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMintValidation(t *testing.T) {
	env := setupCouponEnv(t)
	env.authorize(t, 7, "merchant:alpha")
	ctx := callerctx.WithPrincipal(context.Background(), "merchant:alpha")

	req := env.mintRequest()
	req.Recipient = "  "
	_, err := env.svc.Mint(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidRecipient)

	req = env.mintRequest()
	req.MaxQuantity = 0
	_, err = env.svc.Mint(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	req = env.mintRequest()
	req.DiscountValue = -1
	_, err = env.svc.Mint(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidDiscountValue)

	req = env.mintRequest()
	req.CouponType = "mystery"
	_, err = env.svc.Mint(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidCouponType)

	req = env.mintRequest()
	req.RarityLevel = "mythic"
	_, err = env.svc.Mint(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidRarityLevel)
}

func TestMintPastExpiryAllowed(t *testing.T) {
	env := setupCouponEnv(t)
	env.authorize(t, 7, "merchant:alpha")

	// Minting an already-expired coupon is permitted; the record simply reads
	// as invalid from the moment it exists.
	req := env.mintRequest()
	req.ExpiresAt = env.fake.Now().Add(-time.Hour)
	coupon := env.mint(t, "merchant:alpha", req)

	valid, err := env.svc.IsValid(context.Background(), coupon.TokenID)
	require.NoError(t, err)
	assert.False(t, valid)

	ctx := callerctx.WithPrincipal(context.Background(), "user:bob")
	_, err = env.svc.Redeem(ctx, coupon.TokenID)
	assert.ErrorIs(t, err, domain.ErrCouponAlreadyUsedOrExpired)
}

func TestGetCouponNotFound(t *testing.T) {
	env := setupCouponEnv(t)

	_, err := env.svc.GetCoupon(context.Background(), 12345)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestRedeemDecrementsAndKeepsOwner(t *testing.T) {
	env := setupCouponEnv(t)
	env.authorize(t, 7, "merchant:alpha")

	req := env.mintRequest()
	req.DiscountValue = 500
	coupon := env.mint(t, "merchant:alpha", req)

	ctx := callerctx.WithPrincipal(context.Background(), "user:bob")
	result, err := env.svc.Redeem(ctx, coupon.TokenID)
	require.NoError(t, err)
	assert.Equal(t, coupon.TokenID, result.TokenID)
	assert.Equal(t, int64(500), result.AppliedDiscount)
	assert.Equal(t, 2, result.RemainingQuantity)
	assert.False(t, result.Recycled)

	stored, err := env.svc.GetCoupon(context.Background(), coupon.TokenID)
	require.NoError(t, err)
	assert.Equal(t, "user:bob", stored.Owner)
	assert.Equal(t, 2, stored.RemainingQuantity)
	assert.False(t, stored.IsUsed)

	assert.Equal(t, int64(1), env.eventCount(t, events.EventCouponUsed))
}

func TestRedeemNotOwner(t *testing.T) {
	env := setupCouponEnv(t)
	env.authorize(t, 7, "merchant:alpha")
	coupon := env.mint(t, "merchant:alpha", env.mintRequest())

	ctx := callerctx.WithPrincipal(context.Background(), "user:mallory")
	_, err := env.svc.Redeem(ctx, coupon.TokenID)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	// Anonymous callers never own anything.
	_, err = env.svc.Redeem(context.Background(), coupon.TokenID)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	stored, err := env.svc.GetCoupon(context.Background(), coupon.TokenID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.RemainingQuantity)
}

func TestRedeemUnknownToken(t *testing.T) {
	env := setupCouponEnv(t)

	ctx := callerctx.WithPrincipal(context.Background(), "user:bob")
	_, err := env.svc.Redeem(ctx, 777)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestRedeemExpired(t *testing.T) {
	env := setupCouponEnv(t)
	env.authorize(t, 7, "merchant:alpha")
	coupon := env.mint(t, "merchant:alpha", env.mintRequest())

	env.fake.Advance(25 * time.Hour)

	ctx := callerctx.WithPrincipal(context.Background(), "user:bob")
	_, err := env.svc.Redeem(ctx, coupon.TokenID)
	assert.ErrorIs(t, err, domain.ErrCouponAlreadyUsedOrExpired)

	stored, err := env.svc.GetCoupon(context.Background(), coupon.TokenID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.RemainingQuantity)
	assert.False(t, stored.IsUsed)
}

func TestLastUseRecyclesAtomically(t *testing.T) {
	env := setupCouponEnv(t)
	env.authorize(t, 7, "merchant:alpha")

	req := env.mintRequest()
	req.MaxQuantity = 1
	coupon := env.mint(t, "merchant:alpha", req)

	ctx := callerctx.WithPrincipal(context.Background(), "user:bob")
	result, err := env.svc.Redeem(ctx, coupon.TokenID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RemainingQuantity)
	assert.True(t, result.Recycled)

	stored, err := env.svc.GetCoupon(context.Background(), coupon.TokenID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.RemainingQuantity)
	assert.True(t, stored.IsUsed)
	assert.True(t, stored.IsRecycled)
	assert.Equal(t, retirementHolder, stored.Owner)

	// A second use fails the same way for every caller, old owner or new.
	_, err = env.svc.Redeem(ctx, coupon.TokenID)
	assert.ErrorIs(t, err, domain.ErrCouponAlreadyUsedOrExpired)

	holderCtx := callerctx.WithPrincipal(context.Background(), retirementHolder)
	_, err = env.svc.Redeem(holderCtx, coupon.TokenID)
	assert.ErrorIs(t, err, domain.ErrCouponAlreadyUsedOrExpired)

	valid, err := env.svc.IsValid(context.Background(), coupon.TokenID)
	require.NoError(t, err)
	assert.False(t, valid)

	assert.Equal(t, int64(1), env.eventCount(t, events.EventCouponRecycled))
}

func TestMultiUseLifecycle(t *testing.T) {
	env := setupCouponEnv(t)
	env.authorize(t, 7, "merchant:alpha")

	req := env.mintRequest()
	req.MaxQuantity = 100
	coupon := env.mint(t, "merchant:alpha", req)

	ctx := callerctx.WithPrincipal(context.Background(), "user:bob")
	for i := 0; i < 99; i++ {
		result, err := env.svc.Redeem(ctx, coupon.TokenID)
		require.NoError(t, err)
		assert.Equal(t, 99-i, result.RemainingQuantity)
		assert.False(t, result.Recycled)
	}

	stored, err := env.svc.GetCoupon(context.Background(), coupon.TokenID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RemainingQuantity)
	assert.False(t, stored.IsUsed)
	assert.False(t, stored.IsRecycled)
	assert.Equal(t, "user:bob", stored.Owner)

	result, err := env.svc.Redeem(ctx, coupon.TokenID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RemainingQuantity)
	assert.True(t, result.Recycled)

	stored, err = env.svc.GetCoupon(context.Background(), coupon.TokenID)
	require.NoError(t, err)
	assert.True(t, stored.IsUsed)
	assert.True(t, stored.IsRecycled)
	assert.Equal(t, retirementHolder, stored.Owner)
}

func TestConcurrentRedeemLastUnit(t *testing.T) {
	env := setupCouponEnv(t)
	env.authorize(t, 7, "merchant:alpha")

	req := env.mintRequest()
	req.MaxQuantity = 1
	coupon := env.mint(t, "merchant:alpha", req)

	ctx := callerctx.WithPrincipal(context.Background(), "user:bob")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Redeem(ctx, coupon.TokenID)
		}(i)
	}
	wg.Wait()

	successes := 0
	conflicts := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case err == domain.ErrCouponAlreadyUsedOrExpired:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	stored, err := env.svc.GetCoupon(context.Background(), coupon.TokenID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.RemainingQuantity)
	assert.True(t, stored.IsUsed)
	assert.Equal(t, retirementHolder, stored.Owner)
}

func TestIsValidAbsentToken(t *testing.T) {
	env := setupCouponEnv(t)

	valid, err := env.svc.IsValid(context.Background(), 9999)
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = env.svc.IsValid(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestListCouponsByOwner(t *testing.T) {
	env := setupCouponEnv(t)
	env.authorize(t, 7, "merchant:alpha")

	env.mint(t, "merchant:alpha", env.mintRequest())

	expired := env.mintRequest()
	expired.ExpiresAt = env.fake.Now().Add(-time.Hour)
	env.mint(t, "merchant:alpha", expired)

	other := env.mintRequest()
	other.Recipient = "user:carol"
	env.mint(t, "merchant:alpha", other)

	resp, err := env.svc.List(context.Background(), domain.ListCouponsRequest{Owner: "user:bob"})
	require.NoError(t, err)
	require.Len(t, resp.Coupons, 2)
	assert.False(t, resp.HasMore)

	// Newest first; the expired mint reads as invalid, the live one as valid.
	assert.Equal(t, int64(2), resp.Coupons[0].TokenID)
	assert.False(t, resp.Coupons[0].Valid)
	assert.Equal(t, int64(1), resp.Coupons[1].TokenID)
	assert.True(t, resp.Coupons[1].Valid)
}

func TestListCouponsPagination(t *testing.T) {
	env := setupCouponEnv(t)
	env.authorize(t, 7, "merchant:alpha")

	for i := 0; i < 5; i++ {
		env.mint(t, "merchant:alpha", env.mintRequest())
	}

	first, err := env.svc.List(context.Background(), domain.ListCouponsRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Coupons, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, int64(5), first.Coupons[0].TokenID)
	assert.Equal(t, int64(4), first.Coupons[1].TokenID)

	second, err := env.svc.List(context.Background(), domain.ListCouponsRequest{
		PageSize:  2,
		PageToken: first.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, second.Coupons, 2)
	assert.Equal(t, int64(3), second.Coupons[0].TokenID)
	assert.Equal(t, int64(2), second.Coupons[1].TokenID)
}
