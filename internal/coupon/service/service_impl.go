package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/perkforge/couponvault/internal/callerctx"
	"github.com/perkforge/couponvault/internal/clock"
	"github.com/perkforge/couponvault/internal/config"
	"github.com/perkforge/couponvault/internal/coupon/domain"
	"github.com/perkforge/couponvault/internal/coupon/validity"
	"github.com/perkforge/couponvault/internal/events"
	"github.com/perkforge/couponvault/internal/locks"
	merchantdomain "github.com/perkforge/couponvault/internal/merchant/domain"
	obsmetrics "github.com/perkforge/couponvault/internal/observability/metrics"
	"github.com/perkforge/couponvault/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const redeemLockTTL = 5 * time.Second

type Params struct {
	fx.In

	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        domain.Repository
	MerchantSvc merchantdomain.Service
	Outbox      *events.Outbox      `optional:"true"`
	Locker      *locks.Locker       `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	merchantSvc merchantdomain.Service
	outbox      *events.Outbox
	locker      *locks.Locker
	obsMetrics  *obsmetrics.Metrics

	// retirementHolder receives exhausted coupons. Fixed for the life of the ledger.
	retirementHolder string

	tokenLocks *tokenLocks
}

func New(p Params) domain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("coupon.service"),
		clock:            p.Clock,
		repo:             p.Repo,
		merchantSvc:      p.MerchantSvc,
		outbox:           p.Outbox,
		locker:           p.Locker,
		obsMetrics:       p.ObsMetrics,
		retirementHolder: p.Cfg.RetirementHolder,
		tokenLocks:       newTokenLocks(),
	}
}

func (s *Service) Mint(ctx context.Context, req domain.MintCouponRequest) (domain.Coupon, error) {
	caller, ok := callerctx.PrincipalFromContext(ctx)
	if !ok {
		return domain.Coupon{}, domain.ErrUnauthorizedMerchant
	}

	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		return domain.Coupon{}, domain.ErrInvalidRecipient
	}

	merchant, err := s.merchantSvc.Resolve(ctx, req.MerchantID)
	if err != nil {
		if errors.Is(err, merchantdomain.ErrMerchantNotFound) || errors.Is(err, merchantdomain.ErrInvalidMerchantID) {
			return domain.Coupon{}, domain.ErrUnauthorizedMerchant
		}
		return domain.Coupon{}, err
	}
	if merchant.Principal != caller {
		return domain.Coupon{}, domain.ErrUnauthorizedMerchant
	}

	if req.MaxQuantity <= 0 {
		return domain.Coupon{}, domain.ErrInvalidQuantity
	}
	if req.DiscountValue < 0 {
		return domain.Coupon{}, domain.ErrInvalidDiscountValue
	}

	couponType, err := domain.ParseCouponType(string(req.CouponType))
	if err != nil {
		return domain.Coupon{}, err
	}
	rarity, err := domain.ParseRarityLevel(string(req.RarityLevel))
	if err != nil {
		return domain.Coupon{}, err
	}

	// Expiry is deliberately not checked against the clock: a coupon minted
	// past its expiry is created normally and simply reads as invalid.
	now := s.clock.Now()
	coupon := domain.Coupon{
		Owner:             recipient,
		MerchantID:        req.MerchantID,
		CouponType:        couponType,
		DiscountValue:     req.DiscountValue,
		MaxQuantity:       req.MaxQuantity,
		RemainingQuantity: req.MaxQuantity,
		ExpiresAt:         req.ExpiresAt.UTC(),
		RarityLevel:       rarity,
		Description:       req.Description,
		MetadataRef:       strings.TrimSpace(req.MetadataRef),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tokenID, err := s.repo.NextTokenID(ctx, tx)
		if err != nil {
			return err
		}
		coupon.TokenID = tokenID

		if err := s.repo.Insert(ctx, tx, &coupon); err != nil {
			return err
		}

		if s.outbox != nil {
			return s.outbox.PublishTx(ctx, tx, events.Event{
				Type: events.EventCouponMinted,
				Payload: map[string]any{
					"token_id":       strconv.FormatInt(coupon.TokenID, 10),
					"owner":          coupon.Owner,
					"merchant_id":    strconv.FormatInt(coupon.MerchantID, 10),
					"coupon_type":    string(coupon.CouponType),
					"discount_value": coupon.DiscountValue,
					"max_quantity":   coupon.MaxQuantity,
					"expires_at":     coupon.ExpiresAt.Format(time.RFC3339),
					"rarity_level":   string(coupon.RarityLevel),
				},
				DedupeKey: "coupon_minted:" + strconv.FormatInt(coupon.TokenID, 10),
			})
		}
		return nil
	})
	if err != nil {
		return domain.Coupon{}, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordMint(ctx, string(coupon.CouponType))
	}

	s.log.Info("coupon minted",
		zap.Int64("token_id", coupon.TokenID),
		zap.Int64("merchant_id", coupon.MerchantID),
		zap.String("owner", coupon.Owner),
		zap.Int("max_quantity", coupon.MaxQuantity),
	)

	return coupon, nil
}

func (s *Service) GetCoupon(ctx context.Context, tokenID int64) (domain.Coupon, error) {
	if tokenID <= 0 {
		return domain.Coupon{}, domain.ErrTokenNotFound
	}

	coupon, err := s.repo.FindByID(ctx, s.db, tokenID)
	if err != nil {
		return domain.Coupon{}, err
	}
	if coupon == nil {
		return domain.Coupon{}, domain.ErrTokenNotFound
	}

	return *coupon, nil
}

func (s *Service) Redeem(ctx context.Context, tokenID int64) (domain.RedeemResult, error) {
	if tokenID <= 0 {
		return domain.RedeemResult{}, domain.ErrTokenNotFound
	}

	caller, _ := callerctx.PrincipalFromContext(ctx)

	// Serialize redemption per token: the critical section below must observe
	// and act on one remaining-quantity value at a time.
	release := s.tokenLocks.Acquire(tokenID)
	defer release()

	if s.locker != nil {
		fence, acquired, err := s.locker.TryLockToken(ctx, tokenID, redeemLockTTL)
		if err != nil {
			s.log.Warn("token lock unavailable, relying on database swap", zap.Int64("token_id", tokenID), zap.Error(err))
		} else if acquired {
			defer func() {
				if err := s.locker.ReleaseToken(context.WithoutCancel(ctx), tokenID, fence); err != nil {
					s.log.Warn("token lock release failed", zap.Int64("token_id", tokenID), zap.Error(err))
				}
			}()
		}
	}

	now := s.clock.Now()
	var result domain.RedeemResult
	var couponType domain.CouponType
	var recycled bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		coupon, err := s.repo.FindByID(ctx, tx, tokenID)
		if err != nil {
			return err
		}
		if coupon == nil {
			return domain.ErrTokenNotFound
		}
		if coupon.RemainingQuantity < 0 {
			// Only reachable through a concurrency-control bug, never caller input.
			s.log.Panic("negative remaining quantity",
				zap.Int64("token_id", coupon.TokenID),
				zap.Int("remaining_quantity", coupon.RemainingQuantity),
			)
		}
		// Terminal state wins over ownership: once a coupon is exhausted or
		// expired, every caller sees the same error, including the retirement
		// holder it was recycled to.
		if coupon.IsUsed || coupon.RemainingQuantity == 0 || now.After(coupon.ExpiresAt) {
			return domain.ErrCouponAlreadyUsedOrExpired
		}
		if coupon.Owner != caller || caller == "" {
			return domain.ErrNotOwner
		}

		applied, err := s.repo.DecrementRemaining(ctx, tx, tokenID, coupon.RemainingQuantity, now)
		if err != nil {
			return err
		}
		if !applied {
			// Lost the swap to a concurrent redemption of the same unit.
			return domain.ErrCouponAlreadyUsedOrExpired
		}

		newRemaining := coupon.RemainingQuantity - 1
		couponType = coupon.CouponType

		if newRemaining == 0 {
			// Retirement happens inside the same transaction as the decrement,
			// so no observer can see an exhausted coupon still held by the user.
			retired, err := s.repo.Retire(ctx, tx, tokenID, s.retirementHolder, now)
			if err != nil {
				return err
			}
			recycled = retired
			if retired && s.outbox != nil {
				if err := s.outbox.PublishTx(ctx, tx, events.Event{
					Type: events.EventCouponRecycled,
					Payload: map[string]any{
						"token_id":          strconv.FormatInt(tokenID, 10),
						"previous_owner":    coupon.Owner,
						"retirement_holder": s.retirementHolder,
					},
					DedupeKey: "coupon_recycled:" + strconv.FormatInt(tokenID, 10),
				}); err != nil {
					return err
				}
			}
		}

		if s.outbox != nil {
			if err := s.outbox.PublishTx(ctx, tx, events.Event{
				Type: events.EventCouponUsed,
				Payload: map[string]any{
					"token_id":           strconv.FormatInt(tokenID, 10),
					"caller":             caller,
					"remaining_quantity": newRemaining,
				},
				DedupeKey: "coupon_used:" + strconv.FormatInt(tokenID, 10) + ":" + strconv.Itoa(newRemaining),
			}); err != nil {
				return err
			}
		}

		result = domain.RedeemResult{
			TokenID:           tokenID,
			AppliedDiscount:   coupon.DiscountValue,
			RemainingQuantity: newRemaining,
			Recycled:          newRemaining == 0,
		}
		return nil
	})
	if err != nil {
		return domain.RedeemResult{}, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordUse(ctx, string(couponType))
		if recycled {
			s.obsMetrics.RecordRecycle(ctx)
		}
	}

	s.log.Info("coupon redeemed",
		zap.Int64("token_id", result.TokenID),
		zap.String("caller", caller),
		zap.Int("remaining_quantity", result.RemainingQuantity),
		zap.Bool("recycled", result.Recycled),
	)

	return result, nil
}

func (s *Service) IsValid(ctx context.Context, tokenID int64) (bool, error) {
	if tokenID <= 0 {
		return false, nil
	}

	coupon, err := s.repo.FindByID(ctx, s.db, tokenID)
	if err != nil {
		return false, err
	}

	return validity.Redeemable(coupon, s.clock.Now()), nil
}

func (s *Service) List(ctx context.Context, req domain.ListCouponsRequest) (domain.ListCouponsResponse, error) {
	filter := domain.ListCouponFilter{
		Owner:      strings.TrimSpace(req.Owner),
		MerchantID: req.MerchantID,
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListCouponsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(coupon *domain.Coupon) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID: strconv.FormatInt(coupon.TokenID, 10),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	now := s.clock.Now()
	coupons := make([]domain.CouponView, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		coupons = append(coupons, domain.CouponView{
			Coupon: *item,
			Valid:  validity.Redeemable(item, now),
		})
	}

	resp := domain.ListCouponsResponse{Coupons: coupons}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) TotalIssued(ctx context.Context) (int64, error) {
	return s.repo.TotalIssued(ctx, s.db)
}
