package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/perkforge/couponvault/internal/clock"
	"github.com/perkforge/couponvault/internal/events"
	"github.com/perkforge/couponvault/internal/merchant/domain"
	obsmetrics "github.com/perkforge/couponvault/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       domain.Repository
	Outbox     *events.Outbox      `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       domain.Repository
	outbox     *events.Outbox
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("merchant.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		outbox:     p.Outbox,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Authorize(ctx context.Context, req domain.AuthorizeMerchantRequest) (domain.Merchant, error) {
	if req.MerchantID <= 0 {
		return domain.Merchant{}, domain.ErrInvalidMerchantID
	}

	principal := strings.TrimSpace(req.Principal)
	if principal == "" {
		return domain.Merchant{}, domain.ErrInvalidPrincipal
	}

	now := s.clock.Now()
	merchant := domain.Merchant{
		MerchantID: req.MerchantID,
		Principal:  principal,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Upsert(ctx, tx, &merchant); err != nil {
			return err
		}

		if s.outbox != nil {
			return s.outbox.PublishTx(ctx, tx, events.Event{
				Type: events.EventMerchantAuthorized,
				Payload: map[string]any{
					"merchant_id": strconv.FormatInt(merchant.MerchantID, 10),
					"principal":   merchant.Principal,
				},
			})
		}
		return nil
	})
	if err != nil {
		return domain.Merchant{}, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordAuthorization(ctx)
	}

	s.log.Info("merchant authorized",
		zap.Int64("merchant_id", merchant.MerchantID),
		zap.String("principal", merchant.Principal),
	)

	return merchant, nil
}

func (s *Service) Resolve(ctx context.Context, merchantID int64) (domain.Merchant, error) {
	if merchantID <= 0 {
		return domain.Merchant{}, domain.ErrInvalidMerchantID
	}

	merchant, err := s.repo.FindByID(ctx, s.db, merchantID)
	if err != nil {
		return domain.Merchant{}, err
	}
	if merchant == nil {
		return domain.Merchant{}, domain.ErrMerchantNotFound
	}

	return *merchant, nil
}

func (s *Service) IsAuthorized(ctx context.Context, principal string) (bool, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return false, nil
	}
	return s.repo.ExistsPrincipal(ctx, s.db, principal)
}
