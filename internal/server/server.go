package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/perkforge/couponvault/internal/config"
	"github.com/perkforge/couponvault/internal/coupon"
	coupondomain "github.com/perkforge/couponvault/internal/coupon/domain"
	"github.com/perkforge/couponvault/internal/events"
	"github.com/perkforge/couponvault/internal/merchant"
	merchantdomain "github.com/perkforge/couponvault/internal/merchant/domain"
	obslogger "github.com/perkforge/couponvault/internal/observability/logger"
	obsmetrics "github.com/perkforge/couponvault/internal/observability/metrics"
	obstracing "github.com/perkforge/couponvault/internal/observability/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	events.Module,
	merchant.Module,
	coupon.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           cfg.Environment == "development",
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(CallerMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(cfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	merchantSvc merchantdomain.Service
	couponSvc   coupondomain.Service
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	MerchantSvc merchantdomain.Service
	CouponSvc   coupondomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		merchantSvc: p.MerchantSvc,
		couponSvc:   p.CouponSvc,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	merchants := v1.Group("/merchants")
	{
		merchants.PUT("/:merchant_id/principal", s.AuthorizeMerchant)
		merchants.GET("/:merchant_id", s.GetMerchant)
		merchants.GET("/principals/:principal", s.CheckPrincipal)
	}

	coupons := v1.Group("/coupons")
	{
		coupons.POST("", s.MintCoupon)
		coupons.GET("", s.ListCoupons)
		coupons.GET("/:token_id", s.GetCoupon)
		coupons.POST("/:token_id/redeem", s.RedeemCoupon)
		coupons.GET("/:token_id/valid", s.CheckCouponValid)
	}

	v1.GET("/supply", s.GetSupply)
}
