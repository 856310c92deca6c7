package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/referra/internal/audit/domain"
	commissiondomain "github.com/smallbiznis/referra/internal/commission/domain"
	"github.com/smallbiznis/referra/internal/config"
	obstracing "github.com/smallbiznis/referra/internal/observability/tracing"
	partnerdomain "github.com/smallbiznis/referra/internal/partner/domain"
	"github.com/smallbiznis/referra/internal/ratelimit"
	tenantdomain "github.com/smallbiznis/referra/internal/tenant/domain"
	tierdomain "github.com/smallbiznis/referra/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	tenantRepo    tenantdomain.Repository
	partnerSvc    partnerdomain.Service
	tierSvc       tierdomain.Service
	commissionSvc commissiondomain.Service
	auditSvc      auditdomain.Service
	limiter       *ratelimit.IngestLimiter
}

type Params struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	TenantRepo    tenantdomain.Repository
	PartnerSvc    partnerdomain.Service
	TierSvc       tierdomain.Service
	CommissionSvc commissiondomain.Service
	AuditSvc      auditdomain.Service
	Limiter       *ratelimit.IngestLimiter `optional:"true"`
}

func NewServer(p Params) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("http.server"),
		genID:         p.GenID,
		tenantRepo:    p.TenantRepo,
		partnerSvc:    p.PartnerSvc,
		tierSvc:       p.TierSvc,
		commissionSvc: p.CommissionSvc,
		auditSvc:      p.AuditSvc,
		limiter:       p.Limiter,
	}
}

func registerRoutes(s *Server) {
	v1 := s.engine.Group("/v1")
	v1.Use(s.TenantContext())

	v1.POST("/transactions", s.RateLimited(), s.ProcessTransaction)

	v1.GET("/commissions", s.ListCommissions)
	v1.GET("/commissions/:id", s.GetCommissionByID)

	v1.POST("/partners", s.EnrollPartner)
	v1.GET("/partners", s.ListPartners)
	v1.GET("/partners/:id", s.GetPartnerByID)
	v1.POST("/partners/:id/sever", s.SeverPartnerSponsor)

	v1.POST("/tiers", s.CreateTier)
	v1.GET("/tiers", s.ListTiers)

	v1.GET("/audit-logs", s.ListAuditLogs)
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
