package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/voltoralabs/voltora/internal/adapter"
	"github.com/voltoralabs/voltora/internal/aggregate"
	"github.com/voltoralabs/voltora/internal/billingperiod"
	"github.com/voltoralabs/voltora/internal/cloudmetrics"
	"github.com/voltoralabs/voltora/internal/config"
	"github.com/voltoralabs/voltora/internal/ingest"
	ingestdomain "github.com/voltoralabs/voltora/internal/ingest/domain"
	"github.com/voltoralabs/voltora/internal/ingestlog"
	ingestlogdomain "github.com/voltoralabs/voltora/internal/ingestlog/domain"
	"github.com/voltoralabs/voltora/internal/observability"
	obsmiddleware "github.com/voltoralabs/voltora/internal/observability/logger"
	obstracing "github.com/voltoralabs/voltora/internal/observability/tracing"
	"github.com/voltoralabs/voltora/internal/ratelimit"
	"github.com/voltoralabs/voltora/internal/reading"
	"github.com/voltoralabs/voltora/internal/resolver"
	"github.com/voltoralabs/voltora/internal/schema"
	"github.com/voltoralabs/voltora/internal/site"
	sitedomain "github.com/voltoralabs/voltora/internal/site/domain"
	"github.com/voltoralabs/voltora/internal/tariff"
)

var Module = fx.Module("http.server",
	cloudmetrics.Module,
	fx.Provide(registerGin),
	schema.Module,
	adapter.Module,
	tariff.Module,
	billingperiod.Module,
	site.Module,
	resolver.Module,
	reading.Module,
	aggregate.Module,
	ingestlog.Module,
	ingest.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, metrics *cloudmetrics.CloudMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, metrics *cloudmetrics.CloudMetrics) *gin.Engine {
	return NewEngine(obsCfg, metrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine        *gin.Engine
	cfg           config.Config
	ingestSvc     ingestdomain.Service
	logsSvc       ingestlogdomain.Service
	siteSvc       sitedomain.Service
	metrics       *cloudmetrics.CloudMetrics
	ingestLimiter *ratelimit.IngestLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	IngestSvc     ingestdomain.Service
	LogsSvc       ingestlogdomain.Service
	SiteSvc       sitedomain.Service
	Metrics       *cloudmetrics.CloudMetrics
	IngestLimiter *ratelimit.IngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		ingestSvc:     p.IngestSvc,
		logsSvc:       p.LogsSvc,
		siteSvc:       p.SiteSvc,
		metrics:       p.Metrics,
		ingestLimiter: p.IngestLimiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.OrgContext())

	ingestGroup := v1.Group("/ingest", s.RequireOrg(), s.IngestRateLimit())
	{
		ingestGroup.POST("/records", s.IngestRecords)
		ingestGroup.POST("/files", s.IngestFile)
		ingestGroup.POST("/billing", s.IngestBilling)
	}

	v1.GET("/ingestions", s.RequireOrg(), s.ListIngestions)
	v1.GET("/ingestions/:id", s.RequireOrg(), s.GetIngestionByID)

	v1.POST("/sites", s.RequireOrg(), s.CreateSite)
	v1.GET("/sites", s.RequireOrg(), s.ListSites)
	v1.GET("/sites/:id", s.RequireOrg(), s.GetSiteByID)
}
