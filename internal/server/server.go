package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/tollgate/internal/authorizer"
	"github.com/smallbiznis/tollgate/internal/config"
	"github.com/smallbiznis/tollgate/internal/observability/metrics"
	"github.com/smallbiznis/tollgate/internal/reporter"
	"github.com/smallbiznis/tollgate/internal/stats"
)

var Module = fx.Module("server",
	fx.Provide(NewEngine, NewServer),
	fx.Invoke(registerRoutes, run),
)

type Server struct {
	log        *zap.Logger
	engine     *authorizer.Engine
	reports    *reporter.Service
	errorStore *reporter.ErrorStore
	tracker    *stats.Tracker
	metrics    *metrics.Metrics
}

func NewServer(
	log *zap.Logger,
	engine *authorizer.Engine,
	reports *reporter.Service,
	errorStore *reporter.ErrorStore,
	tracker *stats.Tracker,
	m *metrics.Metrics,
) *Server {
	return &Server{
		log:        log.Named("server"),
		engine:     engine,
		reports:    reports,
		errorStore: errorStore,
		tracker:    tracker,
		metrics:    m,
	}
}

func NewEngine(m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	return r
}

func registerRoutes(r *gin.Engine, s *Server) {
	r.GET("/transactions/authorize", s.Authorize)
	r.POST("/transactions", s.Report)
	r.GET("/transactions/errors", s.ListTransactionErrors)
	r.DELETE("/transactions/errors", s.ClearTransactionErrors)

	r.GET("/stats/buckets", s.StatsBuckets)
	r.DELETE("/stats/failed_at_least_once", s.ResetFailedBuckets)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger, sh fx.Shutdowner) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go serve(srv, log, sh)
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// serve blocks on the listener. A listener failure requests an orderly
// application shutdown so the other lifecycle hooks still run.
func serve(srv *http.Server, log *zap.Logger, sh fx.Shutdowner) {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("http server failed", zap.Error(err))
		if sh != nil {
			_ = sh.Shutdown()
		}
	}
}
