package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/tipy/docs"
	"github.com/fatflowers/tipy/internal/app/api/handlers"
	mw "github.com/fatflowers/tipy/internal/app/api/middleware"
	"github.com/fatflowers/tipy/internal/app/service/admin"
	"github.com/fatflowers/tipy/internal/app/service/earnings"
	"github.com/fatflowers/tipy/internal/app/service/reconciliation"
	"github.com/fatflowers/tipy/internal/app/service/suggestion"
	"github.com/fatflowers/tipy/internal/app/service/withdrawal"
	cfgpkg "github.com/fatflowers/tipy/pkg/config"
	metrics "github.com/fatflowers/tipy/pkg/metrics"
)

type routeDeps struct {
	fx.In

	Log         *zap.SugaredLogger
	Cfg         *cfgpkg.Config
	Payments    *reconciliation.Service
	Suggestions *suggestion.Service
	Earnings    *earnings.Service
	Withdrawals *withdrawal.Service
	Admin       *admin.Service
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	log, cfg := d.Log, d.Cfg

	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterPaymentRoutes(apiV1, d.Payments, log)
	handlers.RegisterSuggestionRoutes(apiV1, d.Suggestions, log)

	dj := apiV1.Group("/dj")
	dj.Use(mw.DJAuthMiddleware(cfg.Auth.JWTSecret, log))
	handlers.RegisterDJPaymentRoutes(dj, d.Payments, log)
	handlers.RegisterDJSuggestionRoutes(dj, d.Suggestions, log)
	handlers.RegisterDJRoutes(dj, d.Earnings, d.Withdrawals, log)

	adm := apiV1.Group("/admin")
	adm.Use(mw.AdminTokenMiddleware(cfg.Auth.AdminToken))
	handlers.RegisterAdminRoutes(adm, d.Admin, d.Earnings, d.Suggestions, d.Withdrawals, log)

	if cfg.Auth.JWTSecret == "" {
		log.Warnw("dj_auth_not_configured")
	}
	if cfg.Auth.AdminToken == "" {
		log.Warnw("admin_api_disabled")
	}
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
