package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	analyticsdomain "github.com/smallbiznis/upkeep/internal/analytics/domain"
	auditdomain "github.com/smallbiznis/upkeep/internal/audit/domain"
	authdomain "github.com/smallbiznis/upkeep/internal/auth/domain"
	"github.com/smallbiznis/upkeep/internal/authorization"
	"github.com/smallbiznis/upkeep/internal/clock"
	"github.com/smallbiznis/upkeep/internal/config"
	maintenancedomain "github.com/smallbiznis/upkeep/internal/maintenance/domain"
	"github.com/smallbiznis/upkeep/internal/observability"
	obsmiddleware "github.com/smallbiznis/upkeep/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/upkeep/internal/observability/metrics"
	obstracing "github.com/smallbiznis/upkeep/internal/observability/tracing"
	"github.com/smallbiznis/upkeep/internal/providers/pdf"
	"github.com/smallbiznis/upkeep/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const publicStatusRoute = "/api/maintenance/status/:client_id"

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
		QuietRoutes:     []string{"/metrics", "/health", publicStatusRoute},
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, cfg config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics, cfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
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
	engine         *gin.Engine
	cfg            config.Config
	clock          clock.Clock
	authsvc        authdomain.Service
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	maintenanceSvc maintenancedomain.Service
	analyticsSvc   analyticsdomain.Service
	receipts       pdf.Provider
	statusLimiter  *ratelimit.PublicStatusLimiter
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Clock          clock.Clock
	Authsvc        authdomain.Service
	AuthzSvc       authorization.Service
	AuditSvc       auditdomain.Service
	MaintenanceSvc maintenancedomain.Service
	AnalyticsSvc   analyticsdomain.Service
	Receipts       pdf.Provider
	StatusLimiter  *ratelimit.PublicStatusLimiter `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics            `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		clock:          p.Clock,
		authsvc:        p.Authsvc,
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		maintenanceSvc: p.MaintenanceSvc,
		analyticsSvc:   p.AnalyticsSvc,
		receipts:       p.Receipts,
		statusLimiter:  p.StatusLimiter,
		obsMetrics:     p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerAdminRoutes()
	svc.registerPublicRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/auth")

	auth.POST("/login", s.Login)
	auth.POST("/setup-admin", s.SetupAdmin)
	auth.POST("/logout", s.AdminRequired(), s.Logout)
	auth.GET("/me", s.AdminRequired(), s.Me)
}

func (s *Server) registerAdminRoutes() {
	api := s.engine.Group("/api", s.AdminRequired())

	clients := api.Group("/clients")
	clients.GET("", s.authorizeAction(authorization.ObjectClient, authorization.ActionClientView), s.ListClients)
	clients.POST("", s.authorizeAction(authorization.ObjectClient, authorization.ActionClientCreate), s.CreateClient)
	clients.GET("/:id", s.authorizeAction(authorization.ObjectClient, authorization.ActionClientView), s.GetClient)
	clients.PUT("/:id", s.authorizeAction(authorization.ObjectClient, authorization.ActionClientUpdate), s.EditClient)
	clients.GET("/:id/payments/:paymentId/receipt", s.authorizeAction(authorization.ObjectClient, authorization.ActionClientReceipt), s.DownloadReceipt)

	maintenance := api.Group("/maintenance")
	maintenance.PUT("/:id/update-maintenance", s.authorizeAction(authorization.ObjectMaintenance, authorization.ActionMaintenanceUpdate), s.UpdateMaintenance)
	maintenance.POST("/:id/mark-paid", s.authorizeAction(authorization.ObjectMaintenance, authorization.ActionMaintenanceMarkPaid), s.MarkPaid)
	maintenance.POST("/:id/suspend", s.authorizeAction(authorization.ObjectMaintenance, authorization.ActionMaintenanceSuspend), s.Suspend)
	maintenance.POST("/:id/activate", s.authorizeAction(authorization.ObjectMaintenance, authorization.ActionMaintenanceActivate), s.Activate)

	analytics := api.Group("/analytics", s.authorizeAction(authorization.ObjectAnalytics, authorization.ActionAnalyticsView))
	analytics.GET("/summary", s.AnalyticsSummary)
	analytics.GET("/status-breakdown", s.AnalyticsStatusBreakdown)

	api.GET("/audit-logs", s.authorizeAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerPublicRoutes() {
	s.engine.GET(publicStatusRoute, s.PublicStatusRateLimit(), s.PublicStatus)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
