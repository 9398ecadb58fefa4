package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

// EngineConfig carries the settings the HTTP layer needs
type EngineConfig struct {
	HTTP             config.HTTPConfig
	Production       bool
	SyncSecret       string
	ServiceName      string
	TracingEnabled   bool
	ProfilingEnabled bool
}

// Handlers are the endpoint groups mounted on the engine
type Handlers struct {
	System   *handler.SystemHandler
	Products *handler.ProductHandler
	Sync     *handler.SyncHandler
}

// Engine is the configured gin engine plus the rate limiter whose idle
// clients the caller should prune with RunCleanup.
type Engine struct {
	*gin.Engine
	Limiter *middleware.RateLimiter
}

// NewEngine builds the gin engine with the full middleware chain:
// request id, recovery, access log, tracing, metrics, profiling,
// security headers, CORS, body limit and per-IP rate limit.
func NewEngine(cfg EngineConfig, h Handlers, log *zap.Logger, meters *telemetry.MeterProvider) (*Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, err
	}
	middleware.SetupValidator()

	security := middleware.DefaultSecurityConfig()
	security.HSTSEnabled = cfg.Production

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		logger.GinMiddleware(log),
		middleware.Tracing(middleware.TracingConfig{ServiceName: cfg.ServiceName, Enabled: cfg.TracingEnabled}),
		middleware.SpanAttributes(),
		middleware.HTTPMetrics(meters),
		middleware.Profiling(middleware.ProfilingConfig{
			Enabled:   cfg.ProfilingEnabled,
			SkipPaths: middleware.DefaultProfilingConfig().SkipPaths,
		}),
		middleware.Secure(security),
		middleware.CORS(cors),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(limiter))
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeNotFound, "Route not found", middleware.GetRequestID(c)))
	})

	engine.GET("/health", h.System.Health)

	r := NewRouter(engine)
	r.Register(NewDomainGroup("system", "/system").
		GET("/info", h.System.GetSystemInfo))
	r.Register(NewDomainGroup("products", "/products").
		GET("", h.Products.List).
		GET("/featured", h.Products.Featured).
		GET("/slug/:slug", h.Products.GetBySlug).
		GET("/:id", h.Products.GetByID))
	r.Register(NewDomainGroup("categories", "/categories").
		GET("", h.Products.Categories))

	sync := NewDomainGroup("sync", "/sync").Use(middleware.SyncSecret(cfg.SyncSecret))
	sync.GET("/products", h.Sync.SyncProducts).
		POST("/products", h.Sync.SyncProducts).
		GET("/jobs", h.Sync.ListJobs).
		POST("/jobs", h.Sync.TriggerJob).
		GET("/jobs/:id", h.Sync.GetJob)
	r.Register(sync)

	r.Setup()

	return &Engine{Engine: engine, Limiter: limiter}, nil
}
