package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/passpolicy/internal/handler/prometheus"
	"github.com/jwalitptl/passpolicy/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// AccountHandler also owns routes that act on one authenticated identity.
type AccountHandler interface {
	Handler
	RegisterAccountRoutes(*gin.RouterGroup)
}

// Handlers groups the route owners mounted by the router.
type Handlers struct {
	Password AccountHandler
	Policy   Handler
	Audit    Handler
	Health   Handler
	Metrics  *prometheus.Handler
}

type RouterConfig struct {
	Mode             string
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
	MaxBodySize      int64
	AdminRole        string
	MetricsPath      string
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	config   RouterConfig
}

func NewRouter(auth *middleware.AuthMiddleware, handlers Handlers, config RouterConfig) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = middleware.DefaultSizeLimitConfig().MaxBodySize
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}

	engine := gin.New()

	// ErrorHandler sits outside Validation so bind failures are rendered
	// by Validation and only logged here.
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
	)
	if handlers.Metrics != nil {
		engine.Use(handlers.Metrics.Middleware())
	}
	engine.Use(
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(middleware.SizeLimitConfig{MaxBodySize: config.MaxBodySize}),
		middleware.ErrorHandler(),
		middleware.Validation(middleware.DefaultValidationConfig()),
	)

	return &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
		config:   config,
	}
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	if r.handlers.Health != nil {
		r.handlers.Health.RegisterRoutes(api)
	}
	if r.handlers.Metrics != nil {
		api.GET("/health"+r.config.MetricsPath, r.handlers.Metrics.Handler())
	}

	var limits []gin.HandlerFunc
	if r.config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		})
		limits = append(limits, limiter.RateLimit())
	}

	if r.handlers.Password != nil {
		public := api.Group("", limits...)
		public.Use(r.auth.Identify())
		r.handlers.Password.RegisterRoutes(public)

		account := api.Group("", limits...)
		account.Use(r.auth.Authenticate())
		r.handlers.Password.RegisterAccountRoutes(account)
	}

	admin := api.Group("/admin", r.auth.Authenticate(), r.auth.RequireRole(r.config.AdminRole))
	if r.handlers.Policy != nil {
		r.handlers.Policy.RegisterRoutes(admin)
	}
	if r.handlers.Audit != nil {
		r.handlers.Audit.RegisterRoutes(admin)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
