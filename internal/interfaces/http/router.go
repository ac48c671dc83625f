package http

import (
	"github.com/gin-gonic/gin"

	"github.com/ruziba3vich/tax-filing-service/config"
	"github.com/ruziba3vich/tax-filing-service/internal/application"
	"github.com/ruziba3vich/tax-filing-service/internal/interfaces/http/handlers"
	"github.com/ruziba3vich/tax-filing-service/internal/interfaces/http/middleware"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
	"github.com/ruziba3vich/tax-filing-service/pkg/wizardtoken"
)

// Router wraps the Gin engine with application dependencies.
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	limiters []*middleware.RateLimiter
}

// RouterDeps contains dependencies needed by the router.
type RouterDeps struct {
	Services     *application.Services
	Tokens       *wizardtoken.Manager
	Dependencies []handlers.Dependency
	Logger       logger.Logger
	// LogWriter is nil when the SQLite log sink is disabled.
	LogWriter handlers.LogQuerier
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, deps *RouterDeps) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.NewRequestLoggerMiddleware(deps.Logger).Handler())

	r := &Router{engine: engine, cfg: cfg}

	// Create handlers
	wizardMiddleware := middleware.NewWizardMiddleware(deps.Tokens, cfg.Security.SecureCookies, cfg.Security.CookieDomain)
	wizardHandler := handlers.NewWizardHandler(deps.Services.Session, wizardMiddleware)
	paymentHandler := handlers.NewPaymentHandler(deps.Services.Payment, deps.Services.Filing)
	adminHandler := handlers.NewAdminHandler(deps.Services.Stats, deps.LogWriter)
	healthHandler := handlers.NewHealthHandler(deps.Dependencies...)

	// Health endpoints (no rate limiting)
	engine.GET("/health", healthHandler.Health)
	engine.GET("/ready", healthHandler.Ready)
	engine.GET("/live", healthHandler.Live)

	var lookupLimiter *middleware.LookupRateLimiter
	if cfg.Security.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(float64(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst)
		lookupLimiter = middleware.NewLookupRateLimiter()
		r.limiters = append(r.limiters, rateLimiter, lookupLimiter.RateLimiter)
		engine.Use(rateLimiter.Middleware())
	}

	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))

	api := engine.Group("/api/v1")

	// Entry points: a token is optional, a fresh client is started without one
	entry := api.Group("/wizard")
	entry.Use(wizardMiddleware.Load())
	{
		entry.POST("/begin", wizardHandler.Begin)
		entry.GET("/restore", wizardHandler.Restore)
	}

	// Session-bound endpoints
	wizard := api.Group("/wizard")
	wizard.Use(wizardMiddleware.Require())
	{
		lookup := wizard.Group("")
		if lookupLimiter != nil {
			lookup.Use(lookupLimiter.Middleware())
		}
		lookup.POST("/tax-id", wizardHandler.SubmitTaxID)
		lookup.POST("/conflict", wizardHandler.ResolveConflict)

		wizard.GET("/conflict", wizardHandler.CheckConflict)
		wizard.POST("/advance", wizardHandler.Advance)
		wizard.PUT("/progress", wizardHandler.SaveProgress)
		wizard.POST("/activity", wizardHandler.Activity)
		wizard.POST("/exit", wizardHandler.Exit)

		wizard.POST("/payment", paymentHandler.InitiatePayment)
		wizard.GET("/payment", paymentHandler.PaymentStatus)
		wizard.POST("/filing", paymentHandler.FileReturn)
		wizard.GET("/filing", paymentHandler.FilingStatus)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin(cfg.Security.AdminToken))
	{
		admin.GET("/stats", adminHandler.Stats)
		admin.GET("/logs", adminHandler.Logs)
	}

	return r
}

// Engine returns the underlying Gin engine.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Close stops the rate limiter cleanup loops.
func (r *Router) Close() {
	for _, l := range r.limiters {
		l.Close()
	}
}

// corsMiddleware creates a CORS middleware.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, "+middleware.WizardHeader+", "+middleware.MountHeader+", X-Request-ID")
			c.Header("Access-Control-Expose-Headers", middleware.WizardHeader+", X-Request-ID")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
