package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ritikkatiyar/ecom-storefront/internal/browser"
	"github.com/ritikkatiyar/ecom-storefront/internal/guard"
	"github.com/ritikkatiyar/ecom-storefront/internal/middleware"
	"github.com/ritikkatiyar/ecom-storefront/internal/storage"
	"github.com/ritikkatiyar/ecom-storefront/pkg/logger"
	"github.com/ritikkatiyar/ecom-storefront/pkg/telemetry"
)

// RouterConfig holds what the storefront router is built from
type RouterConfig struct {
	ServiceName string
	Registry    *browser.Registry
	Cookie      browser.CookieConfig
	CORS        middleware.CORSConfig
	Logger      *logger.Logger
	// StorageHealth backs GET /ready; nil means always ready
	StorageHealth func(ctx context.Context) error
	LoginPath     string
	DeniedPath    string
}

// NewRouter builds the storefront BFF routes
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = guard.DefaultLoginPath
	}
	if cfg.DeniedPath == "" {
		cfg.DeniedPath = guard.DefaultDeniedPath
	}
	if cfg.CORS.AllowMethods == nil {
		cfg.CORS = middleware.DefaultCORSConfig()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(cfg.ServiceName))
	router.Use(middleware.CorrelationID())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.CORSWithConfig(cfg.CORS))

	health := NewHealthHandler(cfg.ServiceName, cfg.StorageHealth)
	router.GET("/health", health.Health)
	router.GET("/ready", health.Ready)

	sessions := NewSessionHandler(cfg.Logger)
	carts := NewCartHandler()
	products := NewCatalogHandler()
	account := NewAccountHandler(cfg.Logger)

	requireSession := guard.RequireSession(currentSession, cfg.LoginPath)
	requireAdmin := guard.RequireRole(currentSession, "ADMIN", cfg.LoginPath, cfg.DeniedPath)

	b := router.Group("", cfg.Registry.Middleware(cfg.Cookie))
	{
		api := b.Group("/api")

		s := api.Group("/session")
		s.GET("", sessions.Get)
		s.POST("/login", sessions.Login)
		s.POST("/signup", sessions.Signup)
		s.POST("/logout", sessions.Logout)
		s.POST("/refresh", sessions.Refresh)

		c := api.Group("/cart")
		c.GET("", carts.Get)
		c.DELETE("", carts.Clear)
		c.POST("/items", carts.AddItem)
		c.DELETE("/items/:productId", carts.RemoveItem)
		c.POST("/merge", requireSession, carts.Merge)

		api.GET("/products", products.List)
		api.GET("/products/:id", products.Get)
		api.GET("/search", products.Search)
		api.GET("/stock/:sku", products.Stock)

		acct := b.Group("/account", requireSession)
		acct.GET("", account.Account)
		acct.GET("/orders", account.Orders)

		replayGuard := middleware.IdempotencyMiddleware(middleware.DefaultIdempotencyConfig(browserStore))
		b.POST("/checkout", requireSession, replayGuard, account.Checkout)

		admin := b.Group("/admin", requireAdmin)
		admin.GET("/ping", account.AdminPing)
		admin.POST("/products/images", products.UploadImages)
	}

	return router
}

// browserStore scopes idempotency records to the request's browser
func browserStore(c *gin.Context) (storage.Store, bool) {
	b, ok := browser.FromContext(c)
	if !ok {
		return nil, false
	}
	return b.Storage, true
}

// currentSession returns the session of the request's browser. An access
// token past its expiry is refreshed first, so a refresh that fails leaves
// the visitor signed out.
func currentSession(c *gin.Context) (guard.Session, bool) {
	b, ok := browser.FromContext(c)
	if !ok {
		return nil, false
	}
	if creds, ok := b.Session.Credentials(); ok && !creds.ExpiresAt.IsZero() && time.Now().After(creds.ExpiresAt) {
		b.Session.Refresh(c.Request.Context())
	}
	return b.Session, true
}
