package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ritikkatiyar/ecom-storefront/internal/apiclient"
	"github.com/ritikkatiyar/ecom-storefront/internal/browser"
	"github.com/ritikkatiyar/ecom-storefront/internal/handler"
	"github.com/ritikkatiyar/ecom-storefront/internal/middleware"
	"github.com/ritikkatiyar/ecom-storefront/internal/storage"
	"github.com/ritikkatiyar/ecom-storefront/pkg/config"
	"github.com/ritikkatiyar/ecom-storefront/pkg/logger"
	pkgredis "github.com/ritikkatiyar/ecom-storefront/pkg/redis"
	"github.com/ritikkatiyar/ecom-storefront/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting storefront...", zap.String("version", cfg.App.Version))

	ctx := context.Background()

	// Initialize tracing
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Tracing disabled", zap.Error(err))
	}

	// Browser storage: process memory or one redis namespace per browser
	stores := browser.MemoryStores()
	var storageHealth func(ctx context.Context) error
	if cfg.Storage.Driver == "redis" {
		redisCfg := &pkgredis.Config{
			Host:          cfg.Redis.Host,
			Port:          cfg.Redis.Port,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			MinIdleConns:  cfg.Redis.MinIdleConns,
			DialTimeout:   cfg.Redis.DialTimeout,
			ReadTimeout:   cfg.Redis.ReadTimeout,
			WriteTimeout:  cfg.Redis.WriteTimeout,
			MaxRetries:    3,
			RetryInterval: time.Second,
		}
		redisClient, err := pkgredis.NewClient(ctx, redisCfg)
		if err != nil {
			appLog.Fatal("Redis connection failed", zap.Error(err))
		}
		defer redisClient.Close()
		appLog.Info("Redis connected", zap.String("addr", redisCfg.Addr()))

		prefix := cfg.Storage.KeyPrefix
		stores = func(browserID string) storage.Store {
			return storage.NewRedis(redisClient, prefix+browserID+":")
		}
		storageHealth = redisClient.HealthCheck
	}

	factory := browser.NewFactory(browser.FactoryConfig{
		API: apiclient.Config{
			BaseURL:       cfg.Backend.BaseURL,
			APIVersion:    cfg.Backend.APIVersion,
			Timeout:       cfg.Backend.RequestTimeout,
			GetRetryCount: cfg.Backend.GetRetryCount,
			GetRetryDelay: cfg.Backend.GetRetryDelay,
		},
		ExpiryBuffer:  cfg.Session.ExpiryBuffer,
		CredentialKey: cfg.Session.CredentialKey,
		GuestKey:      cfg.Session.GuestKey,
		HTTPClient:    &http.Client{Timeout: cfg.Backend.RequestTimeout},
		Logger:        appLog,
	}, stores)
	registry := browser.NewRegistry(factory, appLog)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	if cfg.Storage.Driver == "redis" && cfg.Browser.IdleTTL > 0 {
		go registry.RunJanitor(janitorCtx, cfg.Browser.SweepInterval, cfg.Browser.IdleTTL)
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handler.NewRouter(handler.RouterConfig{
		ServiceName: cfg.App.Name,
		Registry:    registry,
		Cookie: browser.CookieConfig{
			Name:   cfg.Browser.CookieName,
			Secure: cfg.Browser.CookieSecure,
			MaxAge: cfg.Browser.CookieMaxAge,
		},
		CORS:          middleware.DefaultCORSConfig(),
		Logger:        appLog,
		StorageHealth: storageHealth,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Start server in goroutine
	go func() {
		appLog.Info("Storefront listening",
			zap.String("addr", addr),
			zap.String("backend", cfg.Backend.BaseURL),
			zap.String("storage", cfg.Storage.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Tracer shutdown failed", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}
