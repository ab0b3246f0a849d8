// Command fakebackend serves the in-memory platform gateway for local
// storefront development.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ritikkatiyar/ecom-storefront/internal/catalog"
	"github.com/ritikkatiyar/ecom-storefront/internal/fakebackend"
	"github.com/ritikkatiyar/ecom-storefront/pkg/logger"
)

func main() {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("FAKE_BACKEND_ADDR", ":8080")
	v.SetDefault("FAKE_BACKEND_SECRET", "fake-backend-secret")
	v.SetDefault("FAKE_BACKEND_ACCESS_TTL", "15m")

	if err := logger.Init(&logger.Config{Level: "debug", ServiceName: "fake-backend", Development: true}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLog := logger.Get()

	backend := fakebackend.New(fakebackend.Config{
		Secret:    v.GetString("FAKE_BACKEND_SECRET"),
		AccessTTL: v.GetDuration("FAKE_BACKEND_ACCESS_TTL"),
	})
	backend.AddUser("user@example.com", "password", "USER")
	backend.AddUser("admin@example.com", "password", "ADMIN")
	backend.AddProduct(catalog.Product{ID: "tee-black", Name: "Black Tee", Category: "tops", Brand: "Basic", Price: 19.99, Active: true})
	backend.AddProduct(catalog.Product{ID: "hoodie-grey", Name: "Grey Hoodie", Category: "tops", Brand: "Basic", Price: 49.5, Active: true})
	backend.SetStock("tee-black", 25, 0)
	backend.SetStock("hoodie-grey", 3, 0)

	addr := v.GetString("FAKE_BACKEND_ADDR")
	srv := &http.Server{
		Addr:              addr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		appLog.Info("Fake backend listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}
}
