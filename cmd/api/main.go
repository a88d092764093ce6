// main.go - The entry point and router setup.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/domusplus/receipt-engine/configs"
	"github.com/domusplus/receipt-engine/internal/api"
	"github.com/domusplus/receipt-engine/internal/ratelimit"
	"github.com/domusplus/receipt-engine/internal/recon"
	"github.com/domusplus/receipt-engine/internal/segmenter"
	"github.com/domusplus/receipt-engine/internal/storage"
	"github.com/domusplus/receipt-engine/internal/vision"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := configs.Load()

	if ginMode := os.Getenv("GIN_MODE"); ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	provider, err := vision.NewProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize vision provider: %v", err)
	}
	defer provider.Close()

	var store *storage.Store
	if cfg.MongoURI != "" {
		store, err = storage.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer store.Close(ctx)
		log.Printf("💾 MongoDB connected (db=%s)", cfg.MongoDBName)
	} else {
		log.Println("💾 MONGO_URI not set, persistence disabled")
	}

	seg := segmenter.New(cfg.SegmentOverlapPx, cfg.MaxImageWidthFast, cfg.MaxImageWidthPrecise)
	limiter := ratelimit.NewRateLimiter(cfg.RateLimitTokens, time.Duration(cfg.RateLimitRefillSeconds)*time.Second)
	pipeline := recon.NewPipeline(provider, seg, limiter, cfg)
	cache := storage.NewResultCache(time.Duration(cfg.CacheTTLMinutes) * time.Minute)

	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", cfg.AllowedOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := api.NewHandler(pipeline, store, cache)
	handler.Register(router)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   5 * time.Minute, // precise mode on a long receipt is slow
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		log.Println("API Endpoints:")
		log.Println("  POST /api/receipts/process")
		log.Println("  GET  /api/receipts/:id")
		log.Println("  GET  /api/receipts?user_id=...")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
