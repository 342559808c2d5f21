package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"stocksync/internal/api/handlers"
	"stocksync/internal/api/middleware"
	"stocksync/internal/config"
	"stocksync/internal/database"
	"stocksync/internal/events"
	"stocksync/internal/logger"
	"stocksync/internal/services/marketplace"
	"stocksync/internal/store"
	"stocksync/internal/sync"

	"github.com/gin-gonic/gin"
)

type Server struct {
	config *config.Config
	logger *logger.Logger
	db     *database.Database
	router *gin.Engine
	server *http.Server
}

func New(cfg *config.Config, logger *logger.Logger, db *database.Database, publisher *events.Publisher) *Server {
	// Set Gin mode
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())

	st := store.New(db.DB)
	client := marketplace.NewClient(cfg.MarketplaceAPIURL, cfg.MarketplaceToken, logger)
	synchronizer := sync.New(client, st, logger, sync.Options{
		BatchSize:    cfg.SyncBatchSize,
		PageDelay:    cfg.SyncPageDelay,
		BatchDelay:   cfg.SyncBatchDelay,
		BackoffDelay: cfg.SyncBackoffDelay,
		Cleanup:      cfg.SyncCleanup,
	})

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(st, publisher, cfg, logger)
	productHandler := handlers.NewProductHandler(st, logger, cfg.LowStockThreshold)
	syncHandler := handlers.NewSyncHandler(synchronizer, logger)
	settingsHandler := handlers.NewSettingsHandler(st, logger)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Routes
	v1 := router.Group("/api/v1")
	{
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("", webhookHandler.Ingest)
			webhooks.GET("/status", webhookHandler.Status)
		}

		products := v1.Group("/products")
		{
			products.GET("", productHandler.List)
		}

		alerts := v1.Group("/alerts")
		{
			alerts.GET("", productHandler.Alerts)
		}

		syncRoutes := v1.Group("/sync")
		{
			syncRoutes.POST("/:userID", syncHandler.Trigger)
		}

		settings := v1.Group("/settings")
		{
			settings.GET("/:key", settingsHandler.Get)
			settings.PUT("/:key", settingsHandler.Update)
		}
	}

	return &Server{
		config: cfg,
		logger: logger,
		db:     db,
		router: router,
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.APIHost, s.config.APIPort)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server on " + addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
