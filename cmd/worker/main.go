package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stocksync/internal/config"
	"stocksync/internal/database"
	"stocksync/internal/logger"
	"stocksync/internal/services/marketplace"
	"stocksync/internal/store"
	"stocksync/internal/sync"
	"stocksync/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	st := store.New(db.DB)
	client := marketplace.NewClient(cfg.MarketplaceAPIURL, cfg.MarketplaceToken, logger)

	// Initialize webhook processor and worker
	processor := worker.NewProcessor(client, st, logger, cfg.LowStockThreshold)
	w := worker.New(cfg, logger, processor, st)

	// Periodic bulk sync for configured users
	synchronizer := sync.New(client, st, logger, sync.Options{
		BatchSize:    cfg.SyncBatchSize,
		PageDelay:    cfg.SyncPageDelay,
		BatchDelay:   cfg.SyncBatchDelay,
		BackoffDelay: cfg.SyncBackoffDelay,
		Cleanup:      cfg.SyncCleanup,
	})
	syncCtx, cancelSync := context.WithCancel(context.Background())
	go runScheduledSyncs(syncCtx, cfg, logger, synchronizer)

	// Start worker
	logger.Info("Starting worker...")
	go w.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancelSync()
	w.Stop()
}

// runScheduledSyncs runs the full-sync policy for each configured user on an
// interval. Users whose store is already complete are skipped and keep
// relying on webhooks.
func runScheduledSyncs(ctx context.Context, cfg *config.Config, logger *logger.Logger, synchronizer *sync.Synchronizer) {
	if len(cfg.SyncUserIDs) == 0 {
		return
	}

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	for {
		for _, userID := range cfg.SyncUserIDs {
			needed, err := synchronizer.NeedsFullSync(userID)
			if err != nil {
				logger.Error("Sync policy check failed for user %d: %v", userID, err)
				continue
			}
			if !needed {
				logger.Debug("Store complete for user %d, skipping full sync", userID)
				continue
			}

			result, err := synchronizer.SyncAll(ctx, userID)
			if err != nil {
				logger.Error("Scheduled sync failed for user %d: %v", userID, err)
				continue
			}
			logger.Info("Scheduled sync for user %d: %d synced, %d ids, completed: %v",
				userID, result.Synced, result.TotalIDsFound, result.ScanCompleted)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
