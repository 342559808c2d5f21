package handlers

import (
	"context"
	"net/http"

	"stocksync/internal/logger"
	"stocksync/internal/sync"

	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	synchronizer *sync.Synchronizer
	logger       *logger.Logger
}

func NewSyncHandler(synchronizer *sync.Synchronizer, logger *logger.Logger) *SyncHandler {
	return &SyncHandler{
		synchronizer: synchronizer,
		logger:       logger,
	}
}

// Trigger starts a full sync for one user. Unless forced, the store's
// completeness marker decides whether a scan is actually needed; a complete
// store keeps relying on webhooks alone.
func (h *SyncHandler) Trigger(c *gin.Context) {
	userID, ok := parseUserID(c, c.Param("userID"))
	if !ok {
		return
	}

	if c.Query("force") != "true" {
		needed, err := h.synchronizer.NeedsFullSync(userID)
		if err != nil {
			h.logger.Error("Failed to evaluate sync policy for user %d: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate sync policy"})
			return
		}
		if !needed {
			c.JSON(http.StatusOK, gin.H{
				"status":  "skipped",
				"message": "store is complete, relying on webhook updates",
			})
			return
		}
	}

	// Detached: the sync is rate-limit bound and can far outlive the request.
	go func() {
		result, err := h.synchronizer.SyncAll(context.Background(), userID)
		if err != nil {
			h.logger.Error("Full sync failed for user %d: %v", userID, err)
			return
		}
		h.logger.Info("Full sync for user %d: %d synced, %d ids, completed: %v",
			userID, result.Synced, result.TotalIDsFound, result.ScanCompleted)
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started", "user_id": userID})
}
