package handlers

import (
	"net/http"

	"stocksync/internal/logger"

	"github.com/gin-gonic/gin"
)

// SettingsStore is the key/value surface for runtime-tunable knobs.
type SettingsStore interface {
	GetConfig(key string) (string, error)
	SetConfig(key, value string) error
}

type SettingsHandler struct {
	store  SettingsStore
	logger *logger.Logger
}

func NewSettingsHandler(store SettingsStore, logger *logger.Logger) *SettingsHandler {
	return &SettingsHandler{
		store:  store,
		logger: logger,
	}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	key := c.Param("key")

	value, err := h.store.GetConfig(key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch setting"})
		return
	}
	if value == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Setting not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

// Update tunes a runtime knob, e.g. the low-stock alert threshold, without
// a redeploy. The worker reads settings on every use, so the change takes
// effect on the next processed webhook.
func (h *SettingsHandler) Update(c *gin.Context) {
	key := c.Param("key")

	var req struct {
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.SetConfig(key, req.Value); err != nil {
		h.logger.Error("Failed to save setting %s: %v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save setting"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
}
