package handlers

import (
	"net/http"
	"strconv"

	"stocksync/internal/logger"
	"stocksync/internal/models"

	"github.com/gin-gonic/gin"
)

// ProductStore is the read surface for the inspection endpoints.
type ProductStore interface {
	GetProducts(userID int64, offset, limit int) ([]models.Product, int64, error)
	GetLowStockProducts(userID int64, threshold int) ([]models.Product, error)
	GetRecentAlerts(userID int64, limit int) ([]models.StockAlert, error)
}

type ProductHandler struct {
	store             ProductStore
	logger            *logger.Logger
	lowStockThreshold int
}

func NewProductHandler(store ProductStore, logger *logger.Logger, lowStockThreshold int) *ProductHandler {
	return &ProductHandler{
		store:             store,
		logger:            logger,
		lowStockThreshold: lowStockThreshold,
	}
}

func (h *ProductHandler) List(c *gin.Context) {
	userID, ok := parseUserID(c, c.Query("user_id"))
	if !ok {
		return
	}

	if c.Query("low_stock") == "true" {
		threshold := h.lowStockThreshold
		if raw := c.Query("threshold"); raw != "" {
			if value, err := strconv.Atoi(raw); err == nil {
				threshold = value
			}
		}

		products, err := h.store.GetLowStockProducts(userID, threshold)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": products, "threshold": threshold})
		return
	}

	// Pagination
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset := (page - 1) * limit

	products, total, err := h.store.GetProducts(userID, offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": products,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func (h *ProductHandler) Alerts(c *gin.Context) {
	userID, ok := parseUserID(c, c.Query("user_id"))
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	alerts, err := h.store.GetRecentAlerts(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

func parseUserID(c *gin.Context, raw string) (int64, bool) {
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return 0, false
	}
	return userID, true
}
