package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AlertType string

const (
	AlertLowStock      AlertType = "LOW_STOCK"
	AlertStockDecrease AlertType = "STOCK_DECREASE"
	AlertStockIncrease AlertType = "STOCK_INCREASE"
)

// StockAlert is an append-only log row; alerts are never updated or deleted.
type StockAlert struct {
	ID            string    `json:"id" gorm:"type:uuid;primary_key"`
	UserID        int64     `json:"user_id" gorm:"not null;index"`
	ItemID        string    `json:"item_id" gorm:"not null"`
	AlertType     AlertType `json:"alert_type" gorm:"not null"`
	PreviousStock int       `json:"previous_stock"`
	NewStock      int       `json:"new_stock"`
	Title         string    `json:"title"`
	SKU           *string   `json:"sku"`
	CreatedAt     time.Time `json:"created_at"`
}

func (a *StockAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}
