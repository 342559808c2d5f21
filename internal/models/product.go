package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Product struct {
	ID                     string     `json:"id" gorm:"type:uuid;primary_key"`
	ItemID                 string     `json:"item_id" gorm:"not null;index:idx_products_item_user,unique"`
	UserID                 int64      `json:"user_id" gorm:"not null;index:idx_products_item_user,unique"`
	Title                  string     `json:"title"`
	SKU                    *string    `json:"sku"`
	AvailableQuantity      int        `json:"available_quantity"`
	Price                  float64    `json:"price" gorm:"type:decimal(12,2)"`
	Status                 string     `json:"status"`
	CategoryID             string     `json:"category_id"`
	Condition              string     `json:"condition"`
	ListingTypeID          string     `json:"listing_type_id"`
	Health                 float64    `json:"health"`
	EstimatedHandlingHours *int       `json:"estimated_handling_hours"`
	LastAPISync            *time.Time `json:"last_api_sync"`
	LastWebhookSync        *time.Time `json:"last_webhook_sync"`
	WebhookSource          string     `json:"webhook_source"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

type ProductStatus string

const (
	StatusActive ProductStatus = "active"
	StatusPaused ProductStatus = "paused"
	StatusClosed ProductStatus = "closed"
)

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
