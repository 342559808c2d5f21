package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookEvent is the durable record of one inbound platform notification.
// WebhookID is the platform-assigned idempotency key: the same delivery
// retried by upstream maps onto the same row.
type WebhookEvent struct {
	ID            string     `json:"id" gorm:"type:uuid;primary_key"`
	WebhookID     string     `json:"webhook_id" gorm:"unique;not null"`
	Topic         string     `json:"topic" gorm:"not null"`
	Resource      string     `json:"resource" gorm:"not null"`
	UserID        int64      `json:"user_id" gorm:"not null"`
	ApplicationID int64      `json:"application_id"`
	ItemID        *string    `json:"item_id"`
	Processed     bool       `json:"processed" gorm:"default:false;index"`
	ClaimedAt     *time.Time `json:"claimed_at"`
	Attempts      int        `json:"attempts"`
	Sent          *time.Time `json:"sent"`
	ReceivedAt    time.Time  `json:"received_at"`
	ClientIP      string     `json:"client_ip"`
	Headers       string     `json:"headers"`
	Result        string     `json:"result"`
	ProcessError  string     `json:"process_error"`
	ProcessedAt   *time.Time `json:"processed_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

const (
	TopicStockLocation = "stock-location"
	TopicItems         = "items"
	TopicItemsPrices   = "items_prices"
)

// SupportedTopics are processed; IgnoredTopics are acknowledged without
// processing so upstream stops retrying them.
var (
	SupportedTopics = []string{TopicStockLocation, TopicItems, TopicItemsPrices}
	IgnoredTopics   = []string{"orders_v2", "shipments", "messages", "payments", "questions"}
)

func (w *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	return nil
}
