package models

import "time"

// Setting is a key/value row for runtime-tunable knobs (alert threshold,
// sync overrides) without a redeploy.
type Setting struct {
	Key       string    `json:"key" gorm:"primary_key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	SettingLowStockThreshold = "alerts.low_stock_threshold"
	SettingSyncMinProducts   = "sync.min_products"
)
