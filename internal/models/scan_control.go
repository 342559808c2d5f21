package models

import "time"

// ScanControl tracks full-catalog scan progress per user. ScrollID is the
// opaque continuation marker handed back by the platform's scan pagination;
// LastFullScanAt is the completeness marker consulted when deciding whether
// a fresh full sync is required.
type ScanControl struct {
	UserID         int64      `json:"user_id" gorm:"primary_key;autoIncrement:false"`
	TotalProducts  int        `json:"total_products"`
	ScrollID       string     `json:"scroll_id"`
	ScanCompleted  bool       `json:"scan_completed"`
	LastFullScanAt *time.Time `json:"last_full_scan_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (ScanControl) TableName() string {
	return "scan_controls"
}
