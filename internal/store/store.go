package store

import (
	"errors"
	"strings"
	"time"

	"stocksync/internal/diff"
	"stocksync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateWebhook signals that a webhook id has already been recorded.
// Redundant upstream deliveries map onto this error instead of a second row.
var ErrDuplicateWebhook = errors.New("webhook already recorded")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// comparisonColumns is the minimal projection the diff engine needs.
var comparisonColumns = []string{
	"id", "item_id", "user_id", "title", "sku", "available_quantity",
	"price", "status", "estimated_handling_hours",
}

func (s *Store) GetProduct(itemID string, userID int64) (*models.Product, error) {
	var product models.Product
	err := s.db.Where("item_id = ? AND user_id = ?", itemID, userID).First(&product).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProducts(userID int64, offset, limit int) ([]models.Product, int64, error) {
	query := s.db.Model(&models.Product{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	if err := query.Order("item_id").Offset(offset).Limit(limit).Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (s *Store) GetLowStockProducts(userID int64, threshold int) ([]models.Product, error) {
	var products []models.Product
	err := s.db.Where("user_id = ? AND available_quantity <= ?", userID, threshold).
		Order("available_quantity").Find(&products).Error
	return products, err
}

func (s *Store) GetProductsForComparison(ids []string, userID int64) ([]models.Product, error) {
	var products []models.Product
	err := s.db.Select(comparisonColumns).
		Where("item_id IN ? AND user_id = ?", ids, userID).
		Find(&products).Error
	return products, err
}

func (s *Store) GetProductIDs(userID int64) ([]string, error) {
	var ids []string
	err := s.db.Model(&models.Product{}).Where("user_id = ?", userID).
		Pluck("item_id", &ids).Error
	return ids, err
}

func (s *Store) CountProducts(userID int64) (int64, error) {
	var count int64
	err := s.db.Model(&models.Product{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (s *Store) UpsertProduct(product *models.Product) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(product).Error
}

var upsertColumns = []string{
	"title", "sku", "available_quantity", "price", "status", "category_id",
	"condition", "listing_type_id", "health", "estimated_handling_hours",
	"last_api_sync", "last_webhook_sync", "webhook_source", "updated_at",
}

func (s *Store) UpsertProducts(products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).CreateInBatches(products, 100).Error
}

// UpdateChangedFields applies partial updates produced by the diff engine.
// Only the columns present in each change are written.
func (s *Store) UpdateChangedFields(changes []diff.ProductChange) error {
	for _, change := range changes {
		err := s.db.Model(&models.Product{}).
			Where("item_id = ? AND user_id = ?", change.ItemID, change.UserID).
			Updates(change.Fields).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteProducts(ids []string, userID int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.Where("item_id IN ? AND user_id = ?", ids, userID).
		Delete(&models.Product{}).Error
}

func (s *Store) SaveWebhookEvent(event *models.WebhookEvent) error {
	err := s.db.Create(event).Error
	if err != nil && isDuplicateKey(err) {
		return ErrDuplicateWebhook
	}
	return err
}

func (s *Store) GetWebhookEvent(webhookID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := s.db.Where("webhook_id = ?", webhookID).First(&event).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// claimTTL bounds how long one pickup may hold an unprocessed event before
// another pickup may re-claim it after a crash mid-processing.
const claimTTL = 5 * time.Minute

// ClaimWebhookEvent atomically claims an unprocessed event for exactly one
// pickup path. The conditional update is the guard: a second concurrent
// claim for the same id matches zero rows.
func (s *Store) ClaimWebhookEvent(webhookID string) (bool, error) {
	result := s.db.Model(&models.WebhookEvent{}).
		Where("webhook_id = ? AND processed = ?", webhookID, false).
		Where("claimed_at IS NULL OR claimed_at < ?", time.Now().Add(-claimTTL)).
		Update("claimed_at", time.Now())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) GetPendingWebhooks(limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := s.db.Where("processed = ?", false).
		Order("received_at").Limit(limit).Find(&events).Error
	return events, err
}

func (s *Store) CountPendingWebhooks() (int64, error) {
	var count int64
	err := s.db.Model(&models.WebhookEvent{}).Where("processed = ?", false).Count(&count).Error
	return count, err
}

// MarkWebhookProcessed records the terminal outcome of one processing
// attempt. On success the processed flag flips once and stays set; on
// failure the row keeps processed=false with the error retained for
// inspection.
func (s *Store) MarkWebhookProcessed(webhookID string, success bool, result string, processErr string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed":     success,
		"processed_at":  now,
		"result":        result,
		"process_error": processErr,
		"attempts":      gorm.Expr("attempts + 1"),
	}
	return s.db.Model(&models.WebhookEvent{}).
		Where("webhook_id = ?", webhookID).
		Updates(updates).Error
}

func (s *Store) SaveStockAlert(alert *models.StockAlert) error {
	return s.db.Create(alert).Error
}

func (s *Store) GetRecentAlerts(userID int64, limit int) ([]models.StockAlert, error) {
	var alerts []models.StockAlert
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&alerts).Error
	return alerts, err
}

func (s *Store) GetScanControl(userID int64) (*models.ScanControl, error) {
	var control models.ScanControl
	err := s.db.First(&control, "user_id = ?", userID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &control, nil
}

func (s *Store) SaveScanControl(control *models.ScanControl) error {
	control.UpdatedAt = time.Now()
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_products", "scroll_id", "scan_completed",
			"last_full_scan_at", "updated_at",
		}),
	}).Create(control).Error
}

func (s *Store) GetConfig(key string) (string, error) {
	var setting models.Setting
	err := s.db.First(&setting, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (s *Store) SetConfig(key, value string) error {
	setting := models.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
