package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"stocksync/internal/diff"
	"stocksync/internal/logger"
	"stocksync/internal/models"
	"stocksync/internal/services/marketplace"
)

// Catalog is the upstream surface the processor re-fetches from.
type Catalog interface {
	GetItem(ctx context.Context, itemID string) (*marketplace.Item, error)
}

// Store is the persistence surface the processor reads and writes.
type Store interface {
	GetWebhookEvent(webhookID string) (*models.WebhookEvent, error)
	ClaimWebhookEvent(webhookID string) (bool, error)
	GetProduct(itemID string, userID int64) (*models.Product, error)
	UpsertProduct(product *models.Product) error
	MarkWebhookProcessed(webhookID string, success bool, result string, processErr string) error
	SaveStockAlert(alert *models.StockAlert) error
	GetConfig(key string) (string, error)
	GetPendingWebhooks(limit int) ([]models.WebhookEvent, error)
}

// Processor applies one persisted webhook event: re-fetch the affected item,
// diff it against the stored pre-image, record stock alerts and upsert the
// fresh state. It runs detached from the HTTP request that recorded the
// event, so failures are written to the event row instead of propagating.
type Processor struct {
	catalog Catalog
	store   Store
	logger  *logger.Logger

	defaultThreshold int
	now              func() time.Time
}

func NewProcessor(catalog Catalog, store Store, logger *logger.Logger, lowStockThreshold int) *Processor {
	return &Processor{
		catalog:          catalog,
		store:            store,
		logger:           logger,
		defaultThreshold: lowStockThreshold,
		now:              time.Now,
	}
}

// processResult is persisted on the webhook row as the processing summary.
type processResult struct {
	ItemID           string            `json:"item_id"`
	PreviousQuantity *int              `json:"previous_quantity"`
	NewQuantity      int               `json:"new_quantity"`
	Changes          map[string]change `json:"changes,omitempty"`
	Alert            string            `json:"alert,omitempty"`
	NewProduct       bool              `json:"new_product,omitempty"`
}

type change struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// Process handles one webhook id end to end. Already-processed and unknown
// ids are no-ops; any failure past the lookup is recorded on the event row
// and never re-raised.
func (p *Processor) Process(ctx context.Context, webhookID string) {
	event, err := p.store.GetWebhookEvent(webhookID)
	if err != nil {
		p.logger.Error("Webhook %s: failed to load event: %v", webhookID, err)
		return
	}
	if event == nil {
		p.logger.Debug("Webhook %s: no persisted event, skipping", webhookID)
		return
	}
	if event.Processed {
		p.logger.Debug("Webhook %s: already processed, skipping", webhookID)
		return
	}

	// The Kafka consumer and the recovery sweep can both reach the same id;
	// the atomic claim makes sure only one pickup applies it.
	claimed, err := p.store.ClaimWebhookEvent(webhookID)
	if err != nil {
		p.logger.Error("Webhook %s: failed to claim event: %v", webhookID, err)
		return
	}
	if !claimed {
		p.logger.Debug("Webhook %s: claimed by another pickup, skipping", webhookID)
		return
	}

	result, err := p.apply(ctx, event)
	if err != nil {
		p.logger.Error("Webhook %s: processing failed: %v", webhookID, err)
		p.markDone(webhookID, false, nil, err)
		return
	}

	p.markDone(webhookID, true, result, nil)
}

func (p *Processor) apply(ctx context.Context, event *models.WebhookEvent) (*processResult, error) {
	if event.ItemID == nil || *event.ItemID == "" {
		return nil, fmt.Errorf("no item id extracted from resource %q", event.Resource)
	}
	itemID := *event.ItemID

	p.logger.Debug("Webhook %s: loading pre-image for item %s", event.WebhookID, itemID)
	preImage, err := p.store.GetProduct(itemID, event.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored product: %w", err)
	}

	p.logger.Debug("Webhook %s: fetching fresh state for item %s", event.WebhookID, itemID)
	item, err := p.catalog.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item: %w", err)
	}

	now := p.now()
	result := &processResult{
		ItemID:      itemID,
		NewQuantity: item.AvailableQuantity,
	}

	if preImage != nil {
		prev := preImage.AvailableQuantity
		result.PreviousQuantity = &prev
		result.Changes = fieldChanges(preImage, item)

		if item.AvailableQuantity != prev {
			alert := p.buildAlert(event.UserID, preImage, item, now)
			if err := p.store.SaveStockAlert(alert); err != nil {
				return nil, fmt.Errorf("failed to save stock alert: %w", err)
			}
			result.Alert = string(alert.AlertType)
			p.logger.Info("Webhook %s: %s alert for item %s (%d -> %d)",
				event.WebhookID, alert.AlertType, itemID, prev, item.AvailableQuantity)
		}
	} else {
		result.NewProduct = true
	}

	product := diff.MapItem(item, event.UserID, now)
	if preImage != nil {
		product.LastAPISync = preImage.LastAPISync
	} else {
		product.LastAPISync = nil
	}
	product.LastWebhookSync = &now
	product.WebhookSource = event.Topic

	if err := p.store.UpsertProduct(&product); err != nil {
		return nil, fmt.Errorf("failed to upsert product: %w", err)
	}

	return result, nil
}

// fieldChanges computes the delta used purely for the result payload.
func fieldChanges(before *models.Product, after *marketplace.Item) map[string]change {
	changes := make(map[string]change)
	if before.AvailableQuantity != after.AvailableQuantity {
		changes["available_quantity"] = change{From: before.AvailableQuantity, To: after.AvailableQuantity}
	}
	if before.Price != after.Price {
		changes["price"] = change{From: before.Price, To: after.Price}
	}
	if before.Status != after.Status {
		changes["status"] = change{From: before.Status, To: after.Status}
	}
	if len(changes) == 0 {
		return nil
	}
	return changes
}

// buildAlert classifies a quantity change. LOW_STOCK wins whenever the new
// quantity is at or below the threshold, regardless of direction.
func (p *Processor) buildAlert(userID int64, before *models.Product, after *marketplace.Item, now time.Time) *models.StockAlert {
	alertType := models.AlertStockIncrease
	switch {
	case after.AvailableQuantity <= p.threshold():
		alertType = models.AlertLowStock
	case after.AvailableQuantity < before.AvailableQuantity:
		alertType = models.AlertStockDecrease
	}

	return &models.StockAlert{
		UserID:        userID,
		ItemID:        after.ID,
		AlertType:     alertType,
		PreviousStock: before.AvailableQuantity,
		NewStock:      after.AvailableQuantity,
		Title:         after.Title,
		SKU:           diff.ExtractSKU(after),
		CreatedAt:     now,
	}
}

// threshold reads the runtime override, falling back to the configured
// default when unset or unparsable.
func (p *Processor) threshold() int {
	raw, err := p.store.GetConfig(models.SettingLowStockThreshold)
	if err != nil || raw == "" {
		return p.defaultThreshold
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return p.defaultThreshold
	}
	return value
}

func (p *Processor) markDone(webhookID string, success bool, result *processResult, procErr error) {
	resultJSON := ""
	if result != nil {
		if data, err := json.Marshal(result); err == nil {
			resultJSON = string(data)
		}
	}
	errText := ""
	if procErr != nil {
		errText = procErr.Error()
	}

	if err := p.store.MarkWebhookProcessed(webhookID, success, resultJSON, errText); err != nil {
		p.logger.Error("Webhook %s: failed to record outcome: %v", webhookID, err)
	}
}
