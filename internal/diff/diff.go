package diff

import (
	"time"

	"stocksync/internal/models"
	"stocksync/internal/services/marketplace"
)

// ProductChange is a minimal update for one stored product: only the tracked
// fields that actually differ, plus a fresh sync timestamp. Fields is keyed
// by column name so the store can apply it as a partial update.
type ProductChange struct {
	ItemID string
	UserID int64
	Fields map[string]interface{}
}

// Result partitions a remote batch against the store.
type Result struct {
	New            []models.Product
	Changed        []ProductChange
	UnchangedCount int
}

// Compare runs a remote batch against the corresponding stored records and
// produces disjoint new/changed/unchanged sets. Pure: no I/O, no clock reads
// beyond the caller-supplied timestamp.
func Compare(remote []marketplace.Item, stored []models.Product, userID int64, now time.Time) Result {
	byItemID := make(map[string]*models.Product, len(stored))
	for i := range stored {
		byItemID[stored[i].ItemID] = &stored[i]
	}

	var result Result
	for i := range remote {
		item := &remote[i]

		existing, ok := byItemID[item.ID]
		if !ok {
			result.New = append(result.New, MapItem(item, userID, now))
			continue
		}

		change := compareItem(item, existing, now)
		if change == nil {
			result.UnchangedCount++
			continue
		}
		result.Changed = append(result.Changed, *change)
	}

	return result
}

// compareItem checks the tracked field set with strict equality. A nil SKU
// and an empty SKU are different values and stay different.
func compareItem(item *marketplace.Item, existing *models.Product, now time.Time) *ProductChange {
	fields := make(map[string]interface{})

	if item.AvailableQuantity != existing.AvailableQuantity {
		fields["available_quantity"] = item.AvailableQuantity
	}
	if item.Price != existing.Price {
		fields["price"] = item.Price
	}
	if item.Status != existing.Status {
		fields["status"] = item.Status
	}
	if item.Title != existing.Title {
		fields["title"] = item.Title
	}
	if sku := ExtractSKU(item); !equalStringPtr(sku, existing.SKU) {
		fields["sku"] = sku
	}
	if hours := ExtractHandlingHours(item); !equalIntPtr(hours, existing.EstimatedHandlingHours) {
		fields["estimated_handling_hours"] = hours
	}

	if len(fields) == 0 {
		return nil
	}

	fields["last_api_sync"] = now
	return &ProductChange{
		ItemID: item.ID,
		UserID: existing.UserID,
		Fields: fields,
	}
}

// MapItem builds a full stored record from a remote item.
func MapItem(item *marketplace.Item, userID int64, now time.Time) models.Product {
	syncedAt := now
	return models.Product{
		ItemID:                 item.ID,
		UserID:                 userID,
		Title:                  item.Title,
		SKU:                    ExtractSKU(item),
		AvailableQuantity:      item.AvailableQuantity,
		Price:                  item.Price,
		Status:                 item.Status,
		CategoryID:             item.CategoryID,
		Condition:              item.Condition,
		ListingTypeID:          item.ListingTypeID,
		Health:                 item.Health,
		EstimatedHandlingHours: ExtractHandlingHours(item),
		LastAPISync:            &syncedAt,
	}
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
