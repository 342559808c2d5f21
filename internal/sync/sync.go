package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"stocksync/internal/diff"
	"stocksync/internal/logger"
	"stocksync/internal/models"
	"stocksync/internal/services/marketplace"
)

// CatalogClient is the upstream surface the synchronizer drives.
type CatalogClient interface {
	ListItemIDs(ctx context.Context, userID int64, scrollID string) (*marketplace.ScanPage, error)
	GetItems(ctx context.Context, ids []string) ([]marketplace.Item, error)
}

// Store is the persistence surface the synchronizer writes through.
type Store interface {
	CountProducts(userID int64) (int64, error)
	GetProductsForComparison(ids []string, userID int64) ([]models.Product, error)
	GetProductIDs(userID int64) ([]string, error)
	UpsertProducts(products []models.Product) error
	UpdateChangedFields(changes []diff.ProductChange) error
	DeleteProducts(ids []string, userID int64) error
	GetScanControl(userID int64) (*models.ScanControl, error)
	SaveScanControl(control *models.ScanControl) error
	GetConfig(key string) (string, error)
}

type Options struct {
	BatchSize    int
	PageDelay    time.Duration
	BatchDelay   time.Duration
	BackoffDelay time.Duration
	Cleanup      bool
}

// Result summarizes one full-sync run.
type Result struct {
	Synced        int  `json:"synced"`
	TotalIDsFound int  `json:"total_ids_found"`
	ScanCompleted bool `json:"scan_completed"`
	Deleted       int  `json:"deleted"`
}

type Synchronizer struct {
	client CatalogClient
	store  Store
	logger *logger.Logger
	opts   Options

	// sleep is swappable so tests do not wait out rate-limit delays.
	sleep func(time.Duration)
	now   func() time.Time
}

func New(client CatalogClient, store Store, logger *logger.Logger, opts Options) *Synchronizer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 30
	}
	return &Synchronizer{
		client: client,
		store:  store,
		logger: logger,
		opts:   opts,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// NeedsFullSync decides between a full scan and relying on webhooks alone.
// A full scan runs when the user has never completed one, the store holds no
// products, or the count sits below the optional sync.min_products override.
func (s *Synchronizer) NeedsFullSync(userID int64) (bool, error) {
	control, err := s.store.GetScanControl(userID)
	if err != nil {
		return false, fmt.Errorf("failed to load scan control: %w", err)
	}
	if control == nil || control.LastFullScanAt == nil {
		return true, nil
	}

	count, err := s.store.CountProducts(userID)
	if err != nil {
		return false, fmt.Errorf("failed to count products: %w", err)
	}
	if count == 0 {
		return true, nil
	}

	if raw, err := s.store.GetConfig(models.SettingSyncMinProducts); err == nil && raw != "" {
		if min, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil && count < min {
			return true, nil
		}
	}

	return false, nil
}

// SyncAll runs the two-phase full synchronization: scan-paginated id
// discovery, then batched detail fetches pushed through the diff engine.
func (s *Synchronizer) SyncAll(ctx context.Context, userID int64) (*Result, error) {
	ids, scanCompleted, err := s.discoverIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Discovery finished for user %d: %d ids, scan completed: %v",
		userID, len(ids), scanCompleted)

	synced, err := s.fetchAndApply(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Synced:        synced,
		TotalIDsFound: len(ids),
		ScanCompleted: scanCompleted,
	}

	if scanCompleted {
		if s.opts.Cleanup {
			deleted, err := s.cleanup(userID, ids)
			if err != nil {
				s.logger.Error("Cleanup pass failed for user %d: %v", userID, err)
			} else {
				result.Deleted = deleted
			}
		}

		now := s.now()
		control := &models.ScanControl{
			UserID:         userID,
			TotalProducts:  len(ids),
			ScanCompleted:  true,
			LastFullScanAt: &now,
		}
		if err := s.store.SaveScanControl(control); err != nil {
			s.logger.Error("Failed to save scan control for user %d: %v", userID, err)
		}
	}

	return result, nil
}

// discoverIDs walks the scan pagination until the platform reports the scan
// complete. Ids repeated across overlapping pages are dropped. A page
// failure after partial progress ends discovery early and the collected ids
// are still processed; a failure on the first page propagates.
func (s *Synchronizer) discoverIDs(ctx context.Context, userID int64) ([]string, bool, error) {
	var ids []string
	seen := make(map[string]bool)
	scrollID := ""
	scanCompleted := false

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		resp, err := s.client.ListItemIDs(ctx, userID, scrollID)
		if err != nil {
			if len(ids) == 0 {
				return nil, false, fmt.Errorf("id discovery failed on first page: %w", err)
			}
			s.logger.Error("Discovery page %d failed for user %d, continuing with %d collected ids: %v",
				page, userID, len(ids), err)
			break
		}

		for _, id := range resp.IDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}

		s.logger.Debug("Discovery page %d: %d ids collected so far", page, len(ids))

		if resp.ScanCompleted {
			scanCompleted = true
			break
		}
		scrollID = resp.ScrollID

		s.sleep(s.opts.PageDelay)
	}

	return ids, scanCompleted, nil
}

// fetchAndApply partitions ids into fixed-size batches, fetches details and
// applies the diff. A failed batch is skipped after a backoff delay; it does
// not abort the run or get retried.
func (s *Synchronizer) fetchAndApply(ctx context.Context, userID int64, ids []string) (int, error) {
	synced := 0

	for start := 0; start < len(ids); start += s.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return synced, err
		}

		end := start + s.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		items, err := s.client.GetItems(ctx, batch)
		if err != nil {
			s.logger.Error("Batch fetch failed for user %d (ids %d-%d), backing off: %v",
				userID, start, end, err)
			s.sleep(s.opts.BackoffDelay)
			continue
		}

		applied, err := s.applyBatch(userID, items)
		if err != nil {
			return synced, err
		}
		synced += applied

		if end < len(ids) {
			s.sleep(s.opts.BatchDelay)
		}
	}

	return synced, nil
}

func (s *Synchronizer) applyBatch(userID int64, items []marketplace.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	batchIDs := make([]string, len(items))
	for i, item := range items {
		batchIDs[i] = item.ID
	}

	stored, err := s.store.GetProductsForComparison(batchIDs, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load stored products: %w", err)
	}

	result := diff.Compare(items, stored, userID, s.now())

	if len(result.New) > 0 {
		if err := s.store.UpsertProducts(result.New); err != nil {
			return 0, fmt.Errorf("failed to upsert new products: %w", err)
		}
	}
	if len(result.Changed) > 0 {
		if err := s.store.UpdateChangedFields(result.Changed); err != nil {
			return 0, fmt.Errorf("failed to apply changed fields: %w", err)
		}
	}

	s.logger.Debug("Batch applied for user %d: %d new, %d changed, %d unchanged",
		userID, len(result.New), len(result.Changed), result.UnchangedCount)

	return len(result.New) + len(result.Changed), nil
}

// cleanup removes products no longer present upstream. Only runs after a
// fully completed discovery, so an aborted scan can never mass-delete.
func (s *Synchronizer) cleanup(userID int64, remoteIDs []string) (int, error) {
	storedIDs, err := s.store.GetProductIDs(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load stored ids: %w", err)
	}

	remote := make(map[string]bool, len(remoteIDs))
	for _, id := range remoteIDs {
		remote[id] = true
	}

	var stale []string
	for _, id := range storedIDs {
		if !remote[id] {
			stale = append(stale, id)
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}

	if err := s.store.DeleteProducts(stale, userID); err != nil {
		return 0, fmt.Errorf("failed to delete stale products: %w", err)
	}

	s.logger.Info("Cleanup removed %d stale products for user %d", len(stale), userID)
	return len(stale), nil
}
