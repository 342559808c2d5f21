package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"stocksync/internal/diff"
	"stocksync/internal/logger"
	"stocksync/internal/models"
	"stocksync/internal/services/marketplace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	pages     []*marketplace.ScanPage
	pageErrs  map[int]error
	pageCalls int

	items     map[string]marketplace.Item
	batchErrs map[int]error
	batchNum  int
	batches   [][]string
}

func (f *fakeCatalog) ListItemIDs(ctx context.Context, userID int64, scrollID string) (*marketplace.ScanPage, error) {
	call := f.pageCalls
	f.pageCalls++
	if err, ok := f.pageErrs[call]; ok {
		return nil, err
	}
	if call >= len(f.pages) {
		return &marketplace.ScanPage{ScanCompleted: true}, nil
	}
	return f.pages[call], nil
}

func (f *fakeCatalog) GetItems(ctx context.Context, ids []string) ([]marketplace.Item, error) {
	call := f.batchNum
	f.batchNum++
	f.batches = append(f.batches, ids)
	if err, ok := f.batchErrs[call]; ok {
		return nil, err
	}
	var items []marketplace.Item
	for _, id := range ids {
		if item, ok := f.items[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

type fakeStore struct {
	products map[string]models.Product
	control  *models.ScanControl
	settings map[string]string

	upserted []models.Product
	updated  []diff.ProductChange
	deleted  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: make(map[string]models.Product),
		settings: make(map[string]string),
	}
}

func (f *fakeStore) CountProducts(userID int64) (int64, error) {
	return int64(len(f.products)), nil
}

func (f *fakeStore) GetProductsForComparison(ids []string, userID int64) ([]models.Product, error) {
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetProductIDs(userID int64) ([]string, error) {
	var ids []string
	for id := range f.products {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) UpsertProducts(products []models.Product) error {
	f.upserted = append(f.upserted, products...)
	for _, p := range products {
		f.products[p.ItemID] = p
	}
	return nil
}

func (f *fakeStore) UpdateChangedFields(changes []diff.ProductChange) error {
	f.updated = append(f.updated, changes...)
	return nil
}

func (f *fakeStore) DeleteProducts(ids []string, userID int64) error {
	f.deleted = append(f.deleted, ids...)
	for _, id := range ids {
		delete(f.products, id)
	}
	return nil
}

func (f *fakeStore) GetScanControl(userID int64) (*models.ScanControl, error) {
	return f.control, nil
}

func (f *fakeStore) SaveScanControl(control *models.ScanControl) error {
	f.control = control
	return nil
}

func (f *fakeStore) GetConfig(key string) (string, error) {
	return f.settings[key], nil
}

func newTestSynchronizer(catalog *fakeCatalog, store *fakeStore, opts Options) *Synchronizer {
	s := New(catalog, store, logger.New("error"), opts)
	s.sleep = func(time.Duration) {}
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func item(id string, qty int) marketplace.Item {
	return marketplace.Item{ID: id, Title: "Widget " + id, AvailableQuantity: qty, Price: 10, Status: "active"}
}

func TestSyncAll_FullScan(t *testing.T) {
	catalog := &fakeCatalog{
		pages: []*marketplace.ScanPage{
			{IDs: []string{"MLA1", "MLA2"}, ScrollID: "s1", HasMore: true},
			{IDs: []string{"MLA3"}, ScrollID: "s2", HasMore: true},
			{ScanCompleted: true},
		},
		items: map[string]marketplace.Item{
			"MLA1": item("MLA1", 5),
			"MLA2": item("MLA2", 8),
			"MLA3": item("MLA3", 2),
		},
	}
	store := newFakeStore()

	s := newTestSynchronizer(catalog, store, Options{BatchSize: 30})
	result, err := s.SyncAll(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Synced)
	assert.Equal(t, 3, result.TotalIDsFound)
	assert.True(t, result.ScanCompleted)
	assert.Len(t, store.upserted, 3)

	require.NotNil(t, store.control)
	assert.True(t, store.control.ScanCompleted)
	assert.NotNil(t, store.control.LastFullScanAt)
	assert.Equal(t, 3, store.control.TotalProducts)
}

func TestSyncAll_DeduplicatesOverlappingPages(t *testing.T) {
	catalog := &fakeCatalog{
		pages: []*marketplace.ScanPage{
			{IDs: []string{"MLA1", "MLA2"}, ScrollID: "s1", HasMore: true},
			{IDs: []string{"MLA2", "MLA3"}, ScrollID: "s2", HasMore: true},
			{ScanCompleted: true},
		},
		items: map[string]marketplace.Item{
			"MLA1": item("MLA1", 1), "MLA2": item("MLA2", 1), "MLA3": item("MLA3", 1),
		},
	}
	store := newFakeStore()

	s := newTestSynchronizer(catalog, store, Options{BatchSize: 30})
	result, err := s.SyncAll(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalIDsFound)
}

func TestSyncAll_PartialProgressOnPageFailure(t *testing.T) {
	catalog := &fakeCatalog{
		pages: []*marketplace.ScanPage{
			{IDs: []string{"MLA1"}, ScrollID: "s1", HasMore: true},
			{IDs: []string{"MLA2"}, ScrollID: "s2", HasMore: true},
		},
		pageErrs: map[int]error{2: errors.New("rate limited")},
		items: map[string]marketplace.Item{
			"MLA1": item("MLA1", 1), "MLA2": item("MLA2", 1),
		},
	}
	store := newFakeStore()

	s := newTestSynchronizer(catalog, store, Options{BatchSize: 30, Cleanup: true})
	result, err := s.SyncAll(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Synced)
	assert.False(t, result.ScanCompleted)

	// Incomplete discovery must not mark the scan complete or delete.
	assert.Nil(t, store.control)
	assert.Empty(t, store.deleted)
}

func TestSyncAll_FirstPageFailurePropagates(t *testing.T) {
	catalog := &fakeCatalog{
		pageErrs: map[int]error{0: errors.New("auth failed")},
	}
	store := newFakeStore()

	s := newTestSynchronizer(catalog, store, Options{})
	_, err := s.SyncAll(context.Background(), 42)

	require.Error(t, err)
	assert.Empty(t, store.upserted)
}

func TestSyncAll_FailedBatchIsSkippedNotFatal(t *testing.T) {
	catalog := &fakeCatalog{
		pages: []*marketplace.ScanPage{
			{IDs: []string{"MLA1", "MLA2", "MLA3", "MLA4"}, ScrollID: "s1", HasMore: true},
			{ScanCompleted: true},
		},
		batchErrs: map[int]error{0: errors.New("rate limited")},
		items: map[string]marketplace.Item{
			"MLA1": item("MLA1", 1), "MLA2": item("MLA2", 1),
			"MLA3": item("MLA3", 1), "MLA4": item("MLA4", 1),
		},
	}
	store := newFakeStore()

	s := newTestSynchronizer(catalog, store, Options{BatchSize: 2})
	result, err := s.SyncAll(context.Background(), 42)

	require.NoError(t, err)
	// First batch (MLA1, MLA2) failed and was skipped; second succeeded.
	assert.Equal(t, 2, result.Synced)
	require.Len(t, catalog.batches, 2)
	assert.Equal(t, []string{"MLA1", "MLA2"}, catalog.batches[0])
	assert.Equal(t, []string{"MLA3", "MLA4"}, catalog.batches[1])
}

func TestSyncAll_BatchPartitioning(t *testing.T) {
	ids := []string{"A", "B", "C", "D", "E"}
	catalog := &fakeCatalog{
		pages: []*marketplace.ScanPage{
			{IDs: ids, ScrollID: "s1", HasMore: true},
			{ScanCompleted: true},
		},
		items: map[string]marketplace.Item{
			"A": item("A", 1), "B": item("B", 1), "C": item("C", 1),
			"D": item("D", 1), "E": item("E", 1),
		},
	}
	store := newFakeStore()

	s := newTestSynchronizer(catalog, store, Options{BatchSize: 2})
	_, err := s.SyncAll(context.Background(), 42)

	require.NoError(t, err)
	require.Len(t, catalog.batches, 3)
	assert.Len(t, catalog.batches[0], 2)
	assert.Len(t, catalog.batches[1], 2)
	assert.Len(t, catalog.batches[2], 1)
}

func TestSyncAll_ChangedProductsUseMinimalUpdate(t *testing.T) {
	catalog := &fakeCatalog{
		pages: []*marketplace.ScanPage{
			{IDs: []string{"MLA1"}, ScrollID: "s1", HasMore: true},
			{ScanCompleted: true},
		},
		items: map[string]marketplace.Item{"MLA1": item("MLA1", 3)},
	}
	store := newFakeStore()
	store.products["MLA1"] = models.Product{
		ItemID: "MLA1", UserID: 42, Title: "Widget MLA1",
		AvailableQuantity: 10, Price: 10, Status: "active",
	}

	s := newTestSynchronizer(catalog, store, Options{BatchSize: 30})
	result, err := s.SyncAll(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Empty(t, store.upserted)
	require.Len(t, store.updated, 1)
	assert.Equal(t, 3, store.updated[0].Fields["available_quantity"])
}

func TestSyncAll_CleanupRemovesStaleProducts(t *testing.T) {
	catalog := &fakeCatalog{
		pages: []*marketplace.ScanPage{
			{IDs: []string{"MLA1"}, ScrollID: "s1", HasMore: true},
			{ScanCompleted: true},
		},
		items: map[string]marketplace.Item{"MLA1": item("MLA1", 1)},
	}
	store := newFakeStore()
	store.products["MLA1"] = models.Product{ItemID: "MLA1", UserID: 42}
	store.products["GONE"] = models.Product{ItemID: "GONE", UserID: 42}

	s := newTestSynchronizer(catalog, store, Options{BatchSize: 30, Cleanup: true})
	result, err := s.SyncAll(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, []string{"GONE"}, store.deleted)
}

func TestNeedsFullSync_NoScanControl(t *testing.T) {
	s := newTestSynchronizer(&fakeCatalog{}, newFakeStore(), Options{})

	needed, err := s.NeedsFullSync(42)
	require.NoError(t, err)
	assert.True(t, needed)
}

func TestNeedsFullSync_EmptyStore(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	store.control = &models.ScanControl{UserID: 42, ScanCompleted: true, LastFullScanAt: &now}

	s := newTestSynchronizer(&fakeCatalog{}, store, Options{})
	needed, err := s.NeedsFullSync(42)
	require.NoError(t, err)
	assert.True(t, needed)
}

func TestNeedsFullSync_CompleteStoreSkips(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	store.control = &models.ScanControl{UserID: 42, ScanCompleted: true, LastFullScanAt: &now}
	store.products["MLA1"] = models.Product{ItemID: "MLA1", UserID: 42}

	s := newTestSynchronizer(&fakeCatalog{}, store, Options{})
	needed, err := s.NeedsFullSync(42)
	require.NoError(t, err)
	assert.False(t, needed)
}

func TestNeedsFullSync_MinProductsOverride(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	store.control = &models.ScanControl{UserID: 42, ScanCompleted: true, LastFullScanAt: &now}
	store.products["MLA1"] = models.Product{ItemID: "MLA1", UserID: 42}
	store.settings[models.SettingSyncMinProducts] = "100"

	s := newTestSynchronizer(&fakeCatalog{}, store, Options{})
	needed, err := s.NeedsFullSync(42)
	require.NoError(t, err)
	assert.True(t, needed)
}
