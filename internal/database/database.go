package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	DB *gorm.DB
}

func New(databaseURL string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(databaseURL, "sqlite://") {
		// SQLite for development
		dbPath := strings.TrimPrefix(databaseURL, "sqlite://")
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
	} else {
		// PostgreSQL for production
		db, err = gorm.Open(postgres.Open(databaseURL), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Create tables manually with raw SQL
	createTablesSQL := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		user_id BIGINT NOT NULL,
		title TEXT,
		sku TEXT,
		available_quantity INTEGER DEFAULT 0,
		price DECIMAL(12,2),
		status TEXT,
		category_id TEXT,
		condition TEXT,
		listing_type_id TEXT,
		health DECIMAL,
		estimated_handling_hours INTEGER,
		last_api_sync TIMESTAMPTZ,
		last_webhook_sync TIMESTAMPTZ,
		webhook_source TEXT,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_item_user ON products (item_id, user_id);

	CREATE TABLE IF NOT EXISTS webhook_events (
		id TEXT PRIMARY KEY,
		webhook_id TEXT UNIQUE NOT NULL,
		topic TEXT NOT NULL,
		resource TEXT NOT NULL,
		user_id BIGINT NOT NULL,
		application_id BIGINT,
		item_id TEXT,
		processed BOOLEAN DEFAULT false,
		claimed_at TIMESTAMPTZ,
		attempts INTEGER DEFAULT 0,
		sent TIMESTAMPTZ,
		received_at TIMESTAMPTZ,
		client_ip TEXT,
		headers TEXT,
		result TEXT,
		process_error TEXT,
		processed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_webhook_events_processed ON webhook_events (processed);

	CREATE TABLE IF NOT EXISTS scan_controls (
		user_id BIGINT PRIMARY KEY,
		total_products INTEGER DEFAULT 0,
		scroll_id TEXT,
		scan_completed BOOLEAN DEFAULT false,
		last_full_scan_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stock_alerts (
		id TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		item_id TEXT NOT NULL,
		alert_type TEXT NOT NULL,
		previous_stock INTEGER,
		new_stock INTEGER,
		title TEXT,
		sku TEXT,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_stock_alerts_user ON stock_alerts (user_id);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);
	`

	err = db.Exec(createTablesSQL).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Database{DB: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
