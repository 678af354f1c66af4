// Package litekeeper stores products and the sync status in a SQLite file.
package litekeeper

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/drstein77/chainprices/internal/models"
)

type Log interface {
	Info(string, ...zap.Field)
	Error(string, ...zap.Field)
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	barcode        TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	manufacturer   TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	unit_qty       TEXT NOT NULL DEFAULT '',
	unit_measure   TEXT NOT NULL DEFAULT '',
	image          TEXT,
	prices         TEXT NOT NULL DEFAULT '[]',
	cheapest_price REAL NOT NULL,
	cheapest_chain TEXT NOT NULL,
	last_updated   TEXT NOT NULL,
	data_source    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS products_category_idx ON products (category);
CREATE TABLE IF NOT EXISTS sync_status (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	last_sync      TEXT NOT NULL,
	type           TEXT NOT NULL,
	total_products INTEGER NOT NULL,
	store_stats    TEXT NOT NULL,
	chains         TEXT NOT NULL
);`

type LiteKeeper struct {
	db  *sql.DB
	log Log
}

// NewLiteKeeper opens the database file at path, creating it and its schema
// when missing.
func NewLiteKeeper(ctx context.Context, path func() string, log Log) (*LiteKeeper, error) {
	file := path()
	if file == "" {
		return nil, errors.New("sqlite path is empty")
	}

	db, err := sql.Open("sqlite", file)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", file, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	log.Info("Opened sqlite database", zap.String("path", file))
	return &LiteKeeper{db: db, log: log}, nil
}

const upsertProduct = `
	INSERT INTO products (barcode, name, manufacturer, category, unit_qty, unit_measure,
		image, prices, cheapest_price, cheapest_chain, last_updated, data_source)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (barcode) DO UPDATE SET
		name = excluded.name,
		manufacturer = excluded.manufacturer,
		category = excluded.category,
		unit_qty = excluded.unit_qty,
		unit_measure = excluded.unit_measure,
		image = excluded.image,
		prices = excluded.prices,
		cheapest_price = excluded.cheapest_price,
		cheapest_chain = excluded.cheapest_chain,
		last_updated = excluded.last_updated,
		data_source = excluded.data_source`

func (kp *LiteKeeper) UpsertProduct(ctx context.Context, p models.StoredProduct) (inserted bool, err error) {
	prices, err := json.Marshal(p.Prices)
	if err != nil {
		return false, fmt.Errorf("encode prices of %s: %w", p.Barcode, err)
	}

	tx, err := kp.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				kp.log.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE barcode = ?`, p.Barcode).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("look up product %s: %w", p.Barcode, err)
	}

	_, err = tx.ExecContext(ctx, upsertProduct,
		p.Barcode, p.Name, p.Manufacturer, p.Category, p.UnitQty, p.UnitMeasure,
		p.Image, string(prices), p.CheapestPrice, p.CheapestChain,
		p.LastUpdated.UTC().Format(time.RFC3339Nano), p.DataSource)
	if err != nil {
		return false, fmt.Errorf("upsert product %s: %w", p.Barcode, err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return exists == 0, nil
}

const upsertSyncStatus = `
	INSERT INTO sync_status (id, run_id, last_sync, type, total_products, store_stats, chains)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		run_id = excluded.run_id,
		last_sync = excluded.last_sync,
		type = excluded.type,
		total_products = excluded.total_products,
		store_stats = excluded.store_stats,
		chains = excluded.chains`

func (kp *LiteKeeper) UpsertSyncStatus(ctx context.Context, s models.SyncStatus) error {
	stats, err := json.Marshal(s.StoreStats)
	if err != nil {
		return fmt.Errorf("encode store stats: %w", err)
	}
	chains, err := json.Marshal(s.Chains)
	if err != nil {
		return fmt.Errorf("encode chains: %w", err)
	}

	_, err = kp.db.ExecContext(ctx, upsertSyncStatus,
		models.SyncStatusKey, s.RunID, s.LastSync.UTC().Format(time.RFC3339Nano),
		s.Type, s.TotalProducts, string(stats), string(chains))
	if err != nil {
		return fmt.Errorf("upsert sync status: %w", err)
	}
	return nil
}

// Product reads back a stored product.
func (kp *LiteKeeper) Product(ctx context.Context, barcode string) (models.StoredProduct, error) {
	var (
		p       models.StoredProduct
		image   sql.NullString
		prices  string
		updated string
	)
	err := kp.db.QueryRowContext(ctx, `
		SELECT barcode, name, manufacturer, category, unit_qty, unit_measure,
			image, prices, cheapest_price, cheapest_chain, last_updated, data_source
		FROM products WHERE barcode = ?`, barcode).Scan(
		&p.Barcode, &p.Name, &p.Manufacturer, &p.Category, &p.UnitQty, &p.UnitMeasure,
		&image, &prices, &p.CheapestPrice, &p.CheapestChain, &updated, &p.DataSource)
	if err != nil {
		return p, fmt.Errorf("read product %s: %w", barcode, err)
	}

	if image.Valid {
		p.Image = &image.String
	}
	if err := json.Unmarshal([]byte(prices), &p.Prices); err != nil {
		return p, fmt.Errorf("decode prices of %s: %w", barcode, err)
	}
	if p.LastUpdated, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return p, fmt.Errorf("decode last update of %s: %w", barcode, err)
	}
	return p, nil
}

// SyncStatus reads back the sync status record.
func (kp *LiteKeeper) SyncStatus(ctx context.Context) (models.SyncStatus, error) {
	var (
		s            models.SyncStatus
		last         string
		stats, chain string
	)
	err := kp.db.QueryRowContext(ctx, `
		SELECT run_id, last_sync, type, total_products, store_stats, chains
		FROM sync_status WHERE id = ?`, models.SyncStatusKey).Scan(
		&s.RunID, &last, &s.Type, &s.TotalProducts, &stats, &chain)
	if err != nil {
		return s, fmt.Errorf("read sync status: %w", err)
	}

	if s.LastSync, err = time.Parse(time.RFC3339Nano, last); err != nil {
		return s, fmt.Errorf("decode last sync: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &s.StoreStats); err != nil {
		return s, fmt.Errorf("decode store stats: %w", err)
	}
	if err := json.Unmarshal([]byte(chain), &s.Chains); err != nil {
		return s, fmt.Errorf("decode chains: %w", err)
	}
	return s, nil
}

func (kp *LiteKeeper) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := kp.db.PingContext(ctx); err != nil {
		kp.log.Error("Sqlite ping failed", zap.Error(err))
		return false
	}
	return true
}

func (kp *LiteKeeper) Close() bool {
	if kp.db == nil {
		return false
	}
	if err := kp.db.Close(); err != nil {
		kp.log.Error("Failed to close sqlite database", zap.Error(err))
		return false
	}
	kp.log.Info("Sqlite database closed")
	return true
}
