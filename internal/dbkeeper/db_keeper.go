// Package dbkeeper stores products and the sync status in PostgreSQL.
package dbkeeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drstein77/chainprices/internal/models"
)

type Log interface {
	Info(string, ...zap.Field)
	Error(string, ...zap.Field)
}

type DBKeeper struct {
	pool *pgxpool.Pool
	log  Log
}

// NewDBKeeper applies pending migrations from migrationsDir and opens a
// connection pool.
func NewDBKeeper(ctx context.Context, dsn func() string, migrationsDir string, log Log) (*DBKeeper, error) {
	addr := dsn()
	if addr == "" {
		return nil, errors.New("database dsn is empty")
	}

	config, err := pgxpool.ParseConfig(addr)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if err := Migrate(addr, migrationsDir, log); err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	kp := &DBKeeper{pool: pool, log: log}
	if !kp.Ping(ctx) {
		kp.Close()
		return nil, errors.New("database is unreachable")
	}

	log.Info("Connected!")
	return kp, nil
}

const upsertProduct = `
	INSERT INTO products (barcode, name, manufacturer, category, unit_qty, unit_measure,
		image, prices, cheapest_price, cheapest_chain, last_updated, data_source)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (barcode) DO UPDATE SET
		name = EXCLUDED.name,
		manufacturer = EXCLUDED.manufacturer,
		category = EXCLUDED.category,
		unit_qty = EXCLUDED.unit_qty,
		unit_measure = EXCLUDED.unit_measure,
		image = EXCLUDED.image,
		prices = EXCLUDED.prices,
		cheapest_price = EXCLUDED.cheapest_price,
		cheapest_chain = EXCLUDED.cheapest_chain,
		last_updated = EXCLUDED.last_updated,
		data_source = EXCLUDED.data_source
	RETURNING (xmax = 0)`

func (kp *DBKeeper) UpsertProduct(ctx context.Context, p models.StoredProduct) (bool, error) {
	if kp.pool == nil {
		return false, fmt.Errorf("database connection pool is nil")
	}

	var inserted bool
	err := kp.pool.QueryRow(ctx, upsertProduct,
		p.Barcode, p.Name, p.Manufacturer, p.Category, p.UnitQty, p.UnitMeasure,
		p.Image, p.Prices, p.CheapestPrice, p.CheapestChain, p.LastUpdated, p.DataSource,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert product %s: %w", p.Barcode, err)
	}
	return inserted, nil
}

const upsertSyncStatus = `
	INSERT INTO sync_status (id, run_id, last_sync, type, total_products, store_stats, chains)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		run_id = EXCLUDED.run_id,
		last_sync = EXCLUDED.last_sync,
		type = EXCLUDED.type,
		total_products = EXCLUDED.total_products,
		store_stats = EXCLUDED.store_stats,
		chains = EXCLUDED.chains`

func (kp *DBKeeper) UpsertSyncStatus(ctx context.Context, s models.SyncStatus) error {
	if kp.pool == nil {
		return fmt.Errorf("database connection pool is nil")
	}

	tx, err := kp.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, upsertSyncStatus,
		models.SyncStatusKey, s.RunID, s.LastSync, s.Type, s.TotalProducts, s.StoreStats, s.Chains)
	if err != nil {
		return fmt.Errorf("upsert sync status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (kp *DBKeeper) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := kp.pool.Ping(ctx); err != nil {
		kp.log.Error("Database ping failed", zap.Error(err))
		return false
	}

	return true
}

func (kp *DBKeeper) Close() bool {
	if kp.pool != nil {
		kp.pool.Close()
		kp.log.Info("Database connection pool closed")
		return true
	}
	kp.log.Info("Attempted to close a nil database connection pool")
	return false
}
