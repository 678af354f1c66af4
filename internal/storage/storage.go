// Package storage persists merged products through a Keeper and records the
// outcome of the run.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/drstein77/chainprices/internal/models"
	"github.com/drstein77/chainprices/internal/result"
)

// ErrNilKeeper is returned when persistence is requested without a sink.
var ErrNilKeeper = errors.New("no storage keeper configured")

type Log interface {
	Info(string, ...zap.Field)
	Warn(string, ...zap.Field)
}

// Keeper is a persistence backend.
type Keeper interface {
	// UpsertProduct stores p keyed by barcode and reports whether it was new.
	UpsertProduct(ctx context.Context, p models.StoredProduct) (inserted bool, err error)
	UpsertSyncStatus(ctx context.Context, status models.SyncStatus) error
	Ping(context.Context) bool
	Close() bool
}

// Recorder receives per-product persistence outcomes.
type Recorder interface {
	ProductStored(inserted bool)
	ProductFailed()
}

type nopRecorder struct{}

func (nopRecorder) ProductStored(bool) {}
func (nopRecorder) ProductFailed()     {}

// Storage writes the persistence projection of a batch.
type Storage struct {
	keeper     Keeper
	log        Log
	recorder   Recorder
	dataSource string
}

// NewStorage returns a storage over keeper. A nil recorder is allowed.
func NewStorage(keeper Keeper, log Log, recorder Recorder, dataSource string) *Storage {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Storage{
		keeper:     keeper,
		log:        log,
		recorder:   recorder,
		dataSource: dataSource,
	}
}

// Run identifies one persisted batch.
type Run struct {
	ID   string
	Mode string
	Now  time.Time
}

// Persist upserts every product and then the sync status record. A failed
// product is counted and skipped; only a missing keeper, cancellation or a
// failed sync status write are returned as errors.
func (s *Storage) Persist(ctx context.Context, products []models.MergedProduct, summary models.FetchSummary, run Run) (models.StoreStats, error) {
	var stats models.StoreStats
	if s.keeper == nil {
		return stats, ErrNilKeeper
	}

	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("persist interrupted: %w", err)
		}

		inserted, err := s.keeper.UpsertProduct(ctx, result.Project(p, run.Now, s.dataSource))
		if err != nil {
			stats.Errors++
			s.recorder.ProductFailed()
			s.log.Warn("cannot store product", zap.String("barcode", p.Barcode), zap.Error(err))
			continue
		}
		if inserted {
			stats.Inserted++
		} else {
			stats.Updated++
		}
		s.recorder.ProductStored(inserted)
	}

	status := result.SyncStatus(run.ID, summary, len(products), stats, run.Now, run.Mode)
	if err := s.keeper.UpsertSyncStatus(ctx, status); err != nil {
		return stats, fmt.Errorf("store sync status: %w", err)
	}

	s.log.Info("products stored",
		zap.String("run", run.ID),
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("errors", stats.Errors))
	return stats, nil
}

// Ping checks that the keeper is reachable.
func (s *Storage) Ping(ctx context.Context) bool {
	return s.keeper != nil && s.keeper.Ping(ctx)
}

// Close releases the keeper.
func (s *Storage) Close() bool {
	if s.keeper == nil {
		return false
	}
	return s.keeper.Close()
}
