// Package app runs one batch: fetch the requested chains, merge their
// products, write the result and optionally store it.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/drstein77/chainprices/internal/chains"
	"github.com/drstein77/chainprices/internal/config"
	"github.com/drstein77/chainprices/internal/dbkeeper"
	"github.com/drstein77/chainprices/internal/feed"
	"github.com/drstein77/chainprices/internal/fetcher"
	"github.com/drstein77/chainprices/internal/litekeeper"
	"github.com/drstein77/chainprices/internal/logger"
	"github.com/drstein77/chainprices/internal/merge"
	"github.com/drstein77/chainprices/internal/metrics"
	"github.com/drstein77/chainprices/internal/models"
	"github.com/drstein77/chainprices/internal/mongokeeper"
	"github.com/drstein77/chainprices/internal/result"
	"github.com/drstein77/chainprices/internal/source"
	"github.com/drstein77/chainprices/internal/storage"
)

// ErrNoSource is returned when neither a data directory nor a scraper
// command is configured.
var ErrNoSource = errors.New("no feed source configured: set --data-dir or --scraper-cmd")

// Source mode tags written to the sync status record.
const (
	ModeDataDir = "data-dir"
	ModeScraper = "scraper"
)

const metricsJob = "chainprices"

type App struct {
	opts   *config.Options
	log    *logger.Logger
	stdout io.Writer
	now    func() time.Time
}

// NewApp returns an app writing its result to stdout.
func NewApp(opts *config.Options, log *logger.Logger, stdout io.Writer) *App {
	return &App{
		opts:   opts,
		log:    log,
		stdout: stdout,
		now:    time.Now,
	}
}

// Run executes the mode selected by the options.
func (a *App) Run(ctx context.Context) error {
	if a.opts.EnvFile() != "" {
		a.log.Debug(".env file loaded", zap.String("path", a.opts.EnvFile()))
	}
	if a.opts.List() {
		return writeJSON(a.stdout, chains.List())
	}
	return a.fetch(ctx)
}

func (a *App) fetch(ctx context.Context) error {
	categorizer, err := a.categorizer()
	if err != nil {
		return err
	}

	src, mode, err := a.source()
	if err != nil {
		return err
	}

	var store *storage.Storage
	rec := metrics.NewRecorder()
	if a.opts.UpdateDB() {
		keeper, err := a.openKeeper(ctx)
		if err != nil {
			return fmt.Errorf("open %s sink: %w", a.opts.Sink(), err)
		}
		store = storage.NewStorage(keeper, a.log, rec, a.opts.DataSource())
		defer store.Close()
	}

	ids := a.opts.Chains()
	if len(ids) == 0 {
		ids = chains.Defaults
	}

	parser := feed.NewParser(feed.NewNormalizer(categorizer), a.log, rec)
	f := fetcher.New(src, parser, a.log, rec, fetcher.Options{
		Limit:     a.opts.Limit(),
		FileLimit: a.opts.FileLimit(),
		Workers:   a.opts.Workers(),
		Timeout:   a.opts.Timeout(),
		WorkRoot:  a.opts.WorkDir(),
	})

	a.log.Info("fetching chains", zap.Strings("chains", ids), zap.String("mode", mode))
	results := f.FetchAll(ctx, ids)

	catalog := merge.Merge(results)
	summary := result.Summarize(results)
	now := a.now()
	res := result.Build(catalog, summary, now)

	if err := a.write(res); err != nil {
		return err
	}

	a.log.Info("batch finished",
		zap.Bool("success", res.Success),
		zap.Int("products", res.TotalProducts),
		zap.Int("failed_chains", len(summary.Failed)))

	if store != nil {
		run := storage.Run{ID: uuid.NewString(), Mode: mode, Now: now}
		if _, err := store.Persist(ctx, res.Products, summary, run); err != nil {
			a.log.Error("cannot store batch", zap.String("run", run.ID), zap.Error(err))
		}
	}

	rec.RunFinished(res.TotalProducts, res.Success, now)
	if url := a.opts.PushgatewayURL(); url != "" {
		if err := rec.Push(url, metricsJob); err != nil {
			a.log.Warn("cannot push metrics", zap.Error(err))
		}
	}
	return nil
}

func (a *App) categorizer() (*feed.Categorizer, error) {
	path := a.opts.CategoriesFile()
	if path == "" {
		return feed.DefaultCategorizer(), nil
	}
	categories, err := feed.LoadCategories(path)
	if err != nil {
		return nil, err
	}
	a.log.Info("category table loaded", zap.String("path", path), zap.Int("categories", len(categories)))
	return feed.NewCategorizer(categories), nil
}

func (a *App) source() (fetcher.Source, string, error) {
	switch {
	case a.opts.DataDir() != "":
		return source.NewDirSource(a.opts.DataDir(), a.log), ModeDataDir, nil
	case a.opts.ScraperCmd() != "":
		return source.NewCommandSource(a.opts.ScraperCmd(), a.log), ModeScraper, nil
	}
	return nil, "", ErrNoSource
}

func (a *App) openKeeper(ctx context.Context) (storage.Keeper, error) {
	switch a.opts.Sink() {
	case config.SinkPostgres:
		kp, err := dbkeeper.NewDBKeeper(ctx, a.opts.DataBaseDSN, a.opts.MigrationsDir(), a.log)
		if err != nil {
			return nil, err
		}
		return kp, nil
	case config.SinkSQLite:
		kp, err := litekeeper.NewLiteKeeper(ctx, a.opts.SQLitePath, a.log)
		if err != nil {
			return nil, err
		}
		return kp, nil
	default:
		kp, err := mongokeeper.NewMongoKeeper(ctx, a.opts.MongoURI, a.log)
		if err != nil {
			return nil, err
		}
		return kp, nil
	}
}

// write prints the result, or stores it in the output file and prints the
// file's path.
func (a *App) write(res models.Result) error {
	path := a.opts.Output()
	if path == "" {
		return writeJSON(a.stdout, res)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := writeJSON(f, res); err != nil {
		f.Close()
		return fmt.Errorf("write output file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}

	a.log.Info("result written", zap.String("path", path))
	_, err = fmt.Fprintln(a.stdout, path)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ExitCode maps the outcome of option parsing or a run to a process exit
// status: 2 for an invalid invocation, 1 for any other failure.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.Is(err, config.ErrInvalid):
		return 2
	}
	return 1
}
