// Package fetcher runs the feed retrieval collaborator for each requested
// chain and parses what it deposits. Failures stay inside the chain that
// caused them.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drstein77/chainprices/internal/chains"
	"github.com/drstein77/chainprices/internal/feed"
	"github.com/drstein77/chainprices/internal/models"
)

// File types a chain may publish.
const (
	FilePrice     = "Price"
	FilePriceFull = "PriceFull"
)

// attempts lists the file type requests tried in order until one yields
// products. Chains differ in which types they publish.
var attempts = [][]string{
	{FilePrice},
	{FilePriceFull},
	{FilePriceFull, FilePrice},
}

var (
	ErrUnknownChain = errors.New("unknown chain")
	ErrNoProducts   = errors.New("no products found")
)

// Request asks the retrieval collaborator to deposit feed files for one
// chain into Dir.
type Request struct {
	Chain     chains.Chain
	Dir       string
	FileTypes []string
	FileLimit int
}

// Source deposits feed files for a chain into a directory.
type Source interface {
	Fetch(ctx context.Context, req Request) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, req Request) error

func (f SourceFunc) Fetch(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// Log is the logging surface the fetcher needs.
type Log interface {
	Info(string, ...zap.Field)
	Warn(string, ...zap.Field)
	Error(string, ...zap.Field)
}

// Recorder receives per-chain outcomes.
type Recorder interface {
	ChainFetched(chainID string, products int, elapsed time.Duration)
	ChainFailed(chainID string)
}

type nopRecorder struct{}

func (nopRecorder) ChainFetched(string, int, time.Duration) {}
func (nopRecorder) ChainFailed(string)                      {}

// Options bound the work done per run.
type Options struct {
	// Limit caps the products kept per chain; 0 means no cap.
	Limit int
	// FileLimit is passed to the collaborator as the number of files to fetch.
	FileLimit int
	// Workers is the number of chains fetched at once; values below 1 mean 1.
	Workers int
	// Timeout bounds the whole fetch of one chain; 0 means no bound.
	Timeout time.Duration
	// WorkRoot is where the per-run work directory is created; empty means
	// the OS temp directory.
	WorkRoot string
}

// Fetcher orchestrates retrieval and parsing per chain.
type Fetcher struct {
	source   Source
	parser   *feed.Parser
	log      Log
	recorder Recorder
	opts     Options
}

// New returns a fetcher. A nil recorder is allowed.
func New(source Source, parser *feed.Parser, log Log, recorder Recorder, opts Options) *Fetcher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Fetcher{
		source:   source,
		parser:   parser,
		log:      log,
		recorder: recorder,
		opts:     opts,
	}
}

// FetchAll fetches every requested chain and returns one result per distinct
// chain id, in request order regardless of completion order. The run's work
// directory is removed before returning.
func (f *Fetcher) FetchAll(ctx context.Context, ids []string) []models.ChainResult {
	ids = dedupe(ids)
	results := make([]models.ChainResult, len(ids))

	runDir, err := os.MkdirTemp(f.opts.WorkRoot, "supermarket_prices_")
	if err != nil {
		f.log.Error("cannot create work directory", zap.Error(err))
		for i, id := range ids {
			results[i] = models.ChainResult{ChainID: id, Err: fmt.Errorf("create work directory: %w", err)}
		}
		return results
	}
	defer f.cleanup(runDir)

	var g errgroup.Group
	g.SetLimit(f.opts.Workers)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = f.fetchChain(ctx, id, filepath.Join(runDir, fmt.Sprintf("%02d", i)))
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// FetchChain fetches a single chain in its own work directory.
func (f *Fetcher) FetchChain(ctx context.Context, id string) models.ChainResult {
	dir, err := os.MkdirTemp(f.opts.WorkRoot, "supermarket_"+filepath.Base(id)+"_")
	if err != nil {
		return models.ChainResult{ChainID: id, Err: fmt.Errorf("create work directory: %w", err)}
	}
	defer f.cleanup(dir)

	return f.fetchChain(ctx, id, dir)
}

func (f *Fetcher) fetchChain(ctx context.Context, id, dir string) (res models.ChainResult) {
	started := time.Now()
	res.ChainID = id

	defer func() {
		if r := recover(); r != nil {
			res = models.ChainResult{ChainID: id, ChainName: res.ChainName, Err: fmt.Errorf("chain %s panicked: %v", id, r)}
		}
		if res.Err != nil {
			f.log.Warn("chain failed", zap.String("chain", id), zap.Error(res.Err))
			f.recorder.ChainFailed(id)
			return
		}
		f.log.Info("chain fetched",
			zap.String("chain", id),
			zap.Int("products", len(res.Products)),
			zap.Int("files", res.Files),
			zap.Duration("elapsed", time.Since(started)))
		f.recorder.ChainFetched(id, len(res.Products), time.Since(started))
	}()

	chain, ok := chains.Lookup(id)
	if !ok {
		res.Err = fmt.Errorf("%w: %s", ErrUnknownChain, id)
		return res
	}
	res.ChainName = chain.Name

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	var (
		lastErr  error
		anyClean bool
	)
	for n, types := range attempts {
		if err := ctx.Err(); err != nil {
			res.Err = fmt.Errorf("retrieve feeds: %w", err)
			return res
		}

		attemptDir := filepath.Join(dir, fmt.Sprintf("attempt-%d", n+1))
		if err := os.MkdirAll(attemptDir, 0o755); err != nil {
			res.Err = fmt.Errorf("create attempt directory: %w", err)
			return res
		}

		f.log.Info("requesting feed files", zap.String("chain", id), zap.Strings("types", types))
		err := f.source.Fetch(ctx, Request{
			Chain:     chain,
			Dir:       attemptDir,
			FileTypes: types,
			FileLimit: f.opts.FileLimit,
		})
		if err != nil {
			f.log.Warn("feed retrieval failed", zap.String("chain", id), zap.Strings("types", types), zap.Error(err))
			lastErr = err
			continue
		}
		anyClean = true

		products, files := f.parseDir(attemptDir, chain)
		res.Files += files
		if len(products) > 0 {
			res.Products = products
			return res
		}
	}

	if !anyClean && lastErr != nil {
		res.Err = fmt.Errorf("retrieve feeds: %w", lastErr)
		return res
	}
	res.Err = ErrNoProducts
	return res
}

// parseDir parses every price file under dir in lexical order until the
// per-chain limit is reached.
func (f *Fetcher) parseDir(dir string, chain chains.Chain) ([]models.ProductPrice, int) {
	var (
		products []models.ProductPrice
		files    int
	)
	limit := f.opts.Limit

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			f.log.Warn("cannot read work directory entry", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || !feed.IsPriceFile(d.Name()) {
			return nil
		}

		remaining := 0
		if limit > 0 {
			remaining = limit - len(products)
		}
		products = append(products, f.parser.ParseFile(path, chain.ID, chain.Name, remaining)...)
		files++

		if limit > 0 && len(products) >= limit {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		f.log.Warn("walk of work directory stopped", zap.String("dir", dir), zap.Error(err))
	}

	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, files
}

func (f *Fetcher) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		f.log.Warn("cannot remove work directory", zap.String("dir", dir), zap.Error(err))
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
