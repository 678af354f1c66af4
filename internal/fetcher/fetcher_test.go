package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drstein77/chainprices/internal/feed"
)

func itemsXML(items ...[3]string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?><Root><Items>`)
	for _, it := range items {
		fmt.Fprintf(&sb, "<Item><ItemCode>%s</ItemCode><ItemName>%s</ItemName><ItemPrice>%s</ItemPrice></Item>", it[0], it[1], it[2])
	}
	sb.WriteString(`</Items></Root>`)
	return sb.String()
}

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func newFetcher(src Source, opts Options) *Fetcher {
	log := zap.NewNop()
	parser := feed.NewParser(feed.NewNormalizer(nil), log, nil)
	return New(src, parser, log, nil, opts)
}

func TestFetchChainIsolatesCorruptFile(t *testing.T) {
	src := SourceFunc(func(_ context.Context, req Request) error {
		write(t, req.Dir, "Price-a-corrupt.xml", "<Root><Item><ItemCode>1</ItemCode>")
		write(t, req.Dir, "Price-b-valid.xml", itemsXML([3]string{"2", "Milk", "5"}))
		write(t, req.Dir, "Promo-c.xml", itemsXML([3]string{"3", "Promo", "1"}))
		return nil
	})

	res := newFetcher(src, Options{WorkRoot: t.TempDir()}).FetchChain(context.Background(), "shufersal")

	require.NoError(t, res.Err)
	assert.Equal(t, "שופרסל", res.ChainName)
	assert.Equal(t, 2, res.Files)
	require.Len(t, res.Products, 1)
	assert.Equal(t, "2", res.Products[0].Barcode)
}

func TestFetchChainRetriesFileTypes(t *testing.T) {
	var calls [][]string
	src := SourceFunc(func(_ context.Context, req Request) error {
		calls = append(calls, req.FileTypes)
		assert.Equal(t, 7, req.FileLimit)
		assert.Equal(t, "RAMI_LEVY", req.Chain.Token)
		if len(req.FileTypes) == 1 && req.FileTypes[0] == FilePriceFull {
			write(t, req.Dir, "PriceFull7290058140886.xml", itemsXML([3]string{"1", "Bread", "7"}))
		}
		return nil
	})

	res := newFetcher(src, Options{FileLimit: 7, WorkRoot: t.TempDir()}).FetchChain(context.Background(), "rami_levy")

	require.NoError(t, res.Err)
	assert.Len(t, res.Products, 1)
	assert.Equal(t, [][]string{{FilePrice}, {FilePriceFull}}, calls)
}

func TestFetchChainNoProducts(t *testing.T) {
	calls := 0
	src := SourceFunc(func(_ context.Context, req Request) error {
		calls++
		write(t, req.Dir, "Price1.xml", itemsXML([3]string{"1", "free", "0"}))
		return nil
	})

	res := newFetcher(src, Options{WorkRoot: t.TempDir()}).FetchChain(context.Background(), "victory")

	assert.ErrorIs(t, res.Err, ErrNoProducts)
	assert.Empty(t, res.Products)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Files)
}

func TestFetchChainSourceError(t *testing.T) {
	boom := errors.New("portal unreachable")
	src := SourceFunc(func(context.Context, Request) error { return boom })

	res := newFetcher(src, Options{WorkRoot: t.TempDir()}).FetchChain(context.Background(), "victory")

	assert.ErrorIs(t, res.Err, boom)
	assert.Empty(t, res.Products)
}

func TestFetchChainSourceErrorThenSuccess(t *testing.T) {
	src := SourceFunc(func(_ context.Context, req Request) error {
		if req.FileTypes[0] == FilePrice {
			return errors.New("no Price files published")
		}
		write(t, req.Dir, "PriceFull.xml", itemsXML([3]string{"1", "x", "1"}))
		return nil
	})

	res := newFetcher(src, Options{WorkRoot: t.TempDir()}).FetchChain(context.Background(), "mega")
	require.NoError(t, res.Err)
	assert.Len(t, res.Products, 1)
}

func TestFetchChainLimit(t *testing.T) {
	src := SourceFunc(func(_ context.Context, req Request) error {
		write(t, req.Dir, "Price-1.xml", itemsXML([3]string{"1", "a", "1"}, [3]string{"2", "b", "1"}, [3]string{"3", "c", "1"}))
		write(t, req.Dir, "Price-2.xml", itemsXML([3]string{"4", "d", "1"}, [3]string{"5", "e", "1"}, [3]string{"6", "f", "1"}))
		write(t, req.Dir, "Price-3.xml", itemsXML([3]string{"7", "g", "1"}))
		return nil
	})

	res := newFetcher(src, Options{Limit: 4, WorkRoot: t.TempDir()}).FetchChain(context.Background(), "shufersal")

	require.NoError(t, res.Err)
	require.Len(t, res.Products, 4)
	assert.Equal(t, "4", res.Products[3].Barcode)
	assert.Equal(t, 2, res.Files)
}

func TestFetchChainTimeout(t *testing.T) {
	src := SourceFunc(func(ctx context.Context, _ Request) error {
		<-ctx.Done()
		return ctx.Err()
	})

	res := newFetcher(src, Options{Timeout: 20 * time.Millisecond, WorkRoot: t.TempDir()}).FetchChain(context.Background(), "shufersal")

	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestFetchAllIsolatesChains(t *testing.T) {
	root := t.TempDir()
	var mu sync.Mutex
	seen := map[string]int{}

	src := SourceFunc(func(_ context.Context, req Request) error {
		mu.Lock()
		seen[req.Chain.ID]++
		mu.Unlock()

		switch req.Chain.ID {
		case "victory":
			panic("scraper crashed")
		case "mega":
			return errors.New("blocked")
		}
		write(t, req.Dir, "Price.xml", itemsXML([3]string{"111", req.Chain.ID, "5"}))
		return nil
	})

	results := newFetcher(src, Options{WorkRoot: root}).FetchAll(context.Background(),
		[]string{"nope", "shufersal", "victory", "mega", "rami_levy", "shufersal"})

	require.Len(t, results, 5)
	assert.ErrorIs(t, results[0].Err, ErrUnknownChain)
	assert.NoError(t, results[1].Err)
	assert.Len(t, results[1].Products, 1)
	assert.ErrorContains(t, results[2].Err, "panicked")
	assert.Error(t, results[3].Err)
	assert.NoError(t, results[4].Err)
	assert.Equal(t, "rami_levy", results[4].ChainID)

	assert.Zero(t, seen["nope"])
	assert.Equal(t, 1, seen["shufersal"])

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "work directory must be removed")
}

func TestFetchAllParallelKeepsRequestOrder(t *testing.T) {
	ids := []string{"shufersal", "rami_levy", "victory", "yeinot_bitan", "osher_ad"}
	delay := map[string]time.Duration{
		"shufersal":    40 * time.Millisecond,
		"rami_levy":    30 * time.Millisecond,
		"victory":      20 * time.Millisecond,
		"yeinot_bitan": 10 * time.Millisecond,
		"osher_ad":     0,
	}
	src := SourceFunc(func(_ context.Context, req Request) error {
		time.Sleep(delay[req.Chain.ID])
		write(t, req.Dir, "Price.xml", itemsXML([3]string{"1", req.Chain.ID, "3"}))
		return nil
	})

	results := newFetcher(src, Options{Workers: 3, WorkRoot: t.TempDir()}).FetchAll(context.Background(), ids)

	require.Len(t, results, len(ids))
	for i, id := range ids {
		assert.Equal(t, id, results[i].ChainID)
		require.NoError(t, results[i].Err)
		assert.Equal(t, id, results[i].Products[0].Name)
	}
}

func TestFetchAllBadWorkRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing", "deeper")
	src := SourceFunc(func(context.Context, Request) error {
		t.Fatal("source must not be called")
		return nil
	})

	results := newFetcher(src, Options{WorkRoot: missing}).FetchAll(context.Background(), []string{"shufersal"})
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}
