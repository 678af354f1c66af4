package source

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/drstein77/chainprices/internal/chains"
	"github.com/drstein77/chainprices/internal/feed"
	"github.com/drstein77/chainprices/internal/fetcher"
)

func touch(t *testing.T, root, rel, body string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	var names []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if !d.IsDir() {
			names = append(names, filepath.Base(path))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(names)
	return names
}

func request(t *testing.T, id string, types ...string) fetcher.Request {
	t.Helper()
	chain, ok := chains.Lookup(id)
	require.True(t, ok)
	return fetcher.Request{Chain: chain, Dir: t.TempDir(), FileTypes: types}
}

func TestMatchesTypes(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		want  bool
	}{
		{"Price7290027600007-001-202403011000.xml", []string{fetcher.FilePrice}, true},
		{"PriceFull7290027600007.xml.gz", []string{fetcher.FilePrice}, false},
		{"PriceFull7290027600007.xml.gz", []string{fetcher.FilePriceFull}, true},
		{"price_full_file.csv", []string{fetcher.FilePriceFull}, true},
		{"Price1.xml", []string{fetcher.FilePriceFull, fetcher.FilePrice}, true},
		{"Promo1.xml", []string{fetcher.FilePriceFull, fetcher.FilePrice}, false},
		{"Price1.xml", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesTypes(tt.name, tt.types))
		})
	}
}

func TestBelongsTo(t *testing.T) {
	tests := []struct {
		rel   string
		id    string
		token string
		want  bool
	}{
		{"YAYNO_BITAN/Price1.xml", "yeinot_bitan", "YAYNO_BITAN", true},
		{"data/yeinot_bitan_price.csv", "yeinot_bitan", "YAYNO_BITAN", true},
		{"shufersal/Price1.xml", "shufersal", "SHUFERSAL", true},
		{"rami_levy/Price1.xml", "shufersal", "SHUFERSAL", false},
		{"MEGA/PriceFull7290055700007.xml.gz", "mega", "MEGA", true},
		{"feeds/mega-2024/Price1.xml", "mega", "MEGA", true},
		{"dump/mega.csv", "mega", "MEGA", true},
		{"OMEGA_FOODS/Price1.xml", "mega", "MEGA", false},
		{"MEGA_MARKET/Price1.xml", "mega", "MEGA", false},
		{"super_mega/Price1.xml", "mega", "MEGA", false},
		{"megastore/Price1.xml", "mega", "MEGA", false},
		{"data/Price_MEGA.csv", "mega", "MEGA", true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, BelongsTo(tt.rel, tt.id, tt.token))
		})
	}
}

func TestDirSourceSkipsLookalikeChains(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "MEGA/Price1.xml", "<Root/>")
	touch(t, root, "OMEGA/Price2.xml", "<Root/>")
	touch(t, root, "MEGA_MARKET/Price3.xml", "<Root/>")

	req := request(t, "mega", fetcher.FilePrice)
	require.NoError(t, NewDirSource(root, zap.NewNop()).Fetch(context.Background(), req))
	assert.Equal(t, []string{"000-Price1.xml"}, listDir(t, req.Dir))
}

func TestDirSourceCopiesMatchingFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "SHUFERSAL/Price001.xml", "<Root/>")
	touch(t, root, "SHUFERSAL/PriceFull001.xml", "<Root/>")
	touch(t, root, "SHUFERSAL/Promo001.xml", "<Root/>")
	touch(t, root, "RAMI_LEVY/Price001.xml", "<Root/>")
	touch(t, root, "other/shufersal_price.csv", "ItemCode\n1\n")

	src := NewDirSource(root, zap.NewNop())
	req := request(t, "shufersal", fetcher.FilePrice)

	require.NoError(t, src.Fetch(context.Background(), req))
	assert.Equal(t, []string{"000-Price001.xml", "001-shufersal_price.csv"}, listDir(t, req.Dir))
}

func TestDirSourceFileLimit(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"Price1.xml", "Price2.xml", "Price3.xml"} {
		touch(t, root, "VICTORY/"+name, "<Root/>")
	}

	req := request(t, "victory", fetcher.FilePrice)
	req.FileLimit = 2

	require.NoError(t, NewDirSource(root, zap.NewNop()).Fetch(context.Background(), req))
	assert.Len(t, listDir(t, req.Dir), 2)
}

func TestDirSourceExpandsArchives(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "MEGA", "feeds.zip")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range []string{"inner/PriceFull1.xml", "inner/Price2.xml", "inner/Stores.xml"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("<Root/>"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	req := request(t, "mega", fetcher.FilePriceFull)
	require.NoError(t, NewDirSource(root, zap.NewNop()).Fetch(context.Background(), req))
	assert.Equal(t, []string{"000-PriceFull1.xml"}, listDir(t, req.Dir))
}

func TestDirSourceNothingFound(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "SHUFERSAL/Price001.xml", "<Root/>")

	err := NewDirSource(root, zap.NewNop()).Fetch(context.Background(), request(t, "osher_ad", fetcher.FilePrice))
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestDirSourceMissingRoot(t *testing.T) {
	err := NewDirSource(filepath.Join(t.TempDir(), "absent"), zap.NewNop()).
		Fetch(context.Background(), request(t, "shufersal", fetcher.FilePrice))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCommandSourceArgs(t *testing.T) {
	src := NewCommandSource("scraper --chain {token} --out={dir} --types {types} -n {limit} {chain}", zap.NewNop())
	req := fetcher.Request{
		Chain:     chains.Chain{ID: "yeinot_bitan", Token: "YAYNO_BITAN"},
		Dir:       "/tmp/work dir",
		FileTypes: []string{fetcher.FilePriceFull, fetcher.FilePrice},
		FileLimit: 10,
	}

	args, err := src.Args(req)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"scraper", "--chain", "YAYNO_BITAN", "--out=/tmp/work dir",
		"--types", "PriceFull,Price", "-n", "10", "yeinot_bitan",
	}, args)

	_, err = NewCommandSource("   ", zap.NewNop()).Args(req)
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available")
	}
	path := filepath.Join(t.TempDir(), "scraper.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestCommandSourceRunsScraper(t *testing.T) {
	script := writeScript(t, `echo "$2 $3 $4" > "$1/Price-args.txt"
echo "downloaded 1 file"
echo "warning from scraper" >&2
`)
	core, logs := observer.New(zap.InfoLevel)
	src := NewCommandSource(script+" {dir} {token} {types} {limit}", zap.New(core))

	req := request(t, "rami_levy", fetcher.FilePrice)
	req.FileLimit = 3
	require.NoError(t, src.Fetch(context.Background(), req))

	data, err := os.ReadFile(filepath.Join(req.Dir, "Price-args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "RAMI_LEVY Price 3\n", string(data))

	var lines []string
	for _, e := range logs.FilterMessage("scraper output").All() {
		lines = append(lines, e.ContextMap()["stream"].(string)+": "+e.ContextMap()["line"].(string))
	}
	sort.Strings(lines)
	assert.Equal(t, []string{"stderr: warning from scraper", "stdout: downloaded 1 file"}, lines)
}

func TestCommandSourceFailure(t *testing.T) {
	script := writeScript(t, "echo 'portal said no' >&2\nexit 3\n")
	src := NewCommandSource(script, zap.NewNop())

	err := src.Fetch(context.Background(), request(t, "shufersal", fetcher.FilePrice))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "exit status 3"), err.Error())
}

func TestCommandSourceWithFetcher(t *testing.T) {
	script := writeScript(t, `cat > "$1/Price-$2.xml" <<XML
<Root><Items><Item><ItemCode>7290000000001</ItemCode><ItemName>Milk 3%</ItemName><ItemPrice>5.90</ItemPrice></Item></Items></Root>
XML
`)
	src := NewCommandSource(script+" {dir} {chain}", zap.NewNop())
	parser := feed.NewParser(feed.NewNormalizer(nil), zap.NewNop(), nil)
	f := fetcher.New(src, parser, zap.NewNop(), nil, fetcher.Options{WorkRoot: t.TempDir()})

	res := f.FetchChain(context.Background(), "tiv_taam")
	require.NoError(t, res.Err)
	require.Len(t, res.Products, 1)
	assert.Equal(t, 5.9, res.Products[0].Price)
	assert.Equal(t, "טיב טעם", res.Products[0].ChainName)
}
