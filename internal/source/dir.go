// Package source provides the collaborators that deposit raw feed files for
// a chain into a work directory.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/drstein77/chainprices/internal/compress"
	"github.com/drstein77/chainprices/internal/feed"
	"github.com/drstein77/chainprices/internal/fetcher"
)

// ErrNoFiles is returned when a source has nothing for the chain and file
// types requested.
var ErrNoFiles = errors.New("no feed files")

type Log interface {
	Info(string, ...zap.Field)
	Warn(string, ...zap.Field)
}

// DirSource serves feeds from a local directory tree, such as an unpacked
// dataset dump. A file belongs to a chain when its path below Root mentions
// the chain's retrieval token or id.
type DirSource struct {
	root string
	log  Log
}

func NewDirSource(root string, log Log) *DirSource {
	return &DirSource{root: root, log: log}
}

// Fetch copies matching files into req.Dir, expanding zip and tar bundles.
func (s *DirSource) Fetch(ctx context.Context, req fetcher.Request) error {
	if _, err := os.Stat(s.root); err != nil {
		return fmt.Errorf("data directory: %w", err)
	}

	var copied int
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if req.FileLimit > 0 && copied >= req.FileLimit {
			return filepath.SkipAll
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		if !BelongsTo(rel, req.Chain.ID, req.Chain.Token) {
			return nil
		}

		if compress.IsArchive(d.Name()) {
			n, err := s.expand(path, req, copied)
			if err != nil {
				s.log.Warn("cannot expand archive", zap.String("archive", rel), zap.Error(err))
			}
			copied += n
			return nil
		}

		if !feed.IsPriceFile(d.Name()) || !MatchesTypes(d.Name(), req.FileTypes) {
			return nil
		}
		target := filepath.Join(req.Dir, fmt.Sprintf("%03d-%s", copied, d.Name()))
		if err := copyFile(path, target); err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
		copied++
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("feed files collected",
		zap.String("chain", req.Chain.ID),
		zap.Strings("types", req.FileTypes),
		zap.Int("files", copied))
	if copied == 0 {
		return fmt.Errorf("%w for %s %v", ErrNoFiles, req.Chain.ID, req.FileTypes)
	}
	return nil
}

func (s *DirSource) expand(path string, req fetcher.Request, copied int) (int, error) {
	dir := filepath.Join(req.Dir, fmt.Sprintf("%03d-archive", copied))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	max := 0
	if req.FileLimit > 0 {
		max = req.FileLimit - copied
	}
	keep := func(name string) bool {
		return feed.IsPriceFile(name) && MatchesTypes(name, req.FileTypes)
	}
	written, err := compress.Extract(path, dir, keep, max)
	return len(written), err
}

// feedWords may sit next to a chain name inside a path segment, as in
// "shufersal_price.csv".
var feedWords = map[string]bool{
	"PRICE":     true,
	"PRICEFULL": true,
	"PROMO":     true,
	"PROMOFULL": true,
	"STORES":    true,
	"FULL":      true,
}

// BelongsTo reports whether a relative path names the chain. The chain's
// token or id must appear as whole words of a path segment, and a
// neighbouring word in that segment must not extend it into another name:
// "MEGA/..." and "mega_price.xml" belong to mega, "OMEGA/..." and
// "MEGA_MARKET/..." do not.
func BelongsTo(rel, id, token string) bool {
	segments := strings.Split(filepath.ToSlash(rel), "/")
	last := len(segments) - 1
	if i := strings.IndexByte(segments[last], '.'); i > 0 {
		segments[last] = segments[last][:i]
	}

	for _, name := range []string{token, id} {
		want := words(name)
		if len(want) == 0 {
			continue
		}
		for _, seg := range segments {
			if containsName(words(seg), want) {
				return true
			}
		}
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsName(have, want []string) bool {
	for i := 0; i+len(want) <= len(have); i++ {
		if !slices.Equal(have[i:i+len(want)], want) {
			continue
		}
		if i > 0 && extendsName(have[i-1]) {
			continue
		}
		if next := i + len(want); next < len(have) && extendsName(have[next]) {
			continue
		}
		return true
	}
	return false
}

// extendsName reports whether a neighbouring word reads as part of a longer
// name rather than as a file type or a number.
func extendsName(word string) bool {
	if feedWords[word] {
		return false
	}
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// MatchesTypes reports whether a file name is one of the requested file
// types. PriceFull files carry a "pricefull" or "price_full" marker; any
// other price file counts as Price.
func MatchesTypes(name string, types []string) bool {
	lower := strings.ToLower(filepath.Base(name))
	full := strings.Contains(lower, "pricefull") || strings.Contains(lower, "price_full")
	for _, t := range types {
		switch t {
		case fetcher.FilePriceFull:
			if full {
				return true
			}
		case fetcher.FilePrice:
			if !full && strings.Contains(lower, "price") {
				return true
			}
		}
	}
	return false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
