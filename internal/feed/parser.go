package feed

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/drstein77/chainprices/internal/compress"
	"github.com/drstein77/chainprices/internal/models"
)

// Format is the layout of a feed file.
type Format int

const (
	FormatUnknown Format = iota
	FormatXML
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatCSV:
		return "csv"
	}
	return "unknown"
}

// ErrUnknownFormat is returned when a feed is neither XML nor CSV.
var ErrUnknownFormat = errors.New("unknown feed format")

// Log is the logging surface the parser needs.
type Log interface {
	Debug(string, ...zap.Field)
	Warn(string, ...zap.Field)
}

// Recorder receives per-file parse outcomes.
type Recorder interface {
	FileParsed(chainID string, records int)
	FileFailed(chainID string)
}

type nopRecorder struct{}

func (nopRecorder) FileParsed(string, int) {}
func (nopRecorder) FileFailed(string)      {}

// Parser reads feed files into normalized price records.
type Parser struct {
	normalizer *Normalizer
	log        Log
	recorder   Recorder
}

// NewParser returns a parser. A nil recorder is allowed.
func NewParser(normalizer *Normalizer, log Log, recorder Recorder) *Parser {
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Parser{normalizer: normalizer, log: log, recorder: recorder}
}

// IsPriceFile reports whether a downloaded file name looks like a price feed.
func IsPriceFile(name string) bool {
	lower := strings.ToLower(filepath.Base(name))
	if !strings.Contains(lower, "price") {
		return false
	}
	return strings.HasSuffix(lower, ".xml") ||
		strings.HasSuffix(lower, ".csv") ||
		strings.HasSuffix(lower, ".gz")
}

// FormatFromName guesses the format from the file extension, looking through
// a trailing .gz.
func FormatFromName(name string) Format {
	lower := strings.TrimSuffix(strings.ToLower(name), ".gz")
	switch {
	case strings.HasSuffix(lower, ".xml"):
		return FormatXML
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV
	}
	return FormatUnknown
}

// sniffFormat looks at the first meaningful byte of decompressed content.
func sniffFormat(head []byte) Format {
	for _, b := range head {
		switch b {
		case ' ', '\t', '\r', '\n', 0x00, 0xef, 0xbb, 0xbf, 0xff, 0xfe:
			continue
		case '<':
			return FormatXML
		}
		return FormatCSV
	}
	return FormatUnknown
}

// ParseFile parses one feed file. Errors never escape: a broken file is
// logged and contributes no records. At most max records are returned when
// max > 0.
func (p *Parser) ParseFile(path, chainID, chainName string, max int) []models.ProductPrice {
	products, err := p.parseFile(path, chainID, chainName, max)
	if err != nil {
		p.log.Warn("failed to parse feed file",
			zap.String("chain", chainID),
			zap.String("file", filepath.Base(path)),
			zap.Error(err))
		p.recorder.FileFailed(chainID)
		return nil
	}

	p.log.Debug("parsed feed file",
		zap.String("chain", chainID),
		zap.String("file", filepath.Base(path)),
		zap.Int("products", len(products)))
	p.recorder.FileParsed(chainID, len(products))
	return products
}

func (p *Parser) parseFile(path, chainID, chainName string, max int) ([]models.ProductPrice, error) {
	fr, err := compress.OpenFeed(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	return p.ParseReader(fr, FormatFromName(path), chainID, chainName, max)
}

// ParseReader parses decompressed feed content. FormatUnknown asks it to
// sniff the content. On error no records are returned.
func (p *Parser) ParseReader(r io.Reader, format Format, chainID, chainName string, max int) ([]models.ProductPrice, error) {
	br := bufio.NewReader(r)
	if format == FormatUnknown {
		head, _ := br.Peek(512)
		format = sniffFormat(head)
	}

	var (
		products []models.ProductPrice
		err      error
	)
	emit := func(rec *RawFieldSet) bool {
		if product, ok := p.normalizer.Normalize(rec, chainID, chainName); ok {
			products = append(products, product)
		}
		return max <= 0 || len(products) < max
	}

	switch format {
	case FormatXML:
		err = readXMLItems(br, emit)
	case FormatCSV:
		err = readCSVRows(br, emit)
	default:
		err = ErrUnknownFormat
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s feed: %w", format, err)
	}

	return products, nil
}
