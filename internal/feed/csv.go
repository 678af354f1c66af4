package feed

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sniffSize is how much leading content decides the delimiter.
const sniffSize = 2048

// detectDelimiter picks tab when the sample holds more tabs than commas.
func detectDelimiter(sample []byte) rune {
	if bytes.Count(sample, []byte{'\t'}) > bytes.Count(sample, []byte{','}) {
		return '\t'
	}
	return ','
}

// readCSVRows reads a header-keyed table and hands every row to emit,
// stopping early when emit returns false. A leading BOM selects UTF-8 or
// UTF-16; text without one is UTF-8 or Windows-1255.
func readCSVRows(br *bufio.Reader, emit func(*RawFieldSet) bool) error {
	r, _ := stripBOM(br)
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	data, err := decodeLegacy(raw)
	if err != nil {
		return fmt.Errorf("decode csv text: %w", err)
	}

	sample := data
	if len(sample) > sniffSize {
		sample = sample[:sniffSize]
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = detectDelimiter(sample)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		rec := NewRawFieldSet()
		for i, cell := range row {
			if i >= len(header) {
				break
			}
			if header[i] != "" {
				rec.Add(header[i], cell)
			}
		}
		if !emit(rec) {
			return nil
		}
	}
}
