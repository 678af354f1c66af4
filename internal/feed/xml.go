package feed

import (
	"bufio"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// itemTags are the element names chains use for a single product.
var itemTags = map[string]bool{"Item": true, "Product": true}

// readXMLItems streams the document and hands every Item or Product element
// to emit, stopping early when emit returns false.
func readXMLItems(br *bufio.Reader, emit func(*RawFieldSet) bool) error {
	r, transcoded := stripBOM(br)
	dec := xml.NewDecoder(r)
	dec.CharsetReader = xmlCharsetReader(transcoded)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		start, ok := tok.(xml.StartElement)
		if !ok || !itemTags[start.Name.Local] {
			continue
		}

		rec, err := readItem(dec, start)
		if err != nil {
			return err
		}
		if !emit(rec) {
			return nil
		}
	}
}

// readItem collects the text of the direct children of start, then its
// attributes. The first occurrence of a name wins.
func readItem(dec *xml.Decoder, start xml.StartElement) (*RawFieldSet, error) {
	rec := NewRawFieldSet()
	var (
		depth int
		child string
		text  strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				child = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 1 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 0 {
				for _, attr := range start.Attr {
					rec.Add(attr.Name.Local, attr.Value)
				}
				return rec, nil
			}
			if depth == 1 {
				rec.Add(child, text.String())
			}
			depth--
		}
	}
}
