package feed

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xef, 0xbb, 0xbf}
	bomUTF16LE = []byte{0xff, 0xfe}
	bomUTF16BE = []byte{0xfe, 0xff}
)

// stripBOM consumes a leading byte order mark. UTF-16 content is transcoded
// to UTF-8; the boolean reports whether that happened.
func stripBOM(br *bufio.Reader) (io.Reader, bool) {
	head, _ := br.Peek(3)
	switch {
	case bytes.HasPrefix(head, bomUTF8):
		_, _ = br.Discard(len(bomUTF8))
		return br, false
	case bytes.HasPrefix(head, bomUTF16LE), bytes.HasPrefix(head, bomUTF16BE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		return transform.NewReader(br, dec), true
	}
	return br, false
}

// xmlCharsetReader resolves the encoding named in an XML declaration. Content
// already transcoded from UTF-16 is passed through untouched.
func xmlCharsetReader(transcoded bool) func(string, io.Reader) (io.Reader, error) {
	return func(label string, input io.Reader) (io.Reader, error) {
		l := strings.ToLower(strings.TrimSpace(label))
		if transcoded || strings.HasPrefix(l, "utf-16") || l == "utf8" {
			return input, nil
		}
		return charset.NewReaderLabel(label, input)
	}
}

// decodeLegacy returns data as UTF-8. Content that is not valid UTF-8 is
// taken to be Windows-1255, the Hebrew code page older exports use.
func decodeLegacy(data []byte) ([]byte, error) {
	if utf8.Valid(data) {
		return data, nil
	}
	out, _, err := transform.Bytes(charmap.Windows1255.NewDecoder(), data)
	return out, err
}
