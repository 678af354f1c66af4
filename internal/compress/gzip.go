package compress

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
)

var gzipMagic = []byte{0x1f, 0x8b}

// FeedReader reads a feed file, inflating it on the fly when it is gzipped.
type FeedReader struct {
	r    io.Reader
	gz   *gzip.Reader
	file *os.File
}

// OpenFeed opens path for reading. Gzip content is detected by its magic
// bytes, so a mislabeled .gz or an unlabeled gzip stream both work.
func OpenFeed(path string) (*FeedReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fr, err := NewFeedReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	fr.file = f
	return fr, nil
}

// NewFeedReader wraps r, inflating it when it starts with the gzip magic.
func NewFeedReader(r io.Reader) (*FeedReader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, err
	}

	if len(head) == len(gzipMagic) && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("corrupt gzip stream: %w", err)
		}
		return &FeedReader{r: gz, gz: gz}, nil
	}

	return &FeedReader{r: br}, nil
}

// Read reads decompressed feed content.
func (f *FeedReader) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

// Close releases the gzip reader and the underlying file.
func (f *FeedReader) Close() error {
	var err error
	if f.gz != nil {
		err = f.gz.Close()
	}
	if f.file != nil {
		if cerr := f.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
