package compress

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Keep decides whether an archive member should be extracted.
type Keep func(name string) bool

// IsArchive reports whether name is a bundle of feed files rather than a feed.
func IsArchive(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".zip") ||
		strings.HasSuffix(lower, ".tar") ||
		strings.HasSuffix(lower, ".tar.gz") ||
		strings.HasSuffix(lower, ".tgz")
}

// Extract unpacks the members of the zip or tar archive at path that keep
// accepts into dir, at most max of them (max <= 0 means all). Members are
// flattened to their base name prefixed with their extraction index, so
// equal names from different folders stay apart. It returns the written
// paths.
func Extract(path, dir string, keep Keep, max int) ([]string, error) {
	if strings.HasSuffix(strings.ToLower(path), ".zip") {
		return ExtractZip(path, dir, keep, max)
	}
	return ExtractTar(path, dir, keep, max)
}

// ExtractZip unpacks matching members of a zip archive.
func ExtractZip(path, dir string, keep Keep, max int) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var written []string
	for _, f := range zr.File {
		if max > 0 && len(written) >= max {
			break
		}
		if f.FileInfo().IsDir() || !keep(f.Name) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return written, fmt.Errorf("open zip member %s: %w", f.Name, err)
		}
		target, err := writeMember(dir, len(written), f.Name, rc)
		rc.Close()
		if err != nil {
			return written, err
		}
		written = append(written, target)
	}

	return written, nil
}

// ExtractTar unpacks matching members of a tar archive, gzipped or not.
func ExtractTar(path, dir string, keep Keep, max int) ([]string, error) {
	fr, err := OpenFeed(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	tr := tar.NewReader(fr)
	var written []string
	for {
		if max > 0 && len(written) >= max {
			break
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return written, err
		}
		if header.Typeflag != tar.TypeReg || !keep(header.Name) {
			continue
		}

		target, err := writeMember(dir, len(written), header.Name, tr)
		if err != nil {
			return written, err
		}
		written = append(written, target)
	}

	return written, nil
}

func writeMember(dir string, index int, name string, r io.Reader) (string, error) {
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid archive member name %q", name)
	}
	target := filepath.Join(dir, fmt.Sprintf("%03d-%s", index, base))

	out, err := os.Create(target)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	return target, out.Close()
}
