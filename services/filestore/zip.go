package filestore

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/grader/core"
)

var (
	ErrZipSlip     = errors.New("archive entry escapes the destination dir")
	ErrZipTooLarge = errors.New("archive content exceeds the size limit")
)

// ZipExtractor unpacks ZIP archives. Entries may not escape the destination dir
// and their total uncompressed size may not exceed MaxSize (no limit when <= 0).
type ZipExtractor struct {
	MaxSize int64
}

var _ core.Extractor = ZipExtractor{} // interface compliance check

func (ze ZipExtractor) Extract(src, dst string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return errors.Wrap(err, "opening archive")
	}
	defer func() { _ = zr.Close() }()

	dst, err = filepath.Abs(dst)
	if err != nil {
		return errors.Wrap(err, "resolving destination")
	}
	if err = os.MkdirAll(dst, 0o755); err != nil {
		return errors.Wrap(err, "creating destination")
	}

	var written int64
	for _, f := range zr.File {
		name := filepath.FromSlash(f.Name)
		// skip macOS resource forks
		if strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(filepath.Base(name), "._") {
			continue
		}

		p := filepath.Join(dst, name)
		if p != dst && !strings.HasPrefix(p, dst+string(os.PathSeparator)) {
			return ErrZipSlip
		}
		if f.FileInfo().IsDir() {
			if err = os.MkdirAll(p, 0o755); err != nil {
				return errors.Wrap(err, "creating dir")
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}

		n, err := ze.extractFile(f, p, written)
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

func (ze ZipExtractor) extractFile(f *zip.File, p string, written int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return 0, errors.Wrap(err, "creating dir")
	}

	rc, err := f.Open()
	if err != nil {
		return 0, errors.Wrap(err, "opening entry")
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, errors.Wrap(err, "creating file")
	}
	defer func() { _ = out.Close() }()

	var r io.Reader = rc
	if ze.MaxSize > 0 {
		// one extra byte tells an exact fit from an overflow
		r = io.LimitReader(rc, ze.MaxSize-written+1)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		return n, errors.Wrap(err, "writing file")
	}
	if ze.MaxSize > 0 && written+n > ze.MaxSize {
		return n, ErrZipTooLarge
	}
	return n, nil
}
