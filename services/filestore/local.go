package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/grader/core"
)

var errBadKey = errors.New("invalid file key")

// LocalStore keeps files on the local filesystem, under a root directory.
type LocalStore struct {
	root string
}

var _ core.FileStore = (*LocalStore)(nil) // interface compliance check

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "resolving uploads dir")
	}
	if err = os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating uploads dir")
	}
	return &LocalStore{root: abs}, nil
}

// path maps a slash-separated key to a path inside the root.
func (s *LocalStore) path(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if p != s.root && !strings.HasPrefix(p, s.root+string(os.PathSeparator)) {
		return "", errBadKey
	}
	return p, nil
}

func (s *LocalStore) Save(_ context.Context, key string, r io.Reader) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", errors.Wrap(err, "creating file dir")
	}

	f, err := os.Create(p)
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return "", errors.Wrap(err, "writing file")
	}
	if err = f.Close(); err != nil {
		return "", errors.Wrap(err, "closing file")
	}
	return p, nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Delete removes the files under prefix. A prefix ending with "/" removes a whole directory.
func (s *LocalStore) Delete(_ context.Context, prefix string) error {
	p, err := s.path(prefix)
	if err != nil {
		return err
	}
	if p == s.root {
		return errBadKey
	}
	if strings.HasSuffix(prefix, "/") {
		return os.RemoveAll(p)
	}

	matches, err := filepath.Glob(p + "*")
	if err != nil {
		return errors.Wrap(err, "listing files")
	}
	for _, m := range matches {
		if err = os.RemoveAll(m); err != nil {
			return errors.Wrap(err, "removing file")
		}
	}
	return nil
}
