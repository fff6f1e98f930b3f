package core

import (
	"context"
	"io"
)

type (
	// FileStore persists uploaded files under slash-separated keys, eg: "assignments/12/submissions.zip".
	FileStore interface {
		// Save writes r under key and returns the stored file location.
		Save(ctx context.Context, key string, r io.Reader) (string, error)
		Open(ctx context.Context, key string) (io.ReadCloser, error)
		// Delete removes every file whose key starts with prefix.
		Delete(ctx context.Context, prefix string) error
	}

	// Extractor unpacks an archive found at src into the dst directory.
	Extractor interface {
		Extract(src, dst string) error
	}
)
