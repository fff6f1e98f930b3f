// Package filestore stores uploaded question files and submission archives.
package filestore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/grader/core"
)

// New returns the FileStore selected by `uploads.backend`.
func New(ctx context.Context, conf *core.Config) (core.FileStore, error) {
	switch conf.Uploads.Backend {
	case "", "local":
		return NewLocalStore(conf.Uploads.Dir)
	case "b2":
		return NewB2Store(ctx, conf.Uploads.B2AccountID, conf.Uploads.B2AppKey, conf.Uploads.B2Bucket)
	default:
		return nil, errors.Errorf("unknown uploads backend %q", conf.Uploads.Backend)
	}
}
