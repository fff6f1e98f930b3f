package filestore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kurin/blazer/b2"
	"github.com/pkg/errors"

	"github.com/trezcool/grader/core"
)

// B2Store keeps files in a Backblaze B2 bucket.
type B2Store struct {
	bucket *b2.Bucket
}

var _ core.FileStore = (*B2Store)(nil) // interface compliance check

func NewB2Store(ctx context.Context, accountID, appKey, bucketName string) (*B2Store, error) {
	client, err := b2.NewClient(ctx, accountID, appKey)
	if err != nil {
		return nil, errors.Wrap(err, "creating b2 client")
	}
	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, errors.Wrap(err, "getting b2 bucket")
	}
	return &B2Store{bucket: bucket}, nil
}

// objectURL is the download URL of key in a bucket served from baseURL.
func objectURL(baseURL, bucket, key string) string {
	return fmt.Sprintf("%s/file/%s/%s", strings.TrimSuffix(baseURL, "/"), bucket, key)
}

func (s *B2Store) Save(ctx context.Context, key string, r io.Reader) (string, error) {
	w := s.bucket.Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", errors.Wrap(err, "writing object")
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, "closing object writer")
	}
	return objectURL(s.bucket.BaseURL(), s.bucket.Name(), key), nil
}

func (s *B2Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.bucket.Object(key).NewReader(ctx), nil
}

func (s *B2Store) Delete(ctx context.Context, prefix string) error {
	iter := s.bucket.List(ctx, b2.ListPrefix(prefix))
	for iter.Next() {
		if err := iter.Object().Delete(ctx); err != nil {
			return errors.Wrap(err, "deleting object")
		}
	}
	return errors.Wrap(iter.Err(), "listing objects")
}
