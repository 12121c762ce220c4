// Package objectstore fetches large test data kept outside the database.
// Objects whose key ends in .zst are zstd-compressed.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"tle_zone_judge/internal/domain/model"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Fetcher interface {
	Fetch(ctx context.Context, key string) (string, error)
}

type Store struct {
	client *minio.Client
	bucket string
	cache  *blobCache
}

// New connects to the bucket. cacheBytes bounds the memory spent on decoded
// objects; zero disables caching.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool, cacheBytes int64) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create client: %w", err)
	}
	return &Store{client: client, bucket: bucket, cache: newBlobCache(cacheBytes)}, nil
}

// Fetch returns the decoded object. Test data is immutable per key, so
// recently used objects are served from memory.
func (s *Store) Fetch(ctx context.Context, key string) (string, error) {
	if v, ok := s.cache.get(key); ok {
		return v, nil
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("objectstore: get %s: %w", key, err)
	}
	defer obj.Close()

	b, err := Decode(key, obj)
	if err != nil {
		return "", fmt.Errorf("objectstore: read %s: %w", key, err)
	}
	v := string(b)
	s.cache.put(key, v)
	return v, nil
}

func Decode(key string, r io.Reader) ([]byte, error) {
	if path.Ext(key) != ".zst" {
		return io.ReadAll(r)
	}
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer d.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hydrate fills in Input and Expected for tests that only carry object keys.
func Hydrate(ctx context.Context, f Fetcher, tests []model.TestCase) error {
	for i := range tests {
		tc := &tests[i]
		if tc.InputKey != nil && tc.Input == "" {
			v, err := f.Fetch(ctx, *tc.InputKey)
			if err != nil {
				return err
			}
			tc.Input = v
		}
		if tc.ExpectedKey != nil && tc.Expected == "" {
			v, err := f.Fetch(ctx, *tc.ExpectedKey)
			if err != nil {
				return err
			}
			tc.Expected = v
		}
	}
	return nil
}
