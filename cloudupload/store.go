package cloudupload

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// objectStore is the slice of GCS operations Uploader depends on. It
// exists so tests can exercise retry, chunking, and compose logic
// against an in-memory fake instead of a real bucket.
type objectStore interface {
	put(ctx context.Context, object string, r io.Reader) error
	compose(ctx context.Context, dest string, sources []string) error
	delete(ctx context.Context, object string) error
}

// gcsStore is the production objectStore, backed by a real bucket.
type gcsStore struct {
	bucket *storage.BucketHandle
}

func newGCSStore(client *storage.Client, bucket string) *gcsStore {
	return &gcsStore{bucket: client.Bucket(bucket)}
}

func (s *gcsStore) put(ctx context.Context, object string, r io.Reader) error {
	w := s.bucket.Object(object).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloudupload: writing %s: %w", object, err)
	}
	return w.Close()
}

func (s *gcsStore) compose(ctx context.Context, dest string, sources []string) error {
	srcHandles := make([]*storage.ObjectHandle, len(sources))
	for i, name := range sources {
		srcHandles[i] = s.bucket.Object(name)
	}
	composer := s.bucket.Object(dest).ComposerFrom(srcHandles...)
	composer.ContentType = "application/octet-stream"
	_, err := composer.Run(ctx)
	if err != nil {
		return fmt.Errorf("cloudupload: composing %s: %w", dest, err)
	}
	return nil
}

func (s *gcsStore) delete(ctx context.Context, object string) error {
	return s.bucket.Object(object).Delete(ctx)
}
