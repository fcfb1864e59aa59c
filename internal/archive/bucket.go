package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ObjectStore is the subset of bucket operations the archiver needs
type ObjectStore interface {
	// Put writes an object unless it already exists; an existing object is not an error
	Put(ctx context.Context, objectName, contentType string, content io.Reader) (bool, error)
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// BucketStore implements ObjectStore on a Cloud Storage bucket
type BucketStore struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
}

// NewBucketStore opens bucketName with service account credentials
func NewBucketStore(ctx context.Context, bucketName string, credentialsJSON []byte) (*BucketStore, error) {
	var opts []option.ClientOption
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &BucketStore{client: client, bucket: client.Bucket(bucketName)}, nil
}

// Close releases the underlying client
func (s *BucketStore) Close() error {
	return s.client.Close()
}

// Put writes content only if objectName does not exist yet. It reports false
// when the object was already there.
func (s *BucketStore) Put(ctx context.Context, objectName, contentType string, content io.Reader) (bool, error) {
	writer := s.bucket.Object(objectName).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, content); err != nil {
		_ = writer.Close()
		if alreadyExists(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to write object: %w", err)
	}

	if err := writer.Close(); err != nil {
		if alreadyExists(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to finalize object: %w", err)
	}
	return true, nil
}

// Get opens objectName for reading
func (s *BucketStore) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	reader, err := s.bucket.Object(objectName).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectName)
	}
	if err != nil {
		return nil, err
	}
	return reader, nil
}

// List returns the object names under prefix
func (s *BucketStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func alreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 412
}
