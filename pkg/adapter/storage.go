package adapter

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
)

// Storage is the interface for the blob storage that holds question audio
type Storage interface {
	// Put returns a writer that uploads an object. The upload is committed on Close and
	// any transport error is reported there. Canceling ctx before Close aborts the upload.
	Put(ctx context.Context, key, contentType string) (io.WriteCloser, error)
	// URI returns the addressable reference of an object, e.g. gs://bucket/key
	URI(key string) string
}

// storageClient implements Storage interface using Cloud Storage
type storageClient struct {
	bucketName string
	client     *storage.Client
}

// NewStorage creates a new Cloud Storage client. STORAGE_EMULATOR_HOST is honored by the
// underlying SDK; opts can override the endpoint or credentials.
func NewStorage(ctx context.Context, bucketName string, opts ...option.ClientOption) (Storage, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &storageClient{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (s *storageClient) Put(ctx context.Context, key, contentType string) (io.WriteCloser, error) {
	bucket := s.client.Bucket(s.bucketName)
	obj := bucket.Object(key)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	return writer, nil
}

func (s *storageClient) URI(key string) string {
	return "gs://" + s.bucketName + "/" + key
}
