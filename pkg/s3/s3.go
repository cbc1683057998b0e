package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorageClient stores documents in an S3-compatible bucket.
type ObjectStorageClient interface {
	Connect(ctx context.Context, endpoint, accessKeyID, secretAccessKey string, useSSL bool) error
	EnsureBucket(ctx context.Context, bucketName, region string) error
	PutObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (int64, error)
}

// ObjectStorage holds the minio client.
type ObjectStorage struct {
	Conn *minio.Client
}

// NewObjectStorage creates an unconnected ObjectStorage.
func NewObjectStorage() *ObjectStorage {
	return &ObjectStorage{}
}

// Connect establishes the object storage connection using client
func (o *ObjectStorage) Connect(ctx context.Context, endpoint, accessKeyID, secretAccessKey string, useSSL bool) error {
	var err error
	o.Conn, err = minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create minio client: %w", err)
	}

	// Check connection by listing buckets
	if _, err = o.Conn.ListBuckets(ctx); err != nil {
		return fmt.Errorf("failed to establish minio connection: %w", err)
	}

	return nil
}

// EnsureBucket creates bucketName unless it already exists.
func (o *ObjectStorage) EnsureBucket(ctx context.Context, bucketName, region string) error {
	err := o.Conn.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: region})
	if err != nil {
		exists, errBucketExists := o.Conn.BucketExists(ctx, bucketName)
		if !(errBucketExists == nil && exists) {
			return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
		}
	}
	return nil
}

// PutObject uploads data, overwriting any object with the same name, and returns the stored size.
func (o *ObjectStorage) PutObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (int64, error) {
	info, err := o.Conn.PutObject(ctx, bucketName, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload %s/%s: %w", bucketName, objectName, err)
	}
	return info.Size, nil
}
