package assets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Client is the subset of the S3 API the blob sinks use.
type S3Client interface {
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// SecureStorageClient removes an account's stored contact data from the
// off-box storage service bucket.
type SecureStorageClient struct {
	client S3Client
	bucket string
}

func NewSecureStorageClient(client S3Client, bucket string) *SecureStorageClient {
	return &SecureStorageClient{client: client, bucket: bucket}
}

func (c *SecureStorageClient) DeleteStoredData(ctx context.Context, id uuid.UUID) error {
	return deleteBlob(ctx, c.client, c.bucket, id)
}

// SecureBackupClient removes an account's backups from the off-box backup
// service bucket.
type SecureBackupClient struct {
	client S3Client
	bucket string
}

func NewSecureBackupClient(client S3Client, bucket string) *SecureBackupClient {
	return &SecureBackupClient{client: client, bucket: bucket}
}

func (c *SecureBackupClient) DeleteBackups(ctx context.Context, id uuid.UUID) error {
	return deleteBlob(ctx, c.client, c.bucket, id)
}

func deleteBlob(ctx context.Context, client S3Client, bucket string, id uuid.UUID) error {
	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(id.String()),
	})
	if err != nil {
		return fmt.Errorf("s3 error: %w", err)
	}
	return nil
}
