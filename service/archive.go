package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/MUKTHARS/clmprod-sub000/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// RawArchive keeps ingested payloads verbatim in object storage. The
// canonical record loses the difference between an explicit zero amount and
// a missing one; the archived payload does not.
type RawArchive struct {
	client   *minio.Client
	bucket   string
	endpoint string
	useSSL   bool
}

func NewRawArchive(cfg *config.MinioConfig) (*RawArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &RawArchive{
		client:   client,
		bucket:   cfg.Bucket,
		endpoint: cfg.Endpoint,
		useSSL:   cfg.UseSSL,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (a *RawArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// ObjectName is raw/<contract id>/<UTC timestamp>.json
func ObjectName(contractID string, at time.Time) string {
	return fmt.Sprintf("raw/%s/%s.json", contractID, at.UTC().Format("20060102T150405.000000000Z"))
}

// Put stores payload under a fresh object name and returns that name
func (a *RawArchive) Put(ctx context.Context, contractID string, payload []byte, at time.Time) (string, error) {
	name := ObjectName(contractID, at)
	_, err := a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"contract-id": contractID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive payload: %w", err)
	}
	return name, nil
}

// URL returns the object's address (readable only if bucket policy allows)
func (a *RawArchive) URL(objectName string) string {
	protocol := "http"
	if a.useSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, a.endpoint, a.bucket, objectName)
}
