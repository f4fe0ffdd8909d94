// Package storagevendor registers the object-storage provider backed by
// a real S3-compatible bucket via minio-go, replacing the teacher's
// in-house async-api/miniofs wrapper with the upstream client directly.
package storagevendor

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/airenas/voxsum/internal/pkg/provider"
	"github.com/airenas/voxsum/internal/pkg/registry"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func init() {
	must(registry.Default.Register(registry.Registration{
		ServiceType:  provider.ServiceStorage,
		ProviderName: "s3",
		Metadata: registry.Metadata{
			DisplayName:       "S3-compatible object storage",
			CostPerUnit:       0, // storage cost is out of the per-call cost model
			CredentialEnvVars: []string{"STORAGE_S3_ENDPOINT", "STORAGE_S3_ACCESS_KEY", "STORAGE_S3_SECRET_KEY", "STORAGE_S3_BUCKET"},
		},
		Factory: func(registry.Overrides) (any, error) {
			return newClient()
		},
	}))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Client adapts minio.Client to provider.Storage for one fixed bucket.
type Client struct {
	mc     *minio.Client
	bucket string
}

func newClient() (*Client, error) {
	endpoint := os.Getenv("STORAGE_S3_ENDPOINT")
	access := os.Getenv("STORAGE_S3_ACCESS_KEY")
	secret := os.Getenv("STORAGE_S3_SECRET_KEY")
	bucket := os.Getenv("STORAGE_S3_BUCKET")
	useSSL, _ := strconv.ParseBool(os.Getenv("STORAGE_S3_USE_SSL"))

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("can't build minio client: %w", err)
	}
	return &Client{mc: mc, bucket: bucket}, nil
}

// PutObject implements provider.Storage.
func (c *Client) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return classify(err)
	}
	return nil
}

// GetObjectURL implements provider.Storage: a presigned GET URL.
func (c *Client) GetObjectURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", classify(err)
	}
	return u.String(), nil
}

// PresignPut implements provider.Storage: a presigned PUT URL, used by
// the upload endpoint to hand clients a direct-to-bucket write target.
func (c *Client) PresignPut(ctx context.Context, key string, ttl time.Duration, contentType string) (string, error) {
	u, err := c.mc.PresignedPutObject(ctx, c.bucket, key, ttl)
	if err != nil {
		return "", classify(err)
	}
	return u.String(), nil
}

// Delete implements provider.Storage.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return &provider.Error{Kind: provider.ErrInvalidFormat, Provider: "s3", Cause: err}
	case "AccessDenied":
		return &provider.Error{Kind: provider.ErrUnavailable, Provider: "s3", Cause: err}
	default:
		return &provider.Error{Kind: provider.ErrTransient, Provider: "s3", Cause: err}
	}
}
