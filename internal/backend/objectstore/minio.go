// Package objectstore provides backend.BlobStore implementations: a
// MinIO/S3-compatible store for deployments and a local disk store for
// development and tests.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig bundles the settings required to reach a MinIO/S3 bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// PublicBaseURL is the externally reachable prefix under which
	// bucket objects are served. When empty it is derived from the
	// endpoint and bucket. Wallpaper image URLs are durable, so the
	// bucket is expected to allow anonymous reads rather than relying
	// on expiring presigned URLs.
	PublicBaseURL string
}

// MinioStore implements backend.BlobStore over MinIO/S3 compatible
// storage.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &MinioStore{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

// Put uploads an object under the provided key.
func (m *MinioStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// PublicURL resolves the durable retrieval URL for a stored object.
func (m *MinioStore) PublicURL(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	return m.baseURL + "/" + strings.TrimLeft(key, "/"), nil
}

// Delete removes the object backing the provided retrieval URL. URLs
// outside this store's base prefix are rejected.
func (m *MinioStore) Delete(ctx context.Context, url string) error {
	key, err := keyFromURL(m.baseURL, url)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func keyFromURL(baseURL, url string) (string, error) {
	prefix := baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", fmt.Errorf("url %q does not belong to this store", url)
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" {
		return "", fmt.Errorf("url %q has no object key", url)
	}
	return key, nil
}
