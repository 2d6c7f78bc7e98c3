package artifact

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Mirror copies the latest validated artifact somewhere outside the project.
type Mirror interface {
	Upload(ctx context.Context, content string) error
}

// S3Config configures an S3Mirror.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Key       string
	UseSSL    bool
}

// DefaultMirrorKey is the object key used when none is configured.
const DefaultMirrorKey = "leapapp/MyApp.jsx"

// S3Mirror uploads the artifact to a single object key in an S3-compatible bucket.
type S3Mirror struct {
	client *minio.Client
	bucket string
	key    string
	region string

	initOnce sync.Once
	initErr  error
}

// NewS3Mirror creates a mirror from cfg.
func NewS3Mirror(cfg S3Config) (*S3Mirror, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("mirror endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("mirror access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("mirror bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	key := strings.TrimLeft(strings.TrimSpace(cfg.Key), "/")
	if key == "" {
		key = DefaultMirrorKey
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mirror client: %w", err)
	}

	return &S3Mirror{client: client, bucket: bucket, key: key, region: region}, nil
}

func (m *S3Mirror) ensureBucket(ctx context.Context) error {
	m.initOnce.Do(func() {
		exists, err := m.client.BucketExists(ctx, m.bucket)
		if err != nil {
			m.initErr = err
			return
		}
		if exists {
			return
		}
		m.initErr = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region})
	})
	return m.initErr
}

// Upload overwrites the mirror object with content.
func (m *S3Mirror) Upload(ctx context.Context, content string) error {
	if err := m.ensureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure mirror bucket: %w", err)
	}
	_, err := m.client.PutObject(ctx, m.bucket, m.key, strings.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: "text/javascript",
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact to %s/%s: %w", m.bucket, m.key, err)
	}
	return nil
}

// Key returns the object key the mirror writes to.
func (m *S3Mirror) Key() string {
	return m.key
}
