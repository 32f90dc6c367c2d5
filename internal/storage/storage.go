package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/openmusicplayer/mediagrab/internal/artifact"
)

// Config holds the configuration for the object store. The same settings
// drive the minio-go client used for bucket setup and presigning and the
// AWS SDK client used for uploads.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// host returns the endpoint without a scheme, as minio-go expects.
func (c *Config) host() string {
	endpoint := strings.TrimPrefix(c.Endpoint, "http://")
	return strings.TrimPrefix(endpoint, "https://")
}

// baseURL returns the endpoint with a scheme, as the AWS SDK expects.
func (c *Config) baseURL() string {
	if strings.HasPrefix(c.Endpoint, "http://") || strings.HasPrefix(c.Endpoint, "https://") {
		return c.Endpoint
	}
	if c.UseSSL {
		return "https://" + c.Endpoint
	}
	return "http://" + c.Endpoint
}

// Client provides bucket management and presigned links over minio-go.
type Client struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a new storage client.
func New(cfg *Config) (*Client, error) {
	client, err := minio.New(cfg.host(), &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
	}, nil
}

// PresignedURL returns a time-limited GET link for key. When filename is set
// the link asks the browser to save under that name.
func (c *Client) PresignedURL(ctx context.Context, key string, ttl time.Duration, filename string) (string, error) {
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", artifact.ContentDisposition(filename))
	}

	u, err := c.client.PresignedGetObject(ctx, c.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// EnsureBucket creates the bucket when it is missing. Another instance
// creating it first is not an error.
func (c *Client) EnsureBucket(ctx context.Context) error {
	if err := c.Ping(ctx); err == nil {
		return nil
	} else if !errors.Is(err, errNoBucket) {
		return err
	}

	err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region})
	switch minio.ToErrorResponse(err).Code {
	case "", "BucketAlreadyOwnedByYou":
		return nil
	}
	return fmt.Errorf("create bucket %s: %w", c.bucket, err)
}

var errNoBucket = errors.New("bucket does not exist")

// Ping reports whether the store is reachable and the bucket exists.
func (c *Client) Ping(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", c.bucket, errNoBucket)
	}
	return nil
}
