package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/openmusicplayer/mediagrab/internal/artifact"
)

// UploadResult contains the result of an upload operation
type UploadResult struct {
	StorageKey   string `json:"storage_key"`
	IdentityHash string `json:"identity_hash"`
	IsNew        bool   `json:"is_new"` // false if the object already existed
}

// S3Storage uploads artifacts to S3-compatible storage, keyed by content hash
// so identical payloads are stored once.
type S3Storage struct {
	client *s3.Client
	bucket string
}

// NewS3Storage creates a new S3Storage instance
func NewS3Storage(cfg *Config) *S3Storage {
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: awscreds.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}

	// Custom endpoints are MinIO or another S3 clone; those want path style.
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.baseURL())
		opts.UsePathStyle = true
	}

	return &S3Storage{
		client: s3.New(opts),
		bucket: cfg.Bucket,
	}
}

// IdentityHash returns the hex sha256 of data.
func IdentityHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ObjectKey returns the key an artifact with the given hash and filename is
// stored under.
func ObjectKey(identityHash, filename string) string {
	return fmt.Sprintf("artifacts/%s/%s%s", identityHash[:2], identityHash, path.Ext(filename))
}

// Upload stores a, skipping the write when the same bytes are already there.
func (s *S3Storage) Upload(ctx context.Context, a *artifact.Artifact) (*UploadResult, error) {
	identityHash := IdentityHash(a.Data)
	key := ObjectKey(identityHash, a.Filename)

	exists, err := s.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if exists {
		return &UploadResult{StorageKey: key, IdentityHash: identityHash, IsNew: false}, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(a.Data),
		ContentLength: aws.Int64(a.Size()),
		ContentType:   aws.String(a.MIMEType),
		Metadata: map[string]string{
			"filename": a.Filename,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return &UploadResult{StorageKey: key, IdentityHash: identityHash, IsNew: true}, nil
}

// Exists checks if key is present in the bucket.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check existence of %s: %w", key, err)
}

// Delete removes key from the bucket.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	// HEAD responses carry no body, so some servers only surface the code.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
