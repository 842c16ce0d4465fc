package bucket

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the client-level settings for an S3-compatible endpoint.
// Individual buckets pick their remote bucket by name.
type S3Config struct {
	Endpoint  string // e.g. "s3.amazonaws.com", "minio.local:9000"
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewS3Client builds the shared S3 client. Credential and endpoint
// problems surface here so the caller can degrade to local-only mode
// instead of failing startup.
func NewS3Client(cfg S3Config) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating S3 client: %w", err)
	}
	return client, nil
}

// S3Store adapts one remote S3 bucket to the ObjectStore capability.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store verifies the remote bucket exists before returning a store. A
// missing bucket comes back wrapping ErrNotFound so the registry can fall
// back to local storage with a warning.
func NewS3Store(ctx context.Context, client *minio.Client, bucket string) (*S3Store, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("checking S3 bucket %q: %w", bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("S3 bucket %q: %w", bucket, ErrNotFound)
	}
	return &S3Store{client: client, bucket: bucket}, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, wrapS3Err("stat object", err)
	}
	return true, nil
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, md5sum []byte) error {
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		SendContentMd5: true,
	})
	if err != nil {
		return wrapS3Err("uploading object", err)
	}
	// Single-part uploads echo the content MD5 as the ETag; a multipart
	// ETag carries a "-" and cannot be compared.
	if len(md5sum) > 0 && !strings.Contains(info.ETag, "-") {
		if want := hex.EncodeToString(md5sum); info.ETag != want {
			return fmt.Errorf("uploading object: checksum mismatch: etag %s, want %s", info.ETag, want)
		}
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return wrapS3Err("deleting object", err)
	}
	return nil
}

// MakePublic applies a public-read ACL via a metadata-replacing self-copy,
// the portable way to change an object ACL on S3-compatible stores.
func (s *S3Store) MakePublic(ctx context.Context, key string) error {
	src := minio.CopySrcOptions{Bucket: s.bucket, Object: key}
	dst := minio.CopyDestOptions{
		Bucket:          s.bucket,
		Object:          key,
		ReplaceMetadata: true,
		UserMetadata:    map[string]string{"x-amz-acl": "public-read"},
	}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return wrapS3Err("setting object acl", err)
	}
	return nil
}

func (s *S3Store) PublicURL(key string) string {
	u := *s.client.EndpointURL()
	u.Path = "/" + s.bucket + "/" + key
	return u.String()
}

func (s *S3Store) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", wrapS3Err("presigning url", err)
	}
	return u.String(), nil
}

// retryableS3Codes are the S3 error codes treated as transient.
var retryableS3Codes = map[string]bool{
	"SlowDown":           true,
	"InternalError":      true,
	"RequestTimeout":     true,
	"ServiceUnavailable": true,
}

// wrapS3Err wraps retryable failures with ErrTransient and everything else
// verbatim, so the retry policy never retries permanent errors.
func wrapS3Err(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	if retryableS3Codes[resp.Code] || resp.StatusCode >= 500 {
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
