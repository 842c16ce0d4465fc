package bucket

import (
	"context"
	"io"
	"time"
)

// ObjectStore is the client capability the cloud backend needs from an
// S3-compatible store. Implementations classify failures: anything worth
// retrying must wrap ErrTransient so RetryPolicy can tell it apart from
// permanent and validation errors.
type ObjectStore interface {
	// Exists reports whether an object is present under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Put uploads the content under key. md5sum is the raw MD5 digest of
	// the content, attached for server-side integrity verification.
	Put(ctx context.Context, key string, r io.Reader, size int64, md5sum []byte) error

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// MakePublic marks the object world-readable.
	MakePublic(ctx context.Context, key string) error

	// PublicURL formats the public download URL for key without any
	// network round trip.
	PublicURL(key string) string

	// SignedURL returns a time-limited credential-bearing download URL.
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
