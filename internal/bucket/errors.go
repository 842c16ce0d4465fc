package bucket

import "errors"

// Sentinel errors.
var (
	// ErrNotFound means the requested object does not exist in the backend.
	ErrNotFound = errors.New("object not found")

	// ErrBucketNotFound means no backend is bound for the bucket name.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrNotAllowed means the upload was rejected by the extension policy.
	// The check runs before any filesystem or network I/O.
	ErrNotAllowed = errors.New("upload not allowed")

	// ErrInvalidUpload means the caller passed a malformed upload value.
	// This is a programmer error, not a user-input error.
	ErrInvalidUpload = errors.New("invalid upload")

	// ErrInvalidName means a bucket name is not alphanumeric.
	ErrInvalidName = errors.New("invalid bucket name")

	// ErrNestedFolder means a preferred name carries more than one folder
	// segment. Only a single folder level is supported.
	ErrNestedFolder = errors.New("nested folders are not supported")

	// ErrTransient marks an object-store failure worth retrying. Only
	// errors wrapping this sentinel are retried by RetryPolicy.
	ErrTransient = errors.New("transient object store error")
)
