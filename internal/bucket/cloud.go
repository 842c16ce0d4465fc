package bucket

import (
	"bytes"
	"context"
	"crypto/md5" // content integrity checksum, not a security hash
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// CloudBackend uploads files to an object store, staging every file
// through a local backend first so a request body is never streamed to the
// network directly.
type CloudBackend struct {
	store        ObjectStore
	local        *LocalBackend
	deleteLocal  bool
	signedExpiry time.Duration
	retry        RetryPolicy
}

// CloudConfig configures a CloudBackend.
type CloudConfig struct {
	Store        ObjectStore
	Local        *LocalBackend
	DeleteLocal  bool // remove the staged copy after the upload attempt
	SignedExpiry time.Duration
	Retry        RetryPolicy
}

// NewCloudBackend wraps a local staging backend with an object store.
func NewCloudBackend(cfg CloudConfig) *CloudBackend {
	return &CloudBackend{
		store:        cfg.Store,
		local:        cfg.Local,
		deleteLocal:  cfg.DeleteLocal,
		signedExpiry: cfg.SignedExpiry,
		retry:        cfg.Retry,
	}
}

// Save stages the content locally, uploads it under the remote key with a
// content checksum attached, and returns the key. When the caller named
// the file the staged path becomes the key; otherwise a fresh random key
// with the original extension decouples remote identity from the local
// path. Transient upload failures are retried per the policy and the last
// error re-raised. The staged copy is removed on success and failure alike
// when deleteLocal is set.
func (b *CloudBackend) Save(ctx context.Context, r io.Reader, rel string, opts PutOptions) (_ string, err error) {
	staged, err := b.local.Save(ctx, r, rel, opts)
	if err != nil {
		return "", err
	}

	if b.deleteLocal {
		defer func() {
			if rmErr := b.local.Delete(ctx, staged); rmErr != nil && err == nil {
				err = rmErr
			}
		}()
	}

	data, err := os.ReadFile(filepath.Join(b.local.Root(), staged))
	if err != nil {
		return "", fmt.Errorf("reading staged file: %w", err)
	}
	sum := md5.Sum(data)

	key := staged
	if !opts.NamedKey {
		key = newID() + strings.ToLower(path.Ext(staged))
	}

	err = b.retry.Do(ctx, func() error {
		return b.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), sum[:])
	})
	if err != nil {
		return "", err
	}

	if opts.Public {
		if err = b.store.MakePublic(ctx, key); err != nil {
			return "", err
		}
	}
	return key, nil
}

// Delete removes the remote object if present, then always removes the
// local copy, covering buckets that keep staged files around.
func (b *CloudBackend) Delete(ctx context.Context, name string) error {
	exists, err := b.store.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if err := b.store.Delete(ctx, name); err != nil {
			return err
		}
	}
	return b.local.Delete(ctx, name)
}

// URL returns the public URL of the remote object, or ErrNotFound when no
// object exists under name. It never falls back to a local URL.
func (b *CloudBackend) URL(ctx context.Context, name string) (string, error) {
	if err := b.requireObject(ctx, name); err != nil {
		return "", err
	}
	return b.store.PublicURL(name), nil
}

// SignedURL returns a time-limited URL for the remote object, or
// ErrNotFound when no object exists under name.
func (b *CloudBackend) SignedURL(ctx context.Context, name string) (string, error) {
	if err := b.requireObject(ctx, name); err != nil {
		return "", err
	}
	expiry := b.signedExpiry
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	return b.store.SignedURL(ctx, name, expiry)
}

func (b *CloudBackend) requireObject(ctx context.Context, name string) error {
	exists, err := b.store.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return nil
}
