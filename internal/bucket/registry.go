package bucket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// Entry is a bucket's resolved runtime state: the bound backend, the local
// store used for serving, and the merged extension policy.
type Entry struct {
	Backend Storage
	Local   *LocalBackend
	Allowed map[string]struct{}
	Private bool
}

// BucketConfig is the resolved per-bucket configuration handed to the
// registry, after the config layer has merged globals into it.
type BucketConfig struct {
	Name             string
	Extensions       []string // nil means the Defaults preset
	Allow            []string
	Deny             []string
	ResolveConflicts bool
	S3Bucket         string // empty means local-only
	DeleteLocal      bool
	Private          bool
	BaseURL          string
	SignedExpiry     time.Duration
	Retry            RetryPolicy
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Root     string        // local destination root, required
	S3Client *minio.Client // nil degrades every bucket to local-only
	Signer   *URLSigner
	Buckets  []BucketConfig
}

// Registry maps bucket names to backend instances. It is built once at
// startup and read-only afterwards; name uniqueness is enforced here, not
// by the buckets themselves.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry instantiates a backend per configured bucket. Each bucket
// gets a local store under root/<name>; a bucket with a remote bucket id
// additionally gets a cloud backend, unless the remote bucket is missing
// or no S3 client is available, in which case it degrades to local-only
// with a logged warning.
func NewRegistry(ctx context.Context, cfg RegistryConfig, logger *slog.Logger) (*Registry, error) {
	if cfg.Root == "" {
		return nil, errors.New("local destination root is required")
	}

	r := &Registry{entries: make(map[string]Entry, len(cfg.Buckets))}
	for _, bc := range cfg.Buckets {
		if !nameRE.MatchString(bc.Name) {
			return nil, fmt.Errorf("%w: %q must be alphanumeric", ErrInvalidName, bc.Name)
		}
		if _, dup := r.entries[bc.Name]; dup {
			return nil, fmt.Errorf("duplicate bucket %q", bc.Name)
		}

		local, err := NewLocalBackend(LocalConfig{
			Name:             bc.Name,
			Root:             filepath.Join(cfg.Root, bc.Name),
			ResolveConflicts: bc.ResolveConflicts,
			BaseURL:          bc.BaseURL,
			Signer:           cfg.Signer,
			SignedExpiry:     bc.SignedExpiry,
		})
		if err != nil {
			return nil, fmt.Errorf("bucket %q: %w", bc.Name, err)
		}

		backend := Storage(local)
		if bc.S3Bucket != "" {
			if cfg.S3Client == nil {
				logger.Warn("no object store client, bucket degraded to local storage",
					"bucket", bc.Name, "s3_bucket", bc.S3Bucket)
			} else if store, err := NewS3Store(ctx, cfg.S3Client, bc.S3Bucket); err != nil {
				logger.Warn("remote bucket unavailable, bucket degraded to local storage",
					"bucket", bc.Name, "s3_bucket", bc.S3Bucket, "error", err)
			} else {
				backend = NewCloudBackend(CloudConfig{
					Store:        store,
					Local:        local,
					DeleteLocal:  bc.DeleteLocal,
					SignedExpiry: bc.SignedExpiry,
					Retry:        bc.Retry,
				})
			}
		}

		r.entries[bc.Name] = Entry{
			Backend: backend,
			Local:   local,
			Allowed: mergeExtensions(bc.Extensions, bc.Allow, bc.Deny),
			Private: bc.Private,
		}
	}
	return r, nil
}

// mergeExtensions builds the allowed set as (defaults ∪ allow) \ deny.
// Deny wins over allow.
func mergeExtensions(defaults, allow, deny []string) map[string]struct{} {
	if defaults == nil {
		defaults = Defaults
	}
	set := make(map[string]struct{}, len(defaults)+len(allow))
	for _, e := range defaults {
		set[strings.ToLower(e)] = struct{}{}
	}
	for _, e := range allow {
		set[strings.ToLower(e)] = struct{}{}
	}
	for _, e := range deny {
		delete(set, strings.ToLower(e))
	}
	return set
}

// Resolve returns the backend bound for name, or ErrBucketNotFound.
func (r *Registry) Resolve(name string) (Storage, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrBucketNotFound)
	}
	return e.Backend, nil
}

// Lookup returns the full entry for name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Allowed reports whether ext (lowercase, no dot) may be uploaded to the
// named bucket. Unknown buckets report true; resolution fails later with
// ErrBucketNotFound, keeping the two error conditions distinct.
func (r *Registry) Allowed(name, ext string) bool {
	e, ok := r.entries[name]
	if !ok {
		return true
	}
	_, ok = e.Allowed[ext]
	return ok
}

// Names returns the registered bucket names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
