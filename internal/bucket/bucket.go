package bucket

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Upload is the file-like value handed to Bucket.Save. Both fields are
// required; a malformed upload fails loudly with ErrInvalidUpload.
type Upload struct {
	Filename string
	Content  io.Reader
}

// SaveOptions control naming and visibility for a single save.
type SaveOptions struct {
	// Name is a preferred relative path. It may carry a single folder
	// segment ("someguy/photo.jpg"); a trailing dot keeps the original
	// extension ("photo_123.").
	Name string

	// Public marks the remote object world-readable after upload. Ignored
	// by local-only buckets.
	Public bool

	// KeepFilename derives the stem from the sanitized original filename
	// instead of a random id. Ignored when Name is set.
	KeepFilename bool
}

// Bucket is the backend-agnostic entry point for a named collection of
// uploads. It resolves its backend through the registry on every call, so
// one Bucket value can outlive configuration reloads. Construct with New;
// the zero value is not usable.
type Bucket struct {
	name     string
	registry *Registry
	backend  Storage // non-nil overrides registry resolution
}

// New creates a bucket facade. The name must be alphanumeric; a violation
// is a configuration error and fails here, not at first use.
func New(name string, registry *Registry) (*Bucket, error) {
	if !nameRE.MatchString(name) {
		return nil, fmt.Errorf("%w: %q must be alphanumeric", ErrInvalidName, name)
	}
	return &Bucket{name: name, registry: registry}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// WithBackend returns a copy of the bucket bound to the given backend,
// bypassing registry resolution. The receiver is untouched, so the
// substitution is naturally scoped and safe across goroutines. Meant for
// tests.
func (b *Bucket) WithBackend(s Storage) *Bucket {
	c := *b
	c.backend = s
	return &c
}

func (b *Bucket) storage() (Storage, error) {
	if b.backend != nil {
		return b.backend, nil
	}
	if b.registry == nil {
		return nil, fmt.Errorf("%q: %w", b.name, ErrBucketNotFound)
	}
	return b.registry.Resolve(b.name)
}

// Save sanitizes a path for the upload, applies the extension policy, and
// delegates to the bound backend. The policy check runs strictly before
// any filesystem or network I/O. The returned relative path identifies the
// file for Delete, URL and SignedURL.
func (b *Bucket) Save(ctx context.Context, up *Upload, opts SaveOptions) (string, error) {
	if up == nil || up.Content == nil {
		return "", fmt.Errorf("%w: nil upload content", ErrInvalidUpload)
	}
	if up.Filename == "" {
		return "", fmt.Errorf("%w: missing filename", ErrInvalidUpload)
	}

	rel, err := SecurePath(up.Filename, opts.Name, !opts.KeepFilename)
	if err != nil {
		return "", err
	}

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(rel)), ".")
	if b.registry != nil && !b.registry.Allowed(b.name, ext) {
		return "", fmt.Errorf("%w: extension %q", ErrNotAllowed, ext)
	}

	st, err := b.storage()
	if err != nil {
		return "", err
	}
	return st.Save(ctx, up.Content, rel, PutOptions{
		Public:   opts.Public,
		NamedKey: opts.Name != "",
	})
}

// Delete removes the file with the given name. Missing files are a no-op.
func (b *Bucket) Delete(ctx context.Context, name string) error {
	st, err := b.storage()
	if err != nil {
		return err
	}
	return st.Delete(ctx, name)
}

// URL returns the public URL the backend serves name under.
func (b *Bucket) URL(ctx context.Context, name string) (string, error) {
	st, err := b.storage()
	if err != nil {
		return "", err
	}
	return st.URL(ctx, name)
}

// SignedURL returns a time-limited URL for name.
func (b *Bucket) SignedURL(ctx context.Context, name string) (string, error) {
	st, err := b.storage()
	if err != nil {
		return "", err
	}
	return st.SignedURL(ctx, name)
}
