package bucket

import (
	"context"
	"io"
)

// PutOptions carries per-save flags from the facade down to a backend.
type PutOptions struct {
	// Public marks the uploaded object world-readable in the object store.
	// Ignored by the local backend.
	Public bool

	// NamedKey keeps the staged relative path as the remote object key
	// instead of generating a random one. Set when the caller supplied an
	// explicit name.
	NamedKey bool
}

// Storage is the capability set shared by the local and cloud backends. A
// bucket delegates to whichever implementation is bound for its name.
//
// Save returns the relative path (or remote object key) the file ended up
// under; callers must treat it as opaque and reuse it for Delete and the
// URL operations. The cloud backend returns ErrNotFound from URL and
// SignedURL when no remote object exists; the local backend formats URLs
// without touching disk.
type Storage interface {
	Save(ctx context.Context, r io.Reader, rel string, opts PutOptions) (string, error)
	Delete(ctx context.Context, name string) error
	URL(ctx context.Context, name string) (string, error)
	SignedURL(ctx context.Context, name string) (string, error)
}
