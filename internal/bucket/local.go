package bucket

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// LocalBackend persists files under a root directory on the local
// filesystem. It serves local-only buckets and doubles as the staging area
// for CloudBackend. All state is the filesystem itself.
type LocalBackend struct {
	name             string
	root             string
	resolveConflicts bool
	baseURL          string
	signer           *URLSigner
	signedExpiry     time.Duration
}

// LocalConfig configures a LocalBackend.
type LocalConfig struct {
	Name             string
	Root             string
	ResolveConflicts bool
	BaseURL          string // optional override for URL generation
	Signer           *URLSigner
	SignedExpiry     time.Duration
}

// NewLocalBackend creates a local backend rooted at cfg.Root, creating the
// directory if needed.
func NewLocalBackend(cfg LocalConfig) (*LocalBackend, error) {
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving destination path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating destination directory: %w", err)
	}
	return &LocalBackend{
		name:             cfg.Name,
		root:             abs,
		resolveConflicts: cfg.ResolveConflicts,
		baseURL:          cfg.BaseURL,
		signer:           cfg.Signer,
		signedExpiry:     cfg.SignedExpiry,
	}, nil
}

// Root returns the absolute destination directory.
func (b *LocalBackend) Root() string { return b.root }

// Save writes the content under root/rel, creating parent directories as
// needed, and returns the relative path actually used. With conflict
// resolution enabled an occupied path gets an incrementing _N suffix on
// the stem; otherwise the existing file is overwritten.
func (b *LocalBackend) Save(_ context.Context, r io.Reader, rel string, _ PutOptions) (string, error) {
	if dir := filepath.Dir(rel); dir != "." {
		if err := os.MkdirAll(filepath.Join(b.root, dir), 0o755); err != nil {
			return "", fmt.Errorf("creating directory: %w", err)
		}
	}

	target := filepath.Join(b.root, rel)
	if b.resolveConflicts {
		rel, target = b.nextFreePath(rel)
	}

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(target) // clean up partial file
		return "", fmt.Errorf("writing file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing file: %w", err)
	}
	return rel, nil
}

// nextFreePath appends _N to the filename stem until an unused path is
// found. The probe loop is not atomic against concurrent writers targeting
// the same stem; the last writer wins inside that window.
func (b *LocalBackend) nextFreePath(rel string) (string, string) {
	target := filepath.Join(b.root, rel)
	if _, err := os.Stat(target); err != nil {
		return rel, target
	}

	ext := path.Ext(rel)
	stem := strings.TrimSuffix(rel, ext)
	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s_%d%s", stem, n, ext)
		target = filepath.Join(b.root, cand)
		if _, err := os.Stat(target); err != nil {
			return cand, target
		}
	}
}

// Delete removes the file if it exists. Deleting a missing file is a
// no-op.
func (b *LocalBackend) Delete(_ context.Context, name string) error {
	err := os.Remove(filepath.Join(b.root, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

// URL returns the download URL for name without touching disk.
func (b *LocalBackend) URL(_ context.Context, name string) (string, error) {
	if b.baseURL != "" {
		return b.baseURL + name, nil
	}
	return "/_uploads/" + b.name + "/" + name, nil
}

// SignedURL returns the download URL with a time-limited token appended.
// Without a signer it degrades to the plain URL.
func (b *LocalBackend) SignedURL(ctx context.Context, name string) (string, error) {
	u, err := b.URL(ctx, name)
	if err != nil {
		return "", err
	}
	if b.signer == nil {
		return u, nil
	}
	expiry := b.signedExpiry
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	token, err := b.signer.Sign(b.name, name, expiry)
	if err != nil {
		return "", err
	}
	return u + "?token=" + token, nil
}
