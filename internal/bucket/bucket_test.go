package bucket

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bucketd/bucketd/internal/testutil"
)

type fakeStorage struct {
	saves    int
	deletes  int
	lastRel  string
	lastOpts PutOptions
}

func (f *fakeStorage) Save(_ context.Context, r io.Reader, rel string, opts PutOptions) (string, error) {
	f.saves++
	f.lastRel = rel
	f.lastOpts = opts
	io.Copy(io.Discard, r)
	return rel, nil
}

func (f *fakeStorage) Delete(_ context.Context, name string) error {
	f.deletes++
	return nil
}

func (f *fakeStorage) URL(_ context.Context, name string) (string, error) {
	return "fake://" + name, nil
}

func (f *fakeStorage) SignedURL(_ context.Context, name string) (string, error) {
	return "fake://" + name + "?signed", nil
}

func newTestRegistry(t *testing.T, buckets ...BucketConfig) *Registry {
	t.Helper()
	r, err := NewRegistry(context.Background(), RegistryConfig{
		Root:    t.TempDir(),
		Buckets: buckets,
	}, testutil.DiscardLogger())
	testutil.NoError(t, err)
	return r
}

func TestNewRejectsInvalidName(t *testing.T) {
	for _, name := range []string{"", "my-bucket", "my bucket", "a/b", "файлы"} {
		_, err := New(name, nil)
		testutil.ErrorIs(t, err, ErrInvalidName)
	}

	b, err := New("files2", nil)
	testutil.NoError(t, err)
	testutil.Equal(t, b.Name(), "files2")
}

func TestSaveRejectsMalformedUpload(t *testing.T) {
	b, err := New("files", newTestRegistry(t, BucketConfig{Name: "files"}))
	testutil.NoError(t, err)

	ctx := context.Background()
	_, err = b.Save(ctx, nil, SaveOptions{})
	testutil.ErrorIs(t, err, ErrInvalidUpload)

	_, err = b.Save(ctx, &Upload{Filename: "foo.txt"}, SaveOptions{})
	testutil.ErrorIs(t, err, ErrInvalidUpload)

	_, err = b.Save(ctx, &Upload{Content: strings.NewReader("x")}, SaveOptions{})
	testutil.ErrorIs(t, err, ErrInvalidUpload)
}

func TestSavePolicyCheckedBeforeStorage(t *testing.T) {
	reg := newTestRegistry(t, BucketConfig{Name: "files", Deny: []string{"exe"}})
	fake := &fakeStorage{}
	b, err := New("files", reg)
	testutil.NoError(t, err)
	b = b.WithBackend(fake)

	_, err = b.Save(context.Background(), &Upload{
		Filename: "virus.exe",
		Content:  strings.NewReader("x"),
	}, SaveOptions{})
	testutil.ErrorIs(t, err, ErrNotAllowed)
	testutil.Equal(t, fake.saves, 0)
}

func TestSaveDeniedExtensionLeavesNoFile(t *testing.T) {
	reg := newTestRegistry(t, BucketConfig{Name: "files"})
	b, err := New("files", reg)
	testutil.NoError(t, err)

	_, err = b.Save(context.Background(), &Upload{
		Filename: "script.sh",
		Content:  strings.NewReader("#!/bin/sh"),
	}, SaveOptions{})
	testutil.ErrorIs(t, err, ErrNotAllowed)

	entry, ok := reg.Lookup("files")
	testutil.True(t, ok)
	matches, err := filepath.Glob(filepath.Join(entry.Local.Root(), "*"))
	testutil.NoError(t, err)
	testutil.SliceLen(t, matches, 0)
}

func TestSaveKeepFilenameRoundTrip(t *testing.T) {
	reg := newTestRegistry(t, BucketConfig{Name: "files"})
	b, err := New("files", reg)
	testutil.NoError(t, err)

	ctx := context.Background()
	rel, err := b.Save(ctx, &Upload{
		Filename: "empty.txt",
		Content:  strings.NewReader(""),
	}, SaveOptions{KeepFilename: true})
	testutil.NoError(t, err)
	testutil.Equal(t, rel, "empty.txt")

	entry, _ := reg.Lookup("files")
	data, err := os.ReadFile(filepath.Join(entry.Local.Root(), "empty.txt"))
	testutil.NoError(t, err)
	testutil.Equal(t, string(data), "")

	u, err := b.URL(ctx, rel)
	testutil.NoError(t, err)
	testutil.Equal(t, u, "/_uploads/files/empty.txt")

	testutil.NoError(t, b.Delete(ctx, rel))
	_, err = os.Stat(filepath.Join(entry.Local.Root(), "empty.txt"))
	testutil.True(t, os.IsNotExist(err))
}

func TestSavePreferredNamePassedThrough(t *testing.T) {
	reg := newTestRegistry(t, BucketConfig{Name: "files"})
	fake := &fakeStorage{}
	b, err := New("files", reg)
	testutil.NoError(t, err)
	b = b.WithBackend(fake)

	rel, err := b.Save(context.Background(), &Upload{
		Filename: "foo.txt",
		Content:  strings.NewReader("x"),
	}, SaveOptions{Name: "someguy/bar.", Public: true})
	testutil.NoError(t, err)
	testutil.Equal(t, rel, "someguy/bar.txt")
	testutil.Equal(t, fake.lastOpts, PutOptions{Public: true, NamedKey: true})
}

func TestWithBackendScopesOverride(t *testing.T) {
	reg := newTestRegistry(t, BucketConfig{Name: "files"})
	orig, err := New("files", reg)
	testutil.NoError(t, err)

	fake := &fakeStorage{}
	override := orig.WithBackend(fake)

	ctx := context.Background()
	testutil.NoError(t, override.Delete(ctx, "foo.txt"))
	testutil.Equal(t, fake.deletes, 1)

	// The original bucket still resolves through the registry.
	u, err := orig.URL(ctx, "foo.txt")
	testutil.NoError(t, err)
	testutil.Equal(t, u, "/_uploads/files/foo.txt")
}

func TestUnknownBucketFailsAtUseTime(t *testing.T) {
	reg := newTestRegistry(t, BucketConfig{Name: "files"})
	b, err := New("missing", reg)
	testutil.NoError(t, err)

	_, err = b.Save(context.Background(), &Upload{
		Filename: "foo.txt",
		Content:  strings.NewReader("x"),
	}, SaveOptions{})
	testutil.ErrorIs(t, err, ErrBucketNotFound)
}
