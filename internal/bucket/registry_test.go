package bucket

import (
	"context"
	"testing"

	"github.com/bucketd/bucketd/internal/testutil"
)

func TestRegistryRequiresRoot(t *testing.T) {
	_, err := NewRegistry(context.Background(), RegistryConfig{}, testutil.DiscardLogger())
	testutil.ErrorContains(t, err, "root is required")
}

func TestRegistryRejectsInvalidBucketName(t *testing.T) {
	_, err := NewRegistry(context.Background(), RegistryConfig{
		Root:    t.TempDir(),
		Buckets: []BucketConfig{{Name: "my-files"}},
	}, testutil.DiscardLogger())
	testutil.ErrorIs(t, err, ErrInvalidName)
}

func TestRegistryRejectsDuplicateBucket(t *testing.T) {
	_, err := NewRegistry(context.Background(), RegistryConfig{
		Root:    t.TempDir(),
		Buckets: []BucketConfig{{Name: "files"}, {Name: "files"}},
	}, testutil.DiscardLogger())
	testutil.ErrorContains(t, err, "duplicate bucket")
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := newTestRegistry(t, BucketConfig{Name: "files"})

	_, err := r.Resolve("missing")
	testutil.ErrorIs(t, err, ErrBucketNotFound)

	_, ok := r.Lookup("missing")
	testutil.False(t, ok)
}

func TestRegistryDegradesToLocalWithoutClient(t *testing.T) {
	// s3_bucket is configured but no client is available, so the bucket
	// must come up local-only instead of failing startup.
	r := newTestRegistry(t, BucketConfig{Name: "photos", S3Bucket: "photos-prod"})

	entry, ok := r.Lookup("photos")
	testutil.True(t, ok)
	_, isLocal := entry.Backend.(*LocalBackend)
	testutil.True(t, isLocal)
}

func TestRegistryNamesSorted(t *testing.T) {
	r := newTestRegistry(t,
		BucketConfig{Name: "photos"},
		BucketConfig{Name: "audio"},
		BucketConfig{Name: "files"},
	)

	names := r.Names()
	testutil.SliceLen(t, names, 3)
	testutil.Equal(t, names[0], "audio")
	testutil.Equal(t, names[1], "files")
	testutil.Equal(t, names[2], "photos")
}

func TestMergeExtensions(t *testing.T) {
	// Defaults apply when no base set is given.
	set := mergeExtensions(nil, nil, nil)
	_, ok := set["txt"]
	testutil.True(t, ok)
	_, ok = set["jpg"]
	testutil.True(t, ok)
	_, ok = set["exe"]
	testutil.False(t, ok)

	// Allow extends, deny wins over allow.
	set = mergeExtensions(nil, []string{"mp3", "EXE"}, []string{"exe", "TXT"})
	_, ok = set["mp3"]
	testutil.True(t, ok)
	_, ok = set["exe"]
	testutil.False(t, ok)
	_, ok = set["txt"]
	testutil.False(t, ok)

	// An explicit base set replaces the defaults entirely.
	set = mergeExtensions([]string{"pdf"}, nil, nil)
	testutil.MapLen(t, set, 1)
}

func TestRegistryAllowed(t *testing.T) {
	r := newTestRegistry(t, BucketConfig{Name: "files", Extensions: []string{"txt"}})

	testutil.True(t, r.Allowed("files", "txt"))
	testutil.False(t, r.Allowed("files", "exe"))

	// Unknown buckets defer to resolution, which fails later.
	testutil.True(t, r.Allowed("missing", "exe"))
}
