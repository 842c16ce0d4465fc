package bucket

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// newID generates the random stem used when no usable filename is
// available. Swappable in tests to keep SecurePath deterministic.
var newID = func() string { return uuid.NewString() }

// SecurePath turns an untrusted filename plus an optional preferred name
// into a safe relative path whose extension is always lower-cased.
//
// Without a preferred name the stem is either a fresh random id (uniqueID
// true) or a sanitized copy of the original stem, and the extension comes
// from the original filename. A preferred name may carry at most one folder
// segment; a trailing dot keeps the original extension. A segment that
// sanitizes to nothing falls back to a random id.
func SecurePath(filename, preferred string, uniqueID bool) (string, error) {
	ext := strings.ToLower(path.Ext(filename))

	if preferred == "" {
		stem := newID()
		if !uniqueID {
			stem = secureFilename(strings.TrimSuffix(filename, path.Ext(filename)))
			if stem == "" {
				stem = newID()
			}
		}
		return stem + ext, nil
	}

	segments := strings.Split(preferred, "/")
	if len(segments) > 2 {
		return "", fmt.Errorf("%w: %q", ErrNestedFolder, preferred)
	}

	var folder string
	if len(segments) == 2 {
		folder = secureFilename(segments[0])
	}

	name := segments[len(segments)-1]
	if strings.HasSuffix(name, ".") {
		// Trailing dot means "keep the original extension".
		name = secureFilename(strings.TrimSuffix(name, "."))
		if name == "" {
			name = newID()
		}
		name += ext
	} else {
		name = secureFilenameExt(name)
		if name == "" {
			name = newID()
		}
	}

	if folder != "" {
		return folder + "/" + name, nil
	}
	return name, nil
}

// asciiFold drops combining marks and every rune the ASCII fold cannot
// express, so "héllo" becomes "hello" and "天安门" becomes "".
var asciiFold = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
)

// secureFilename reduces an arbitrary string to a single filename-safe
// component: ASCII only, no path separators, no traversal segments left
// intact. An unusable input yields the empty string.
func secureFilename(name string) string {
	folded, _, err := transform.String(asciiFold, name)
	if err != nil {
		folded = ""
	}

	// Separators become spaces so runs of them collapse into single
	// underscores below.
	folded = strings.ReplaceAll(folded, "/", " ")
	folded = strings.ReplaceAll(folded, "\\", " ")
	joined := strings.Join(strings.Fields(folded), "_")

	var b strings.Builder
	for _, r := range joined {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}

// secureFilenameExt sanitizes a filename and lower-cases its extension
// while leaving the stem's case alone, so policy checks compare extensions
// in one case.
func secureFilenameExt(filename string) string {
	ext := path.Ext(filename)
	secured := secureFilename(filename)
	if ext == "" || secured == "" {
		return secured
	}
	return strings.TrimSuffix(secured, path.Ext(secured)) + strings.ToLower(ext)
}
