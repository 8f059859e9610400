package mount

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Scheme prefixes a member location.
const Scheme = "container://"

var ErrLocation = errors.New("location is not a container member")

// Extensions are the filename extensions of the zip-family archives.
func Extensions() []string {
	return []string{".zip", ".cbz", ".epub", ".jar"}
}

// Location addresses a member inside an archive.
type Location struct {
	Archive string // Archive is the path of the archive file.
	Member  string // Member is the forward slash path inside the archive.
}

func (l Location) String() string {
	return Scheme + filepath.ToSlash(l.Archive) + "/" + l.Member
}

// ParseLocation splits a "container://<archive>/<member>" location.
// The archive ends at the first path element with a zip-family extension,
// or at an explicit "!/" separator.
func ParseLocation(s string) (Location, error) {
	rest, ok := strings.CutPrefix(s, Scheme)
	if !ok {
		return Location{}, fmt.Errorf("%w: %q", ErrLocation, s)
	}
	if archive, member, found := strings.Cut(rest, "!/"); found {
		return location(s, archive, member)
	}
	parts := strings.Split(rest, "/")
	for i, part := range parts {
		ext := strings.ToLower(path.Ext(part))
		for _, want := range Extensions() {
			if ext == want {
				return location(s, strings.Join(parts[:i+1], "/"), strings.Join(parts[i+1:], "/"))
			}
		}
	}
	return Location{}, fmt.Errorf("%w: %q has no archive", ErrLocation, s)
}

func location(s, archive, member string) (Location, error) {
	if archive == "" || member == "" {
		return Location{}, fmt.Errorf("%w: %q", ErrLocation, s)
	}
	return Location{Archive: filepath.FromSlash(archive), Member: member}, nil
}
