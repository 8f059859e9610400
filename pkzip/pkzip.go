// Package pkzip reports the compression methods used by the members of a zip archive.
//
// The Go standard library and the mount backend can only read the Stored and
// Deflated methods, so archives created by early versions of PKZIP that use
// Shrunk, Reduced or Imploded members are reported as unusable by Zip.
package pkzip

import (
	"archive/zip"
	"errors"
	"fmt"
)

// Compression is the compression method of a zip member.
type Compression uint16

const (
	Stored    Compression = 0  // Stored is uncompressed.
	Shrunk    Compression = 1  // Shrunk is used by PKZIP 0.9x and 1.0x.
	Reduced1  Compression = 2  // Reduced1 is reduced with compression factor 1.
	Reduced2  Compression = 3  // Reduced2 is reduced with compression factor 2.
	Reduced3  Compression = 4  // Reduced3 is reduced with compression factor 3.
	Reduced4  Compression = 5  // Reduced4 is reduced with compression factor 4.
	Imploded  Compression = 6  // Imploded is used by PKZIP 1.1x.
	Deflated  Compression = 8  // Deflated is used by PKZIP 2.x and most modern tools.
	Deflate64 Compression = 9  // Deflate64 is enhanced deflating.
	BZIP2     Compression = 12 // BZIP2 is bzip2 compressed.
	LZMA      Compression = 14 // LZMA is lzma compressed.
	Zstd      Compression = 93 // Zstd is zstandard compressed.
	XZ        Compression = 95 // XZ is xz compressed.
)

var ErrMember = errors.New("member is not in the archive")

func (c Compression) String() string {
	switch c {
	case Stored:
		return "Stored"
	case Shrunk:
		return "Shrunk"
	case Reduced1, Reduced2, Reduced3, Reduced4:
		return "Reduced"
	case Imploded:
		return "Imploded"
	case Deflated:
		return "Deflated"
	case Deflate64:
		return "Deflate64"
	case BZIP2:
		return "BZIP2"
	case LZMA:
		return "LZMA"
	case Zstd:
		return "Zstandard"
	case XZ:
		return "XZ"
	}
	return "Reserved"
}

// Zip reports whether the compression method can be read and written
// by the archive/zip package.
func (c Compression) Zip() bool {
	return c == Stored || c == Deflated
}

// Methods returns the compression methods of every member of the named
// archive, in the order of the central directory.
func Methods(name string) ([]Compression, error) {
	r, err := zip.OpenReader(name)
	if err != nil {
		return nil, fmt.Errorf("pkzip methods %w", err)
	}
	defer r.Close()
	comps := make([]Compression, 0, len(r.File))
	for _, f := range r.File {
		comps = append(comps, Compression(f.Method))
	}
	return comps, nil
}

// Method returns the compression method of the named member.
func Method(name, member string) (Compression, error) {
	r, err := zip.OpenReader(name)
	if err != nil {
		return 0, fmt.Errorf("pkzip method %w", err)
	}
	defer r.Close()
	for _, f := range r.File {
		if f.Name == member {
			return Compression(f.Method), nil
		}
	}
	return 0, fmt.Errorf("pkzip method %w: %s", ErrMember, member)
}

// Zip reports whether every member of the named archive uses a method that
// can be read by the archive/zip package.
func Zip(name string) (bool, error) {
	comps, err := Methods(name)
	if err != nil {
		return false, err
	}
	for _, c := range comps {
		if !c.Zip() {
			return false, nil
		}
	}
	return true, nil
}
