// Package archivist lists, extracts and adds members of zip-family and
// RAR-family archives through one contract.
//
// Zip-family archives (.zip, .cbz, .epub, .jar) are mounted as a virtual file
// tree with the [mount] package. RAR-family archives (.rar, .cbr) can only be
// reached through the [rar program] by Alexander Roshal, driven by the [rar]
// package. Both return the same [Entry] model.
//
//	f, err := archivist.New(cfg)
//	h, err := archivist.Open("book.cbz")
//	entries, err := f.List(ctx, h, archivist.Extensions("png", "jpg"))
//	data, err := entries[0].Bytes(ctx)
//
// [rar program]: https://www.rarlab.com/download.htm
package archivist

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Defacto2/archivist/command"
	"github.com/Defacto2/archivist/entry"
	"github.com/Defacto2/archivist/mount"
	"github.com/Defacto2/archivist/runner"
	"github.com/Defacto2/archivist/stage"
	"github.com/Defacto2/magicnumber"
)

const (
	cbrx  = ".cbr"  // Comic Book RAR
	cbzx  = ".cbz"  // Comic Book ZIP
	epubx = ".epub" // Electronic Publication by the IDPF
	jarx  = ".jar"  // Java ARchive
	rarx  = ".rar"  // Roshal ARchive by Alexander Roshal
	zipx  = ".zip"  // Phil Katz's ZIP for MS-DOS systems
)

var (
	ErrUnsupported = errors.New("archive format is not supported")
	ErrPath        = errors.New("path is a directory")
)

// Errors of the backends, so callers only need to import this package.
var (
	ErrLaunch           = runner.ErrLaunch
	ErrTimeout          = runner.ErrTimeout
	ErrCanceled         = runner.ErrCanceled
	ErrToolNotAvailable = command.ErrToolNotAvailable
	ErrMount            = mount.ErrMount
	ErrStaging          = stage.ErrStaging
)

type (
	Entry      = entry.Entry
	Data       = entry.Data
	Filter     = entry.Filter
	FilterFunc = entry.FilterFunc
	Input      = entry.Input
	SourceKind = entry.SourceKind
)

var (
	AcceptAll           = entry.AcceptAll
	RejectDirectoryLike = entry.RejectDirectoryLike
)

// Elide removes directory pseudo-entries from a flat listing, see entry.Elide.
func Elide(names []string) []string { return entry.Elide(names) }

// Extensions includes members with one of the filename extensions.
func Extensions(exts ...string) Filter { return entry.Extensions(exts...) }

// Glob includes members matched by gitignore-style patterns.
func Glob(patterns ...string) (Filter, error) { return entry.Glob(patterns...) }

// All includes members accepted by every filter.
func All(filters ...Filter) Filter { return entry.All(filters...) }

// Not includes members rejected by f.
func Not(f Filter) Filter { return entry.Not(f) }

func FromBytes(b []byte) Input     { return entry.FromBytes(b) }
func FromFile(name string) Input   { return entry.FromFile(name) }
func FromReader(r io.Reader) Input { return entry.FromReader(r) }

// Family is a group of archive formats handled by the same backend.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyZip            // FamilyZip archives are mounted as a file tree.
	FamilyRar            // FamilyRar archives are driven by the rar program.
)

func (f Family) String() string {
	switch f {
	case FamilyZip:
		return "zip"
	case FamilyRar:
		return "rar"
	}
	return "unknown"
}

// Handle is an archive location and its detected family.
// It is resolved once per operation and holds no open file.
type Handle struct {
	Path   string
	Family Family
}

// Open resolves the named archive to a Handle. The archive need not exist yet,
// in which case the family comes from the filename extension.
func Open(name string) (Handle, error) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return Handle{}, fmt.Errorf("archivist open %w", err)
	}
	fam, err := Detect(abs)
	if err != nil {
		return Handle{}, err
	}
	if fam == FamilyUnknown {
		return Handle{}, fmt.Errorf("archivist open %w: %s", ErrUnsupported, filepath.Base(abs))
	}
	return Handle{Path: abs, Family: fam}, nil
}

// Detect returns the family of the named archive using its magic number,
// falling back to the filename extension for files that are missing, empty
// or have no recognized signature.
func Detect(name string) (Family, error) {
	r, err := os.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FamilyExt(name), nil
		}
		return FamilyUnknown, fmt.Errorf("archivist detect %w", err)
	}
	defer r.Close()
	inf, err := r.Stat()
	if err != nil {
		return FamilyUnknown, fmt.Errorf("archivist detect %w", err)
	}
	if inf.IsDir() {
		return FamilyUnknown, fmt.Errorf("archivist detect %w: %s", ErrPath, name)
	}
	if inf.Size() == 0 {
		return FamilyExt(name), nil
	}
	sign, err := magicnumber.Archive(r)
	if err != nil {
		return FamilyExt(name), nil
	}
	switch sign {
	case magicnumber.PKWAREZip,
		magicnumber.PKWAREZip64,
		magicnumber.PKWAREZipImplode,
		magicnumber.PKWAREZipReduce,
		magicnumber.PKWAREZipShrink:
		return FamilyZip, nil
	case magicnumber.RoshalARchive,
		magicnumber.RoshalARchivev5:
		return FamilyRar, nil
	}
	return FamilyExt(name), nil
}

// FamilyExt returns the family of the filename extension.
func FamilyExt(name string) Family {
	switch strings.ToLower(filepath.Ext(name)) {
	case zipx, cbzx, epubx, jarx:
		return FamilyZip
	case rarx, cbrx:
		return FamilyRar
	}
	return FamilyUnknown
}
