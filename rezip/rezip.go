// Package rezip writes members to zip archives using the universal Store and
// Deflate compression methods.
//
// Small archives are rebuilt into a temporary file that replaces the original.
// Archives larger than the Policy threshold are grown in place: the new
// members are written over the old central directory, which is then rewritten
// after them without the records of any replaced members.
package rezip

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Defacto2/helper"
	"github.com/scylladb/go-set/strset"
)

const (
	createUnique = os.O_RDWR | os.O_CREATE | os.O_EXCL

	bufSize = 64 * 1024
)

var (
	ErrName    = errors.New("member name is invalid")
	ErrNoOpen  = errors.New("member has no content")
	ErrZip64   = errors.New("archive uses zip64 records")
	ErrCorrupt = errors.New("archive central directory is unreadable")
)

// Mode is the way an archive was written.
type Mode int

const (
	ModeCreate  Mode = iota // ModeCreate wrote a new archive.
	ModeRebuild             // ModeRebuild replaced the archive with a rewritten copy.
	ModeGrow                // ModeGrow appended to the archive in place.
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeRebuild:
		return "rebuild"
	case ModeGrow:
		return "grow"
	}
	return "unknown"
}

// Member is a file to write to an archive.
type Member struct {
	Name string                        // Name is the forward slash path inside the archive.
	Open func() (io.ReadCloser, error) // Open returns the content of the member.
}

// Bytes returns a member holding b.
func Bytes(name string, b []byte) Member {
	return Member{Name: name, Open: func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}}
}

// CleanName normalizes a member name to a relative forward slash path.
func CleanName(name string) (string, error) {
	s := strings.ReplaceAll(name, "\\", "/")
	s = strings.TrimLeft(s, "/")
	if s == "" || strings.HasSuffix(s, "/") {
		return "", fmt.Errorf("%w: %q", ErrName, name)
	}
	for _, part := range strings.Split(s, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("%w: %q", ErrName, name)
		}
	}
	return s, nil
}

// Create writes a new, empty zip archive to the named file.
// If the file already exists, an error is returned.
func Create(name string) error {
	file, err := os.OpenFile(name, createUnique, helper.WriteWriteRead)
	if err != nil {
		return fmt.Errorf("rezip create failed to open file: %w", err)
	}
	defer file.Close()
	w := zip.NewWriter(file)
	if err := w.Close(); err != nil {
		return fmt.Errorf("rezip create failed to close writer: %w", err)
	}
	return nil
}

// Write adds the members to the named zip archive, replacing any existing
// members with the same names. A missing archive is created.
// The policy decides the compression method of each member and whether
// the archive is grown or rebuilt.
func Write(name string, p Policy, members ...Member) (Mode, error) {
	inf, err := os.Stat(name)
	if errors.Is(err, os.ErrNotExist) {
		if err := Rebuild(name, p, members...); err != nil {
			return ModeCreate, err
		}
		return ModeCreate, nil
	}
	if err != nil {
		return ModeRebuild, fmt.Errorf("rezip write failed to stat file: %w", err)
	}
	if !p.Grow(inf.Size()) {
		return ModeRebuild, Rebuild(name, p, members...)
	}
	err = Append(name, p, members...)
	if errors.Is(err, ErrZip64) || errors.Is(err, ErrCorrupt) {
		return ModeRebuild, Rebuild(name, p, members...)
	}
	return ModeGrow, err
}

// Rebuild writes a copy of the named archive with the members added and
// replaces the original. The compressed data of the kept members is copied
// without being recompressed. A missing archive is created.
func Rebuild(name string, p Policy, members ...Member) error {
	names, err := memberNames(members)
	if err != nil {
		return err
	}
	dir := filepath.Dir(name)
	tmp, err := os.CreateTemp(dir, ".rezip-*.tmp")
	if err != nil {
		return fmt.Errorf("rezip rebuild failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	defer tmp.Close()

	w := zip.NewWriter(tmp)
	mode, err := keep(w, name, names)
	if err != nil {
		return fmt.Errorf("rezip rebuild %w", err)
	}
	if err := add(w, p, members); err != nil {
		return fmt.Errorf("rezip rebuild %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("rezip rebuild failed to close writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rezip rebuild failed to close file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("rezip rebuild failed to chmod: %w", err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		return fmt.Errorf("rezip rebuild failed to rename: %w", err)
	}
	return nil
}

// keep copies the members of the named archive that are not in replaced into w,
// and returns the permissions of the archive.
func keep(w *zip.Writer, name string, replaced *strset.Set) (os.FileMode, error) {
	mode := os.FileMode(helper.WriteWriteRead)
	r, err := zip.OpenReader(name)
	if errors.Is(err, os.ErrNotExist) {
		return mode, nil
	}
	if err != nil {
		return mode, fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()
	if inf, err := os.Stat(name); err == nil {
		mode = inf.Mode().Perm()
	}
	for _, f := range r.File {
		if replaced.Has(f.Name) {
			continue
		}
		if err := w.Copy(f); err != nil {
			return mode, fmt.Errorf("failed to copy %q: %w", f.Name, err)
		}
	}
	if err := w.SetComment(r.Comment); err != nil {
		return mode, fmt.Errorf("failed to set comment: %w", err)
	}
	return mode, nil
}

// add compresses the members into w. When a name repeats the last member wins.
func add(w *zip.Writer, p Policy, members []Member) error {
	buf := make([]byte, bufSize)
	now := time.Now()
	last := make(map[string]int, len(members))
	for i, m := range members {
		name, err := CleanName(m.Name)
		if err != nil {
			return err
		}
		last[name] = i
	}
	for i, m := range members {
		name, _ := CleanName(m.Name)
		if last[name] != i {
			continue
		}
		if m.Open == nil {
			return fmt.Errorf("%w: %s", ErrNoOpen, name)
		}
		dst, err := w.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   p.Method(name),
			Modified: now,
		})
		if err != nil {
			return fmt.Errorf("failed to create %q: %w", name, err)
		}
		src, err := m.Open()
		if err != nil {
			return fmt.Errorf("failed to open %q: %w", name, err)
		}
		_, err = io.CopyBuffer(dst, src, buf)
		src.Close()
		if err != nil {
			return fmt.Errorf("failed to copy %q: %w", name, err)
		}
	}
	return nil
}

func memberNames(members []Member) (*strset.Set, error) {
	set := strset.New()
	for _, m := range members {
		name, err := CleanName(m.Name)
		if err != nil {
			return nil, err
		}
		set.Add(name)
	}
	return set, nil
}
