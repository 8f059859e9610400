// Package stage creates uniquely named scratch directories for files that are
// handed to archive tools, and guarantees their removal.
package stage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Defacto2/archivist/entry"
	"github.com/Defacto2/helper"
	"github.com/google/uuid"
)

const (
	Prefix  = "archivist-" // Prefix is the name prefix of every staging directory.
	dirMode = 0o755
)

var ErrStaging = errors.New("staging failed")

// Dir is a staging directory. It must be removed with Close on every exit path.
type Dir struct {
	path string
}

// New creates a staging directory inside root.
// An empty root uses the operating system temporary directory.
func New(root string) (*Dir, error) {
	if root == "" {
		root = os.TempDir()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("stage new %w: %w", ErrStaging, err)
	}
	name := filepath.Join(abs, Prefix+uuid.NewString())
	if err := os.MkdirAll(name, dirMode); err != nil {
		return nil, fmt.Errorf("stage new %w: %w", ErrStaging, err)
	}
	return &Dir{path: name}, nil
}

// Path returns the absolute path of the staging directory.
func (d *Dir) Path() string {
	return d.path
}

// Put writes the input to a file in the staging directory.
// Only the base filename of name is kept, any directories are dropped.
// The path of the staged file is returned.
func (d *Dir) Put(name string, in entry.Input) (string, error) {
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "", fmt.Errorf("stage put %w: invalid name %q", ErrStaging, name)
	}
	dst := filepath.Join(d.path, base)
	if in.File != "" {
		if _, err := helper.Duplicate(in.File, dst); err != nil {
			return "", fmt.Errorf("stage put %w: %w", ErrStaging, err)
		}
		return dst, nil
	}
	src, err := in.Open()
	if err != nil {
		return "", fmt.Errorf("stage put %w: %w", ErrStaging, err)
	}
	defer src.Close()
	file, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, helper.WriteWriteRead)
	if err != nil {
		return "", fmt.Errorf("stage put %w: %w", ErrStaging, err)
	}
	if _, err := io.Copy(file, src); err != nil {
		file.Close()
		return "", fmt.Errorf("stage put %w: %w", ErrStaging, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("stage put %w: %w", ErrStaging, err)
	}
	return dst, nil
}

// Close removes the staging directory and everything in it.
// It is safe to call more than once.
func (d *Dir) Close() error {
	if d == nil || d.path == "" {
		return nil
	}
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("stage close %w: %w", ErrStaging, err)
	}
	return nil
}
