// Package mount treats a zip-family archive as a virtual file tree.
//
// A Mount reads members straight from the archive and collects writes in a
// staging layer. Commit folds the staged files back into the archive with the
// rezip package, so nothing is written to the archive until then.
package mount

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Defacto2/archivist/rezip"
	"github.com/Defacto2/archivist/stage"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrMount  = errors.New("archive could not be mounted")
	ErrClosed = errors.New("mount is closed")
)

// Node is a regular file member of a mounted archive.
type Node struct {
	Name string // Name is the decoded, forward slash path of the member.
	Raw  []byte // Raw is the original name when it was not encoded as UTF-8.
	file *zip.File
}

// Size returns the uncompressed size of the member.
func (n Node) Size() int64 {
	return int64(n.file.UncompressedSize64)
}

// Mount is an archive opened as a file tree. It is not safe for concurrent use.
type Mount struct {
	path    string
	reader  *zip.ReadCloser
	nodes   []Node
	index   map[string]int
	staging billy.Filesystem
	scratch *stage.Dir
	staged  bool
	logger  *zap.Logger
	closed  bool
}

type options struct {
	staging billy.Filesystem
	scratch string
	missing bool
	logger  *zap.Logger
}

// Option configures a Mount.
type Option func(*options)

// WithStaging collects writes in fsys instead of a scratch directory.
func WithStaging(fsys billy.Filesystem) Option {
	return func(o *options) {
		o.staging = fsys
	}
}

// WithMemory collects writes in memory.
func WithMemory() Option {
	return func(o *options) {
		o.staging = memfs.New()
	}
}

// WithScratch sets the root of the scratch directory used for staged writes.
func WithScratch(dir string) Option {
	return func(o *options) {
		o.scratch = dir
	}
}

// AllowMissing mounts an archive that does not exist yet as an empty tree.
// Commit then creates it.
func AllowMissing() Option {
	return func(o *options) {
		o.missing = true
	}
}

func withLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Open mounts the named archive. The archive is read with archive/zip, so
// members compressed with methods other than Store and Deflate cannot be read.
func Open(name string, opts ...Option) (*Mount, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	m := &Mount{
		path:   name,
		index:  map[string]int{},
		logger: o.logger,
	}
	r, err := zip.OpenReader(name)
	switch {
	case err == nil:
		m.reader = r
		m.load()
	case o.missing && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("%w: %s: %w", ErrMount, name, err)
	}
	if o.staging != nil {
		m.staging = o.staging
		return m, nil
	}
	dir, err := stage.New(o.scratch)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("%w: %w", ErrMount, err)
	}
	m.scratch = dir
	m.staging = osfs.New(dir.Path())
	return m, nil
}

// load indexes the regular file members of the archive.
func (m *Mount) load() {
	dec := charmap.CodePage437.NewDecoder()
	for _, f := range m.reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		node := Node{Name: f.Name, file: f}
		if f.NonUTF8 && !utf8.ValidString(f.Name) {
			node.Raw = []byte(f.Name)
			if s, err := dec.String(f.Name); err == nil {
				node.Name = s
			}
		}
		name, err := rezip.CleanName(node.Name)
		if err != nil {
			m.logger.Debug("skipped unsafe member name",
				zap.String("archive", m.path), zap.ByteString("name", []byte(f.Name)))
			continue
		}
		node.Name = name
		if i, ok := m.index[name]; ok {
			m.nodes[i] = node
			continue
		}
		m.index[name] = len(m.nodes)
		m.nodes = append(m.nodes, node)
	}
}

// Path returns the archive location.
func (m *Mount) Path() string {
	return m.path
}

// Walk calls fn for every regular file member in central directory order.
// Directories are never visited. Staged writes are not included.
func (m *Mount) Walk(fn func(Node) error) error {
	if m.closed {
		return ErrClosed
	}
	for _, n := range m.nodes {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// Stat returns the member node of the named path.
func (m *Mount) Stat(name string) (Node, bool) {
	clean, err := rezip.CleanName(name)
	if err != nil {
		return Node{}, false
	}
	i, ok := m.index[clean]
	if !ok {
		return Node{}, false
	}
	return m.nodes[i], true
}

// Open returns a reader for the named member. A staged write of the same
// name takes precedence over the archive. A missing member returns an error
// wrapping fs.ErrNotExist.
func (m *Mount) Open(name string) (io.ReadCloser, error) {
	if m.closed {
		return nil, ErrClosed
	}
	clean, err := rezip.CleanName(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	if m.staged {
		if f, err := m.staging.Open(filepath.FromSlash(clean)); err == nil {
			return f, nil
		}
	}
	n, ok := m.Stat(clean)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	rc, err := n.file.Open()
	if err != nil {
		return nil, fmt.Errorf("mount open %q: %w", clean, err)
	}
	return rc, nil
}

// Create returns a writer for the named member in the staging layer.
func (m *Mount) Create(name string) (io.WriteCloser, error) {
	if m.closed {
		return nil, ErrClosed
	}
	clean, err := rezip.CleanName(name)
	if err != nil {
		return nil, fmt.Errorf("mount create %w", err)
	}
	f, err := m.staging.Create(filepath.FromSlash(clean))
	if err != nil {
		return nil, fmt.Errorf("mount create %q: %w", clean, err)
	}
	m.staged = true
	return f, nil
}

// Commit writes the staged files into the archive using the policy, and
// unmounts. The Mount cannot be used afterwards.
func (m *Mount) Commit(p rezip.Policy) (rezip.Mode, error) {
	if m.closed {
		return rezip.ModeRebuild, ErrClosed
	}
	defer m.Close()
	if !m.staged {
		return rezip.ModeRebuild, nil
	}
	var members []rezip.Member
	err := util.Walk(m.staging, ".", func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		name = strings.TrimPrefix(filepath.ToSlash(name), "/")
		members = append(members, rezip.Member{
			Name: name,
			Open: func() (io.ReadCloser, error) {
				return m.staging.Open(filepath.FromSlash(name))
			},
		})
		return nil
	})
	if err != nil {
		return rezip.ModeRebuild, fmt.Errorf("mount commit walk %w", err)
	}
	if m.reader != nil {
		if err := m.reader.Close(); err != nil {
			return rezip.ModeRebuild, fmt.Errorf("mount commit %w", err)
		}
		m.reader = nil
	}
	mode, err := rezip.Write(m.path, p, members...)
	if err != nil {
		return mode, fmt.Errorf("mount commit %w", err)
	}
	m.logger.Debug("archive committed",
		zap.String("archive", m.path), zap.Int("members", len(members)), zap.Stringer("mode", mode))
	return mode, nil
}

// Close unmounts the archive and discards any staged writes.
func (m *Mount) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var errs []error
	if m.reader != nil {
		errs = append(errs, m.reader.Close())
		m.reader = nil
	}
	if m.scratch != nil {
		errs = append(errs, m.scratch.Close())
	}
	return errors.Join(errs...)
}
