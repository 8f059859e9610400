package mount

import (
	"context"
	"fmt"
	"io"

	"github.com/Defacto2/archivist/entry"
	"github.com/Defacto2/archivist/rezip"
	"go.uber.org/zap"
)

// Backend lists, extracts and adds members of zip-family archives.
// Every call mounts and unmounts the archive, no handles are kept between calls.
type Backend struct {
	scratch string
	memory  bool
	logger  *zap.Logger
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// Scratch sets the root directory for staged writes.
func Scratch(dir string) BackendOption {
	return func(b *Backend) {
		b.scratch = dir
	}
}

// Memory stages writes in memory instead of a scratch directory.
func Memory() BackendOption {
	return func(b *Backend) {
		b.memory = true
	}
}

// Logger sets the logger of the backend.
func Logger(l *zap.Logger) BackendOption {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// New returns a zip-family backend.
func New(opts ...BackendOption) *Backend {
	b := &Backend{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) options(extra ...Option) []Option {
	opts := []Option{WithScratch(b.scratch), withLogger(b.logger)}
	if b.memory {
		opts = append(opts, WithMemory())
	}
	return append(opts, extra...)
}

// List returns the regular file members of the archive accepted by f.
// Each entry streams its content from a fresh mount when read.
func (b *Backend) List(ctx context.Context, path string, f entry.Filter) ([]entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f == nil {
		f = entry.AcceptAll
	}
	m, err := Open(path, b.options(WithMemory())...)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	var entries []entry.Entry
	err = m.Walk(func(n Node) error {
		if !f.Accept(n.Name, n.Raw) {
			return nil
		}
		entries = append(entries, entry.Stream(n.Name, n.Raw, b.opener(path, n.Name)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mount list %w", err)
	}
	b.logger.Debug("archive listed", zap.String("archive", path), zap.Int("entries", len(entries)))
	if entries == nil {
		entries = []entry.Entry{}
	}
	return entries, nil
}

// Extract returns the named member as a stream entry. The archive is mounted
// once to confirm it is readable. A member that does not exist yields an
// entry with no data.
func (b *Backend) Extract(ctx context.Context, path, name string) (entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return entry.Entry{}, err
	}
	m, err := Open(path, b.options(WithMemory())...)
	if err != nil {
		return entry.Entry{}, err
	}
	var raw []byte
	if n, ok := m.Stat(name); ok {
		raw = n.Raw
		name = n.Name
	}
	if err := m.Close(); err != nil {
		return entry.Entry{}, fmt.Errorf("mount extract %w", err)
	}
	return entry.Stream(name, raw, b.opener(path, name)), nil
}

// opener mounts the archive for one read of the named member.
// Closing the returned stream unmounts the archive.
func (b *Backend) opener(path, name string) entry.Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := Open(path, b.options(WithMemory())...)
		if err != nil {
			return nil, err
		}
		rc, err := m.Open(name)
		if err != nil {
			m.Close()
			return nil, err
		}
		return &unmounter{ReadCloser: rc, m: m}, nil
	}
}

type unmounter struct {
	io.ReadCloser
	m *Mount
}

func (u *unmounter) Close() error {
	err := u.ReadCloser.Close()
	if merr := u.m.Close(); err == nil {
		err = merr
	}
	return err
}

// Add writes the input to the named member, replacing a member of the same
// name, and commits the archive. A missing archive is created.
func (b *Backend) Add(ctx context.Context, path, name string, in entry.Input, p rezip.Policy) error {
	clean, err := rezip.CleanName(name)
	if err != nil {
		return fmt.Errorf("mount add %w", err)
	}
	loc := Location{Archive: path, Member: clean}
	m, err := Open(path, b.options(AllowMissing())...)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := b.write(ctx, m, clean, in); err != nil {
		return fmt.Errorf("mount add %s: %w", loc, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	mode, err := m.Commit(p)
	if err != nil {
		return fmt.Errorf("mount add %s: %w", loc, err)
	}
	b.logger.Info("member added",
		zap.Stringer("location", loc), zap.Stringer("mode", mode), zap.Bool("store", p.Store(clean)))
	return nil
}

func (b *Backend) write(ctx context.Context, m *Mount, name string, in entry.Input) error {
	src, err := in.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := m.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, contextReader{ctx: ctx, r: src}); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// contextReader stops a copy once the context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
