package archivist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Defacto2/archivist/config"
	"github.com/Defacto2/archivist/entry"
	"github.com/Defacto2/archivist/mount"
	"github.com/Defacto2/archivist/rar"
	"github.com/Defacto2/archivist/rezip"
	"go.uber.org/zap"
)

// Backend is the contract every archive family implements.
type Backend interface {
	// List returns the file members accepted by f, without directory records.
	List(ctx context.Context, path string, f entry.Filter) ([]entry.Entry, error)
	// Extract returns the named member. A missing member is an entry with empty data.
	Extract(ctx context.Context, path, name string) (entry.Entry, error)
	// Add writes the input as the named member, replacing any member of that name.
	Add(ctx context.Context, path, name string, in entry.Input, p rezip.Policy) error
}

var (
	_ Backend = (*mount.Backend)(nil)
	_ Backend = (*rar.Backend)(nil)
)

// Facade dispatches archive operations to the backend of the archive family.
// It is safe for concurrent use. Operations on the same archive are
// coordinated so an add never overlaps a list or an extract.
type Facade struct {
	zip     Backend
	rar     Backend
	policy  rezip.Policy
	workers int
	locks   *Locks
	logger  *zap.Logger
}

// Option configures a Facade.
type Option func(*Facade)

// WithLogger sets the logger of the facade and of the backends it creates.
func WithLogger(l *zap.Logger) Option {
	return func(f *Facade) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithBackend replaces the backend of the family.
func WithBackend(fam Family, b Backend) Option {
	return func(f *Facade) {
		switch fam {
		case FamilyZip:
			f.zip = b
		case FamilyRar:
			f.rar = b
		case FamilyUnknown:
		}
	}
}

// New returns a facade configured by cfg. A nil cfg uses config.DefaultConfig.
func New(cfg *config.Config, opts ...Option) (*Facade, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	p, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("archivist new %w", err)
	}
	f := &Facade{
		policy:  p,
		workers: max(cfg.Workers, 1),
		locks:   NewLocks(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.zip == nil {
		f.zip = mount.New(mount.Scratch(cfg.ScratchDir), mount.Logger(f.logger))
	}
	if f.rar == nil {
		f.rar = rar.New(cfg.ToolFolder,
			rar.WithScratch(cfg.ScratchDir),
			rar.WithTimeouts(cfg.Timeouts()),
			rar.WithLogger(f.logger))
	}
	return f, nil
}

// Policy returns the write policy used by Add.
func (f *Facade) Policy() rezip.Policy {
	return f.policy
}

func (f *Facade) backend(h Handle) (Backend, error) {
	switch h.Family {
	case FamilyZip:
		return f.zip, nil
	case FamilyRar:
		return f.rar, nil
	case FamilyUnknown:
	}
	return nil, fmt.Errorf("archivist %w: %s", ErrUnsupported, h.Path)
}

func (f *Facade) guard(h Handle) func() func() {
	return func() func() {
		return f.locks.RLock(h.Path)
	}
}

// List returns the file members of the archive accepted by filter, which may be nil.
// Reading an entry later re-opens the archive under the same coordination.
func (f *Facade) List(ctx context.Context, h Handle, filter Filter) ([]Entry, error) {
	b, err := f.backend(h)
	if err != nil {
		return nil, err
	}
	release := f.locks.RLock(h.Path)
	entries, err := b.List(ctx, h.Path, filter)
	release()
	if err != nil {
		return nil, err
	}
	f.logger.Debug("list",
		zap.String("archive", h.Path),
		zap.Stringer("family", h.Family),
		zap.Int("entries", len(entries)))
	for i := range entries {
		entries[i] = entry.Guard(entries[i], f.guard(h))
	}
	return entries, nil
}

// ExtractOne returns the named member. A member that is not in the archive
// is returned as an entry whose data is fetched but empty.
func (f *Facade) ExtractOne(ctx context.Context, h Handle, name string) (Entry, error) {
	b, err := f.backend(h)
	if err != nil {
		return Entry{}, err
	}
	release := f.locks.RLock(h.Path)
	e, err := b.Extract(ctx, h.Path, name)
	release()
	if err != nil {
		return Entry{}, err
	}
	return entry.Guard(e, f.guard(h)), nil
}

// ExtractAll returns every member accepted by filter, listed and then
// extracted one by one.
func (f *Facade) ExtractAll(ctx context.Context, h Handle, filter Filter) ([]Entry, error) {
	list, err := f.List(ctx, h, filter)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(list))
	for _, l := range list {
		e, err := f.ExtractOne(ctx, h, l.Path())
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Add writes the input to the archive as the named member, replacing
// any member of that name. Zip-family archives that do not exist are created.
func (f *Facade) Add(ctx context.Context, h Handle, name string, in Input) error {
	b, err := f.backend(h)
	if err != nil {
		return err
	}
	release := f.locks.Lock(h.Path)
	defer release()
	if err := b.Add(ctx, h.Path, name, in, f.policy); err != nil {
		return err
	}
	f.logger.Debug("add",
		zap.String("archive", h.Path),
		zap.Stringer("family", h.Family),
		zap.String("member", name))
	return nil
}

// Create makes a new, empty zip-family archive and returns its handle.
// RAR-family archives cannot be created empty, the first Add creates them.
func (f *Facade) Create(name string) (Handle, error) {
	h, err := Open(name)
	if err != nil {
		return Handle{}, err
	}
	if h.Family != FamilyZip {
		return Handle{}, fmt.Errorf("archivist create %w: %s", ErrUnsupported, h.Path)
	}
	release := f.locks.Lock(h.Path)
	defer release()
	if err := rezip.Create(h.Path); err != nil {
		return Handle{}, err
	}
	return h, nil
}

// Exists reports whether the archive file of the handle exists.
func Exists(h Handle) bool {
	_, err := os.Stat(h.Path)
	return !errors.Is(err, fs.ErrNotExist)
}
