// Package rar lists, extracts and adds members of RAR archives, credited to
// Alexander Roshal, using the [rar program].
//
// The program is resolved once from an install folder and is never looked up
// in the PATH. Listings are parsed from the program's line output, which does
// not flag directories, so they pass through entry.Elide before filtering.
//
// [rar program]: https://www.rarlab.com/download.htm
package rar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Defacto2/archivist/command"
	"github.com/Defacto2/archivist/entry"
	"github.com/Defacto2/archivist/rezip"
	"github.com/Defacto2/archivist/runner"
	"github.com/Defacto2/archivist/stage"
	"go.uber.org/zap"
)

var ErrProg = errors.New("rar program failed")

// Program commands and switches.
const (
	listBrief     = "lb"  // lb list bare file names
	listTechnical = "vt"  // vt list technical details
	eXtract       = "x"   // x extract files with full path
	add           = "a"   // a add files to archive
	noPaths       = "-ep" // -ep exclude paths from names
	noComments    = "-c-" // -c- do not display comments
	overwrite     = "-o+" // -o+ overwrite existing files
	yes           = "-y"  // -y assume yes to all queries
	outputPath    = "-op" // -op output path
	archivePath   = "-ap" // -ap set path inside archive
	storeOnly     = "-m0" // -m0 store without compression
)

// Exit codes of the rar program.
const (
	exitSuccess = 0
	exitWarning = 1
)

// Timeouts bound each kind of program run. Zero values are unbounded.
type Timeouts struct {
	List    time.Duration
	Extract time.Duration
	Add     time.Duration
}

// Backend drives the rar program. Every call spawns and waits for its own
// process, no state is kept between calls.
type Backend struct {
	tool     string
	toolErr  error
	runner   *runner.Runner
	scratch  string
	logger   *zap.Logger
	timeouts Timeouts
}

// Option configures a Backend.
type Option func(*Backend)

// WithRunner sets the process runner.
func WithRunner(r *runner.Runner) Option {
	return func(b *Backend) {
		if r != nil {
			b.runner = r
		}
	}
}

// WithScratch sets the root directory for staging and extraction.
func WithScratch(dir string) Option {
	return func(b *Backend) {
		b.scratch = dir
	}
}

// WithLogger sets the logger that receives the program output of add calls.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTimeouts sets the time limits of the program runs.
func WithTimeouts(t Timeouts) Option {
	return func(b *Backend) {
		b.timeouts = t
	}
}

// New returns a backend for the rar program in the install folder.
// A program that cannot be resolved is reported by every call
// with command.ErrToolNotAvailable.
func New(folder string, opts ...Option) *Backend {
	b := &Backend{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	if b.runner == nil {
		b.runner = runner.New(runner.WithLogger(b.logger))
	}
	b.tool, b.toolErr = command.Resolve(folder)
	return b
}

// Tool returns the path of the rar program.
func (b *Backend) Tool() (string, error) {
	if b.toolErr != nil {
		return "", fmt.Errorf("rar %w", b.toolErr)
	}
	return b.tool, nil
}

// List returns the members of the archive accepted by f, in the order the
// program printed them. Directory records are removed by entry.Elide.
// Each entry extracts its member when read.
func (b *Backend) List(ctx context.Context, archive string, f entry.Filter) ([]entry.Entry, error) {
	names, err := b.names(ctx, archive)
	if err != nil {
		return nil, err
	}
	if f == nil {
		f = entry.AcceptAll
	}
	entries := make([]entry.Entry, 0, len(names))
	for _, name := range entry.Elide(names) {
		if !f.Accept(name, nil) {
			continue
		}
		entries = append(entries, b.deferred(archive, name))
	}
	return entries, nil
}

// names runs the brief listing and returns the cleaned output lines.
func (b *Backend) names(ctx context.Context, archive string) ([]string, error) {
	tool, err := b.Tool()
	if err != nil {
		return nil, err
	}
	args := []string{tool, listBrief, noComments, archive}
	echo := strings.Join(args, " ")
	var (
		mu    sync.Mutex
		names []string
	)
	stderr := tail{}
	status, err := b.runner.Run(ctx, runner.Command{
		Args:    args,
		Timeout: b.timeouts.List,
		OnStdout: func(line string) {
			if strings.TrimSpace(line) == "" || strings.TrimSpace(line) == echo {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			names = append(names, strings.ReplaceAll(line, "\\", "/"))
		},
		OnStderr: stderr.add,
	})
	if err != nil {
		return nil, fmt.Errorf("rar list %w", err)
	}
	if status.Code != exitSuccess && status.Code != exitWarning {
		return nil, stderr.err(tool, status.Code)
	}
	return names, nil
}

// Extract returns the named member as a deferred entry. The program runs
// each time the entry is read. A member the program does not produce yields
// an entry with no data.
func (b *Backend) Extract(ctx context.Context, archive, name string) (entry.Entry, error) {
	if _, err := b.Tool(); err != nil {
		return entry.Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return entry.Entry{}, err
	}
	return b.deferred(archive, strings.ReplaceAll(name, "\\", "/")), nil
}

func (b *Backend) deferred(archive, name string) entry.Entry {
	return entry.Deferred(name, nil, func(ctx context.Context) ([]byte, error) {
		return b.fetch(ctx, archive, name)
	})
}

// fetch extracts one member to a new staging directory and reads it.
func (b *Backend) fetch(ctx context.Context, archive, name string) (_ []byte, err error) {
	tool, err := b.Tool()
	if err != nil {
		return nil, err
	}
	dir, err := stage.New(b.scratch)
	if err != nil {
		return nil, fmt.Errorf("rar extract %w", err)
	}
	defer func() {
		err = errors.Join(err, dir.Close())
	}()
	args := []string{
		tool, eXtract, noPaths, noComments, overwrite, yes,
		archive, filepath.FromSlash(name),
		outputPath + dir.Path() + string(filepath.Separator),
	}
	stderr := tail{}
	status, err := b.runner.Run(ctx, runner.Command{
		Args:     args,
		Timeout:  b.timeouts.Extract,
		OnStderr: stderr.add,
	})
	if err != nil {
		return nil, fmt.Errorf("rar extract %w", err)
	}
	found := locate(dir.Path(), name)
	if found == "" {
		b.logger.Debug("member was not extracted",
			zap.String("archive", archive), zap.String("member", name),
			zap.Int("code", status.Code), zap.Strings("stderr", stderr.lines))
		return nil, nil
	}
	p, err := os.ReadFile(found)
	if err != nil {
		return nil, fmt.Errorf("rar extract %w: %w", stage.ErrStaging, err)
	}
	if p == nil {
		p = []byte{}
	}
	return p, nil
}

// locate returns the extracted file of the named member, or the first
// regular file in dir when the program renamed it.
func locate(dir, name string) string {
	want := filepath.Join(dir, path.Base(name))
	if inf, err := os.Stat(want); err == nil && inf.Mode().IsRegular() {
		return want
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, f := range files {
		if f.Type().IsRegular() {
			return filepath.Join(dir, f.Name())
		}
	}
	return ""
}

// Add stages the input under the base filename of name and adds it to the
// archive, replacing a member of the same name. Any directories of name are
// set as the path inside the archive. The policy decides whether the member
// is stored without compression. The staging directory is always removed.
func (b *Backend) Add(ctx context.Context, archive, name string, in entry.Input, p rezip.Policy) (err error) {
	tool, err := b.Tool()
	if err != nil {
		return err
	}
	clean, err := rezip.CleanName(name)
	if err != nil {
		return fmt.Errorf("rar add %w", err)
	}
	dir, err := stage.New(b.scratch)
	if err != nil {
		return fmt.Errorf("rar add %w", err)
	}
	defer func() {
		err = errors.Join(err, dir.Close())
	}()
	staged, err := dir.Put(clean, in)
	if err != nil {
		return fmt.Errorf("rar add %w", err)
	}
	args := []string{tool, add, noPaths, overwrite, yes}
	if d := path.Dir(clean); d != "." {
		args = append(args, archivePath+filepath.FromSlash(d))
	}
	if p.Store(clean) {
		args = append(args, storeOnly)
	}
	args = append(args, archive, staged)

	log := b.logger.With(zap.String("archive", archive), zap.String("member", clean))
	stderr := tail{}
	status, err := b.runner.Run(ctx, runner.Command{
		Args:     args,
		Timeout:  b.timeouts.Add,
		OnStdout: func(line string) { log.Info(line) },
		OnStderr: func(line string) {
			log.Warn(line)
			stderr.add(line)
		},
	})
	if err != nil {
		return fmt.Errorf("rar add %w", err)
	}
	if status.Code != exitSuccess && status.Code != exitWarning {
		return fmt.Errorf("rar add %w", stderr.err(tool, status.Code))
	}
	return nil
}

// tail keeps the last lines of the program error output.
type tail struct {
	mu    sync.Mutex
	lines []string
}

func (t *tail) add(line string) {
	const keep = 10
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > keep {
		t.lines = t.lines[len(t.lines)-keep:]
	}
}

func (t *tail) err(prog string, code int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == 0 {
		return fmt.Errorf("%w: %s: exit code %d", ErrProg, prog, code)
	}
	return fmt.Errorf("%w: %s: exit code %d: %q", ErrProg, prog, code, strings.Join(t.lines, "; "))
}
