// Package entry is the data model shared by every archive backend.
//
// An Entry is one logical member of an archive. It never holds an open handle
// to the archive; the bytes are either already materialized, produced by a
// stream opener, or fetched on demand by a deferred extraction step.
package entry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
)

// SourceKind identifies how an Entry produces its bytes.
type SourceKind int

const (
	SourceEager    SourceKind = iota // SourceEager bytes were materialized when the entry was created.
	SourceStream                     // SourceStream bytes come from a live stream opened per read.
	SourceDeferred                   // SourceDeferred bytes are produced by an extraction step on each read.
)

func (k SourceKind) String() string {
	switch k {
	case SourceEager:
		return "eager"
	case SourceStream:
		return "stream"
	case SourceDeferred:
		return "deferred"
	}
	return "unknown"
}

// Opener opens a stream over the member content.
// Returning an error that matches fs.ErrNotExist marks the member as absent.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Fetcher produces the member content.
// Returning nil bytes and a nil error means the extraction found nothing,
// while a member of zero bytes must be returned as a non-nil empty slice.
type Fetcher func(ctx context.Context) ([]byte, error)

// ErrNoSource is returned by the zero Entry which has no data source.
var ErrNoSource = errors.New("entry has no data source")

// Entry is one member of an archive. It is immutable once constructed.
type Entry struct {
	path  string
	raw   []byte
	kind  SourceKind
	eager []byte
	open  Opener
	fetch Fetcher
}

// Eager returns an entry whose content is already in memory.
func Eager(path string, raw, b []byte) Entry {
	return Entry{path: path, raw: clone(raw), kind: SourceEager, eager: clone(b)}
}

// Stream returns an entry whose content is read from the stream returned by open.
func Stream(path string, raw []byte, open Opener) Entry {
	return Entry{path: path, raw: clone(raw), kind: SourceStream, open: open}
}

// Deferred returns an entry whose content is produced by fetch.
// The entry does not cache the result, every call to Bytes runs fetch again.
func Deferred(path string, raw []byte, fetch Fetcher) Entry {
	return Entry{path: path, raw: clone(raw), kind: SourceDeferred, fetch: fetch}
}

// Path returns the forward-slash member path inside the archive.
func (e Entry) Path() string {
	return e.path
}

// RawPath returns a copy of the original encoding of the path or nil when
// the backend could not supply one. It is meant for round-tripping only.
func (e Entry) RawPath() []byte {
	return clone(e.raw)
}

// Kind returns the data source kind.
func (e Entry) Kind() SourceKind {
	return e.kind
}

// Bytes reads the member content.
//
// A missing member is not an error, the returned Data is fetched but not found.
// Failures to reach the archive, such as a tool that cannot be launched or an
// archive that cannot be mounted, are returned as errors.
func (e Entry) Bytes(ctx context.Context) (Data, error) {
	switch e.kind {
	case SourceEager:
		if e.path == "" && e.eager == nil {
			return Data{}, ErrNoSource
		}
		return Data{Fetched: true, Found: true, Bytes: clone(e.eager)}, nil
	case SourceStream:
		if e.open == nil {
			return Data{}, ErrNoSource
		}
		r, err := e.open(ctx)
		if errors.Is(err, fs.ErrNotExist) {
			return Data{Fetched: true}, nil
		}
		if err != nil {
			return Data{}, fmt.Errorf("entry %s open %w", e.path, err)
		}
		defer r.Close()
		b, err := io.ReadAll(r)
		if err != nil {
			return Data{}, fmt.Errorf("entry %s read %w", e.path, err)
		}
		return Data{Fetched: true, Found: true, Bytes: b}, nil
	case SourceDeferred:
		if e.fetch == nil {
			return Data{}, ErrNoSource
		}
		b, err := e.fetch(ctx)
		if err != nil {
			return Data{}, fmt.Errorf("entry %s fetch %w", e.path, err)
		}
		return Data{Fetched: true, Found: b != nil, Bytes: b}, nil
	}
	return Data{}, ErrNoSource
}

// Open returns a reader over the member content.
// Stream entries open the backend stream directly, the other kinds read the
// whole content first. An absent member returns an error matching fs.ErrNotExist.
func (e Entry) Open(ctx context.Context) (io.ReadCloser, error) {
	if e.kind == SourceStream && e.open != nil {
		return e.open(ctx)
	}
	d, err := e.Bytes(ctx)
	if err != nil {
		return nil, err
	}
	if !d.Found {
		return nil, &fs.PathError{Op: "open", Path: e.path, Err: fs.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(d.Bytes)), nil
}

// Guard returns a copy of the entry whose fetcher runs between acquire and
// the release function it returns. For a stream, release runs once the
// opened stream is closed.
func Guard(e Entry, acquire func() (release func())) Entry {
	if acquire == nil {
		return e
	}
	if open := e.open; open != nil {
		e.open = func(ctx context.Context) (io.ReadCloser, error) {
			release := acquire()
			rc, err := open(ctx)
			if err != nil {
				release()
				return nil, err
			}
			return &guarded{ReadCloser: rc, release: release}, nil
		}
	}
	if fetch := e.fetch; fetch != nil {
		e.fetch = func(ctx context.Context) ([]byte, error) {
			release := acquire()
			defer release()
			return fetch(ctx)
		}
	}
	return e
}

type guarded struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (g *guarded) Close() error {
	err := g.ReadCloser.Close()
	g.once.Do(g.release)
	return err
}

// Data is the result of reading an entry.
// The zero value means the content has not been fetched.
// A member of zero bytes is Found and Empty, a missing member is only Empty.
type Data struct {
	Fetched bool   // Fetched is true once the data source was read.
	Found   bool   // Found is true when the member exists in the archive.
	Bytes   []byte // Bytes is the member content.
}

// Empty reports whether the data was fetched but holds nothing,
// either because the member is missing or because it has no content.
func (d Data) Empty() bool {
	return d.Fetched && len(d.Bytes) == 0
}

// Len returns the number of bytes.
func (d Data) Len() int {
	return len(d.Bytes)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return bytes.Clone(b)
}
