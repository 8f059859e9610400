package entry

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// ErrInput is returned when an Input has no content source.
var ErrInput = errors.New("input has no content")

// Input is the content of a member to add to an archive.
// Exactly one of the sources is used, in the order File, Bytes then Reader.
type Input struct {
	File   string    // File is the path of a file on disk.
	Bytes  []byte    // Bytes is in-memory content.
	Reader io.Reader // Reader is a one-shot stream.

	inMemory bool // set by FromBytes so a nil slice is an empty member
}

// FromBytes returns an Input holding b. A nil b adds an empty member.
func FromBytes(b []byte) Input {
	return Input{Bytes: b, inMemory: true}
}

// FromFile returns an Input that reads the named file.
func FromFile(name string) Input {
	return Input{File: name}
}

// FromReader returns an Input that reads r once.
func FromReader(r io.Reader) Input {
	return Input{Reader: r}
}

// Open returns a reader over the input content.
func (in Input) Open() (io.ReadCloser, error) {
	switch {
	case in.File != "":
		return os.Open(in.File)
	case in.Bytes != nil, in.inMemory:
		return io.NopCloser(bytes.NewReader(in.Bytes)), nil
	case in.Reader != nil:
		if rc, ok := in.Reader.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(in.Reader), nil
	}
	return nil, ErrInput
}
