package rezip

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	sigEnd       = 0x06054b50 // end of central directory record
	sigLocator64 = 0x07064b50 // zip64 end of central directory locator
	sigCentral   = 0x02014b50 // central directory file header

	lenEnd       = 22
	lenLocator64 = 20
	lenCentral   = 46
	maxComment   = 0xffff
	maxRecords   = 0xffff
	max32        = 0xffffffff
)

// directory locates the central directory of an archive.
type directory struct {
	offset  int64 // offset is the position of the first central directory record.
	size    int64
	records int
	end     int64 // end is the position of the end of central directory record.
	comment []byte
}

// Append grows the named archive in place. The new members are written over
// the central directory, which is then rewritten after them. Records of
// existing members that share a name with a new member are dropped, and their
// compressed data is left unreferenced.
//
// Archives with zip64 records or an unexpected layout return ErrZip64 or
// ErrCorrupt before the file is modified.
func Append(name string, p Policy, members ...Member) error {
	names, err := memberNames(members)
	if err != nil {
		return err
	}
	file, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("rezip append failed to open file: %w", err)
	}
	defer file.Close()
	inf, err := file.Stat()
	if err != nil {
		return fmt.Errorf("rezip append failed to stat file: %w", err)
	}
	size := inf.Size()
	dir, err := findEnd(file, size)
	if err != nil {
		return fmt.Errorf("rezip append %w", err)
	}
	tail := make([]byte, size-dir.offset)
	if _, err := file.ReadAt(tail, dir.offset); err != nil {
		return fmt.Errorf("rezip append %w: %w", ErrCorrupt, err)
	}
	recs, err := records(tail[:dir.size], dir.records)
	if err != nil {
		return fmt.Errorf("rezip append %w", err)
	}
	kept := make([][]byte, 0, len(recs))
	for _, rec := range recs {
		if names.Has(recordName(rec)) {
			continue
		}
		kept = append(kept, rec)
	}

	restore := func(cause error) error {
		if _, err := file.WriteAt(tail, dir.offset); err != nil {
			return errors.Join(cause, err)
		}
		if err := file.Truncate(size); err != nil {
			return errors.Join(cause, err)
		}
		return cause
	}

	ow := io.NewOffsetWriter(file, dir.offset)
	w := zip.NewWriter(ow)
	w.SetOffset(dir.offset)
	if err := add(w, p, members); err != nil {
		return restore(fmt.Errorf("rezip append %w", err))
	}
	if err := w.Close(); err != nil {
		return restore(fmt.Errorf("rezip append failed to close writer: %w", err))
	}
	written, err := ow.Seek(0, io.SeekCurrent)
	if err != nil {
		return restore(fmt.Errorf("rezip append %w", err))
	}
	added, err := findEnd(file, dir.offset+written)
	if err != nil {
		return restore(fmt.Errorf("rezip append new members %w", err))
	}
	cd := make([]byte, added.size)
	if _, err := file.ReadAt(cd, added.offset); err != nil {
		return restore(fmt.Errorf("rezip append %w: %w", ErrCorrupt, err))
	}
	fresh, err := records(cd, added.records)
	if err != nil {
		return restore(fmt.Errorf("rezip append new members %w", err))
	}
	all := append(kept, fresh...)
	if len(all) > maxRecords {
		return restore(fmt.Errorf("rezip append %w: %d members", ErrZip64, len(all)))
	}

	var buf bytes.Buffer
	for _, rec := range all {
		buf.Write(rec)
	}
	cdSize := buf.Len()
	buf.Write(endRecord(len(all), cdSize, added.offset, dir.comment))
	if _, err := file.WriteAt(buf.Bytes(), added.offset); err != nil {
		return restore(fmt.Errorf("rezip append failed to write directory: %w", err))
	}
	if err := file.Truncate(added.offset + int64(buf.Len())); err != nil {
		return fmt.Errorf("rezip append failed to truncate: %w", err)
	}
	return nil
}

// findEnd reads the end of central directory record of an archive of size bytes.
func findEnd(r io.ReaderAt, size int64) (directory, error) {
	if size < lenEnd {
		return directory{}, fmt.Errorf("%w: too small", ErrCorrupt)
	}
	n := min(size, lenEnd+maxComment)
	buf := make([]byte, n)
	if _, err := r.ReadAt(buf, size-n); err != nil && !errors.Is(err, io.EOF) {
		return directory{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	le := binary.LittleEndian
	for i := len(buf) - lenEnd; i >= 0; i-- {
		if le.Uint32(buf[i:]) != sigEnd {
			continue
		}
		rec := buf[i:]
		clen := int(le.Uint16(rec[20:]))
		if i+lenEnd+clen != len(buf) {
			continue
		}
		d := directory{
			records: int(le.Uint16(rec[10:])),
			size:    int64(le.Uint32(rec[12:])),
			offset:  int64(le.Uint32(rec[16:])),
			end:     size - n + int64(i),
			comment: bytes.Clone(rec[lenEnd : lenEnd+clen]),
		}
		if d.records == maxRecords || d.size == max32 || d.offset == max32 {
			return d, ErrZip64
		}
		if d.end >= lenLocator64 {
			loc := make([]byte, 4)
			if _, err := r.ReadAt(loc, d.end-lenLocator64); err == nil && le.Uint32(loc) == sigLocator64 {
				return d, ErrZip64
			}
		}
		if d.offset+d.size != d.end {
			return d, fmt.Errorf("%w: directory is not followed by its end record", ErrCorrupt)
		}
		return d, nil
	}
	return directory{}, fmt.Errorf("%w: no end record", ErrCorrupt)
}

// records splits a central directory into its file header records.
func records(cd []byte, want int) ([][]byte, error) {
	le := binary.LittleEndian
	out := make([][]byte, 0, want)
	for len(cd) > 0 {
		if len(cd) < lenCentral || le.Uint32(cd) != sigCentral {
			return nil, fmt.Errorf("%w: bad record", ErrCorrupt)
		}
		n := lenCentral + int(le.Uint16(cd[28:])) + int(le.Uint16(cd[30:])) + int(le.Uint16(cd[32:]))
		if n > len(cd) {
			return nil, fmt.Errorf("%w: short record", ErrCorrupt)
		}
		out = append(out, cd[:n:n])
		cd = cd[n:]
	}
	if len(out) != want {
		return nil, fmt.Errorf("%w: %d records, want %d", ErrCorrupt, len(out), want)
	}
	return out, nil
}

func recordName(rec []byte) string {
	n := int(binary.LittleEndian.Uint16(rec[28:]))
	return string(rec[lenCentral : lenCentral+n])
}

func endRecord(count, size int, offset int64, comment []byte) []byte {
	b := make([]byte, lenEnd, lenEnd+len(comment))
	le := binary.LittleEndian
	le.PutUint32(b[0:], sigEnd)
	le.PutUint16(b[8:], uint16(count))
	le.PutUint16(b[10:], uint16(count))
	le.PutUint32(b[12:], uint32(size))
	le.PutUint32(b[16:], uint32(offset))
	le.PutUint16(b[20:], uint16(len(comment)))
	return append(b, comment...)
}
