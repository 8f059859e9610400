package runner

import (
	"bytes"
	"sync"

	"golang.org/x/text/encoding"
)

// maxLine is the longest partial line held before it is emitted unterminated.
const maxLine = 1 << 20

// lineWriter splits a byte stream into lines for a LineFunc.
type lineWriter struct {
	mu  sync.Mutex
	fn  LineFunc
	dec *encoding.Decoder
	buf []byte
}

func newLineWriter(fn LineFunc, enc encoding.Encoding) *lineWriter {
	w := &lineWriter{fn: fn}
	if enc != nil {
		w.dec = enc.NewDecoder()
	}
	return w
}

// Write implements io.Writer and never fails, so the program is never
// blocked on a full pipe.
func (w *lineWriter) Write(p []byte) (int, error) {
	if w.fn == nil {
		return len(p), nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLine {
		w.emit(w.buf)
		w.buf = nil
	}
	if len(w.buf) == 0 {
		w.buf = nil
	}
	return len(p), nil
}

// Flush delivers a final line that had no terminating newline.
func (w *lineWriter) Flush() {
	if w.fn == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
	}
	w.buf = nil
}

func (w *lineWriter) emit(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if w.dec != nil {
		if b, err := w.dec.Bytes(line); err == nil {
			line = b
		}
	}
	w.fn(string(line))
}
