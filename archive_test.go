package archivist_test

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Defacto2/archivist"
	"github.com/Defacto2/archivist/rezip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFamilyExt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want archivist.Family
	}{
		{"a.zip", archivist.FamilyZip},
		{"A.CBZ", archivist.FamilyZip},
		{"book.epub", archivist.FamilyZip},
		{"app.jar", archivist.FamilyZip},
		{"a.rar", archivist.FamilyRar},
		{"comic.CBR", archivist.FamilyRar},
		{"a.7z", archivist.FamilyUnknown},
		{"zip", archivist.FamilyUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, archivist.FamilyExt(tt.name), tt.name)
	}
	assert.Equal(t, "zip", archivist.FamilyZip.String())
	assert.Equal(t, "rar", archivist.FamilyRar.String())
	assert.Equal(t, "unknown", archivist.FamilyUnknown.String())
}

func TestOpen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	h, err := archivist.Open(filepath.Join(dir, "new.cbz"))
	require.NoError(t, err)
	assert.Equal(t, archivist.FamilyZip, h.Family)
	assert.True(t, filepath.IsAbs(h.Path))
	assert.False(t, archivist.Exists(h))

	name := filepath.Join(dir, "empty.zip")
	require.NoError(t, rezip.Create(name))
	h, err = archivist.Open(name)
	require.NoError(t, err)
	assert.Equal(t, archivist.FamilyZip, h.Family)
	assert.True(t, archivist.Exists(h))

	h, err = archivist.Open(filepath.Join(dir, "new.rar"))
	require.NoError(t, err)
	assert.Equal(t, archivist.FamilyRar, h.Family)

	text := filepath.Join(dir, "notes.bin")
	require.NoError(t, os.WriteFile(text, []byte("plain text, not an archive"), 0o644))
	_, err = archivist.Open(text)
	require.ErrorIs(t, err, archivist.ErrUnsupported)

	_, err = archivist.Open(filepath.Join(dir, "new.7z"))
	require.ErrorIs(t, err, archivist.ErrUnsupported)

	sub := filepath.Join(dir, "folder.zip")
	require.NoError(t, os.Mkdir(sub, 0o755))
	_, err = archivist.Open(sub)
	require.ErrorIs(t, err, archivist.ErrPath)
}

func TestElide(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a/b.txt", "c.txt"}, archivist.Elide([]string{"a", "a/b.txt", "c.txt"}))
	assert.Equal(t, []string{"a.txt", "b.txt"}, archivist.Elide([]string{"a.txt", "b.txt"}))
}

func TestLocks(t *testing.T) {
	t.Parallel()
	l := archivist.NewLocks()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.zip")
	b := filepath.Join(dir, "b.zip")

	r1 := l.RLock(a)
	r2 := l.RLock(a)
	assert.Equal(t, 1, l.Len())
	r1()
	r1()
	r2()
	assert.Zero(t, l.Len())

	// a writer of one archive does not block another archive
	wa := l.Lock(a)
	done := make(chan struct{})
	go func() {
		wb := l.Lock(b)
		wb()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock of a different archive was blocked")
	}

	// a reader of the same archive waits for the writer
	var read atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		release := l.RLock(filepath.Join(dir, ".", "a.zip"))
		read.Store(true)
		release()
	}()
	time.Sleep(50 * time.Millisecond)
	assert.False(t, read.Load())
	wa()
	wg.Wait()
	assert.True(t, read.Load())
	assert.Zero(t, l.Len())
}
