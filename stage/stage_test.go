package stage_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Defacto2/archivist/entry"
	"github.com/Defacto2/archivist/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	a, err := stage.New(root)
	require.NoError(t, err)
	b, err := stage.New(root)
	require.NoError(t, err)
	assert.NotEqual(t, a.Path(), b.Path())
	assert.True(t, filepath.IsAbs(a.Path()))
	assert.True(t, strings.HasPrefix(filepath.Base(a.Path()), stage.Prefix))

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	_, err = os.Stat(a.Path())
	require.ErrorIs(t, err, os.ErrNotExist)
	require.NoError(t, b.Close())

	left, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestNewInvalidRoot(t *testing.T) {
	t.Parallel()
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err := stage.New(file)
	require.ErrorIs(t, err, stage.ErrStaging)
}

func TestPut(t *testing.T) {
	t.Parallel()
	d, err := stage.New(t.TempDir())
	require.NoError(t, err)
	defer d.Close()

	name, err := d.Put("dir/sub/one.txt", entry.FromBytes([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(d.Path(), "one.txt"), name)
	b, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	src := filepath.Join(t.TempDir(), "src.png")
	require.NoError(t, os.WriteFile(src, []byte("png"), 0o644))
	name, err = d.Put("two.png", entry.FromFile(src))
	require.NoError(t, err)
	b, err = os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "png", string(b))

	name, err = d.Put("three.txt", entry.FromReader(strings.NewReader("reader")))
	require.NoError(t, err)
	b, err = os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "reader", string(b))

	_, err = d.Put("", entry.FromBytes([]byte("x")))
	require.ErrorIs(t, err, stage.ErrStaging)
	_, err = d.Put("missing", entry.FromFile(filepath.Join(t.TempDir(), "none")))
	require.ErrorIs(t, err, stage.ErrStaging)
}
