package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Defacto2/archivist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAll(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var errOut bytes.Buffer
	c := NewForTesting(&bytes.Buffer{}, &errOut)
	items := []archivist.BatchItem{
		{Path: "one.txt", Data: archivist.Data{Fetched: true, Found: true, Bytes: []byte("one")}},
		{Path: "empty.txt", Data: archivist.Data{Fetched: true, Found: true}},
		{Path: "gone.txt", Data: archivist.Data{Fetched: true}},
		{Path: "bad.txt", Err: errors.New("read failure")},
	}
	assert.Equal(t, 2, c.saveAll(dir, items))

	b, err := os.ReadFile(filepath.Join(dir, "one.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(b))
	b, err = os.ReadFile(filepath.Join(dir, "empty.txt"))
	require.NoError(t, err)
	assert.Empty(t, b)
	_, err = os.Stat(filepath.Join(dir, "gone.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)

	assert.Contains(t, errOut.String(), "Skipped gone.txt: "+ErrMissing.Error())
	assert.Contains(t, errOut.String(), "Skipped bad.txt: read failure")
}
