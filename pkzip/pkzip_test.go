package pkzip_test

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Defacto2/archivist/pkzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// archive writes a zip file with one member per method. Members using a
// method other than Store or Deflate are written raw and are not decodable.
func archive(t *testing.T, methods ...uint16) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "methods.zip")
	file, err := os.Create(name)
	require.NoError(t, err)
	defer file.Close()
	w := zip.NewWriter(file)
	for i, m := range methods {
		h := &zip.FileHeader{Name: fmt.Sprintf("file%d.txt", i), Method: m}
		if m == zip.Store || m == zip.Deflate {
			dst, err := w.CreateHeader(h)
			require.NoError(t, err)
			_, err = dst.Write([]byte("content"))
			require.NoError(t, err)
			continue
		}
		h.CompressedSize64, h.UncompressedSize64 = 1, 1
		dst, err := w.CreateRaw(h)
		require.NoError(t, err)
		_, err = dst.Write([]byte{0})
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return name
}

func TestPkzip(t *testing.T) {
	t.Parallel()
	text := filepath.Join(t.TempDir(), "PKZ204EX.TXT")
	require.NoError(t, os.WriteFile(text, []byte("not an archive"), 0o644))
	comps, err := pkzip.Methods(text)
	require.Error(t, err)
	assert.Nil(t, comps)

	modern := archive(t, zip.Store, zip.Deflate)
	comps, err = pkzip.Methods(modern)
	require.NoError(t, err)
	assert.Equal(t, pkzip.Stored, comps[0])
	assert.Equal(t, pkzip.Deflated, comps[1])

	shrunk := archive(t, zip.Store, uint16(pkzip.Shrunk))
	comps, err = pkzip.Methods(shrunk)
	require.NoError(t, err)
	assert.Equal(t, pkzip.Shrunk.String(), comps[1].String())

	imploded := archive(t, zip.Store, uint16(pkzip.Imploded))
	comps, err = pkzip.Methods(imploded)
	require.NoError(t, err)
	assert.Equal(t, "[Stored Imploded]", fmt.Sprint(comps))
	assert.False(t, comps[1].Zip())

	usable, err := pkzip.Zip(text)
	require.Error(t, err)
	assert.False(t, usable)
	usable, err = pkzip.Zip(modern)
	require.NoError(t, err)
	assert.True(t, usable)
	usable, err = pkzip.Zip(shrunk)
	require.NoError(t, err)
	assert.False(t, usable)

	const invalid = 999
	comp := pkzip.Compression(invalid)
	assert.Equal(t, "Reserved", comp.String())
	assert.Equal(t, "Reduced", pkzip.Reduced3.String())
}

func TestMethod(t *testing.T) {
	t.Parallel()
	name := archive(t, zip.Deflate, zip.Store)
	c, err := pkzip.Method(name, "file1.txt")
	require.NoError(t, err)
	assert.Equal(t, pkzip.Stored, c)
	_, err = pkzip.Method(name, "missing.txt")
	require.ErrorIs(t, err, pkzip.ErrMember)
}
