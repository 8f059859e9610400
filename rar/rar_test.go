//go:build unix

package rar_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Defacto2/archivist/command"
	"github.com/Defacto2/archivist/entry"
	"github.com/Defacto2/archivist/internal/fakerar"
	"github.com/Defacto2/archivist/rar"
	"github.com/Defacto2/archivist/rezip"
	"github.com/Defacto2/archivist/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var toolFolder string

func TestMain(m *testing.M) {
	dir, err := fakerar.Install()
	if err != nil {
		panic(err)
	}
	toolFolder = dir
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

// archive returns the path of an empty archive in a temporary directory.
func archive(t *testing.T) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "book.cbr")
	require.NoError(t, os.WriteFile(name, []byte("Rar!"), 0o644))
	return name
}

func paths(entries []entry.Entry) []string {
	s := make([]string, 0, len(entries))
	for _, e := range entries {
		s = append(s, e.Path())
	}
	return s
}

func TestToolNotAvailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := rar.New(t.TempDir())
	_, err := b.Tool()
	require.ErrorIs(t, err, command.ErrToolNotAvailable)
	_, err = b.List(ctx, "any.rar", nil)
	require.ErrorIs(t, err, command.ErrToolNotAvailable)
	_, err = b.Extract(ctx, "any.rar", "a.txt")
	require.ErrorIs(t, err, command.ErrToolNotAvailable)
	err = b.Add(ctx, "any.rar", "a.txt", entry.FromBytes([]byte("a")), rezip.DefaultPolicy())
	require.ErrorIs(t, err, command.ErrToolNotAvailable)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	scratch := t.TempDir()
	b := rar.New(toolFolder, rar.WithScratch(scratch))
	name := archive(t)
	p := rezip.DefaultPolicy()
	require.NoError(t, b.Add(ctx, name, "dir/one.txt", entry.FromBytes([]byte("hello")), p))
	require.NoError(t, b.Add(ctx, name, "two.png", entry.FromBytes([]byte{0x89, 'P', 'N', 'G'}), p))

	list, err := b.List(ctx, name, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dir/one.txt", "two.png"}, paths(list))

	e, err := b.Extract(ctx, name, "dir/one.txt")
	require.NoError(t, err)
	assert.Equal(t, entry.SourceDeferred, e.Kind())
	d, err := e.Bytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(d.Bytes))

	args, err := os.ReadFile(name + ".args")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(args)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "-ep")
	assert.Contains(t, lines[0], "-o+")
	assert.Contains(t, lines[0], "-apdir")
	assert.NotContains(t, lines[0], "-m0")
	assert.Contains(t, lines[1], "-m0")
	assert.NotContains(t, lines[1], "-ap")

	left, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, left, "staging directories must be removed")
}

func TestOverwrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := rar.New(toolFolder, rar.WithScratch(t.TempDir()))
	name := archive(t)
	p := rezip.DefaultPolicy()
	require.NoError(t, b.Add(ctx, name, "n.txt", entry.FromBytes([]byte("B1")), p))
	require.NoError(t, b.Add(ctx, name, "n.txt", entry.FromBytes([]byte("B2")), p))
	list, err := b.List(ctx, name, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"n.txt"}, paths(list))
	d, err := list[0].Bytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B2", string(d.Bytes))
}

func TestListElidesAndFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := rar.New(toolFolder, rar.WithScratch(t.TempDir()))
	name := archive(t)
	p := rezip.DefaultPolicy()
	for _, member := range []string{"a/b.txt", "a/c/d.png", "e.txt", "a.txt"} {
		require.NoError(t, b.Add(ctx, name, member, entry.FromBytes([]byte(member)), p))
	}
	all, err := b.List(ctx, name, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a/b.txt", "a/c/d.png", "e.txt", "a.txt"}, paths(all))

	f := entry.Extensions("txt")
	some, err := b.List(ctx, name, f)
	require.NoError(t, err)
	assert.Equal(t, entry.Apply(f, paths(all)...), paths(some))
}

func TestListEmptyAndMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := rar.New(toolFolder)
	list, err := b.List(ctx, archive(t), nil)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = b.List(ctx, filepath.Join(t.TempDir(), "missing.rar"), nil)
	require.ErrorIs(t, err, rar.ErrProg)
}

func TestMissingMember(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	scratch := t.TempDir()
	b := rar.New(toolFolder, rar.WithScratch(scratch))
	e, err := b.Extract(ctx, archive(t), "does/not/exist")
	require.NoError(t, err)
	d, err := e.Bytes(ctx)
	require.NoError(t, err)
	assert.True(t, d.Fetched)
	assert.True(t, d.Empty())
	assert.False(t, d.Found)
	left, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestDetails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := rar.New(toolFolder, rar.WithScratch(t.TempDir()))
	name := archive(t)
	require.NoError(t, b.Add(ctx, name, "dir/one.txt", entry.FromBytes([]byte("hello")), rezip.DefaultPolicy()))
	details, err := b.Details(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, []rar.Detail{
		{Name: "dir", Dir: true},
		{Name: "dir/one.txt", Size: 5},
	}, details)
}

func TestTimeout(t *testing.T) {
	t.Parallel()
	r := runner.New(runner.WithEnv(map[string]string{fakerar.SleepEnv: "10"}), runner.WithWaitDelay(time.Second))
	b := rar.New(toolFolder, rar.WithRunner(r), rar.WithTimeouts(rar.Timeouts{List: 100 * time.Millisecond}))
	start := time.Now()
	_, err := b.List(context.Background(), archive(t), nil)
	require.ErrorIs(t, err, runner.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAddFileInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "cover.jpg")
	require.NoError(t, os.WriteFile(src, []byte("jpeg"), 0o644))
	b := rar.New(toolFolder, rar.WithScratch(t.TempDir()))
	name := archive(t)
	require.NoError(t, b.Add(ctx, name, "art/front.jpg", entry.FromFile(src), rezip.DefaultPolicy()))
	e, err := b.Extract(ctx, name, "art/front.jpg")
	require.NoError(t, err)
	d, err := e.Bytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(d.Bytes))
}
